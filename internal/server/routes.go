package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter configures all HTTP routes: the websocket endpoint, a health
// check and the push public key.
func NewRouter(hub *Hub, publicKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	cfg := currentConfig()
	origins := cfg.AllowedOrigins
	if AllowsAllOrigins() {
		origins = []string{"*"}
	}
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", HealthHandler(hub))
	r.Get("/ws", WebSocketHandler(hub))
	r.Get("/api/push/public-key", PublicKeyHandler(publicKey))

	return r
}
