package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades the request and hands the new client to hub,
// which starts its pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.L().Debug("websocket upgrade failed",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Error(err))
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)
		if !hub.Register(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.Close()
		}
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// HealthHandler reports liveness and the number of connected clients.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Connections: hub.ClientCount()})
	}
}

type publicKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// PublicKeyHandler serves the VAPID public key browsers subscribe with.
func PublicKeyHandler(publicKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if publicKey == "" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push not configured"})
			return
		}
		writeJSON(w, http.StatusOK, publicKeyResponse{PublicKey: publicKey})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Warn("write json response", zap.Error(err))
	}
}
