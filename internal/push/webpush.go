package push

import (
	"context"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// VAPIDConfig identifies this server to push services.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	TTL        int
}

// GenerateKeys returns a fresh VAPID key pair.
func GenerateKeys() (public, private string, err error) {
	private, public, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", errors.Wrap(err, "generate vapid keys")
	}
	return public, private, nil
}

// WebPushSender sends encrypted payloads with VAPID authentication.
type WebPushSender struct {
	cfg    VAPIDConfig
	client *http.Client
}

// NewWebPushSender returns a sender using cfg. A nil client means
// http.DefaultClient.
func NewWebPushSender(cfg VAPIDConfig, client *http.Client) *WebPushSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPushSender{cfg: cfg, client: client}
}

// PublicKey returns the application server key clients subscribe with.
func (s *WebPushSender) PublicKey() string {
	return s.cfg.PublicKey
}

// Send delivers payload to sub and returns the push service's status code.
func (s *WebPushSender) Send(ctx context.Context, sub chat.Subscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		TTL:             s.cfg.TTL,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  s.cfg.PublicKey,
		VAPIDPrivateKey: s.cfg.PrivateKey,
	})
	if err != nil {
		return 0, errors.Wrap(err, "send web push")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
