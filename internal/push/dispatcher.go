package push

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Sender delivers one encrypted push message and reports the HTTP status the
// push service answered with.
type Sender interface {
	Send(ctx context.Context, sub chat.Subscription, payload []byte) (int, error)
}

// ExpiredFunc is called from a worker goroutine when the push service reports
// a subscription permanently gone.
type ExpiredFunc func(user, endpoint string)

// Config sizes the dispatcher.
type Config struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

func (c *Config) norm() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Dispatcher sends offline notifications on a pool of workers so the caller
// never waits on the network. Failures are logged and not retried.
type Dispatcher struct {
	sender    Sender
	cfg       Config
	queue     chan chat.OfflineNotice
	onExpired ExpiredFunc
	log       *zap.Logger
}

// NewDispatcher returns a dispatcher that delivers through sender.
// onExpired may be nil.
func NewDispatcher(sender Sender, cfg Config, onExpired ExpiredFunc, log *zap.Logger) *Dispatcher {
	cfg.norm()
	if log == nil {
		log = zap.NewNop()
	}
	if onExpired == nil {
		onExpired = func(string, string) {}
	}
	return &Dispatcher{
		sender:    sender,
		cfg:       cfg,
		queue:     make(chan chat.OfflineNotice, cfg.QueueSize),
		onExpired: onExpired,
		log:       log,
	}
}

// NotifyOffline queues n for delivery. It never blocks; when the queue is
// full the notice is dropped.
func (d *Dispatcher) NotifyOffline(n chat.OfflineNotice) {
	select {
	case d.queue <- n:
	default:
		d.log.Warn("push queue full, dropping notification",
			zap.String("user", n.User),
			zap.String("room", n.RoomID))
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	d.log.Info("push dispatcher started", zap.Int("workers", d.cfg.Workers))
	return g.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n chat.OfflineNotice) {
	body, err := json.Marshal(BuildPayload(n))
	if err != nil {
		d.log.Error("encode push payload", zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	status, err := d.sender.Send(sendCtx, n.Subscription, body)
	if err != nil {
		d.log.Warn("push failed", zap.String("user", n.User), zap.Error(err))
		return
	}

	switch {
	case status == http.StatusGone:
		d.log.Info("push subscription gone", zap.String("user", n.User))
		d.onExpired(n.User, n.Subscription.Endpoint)
	case status >= 200 && status < 300:
		d.log.Debug("push delivered", zap.String("user", n.User), zap.String("room", n.RoomID))
	default:
		d.log.Warn("push rejected", zap.String("user", n.User), zap.Int("status", status))
	}
}
