package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/logging"
)

type inboundCommand struct {
	client *Client
	name   string
	data   json.RawMessage
}

type expiredSubscription struct {
	user     string
	endpoint string
}

// Hub owns the chat coordinator and all registered clients. Every coordinator
// call and every send-queue write happens on the goroutine running Run, so
// neither needs a lock.
type Hub struct {
	clients    map[chat.ConnID]*Client
	coord      *chat.Coordinator
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundCommand
	expired    chan expiredSubscription
	stalled    []*Client
	count      atomic.Int64
	log        *zap.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub with its own coordinator. Options are passed through
// to chat.NewCoordinator.
func NewHub(log *zap.Logger, opts ...chat.Option) *Hub {
	log = logging.OrNop(log)
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[chat.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundCommand),
		expired:    make(chan expiredSubscription, 64),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	opts = append([]chat.Option{chat.WithLogger(log.Named("chat"))}, opts...)
	h.coord = chat.NewCoordinator(h, opts...)
	return h
}

// Register hands a freshly upgraded client to the hub. It reports false when
// the hub is already shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// ExpireSubscription asks the hub to forget a push subscription. It is safe
// to call from any goroutine and never blocks past shutdown.
func (h *Hub) ExpireSubscription(user, endpoint string) {
	select {
	case h.expired <- expiredSubscription{user: user, endpoint: endpoint}:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Deliver implements chat.Transport. A client whose send queue is full is
// marked stalled and disconnected once the current command completes.
func (h *Hub) Deliver(conn chat.ConnID, ev chat.Event) {
	client, ok := h.clients[conn]
	if !ok || client.stalled {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode event", zap.String("event", ev.Name), zap.Error(err))
		return
	}

	select {
	case client.send <- payload:
	default:
		client.stalled = true
		h.stalled = append(h.stalled, client)
	}
}

// Run starts the hub's main event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case cmd := <-h.inbound:
			if _, ok := h.clients[cmd.client.id]; !ok {
				continue
			}
			if err := h.coord.Handle(cmd.client.id, cmd.name, cmd.data); err != nil {
				h.log.Debug("command rejected",
					zap.String("conn", string(cmd.client.id)),
					zap.Error(err))
			}

		case exp := <-h.expired:
			h.coord.ExpireSubscription(exp.user, exp.endpoint)
		}

		h.reapStalled()
	}
}

func (h *Hub) add(client *Client) {
	if client == nil {
		h.log.Warn("received nil client registration; skipping")
		return
	}

	h.clients[client.id] = client
	h.count.Store(int64(len(h.clients)))
	h.log.Info("client registered",
		zap.String("conn", string(client.id)),
		zap.String("addr", client.addr),
		zap.Int("clients", len(h.clients)))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	h.coord.Connect(client.id)
}

// remove detaches client from the hub and tells the coordinator. Closing the
// send queue makes the write pump send a close frame and exit.
func (h *Hub) remove(client *Client) {
	if current, ok := h.clients[client.id]; !ok || current != client {
		return
	}
	delete(h.clients, client.id)
	h.count.Store(int64(len(h.clients)))
	close(client.send)

	h.coord.Disconnecting(client.id)
	h.coord.Disconnect(client.id)

	h.log.Info("client unregistered",
		zap.String("conn", string(client.id)),
		zap.String("addr", client.addr),
		zap.Int("clients", len(h.clients)))
}

// reapStalled disconnects clients that could not keep up. Removing one may
// emit events that stall another, so it loops until none are left.
func (h *Hub) reapStalled() {
	for len(h.stalled) > 0 {
		client := h.stalled[0]
		h.stalled = h.stalled[1:]
		h.log.Warn("client removed due to full send buffer", zap.String("addr", client.addr))
		h.remove(client)
	}
	h.stalled = nil
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	closed := 0
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("error closing client connection",
					zap.String("addr", client.addr),
					zap.Error(err))
			}
		}
		closed++
	}
	h.count.Store(0)

	h.log.Info("closed client connections", zap.Int("count", closed))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
