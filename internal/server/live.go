package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/chalkvoice/chalkvoice/internal/command"
	"github.com/chalkvoice/chalkvoice/internal/observe"
)

// writeTimeout bounds one broadcast write per client. A client that cannot
// keep up is dropped rather than stalling the hub.
const writeTimeout = 5 * time.Second

// feedEvent is the wire format of one live feed message.
type feedEvent struct {
	Event string               `json:"event"`
	Data  command.Confirmation `json:"data"`
}

// Hub fans confirmations out to all connected websocket clients so a
// classroom display can mirror what the operator just recorded. Clients are
// read-only; anything they send is drained and discarded.
type Hub struct {
	metrics *observe.Metrics
	log     *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]context.CancelFunc
	closed  bool
}

// NewHub returns an empty [Hub].
func NewHub(metrics *observe.Metrics, log *slog.Logger) *Hub {
	return &Hub{
		metrics: metrics,
		log:     log,
		clients: make(map[*websocket.Conn]context.CancelFunc),
	}
}

// Serve upgrades the request to a websocket and keeps the connection
// registered until the client disconnects or the hub closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The feed carries no credentials and classroom displays are served
		// from other origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.clients[conn] = cancel
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.FeedClients.Add(ctx, 1)
	h.log.Info("feed client connected", "clients", n)

	// Drain client frames so pings are answered; any read error means the
	// client went away.
	readErr := drain(ctx, conn)

	h.remove(conn)
	h.metrics.FeedClients.Add(context.Background(), -1)
	h.log.Info("feed client disconnected", "error", readErr)
}

// drain reads and discards frames until the connection fails or ctx ends.
func drain(ctx context.Context, conn *websocket.Conn) error {
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return err
		}
	}
}

// Broadcast sends one confirmation to every connected client. Failed writes
// drop the client.
func (h *Hub) Broadcast(conf command.Confirmation) {
	event := feedEvent{Event: "recorded", Data: conf}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := wsjson.Write(ctx, conn, event)
		cancel()
		if err != nil {
			h.log.Warn("feed write failed, dropping client", "error", err)
			h.remove(conn)
			conn.Close(websocket.StatusPolicyViolation, "write timeout")
		}
	}
}

// remove unregisters conn and cancels its serve context.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	cancel, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close disconnects every client and rejects new connections. The ctx bounds
// nothing today; it is accepted for symmetry with other shutdown hooks.
func (h *Hub) Close(_ context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn, cancel := range h.clients {
		cancel()
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]context.CancelFunc)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}
