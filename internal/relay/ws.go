package relay

import (
	stderrors "errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/appify/internal/log"
	"github.com/felixgeelhaar/appify/pkg/appify/types"
)

// Client frame types
const (
	FrameSubscribe   = types.FrameSubscribe
	FrameUnsubscribe = types.FrameUnsubscribe
)

// ClientFrame is a message sent by a real-time client.
type ClientFrame = types.SubscriptionFrame

var errSubscriberClosed = stderrors.New("subscriber closed")
var errSubscriberSlow = stderrors.New("subscriber send buffer full")

// HubConfig configures the WebSocket endpoint.
type HubConfig struct {
	// AllowedOrigins lists browser origins allowed to connect. Empty allows
	// any origin. Requests without an Origin header are always allowed.
	AllowedOrigins []string
	SendBuffer     int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxFrameBytes  int64
}

// DefaultHubConfig returns the default WebSocket settings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:    64,
		WriteWait:     10 * time.Second,
		PongWait:      60 * time.Second,
		MaxFrameBytes: 4096,
	}
}

// Hub serves the real-time channel: it upgrades connections, turns client
// frames into registry changes and relays events back.
type Hub struct {
	relay    *Relay
	cfg      HubConfig
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients map[string]*conn
}

// NewHub creates a Hub serving subscriptions of r.
func NewHub(r *Relay, cfg HubConfig) *Hub {
	def := DefaultHubConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = def.MaxFrameBytes
	}

	h := &Hub{
		relay:   r,
		cfg:     cfg,
		logger:  r.logger.With("component", "ws"),
		clients: map[string]*conn{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := r.Header.Get("x-api-key")
	if credential == "" {
		credential = r.URL.Query().Get("apiKey")
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debug("websocket upgrade failed", "error", err.Error())
		return
	}

	c := &conn{
		id:         uuid.NewString(),
		ws:         ws,
		send:       make(chan Event, h.cfg.SendBuffer),
		credential: credential,
		hub:        h,
	}
	h.register(c)
	h.logger.Info("client connected", "conn_id", c.id, "remote", r.RemoteAddr)

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	if h.relay.metrics != nil {
		h.relay.metrics.RelayConnections.Inc()
	}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()
	if !ok {
		return
	}

	runs := h.relay.registry.UnsubscribeAll(c.id)
	c.close()
	if h.relay.metrics != nil {
		h.relay.metrics.RelayConnections.Dec()
	}
	h.logger.Info("client disconnected", "conn_id", c.id, "subscriptions_removed", len(runs))
}

func (h *Hub) handle(c *conn, f ClientFrame) {
	runID := strings.TrimSpace(f.RunID)
	switch f.Type {
	case FrameSubscribe:
		if runID == "" {
			_ = c.Send(Event{Type: EventRunError, Error: "runId is required"})
			return
		}
		h.relay.registry.Subscribe(runID, c)
		h.logger.Debug("client subscribed", "conn_id", c.id, "run_id", runID)

		credential := f.APIKey
		if credential == "" {
			credential = c.credential
		}
		if credential == "" {
			return
		}
		if _, err := h.relay.Watch(runID, credential, 0); err != nil {
			_ = c.Send(ErrorEvent(runID, err))
		}
	case FrameUnsubscribe:
		h.relay.registry.Unsubscribe(runID, c.id)
		h.logger.Debug("client unsubscribed", "conn_id", c.id, "run_id", runID)
	default:
		h.logger.Debug("ignoring unknown frame", "conn_id", c.id, "type", f.Type)
	}
}

// conn is one WebSocket connection. It is the Subscriber the registry holds.
type conn struct {
	id         string
	ws         *websocket.Conn
	credential string
	hub        *Hub

	mu     sync.Mutex
	send   chan Event
	closed bool
}

func (c *conn) ID() string { return c.id }

// Send queues ev without blocking. A connection whose queue is full is
// closed so that it cannot fall behind the run's event order.
func (c *conn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSubscriberClosed
	}
	select {
	case c.send <- ev:
		return nil
	default:
		c.closed = true
		close(c.send)
		return errSubscriberSlow
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.ws.Close()
	}()

	cfg := c.hub.cfg
	c.ws.SetReadLimit(cfg.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		var f ClientFrame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug("websocket read failed", "conn_id", c.id, "error", err.Error())
			}
			return
		}
		c.hub.handle(c, f)
	}
}

func (c *conn) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*conn, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
