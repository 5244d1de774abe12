package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
	sendBuffer = 64
)

// Commands are the host operations a control surface may trigger over the
// socket.
type Commands interface {
	Panels() []types.PanelInfo
	ScrollState() types.ScrollState
	ScrollBy(delta float64) types.ScrollState
}

// Envelope is one pushed event.
type Envelope struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected control surface. A client whose
// buffer is full is dropped rather than slowing the publisher.
type Hub struct {
	commands Commands
	log      *logging.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
	origin   func(string) bool

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithOriginCheck admits browser clients whose Origin passes allow.
// Clients that send no Origin are always admitted. Without it only
// same-origin pages may connect.
func WithOriginCheck(allow func(origin string) bool) Option {
	return func(h *Hub) { h.origin = allow }
}

// NewHub creates a hub. commands may be set later with Bind.
func NewHub(commands Commands, opts ...Option) *Hub {
	h := &Hub{commands: commands, clients: make(map[string]*client)}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logging.OrNop(h.log).Named("ws")
	if h.origin != nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.origin(origin)
		}
	}
	return h
}

// Bind sets the command target. The host is built after the hub because it
// publishes through it.
func (h *Hub) Bind(commands Commands) {
	h.mu.Lock()
	h.commands = commands
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends an event to every client.
func (h *Hub) Publish(eventType string, data any) {
	msg, err := encode(eventType, data)
	if err != nil {
		h.log.Error("Failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*client
	for _, c := range h.clients {
		select {
		case c.send <- msg:
			h.metrics.RecordWSMessage("out", eventType)
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("Dropping slow client", zap.String("client", c.id))
		h.remove(c)
	}
}

// HandleConnection upgrades the request and serves the client until it
// disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[cl.id] = cl
	commands := h.commands
	h.mu.Unlock()

	h.metrics.IncWSConnections()
	h.log.Debug("Client connected", zap.String("client", cl.id))

	if commands != nil {
		panels := commands.Panels()
		h.sendTo(cl, types.EventPanelInfo, panels)
		h.sendTo(cl, types.EventToolbarInfo, panels)
		h.sendTo(cl, types.EventScrollState, commands.ScrollState())
	}

	go h.writePump(cl)
	h.readPump(cl)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) sendTo(c *client, eventType string, data any) {
	msg, err := encode(eventType, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		h.metrics.DecWSConnections()
		h.log.Debug("Client disconnected", zap.String("client", c.id))
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("WebSocket read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		var msg types.WSMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.sendTo(c, "error", "malformed message")
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *client, msg types.WSMessage) {
	h.mu.RLock()
	commands := h.commands
	h.mu.RUnlock()

	switch msg.Type {
	case "scroll":
		if commands != nil && msg.Delta != 0 {
			// the engine publishes the resulting scroll-state to every client
			commands.ScrollBy(msg.Delta)
		}
	case "get-panels":
		if commands != nil {
			h.sendTo(c, types.EventPanelInfo, commands.Panels())
		}
	case "ping":
		h.sendTo(c, "pong", nil)
	default:
		h.sendTo(c, "error", "unknown message type")
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encode(eventType string, data any) ([]byte, error) {
	return sonic.Marshal(Envelope{Type: eventType, Payload: data, Timestamp: time.Now().UnixMilli()})
}
