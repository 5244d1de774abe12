package cdp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tabwall/internal/logging"
)

// ErrClosed is returned for calls on a closed connection.
var ErrClosed = errors.New("devtools connection closed")

// The protocol types carry json v2 tags and marshalers.
var jsonOptions = jsonv2.JoinOptions(
	jsonv2.DefaultOptionsV2(),
	jsontext.AllowInvalidUTF8(true),
)

// EventHandler receives one decoded protocol event, for example
// *page.EventFrameNavigated.
type EventHandler func(sessionID target.SessionID, ev any)

type subscription struct {
	method cdproto.MethodType
	fn     EventHandler
}

// Conn is a browser-level DevTools connection. Page sessions share it
// through flattened session ids. Conn is a cdp.Executor for the browser
// target; Session returns one for a page.
type Conn struct {
	ws      *websocket.Conn
	breaker *resilience.Breaker
	log     *logging.Logger
	metrics *monitoring.Metrics

	nextID atomic.Int64

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *cdproto.Message
	subs    map[int64]subscription
	nextSub int64
	closed  bool
	err     error

	events chan *cdproto.Message
	done   chan struct{}
}

var _ cdptypes.Executor = (*Conn)(nil)

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithConnLogger sets the logger.
func WithConnLogger(l *logging.Logger) ConnOption {
	return func(c *Conn) { c.log = l }
}

// WithConnMetrics sets the metrics collector.
func WithConnMetrics(m *monitoring.Metrics) ConnOption {
	return func(c *Conn) { c.metrics = m }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *resilience.Breaker) ConnOption {
	return func(c *Conn) { c.breaker = b }
}

// Dial opens a connection to a webSocketDebuggerUrl.
func Dial(ctx context.Context, wsURL string, opts ...ConnOption) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1 << 16,
		WriteBufferSize:  1 << 16,
	}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial devtools %s: %w", wsURL, err)
	}
	// Documents can be large.
	ws.SetReadLimit(64 << 20)
	return newConn(ws, opts...), nil
}

func newConn(ws *websocket.Conn, opts ...ConnOption) *Conn {
	c := &Conn{
		ws:      ws,
		pending: make(map[int64]chan *cdproto.Message),
		subs:    make(map[int64]subscription),
		events:  make(chan *cdproto.Message, 256),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logging.OrNop(c.log).Named("cdp")
	if c.breaker == nil {
		c.breaker = resilience.New("devtools", resilience.Settings{
			Cooldown: 10 * time.Second,
			Ignore:   ignoreForBreaker,
			OnStateChange: func(name string, from, to resilience.State) {
				c.log.Warn("DevTools breaker changed state",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	go c.readLoop()
	go c.eventLoop()
	return c
}

// ignoreForBreaker keeps protocol errors and caller cancellations from
// tripping the breaker; only transport failures and timeouts count.
func ignoreForBreaker(err error) bool {
	var pe *cdproto.Error
	return errors.As(err, &pe) || errors.Is(err, context.Canceled)
}

// Execute runs a command on the browser target.
func (c *Conn) Execute(ctx context.Context, method string, params, res any) error {
	return c.Call(ctx, "", method, params, res)
}

// Session returns an executor for a flattened page session.
func (c *Conn) Session(id target.SessionID) cdptypes.Executor {
	return session{conn: c, id: id}
}

type session struct {
	conn *Conn
	id   target.SessionID
}

func (s session) Execute(ctx context.Context, method string, params, res any) error {
	return s.conn.Call(ctx, s.id, method, params, res)
}

// on binds exec to ctx for the typed command builders.
func on(ctx context.Context, exec cdptypes.Executor) context.Context {
	return cdptypes.WithExecutor(ctx, exec)
}

// Call sends method with params on sessionID ("" for the browser target)
// and decodes the result into result, which may be nil.
func (c *Conn) Call(ctx context.Context, sessionID target.SessionID, method string, params, result any) error {
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, sessionID, method, params, result)
	})
	c.metrics.RecordDevToolsCall(method, err)
	return err
}

func (c *Conn) roundTrip(ctx context.Context, sessionID target.SessionID, method string, params, result any) error {
	id := c.nextID.Add(1)
	reply := make(chan *cdproto.Message, 1)

	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := cdproto.Message{ID: id, SessionID: sessionID, Method: cdproto.MethodType(method)}
	if params != nil {
		buf, err := jsonv2.Marshal(params, jsonOptions)
		if err != nil {
			return fmt.Errorf("encode %s: %w", method, err)
		}
		msg.Params = buf
	}
	data, err := jsonv2.Marshal(&msg, jsonOptions)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case res, ok := <-reply:
		if !ok {
			return c.closeErr()
		}
		if res.Error != nil {
			return fmt.Errorf("%s: %w", method, res.Error)
		}
		if result == nil || len(res.Result) == 0 {
			return nil
		}
		if err := jsonv2.Unmarshal(res.Result, result, jsonOptions); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

// Subscribe registers fn for events named method and returns a function
// that removes it. Handlers run on one goroutine in arrival order and must
// not block; anything that calls back into the browser belongs on another
// goroutine.
func (c *Conn) Subscribe(method cdproto.MethodType, fn EventHandler) func() {
	c.mu.Lock()
	c.nextSub++
	key := c.nextSub
	c.subs[key] = subscription{method: method, fn: fn}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, key)
		c.mu.Unlock()
	}
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, or nil while open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		return nil
	}
	return c.err
}

// Close ends the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}

func (c *Conn) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClosed
}

// readLoop never drops an event: when handlers fall behind it stops
// reading until the queue drains.
func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		msg := new(cdproto.Message)
		if err := jsonv2.Unmarshal(data, msg, jsonOptions); err != nil {
			c.log.Warn("Dropping undecodable message", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}

		if msg.ID != 0 {
			c.mu.Lock()
			reply, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				reply <- msg
			}
			continue
		}
		if msg.Method != "" {
			c.events <- msg
		}
	}
}

func (c *Conn) eventLoop() {
	defer close(c.done)
	for msg := range c.events {
		c.mu.Lock()
		var handlers []EventHandler
		for _, s := range c.subs {
			if s.method == msg.Method {
				handlers = append(handlers, s.fn)
			}
		}
		c.mu.Unlock()
		if len(handlers) == 0 {
			continue
		}

		ev, err := cdproto.UnmarshalMessage(msg, jsonOptions)
		if err != nil {
			c.log.Debug("Undecodable event", zap.String("method", msg.Method.String()), zap.Error(err))
			continue
		}
		for _, fn := range handlers {
			c.dispatch(fn, msg, ev)
		}
	}
}

func (c *Conn) dispatch(fn EventHandler, msg *cdproto.Message, ev any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Event handler panicked", zap.String("method", msg.Method.String()), zap.Any("panic", r))
		}
	}()
	fn(msg.SessionID, ev)
}

func (c *Conn) shutdown(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure) || errors.Is(cause, websocket.ErrCloseSent) {
		c.err = ErrClosed
	} else {
		c.err = fmt.Errorf("%w: %v", ErrClosed, cause)
	}
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
	c.log.Info("DevTools connection ended", zap.Error(cause))
}
