package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type call struct {
	SessionID string
	Method    string
	Params    map[string]any
}

type reply func(c call) (any, *cdproto.Error)

// fakeBrowser speaks enough of the DevTools protocol for the tests.
type fakeBrowser struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]reply
	calls    []call
	conn     *websocket.Conn // latest connection; events go here
	conns    int
	ready    chan struct{}
	once     sync.Once
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()
	fb := &fakeBrowser{t: t, handlers: map[string]reply{}, ready: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "Chrome/130.0.0.0",
			"Protocol-Version":     "1.3",
			"webSocketDebuggerUrl": fb.wsURL(),
		})
	})
	mux.HandleFunc("/devtools/browser/test", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fb.mu.Lock()
		fb.conn = ws
		fb.conns++
		fb.mu.Unlock()
		fb.once.Do(func() { close(fb.ready) })
		fb.serve(ws)
	})
	fb.server = httptest.NewServer(mux)
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBrowser) wsURL() string {
	return "ws" + strings.TrimPrefix(fb.server.URL, "http") + "/devtools/browser/test"
}

func (fb *fakeBrowser) handle(method string, fn reply) {
	fb.mu.Lock()
	fb.handlers[method] = fn
	fb.mu.Unlock()
}

func (fb *fakeBrowser) result(method string, v any) {
	fb.handle(method, func(call) (any, *cdproto.Error) { return v, nil })
}

func (fb *fakeBrowser) serve(ws *websocket.Conn) {
	for {
		var req struct {
			ID        int64          `json:"id"`
			SessionID string         `json:"sessionId"`
			Method    string         `json:"method"`
			Params    map[string]any `json:"params"`
		}
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		c := call{SessionID: req.SessionID, Method: req.Method, Params: req.Params}
		fb.mu.Lock()
		fb.calls = append(fb.calls, c)
		h := fb.handlers[req.Method]
		fb.mu.Unlock()

		resp := map[string]any{"id": req.ID}
		if h == nil {
			resp["result"] = map[string]any{}
		} else if res, perr := h(c); perr != nil {
			resp["error"] = perr
		} else {
			resp["result"] = res
		}
		if req.SessionID != "" {
			resp["sessionId"] = req.SessionID
		}
		fb.mu.Lock()
		_ = ws.WriteJSON(resp)
		fb.mu.Unlock()
	}
}

func (fb *fakeBrowser) write(v any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.conn != nil {
		_ = fb.conn.WriteJSON(v)
	}
}

// Connections counts websocket clients so far.
func (fb *fakeBrowser) Connections() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.conns
}

// emit sends an event once the client is connected.
func (fb *fakeBrowser) emit(sessionID, method string, params any) {
	<-fb.ready
	fb.write(map[string]any{"sessionId": sessionID, "method": method, "params": params})
}

func (fb *fakeBrowser) Calls(method string) []call {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out []call
	for _, c := range fb.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (fb *fakeBrowser) dial(t *testing.T, opts ...ConnOption) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), fb.wsURL(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
