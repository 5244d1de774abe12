package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/chromedp/cdproto"
	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
)

var errDetached = errors.New("page is not attached to a target")

// Page is one panel's page. It implements surface.Surface,
// surface.FileInspector and surface.DocumentSource. Clearing its
// partition moves it to a new target; the Page value stays the same.
type Page struct {
	panelID   string
	partition string

	mu        sync.Mutex
	conn      *Conn
	targetID  target.ID
	sessionID target.SessionID
	url       string
	listeners []func(string)
	unsub     []func()
}

var (
	_ surface.Surface        = (*Page)(nil)
	_ surface.FileInspector  = (*Page)(nil)
	_ surface.DocumentSource = (*Page)(nil)
)

func newPage(panelID, partition string) *Page {
	return &Page{panelID: panelID, partition: partition}
}

// bind points the page at an attached target, replacing any previous one.
func (p *Page) bind(conn *Conn, targetID target.ID, sessionID target.SessionID) {
	p.mu.Lock()
	old := p.unsub
	p.conn, p.targetID, p.sessionID = conn, targetID, sessionID
	p.unsub = []func(){
		conn.Subscribe(cdproto.EventPageFrameNavigated, p.onFrameNavigated),
		conn.Subscribe(cdproto.EventPageNavigatedWithinDocument, p.onWithinDocument),
	}
	p.mu.Unlock()
	for _, fn := range old {
		fn()
	}
}

func (p *Page) binding() (*Conn, target.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn, p.sessionID
}

// session binds ctx to the page's session for the typed commands.
func (p *Page) session(ctx context.Context) (context.Context, error) {
	conn, sessionID := p.binding()
	if conn == nil {
		return nil, errDetached
	}
	return on(ctx, conn.Session(sessionID)), nil
}

// PanelID returns the panel the page belongs to.
func (p *Page) PanelID() string { return p.panelID }

// Partition returns the partition the page lives in.
func (p *Page) Partition() string { return p.partition }

// Conn returns the connection of the browser holding the page.
func (p *Page) Conn() *Conn {
	conn, _ := p.binding()
	return conn
}

// TargetID returns the page's current target id.
func (p *Page) TargetID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.targetID)
}

// SessionID returns the flattened session id.
func (p *Page) SessionID() string {
	_, s := p.binding()
	return string(s)
}

// URL returns the last committed main-frame URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Load(ctx context.Context, url string) error {
	ctx, err := p.session(ctx)
	if err != nil {
		return err
	}
	_, _, errorText, _, err := cdppage.Navigate(url).Do(ctx)
	if err != nil {
		return err
	}
	if errorText != "" {
		return fmt.Errorf("navigate to %s: %s", url, errorText)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	ctx, err := p.session(ctx)
	if err != nil {
		return err
	}
	return cdppage.Reload().WithIgnoreCache(false).Do(ctx)
}

func (p *Page) CanGoBack(ctx context.Context) (bool, error) {
	ctx, err := p.session(ctx)
	if err != nil {
		return false, err
	}
	current, _, err := cdppage.GetNavigationHistory().Do(ctx)
	if err != nil {
		return false, err
	}
	return current > 0, nil
}

func (p *Page) GoBack(ctx context.Context) error {
	ctx, err := p.session(ctx)
	if err != nil {
		return err
	}
	current, entries, err := cdppage.GetNavigationHistory().Do(ctx)
	if err != nil {
		return err
	}
	if current <= 0 || current > int64(len(entries)-1) {
		return errors.New("no previous history entry")
	}
	return cdppage.NavigateToHistoryEntry(entries[current-1].ID).Do(ctx)
}

func (p *Page) ExecuteScript(ctx context.Context, script string) (any, error) {
	ctx, err := p.session(ctx)
	if err != nil {
		return nil, err
	}
	res, ex, err := cdpruntime.Evaluate(script).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		WithUserGesture(true).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if ex != nil {
		msg := ex.Text
		if ex.Exception != nil && ex.Exception.Description != "" {
			msg = ex.Exception.Description
		}
		return nil, fmt.Errorf("script raised: %s", msg)
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}
	var v any
	if err := sonic.Unmarshal(res.Value, &v); err != nil {
		return nil, fmt.Errorf("decode script result: %w", err)
	}
	return v, nil
}

func (p *Page) OnNavigate(fn func(string)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Page) notify(url string) {
	p.mu.Lock()
	p.url = url
	listeners := append([]func(string){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(url)
	}
}

func (p *Page) mine(sessionID target.SessionID) bool {
	_, s := p.binding()
	return s == sessionID
}

func (p *Page) onFrameNavigated(sessionID target.SessionID, ev any) {
	e, ok := ev.(*cdppage.EventFrameNavigated)
	if !ok || !p.mine(sessionID) || e.Frame == nil || e.Frame.ParentID != "" {
		return
	}
	p.notify(e.Frame.URL + e.Frame.URLFragment)
}

func (p *Page) onWithinDocument(sessionID target.SessionID, ev any) {
	e, ok := ev.(*cdppage.EventNavigatedWithinDocument)
	if !ok || !p.mine(sessionID) {
		return
	}
	// The main frame of a page target shares the target id.
	if e.FrameID != "" && string(e.FrameID) != p.TargetID() {
		return
	}
	p.notify(e.URL)
}

func rootNode(ctx context.Context) (cdptypes.NodeID, error) {
	root, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
	if err != nil {
		return 0, err
	}
	return root.NodeID, nil
}

// FileInputs returns every file input, including those inside shadow
// roots.
func (p *Page) FileInputs(ctx context.Context) ([]surface.NodeRef, error) {
	ctx, err := p.session(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := rootNode(ctx); err != nil {
		return nil, err
	}
	searchID, count, err := dom.PerformSearch(`input[type="file"]`).WithIncludeUserAgentShadowDOM(true).Do(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = dom.DiscardSearchResults(searchID).Do(context.WithoutCancel(ctx))
	}()
	if count == 0 {
		return nil, nil
	}

	ids, err := dom.GetSearchResults(searchID, 0, count).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]surface.NodeRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, surface.NodeRef(id))
	}
	return out, nil
}

func (p *Page) SetFileInputFiles(ctx context.Context, node surface.NodeRef, paths []string) error {
	ctx, err := p.session(ctx)
	if err != nil {
		return err
	}
	return dom.SetFileInputFiles(paths).WithNodeID(cdptypes.NodeID(node)).Do(ctx)
}

// OuterHTML serializes the current document.
func (p *Page) OuterHTML(ctx context.Context) (string, error) {
	ctx, err := p.session(ctx)
	if err != nil {
		return "", err
	}
	root, err := rootNode(ctx)
	if err != nil {
		return "", err
	}
	return dom.GetOuterHTML().WithNodeID(root).Do(ctx)
}

// Close closes the target and drops its event subscriptions.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	unsub, conn, targetID := p.unsub, p.conn, p.targetID
	p.unsub = nil
	p.mu.Unlock()
	for _, fn := range unsub {
		fn()
	}
	if conn == nil {
		return nil
	}
	return target.CloseTarget(targetID).Do(on(ctx, conn))
}
