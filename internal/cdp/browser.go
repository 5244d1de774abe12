package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/chromedp/cdproto"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/cdproto/target"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/isolation"
	"github.com/GriffinCanCode/tabwall/internal/logging"
)

// Browser backs panel partitions with profiles from an Allocator and
// opens panel pages in them. It implements isolation.Backend.
type Browser struct {
	alloc     Allocator
	log       *logging.Logger
	userAgent string

	mu         sync.Mutex
	partitions map[string]*partitionState
	pages      map[pageKey]*Page
	watched    map[*Conn][]func()
	onScroll   func(panelID string, deltaX float64)

	scrolls  chan scrollDelta
	lost     chan error
	stop     chan struct{}
	stopOnce sync.Once
}

type partitionState struct {
	profile     *Profile
	permissions []cdpbrowser.PermissionType
	filter      func([]isolation.Header) []isolation.Header
	ignoreCerts bool
	// releasing is set while the profile is being shut down on purpose.
	releasing bool
}

type pageKey struct {
	conn    *Conn
	session target.SessionID
}

type scrollDelta struct {
	panelID string
	deltaX  float64
}

var _ isolation.Backend = (*Browser)(nil)

// BrowserOption configures a Browser.
type BrowserOption func(*Browser)

// WithBrowserLogger sets the logger.
func WithBrowserLogger(l *logging.Logger) BrowserOption {
	return func(b *Browser) { b.log = l }
}

// WithUserAgent overrides the user agent of every panel page.
func WithUserAgent(ua string) BrowserOption {
	return func(b *Browser) { b.userAgent = ua }
}

// NewBrowser opens partitions through alloc.
func NewBrowser(alloc Allocator, opts ...BrowserOption) *Browser {
	b := &Browser{
		alloc:      alloc,
		partitions: make(map[string]*partitionState),
		pages:      make(map[pageKey]*Page),
		watched:    make(map[*Conn][]func()),
		scrolls:    make(chan scrollDelta, 64),
		lost:       make(chan error, 1),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = logging.OrNop(b.log).Named("browser")
	go b.scrollLoop()
	return b
}

// OnScroll sets the receiver for wheel deltas forwarded from panels. It
// runs on its own goroutine, so it may block; deltas that arrive
// meanwhile are summed into the next call.
func (b *Browser) OnScroll(fn func(panelID string, deltaX float64)) {
	b.mu.Lock()
	b.onScroll = fn
	b.mu.Unlock()
}

// Lost reports a profile connection that ended without being released.
func (b *Browser) Lost() <-chan error { return b.lost }

func (b *Browser) partition(name string) (*partitionState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.partitions[name]
	if !ok || st.profile == nil {
		return nil, fmt.Errorf("unknown partition %s", name)
	}
	return st, nil
}

func (b *Browser) CreatePartition(ctx context.Context, name string) error {
	b.mu.Lock()
	st, ok := b.partitions[name]
	b.mu.Unlock()
	if ok && st.profile != nil {
		return nil
	}
	prof, err := b.alloc.Allocate(ctx, name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if st == nil {
		st = &partitionState{}
		b.partitions[name] = st
	}
	st.profile = prof
	b.mu.Unlock()
	b.watch(name, prof.Conn)
	return nil
}

// watch subscribes to the events Browser handles on conn, once per
// connection, and reports conn ending while name still uses it.
func (b *Browser) watch(name string, conn *Conn) {
	b.mu.Lock()
	if _, ok := b.watched[conn]; !ok {
		b.watched[conn] = []func(){
			conn.Subscribe(cdproto.EventFetchRequestPaused, func(s target.SessionID, ev any) {
				b.onRequestPaused(conn, s, ev)
			}),
			conn.Subscribe(cdproto.EventRuntimeBindingCalled, func(s target.SessionID, ev any) {
				b.onBindingCalled(conn, s, ev)
			}),
		}
	}
	b.mu.Unlock()

	go func() {
		select {
		case <-b.stop:
			return
		case <-conn.Done():
		}
		b.mu.Lock()
		delete(b.watched, conn)
		st, ok := b.partitions[name]
		expected := !ok || st.releasing || st.profile == nil || st.profile.Conn != conn
		b.mu.Unlock()
		if expected {
			return
		}
		select {
		case b.lost <- fmt.Errorf("browser for %s: %w", name, conn.Err()):
		default:
		}
	}()
}

func (b *Browser) GrantPermissions(ctx context.Context, name string, permissions []string) error {
	st, err := b.partition(name)
	if err != nil {
		return err
	}
	perms := make([]cdpbrowser.PermissionType, len(permissions))
	for i, p := range permissions {
		perms[i] = cdpbrowser.PermissionType(p)
	}
	b.mu.Lock()
	st.permissions = perms
	prof := st.profile
	b.mu.Unlock()
	return grant(ctx, prof, perms)
}

func grant(ctx context.Context, prof *Profile, perms []cdpbrowser.PermissionType) error {
	p := cdpbrowser.GrantPermissions(perms)
	if prof.ContextID != "" {
		p = p.WithBrowserContextID(prof.ContextID)
	}
	return p.Do(on(ctx, prof.Conn))
}

func (b *Browser) FilterResponseHeaders(_ context.Context, name string, filter func([]isolation.Header) []isolation.Header) error {
	st, err := b.partition(name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	st.filter = filter
	b.mu.Unlock()
	return nil
}

// IgnoreCertificateErrors applies to the whole browser holding the
// partition.
func (b *Browser) IgnoreCertificateErrors(ctx context.Context, name string) error {
	st, err := b.partition(name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	st.ignoreCerts = true
	prof := st.profile
	b.mu.Unlock()
	return security.SetIgnoreCertificateErrors(true).Do(on(ctx, prof.Conn))
}

// ClearPartition deletes the partition's profile with everything it
// stored, cookies, storage, HTTP, auth and host caches included, and
// starts a fresh one. Open pages move to the new profile on about:blank;
// callers navigate them afterwards. Permissions, header filtering and
// certificate policy carry over.
func (b *Browser) ClearPartition(ctx context.Context, name string) error {
	st, err := b.partition(name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	st.releasing = true
	var pages []*Page
	for key, p := range b.pages {
		if p.partition == name {
			pages = append(pages, p)
			delete(b.pages, key)
		}
	}
	b.mu.Unlock()

	if err := b.alloc.Wipe(ctx, name); err != nil {
		return fmt.Errorf("wipe %s: %w", name, err)
	}
	prof, err := b.alloc.Allocate(ctx, name)
	if err != nil {
		b.mu.Lock()
		st.profile = nil
		b.mu.Unlock()
		return fmt.Errorf("recreate %s: %w", name, err)
	}

	b.mu.Lock()
	st.profile = prof
	st.releasing = false
	perms, certs, filtered := st.permissions, st.ignoreCerts, st.filter != nil
	b.mu.Unlock()
	b.watch(name, prof.Conn)

	if len(perms) > 0 {
		if err := grant(ctx, prof, perms); err != nil {
			return err
		}
	}
	if certs {
		if err := security.SetIgnoreCertificateErrors(true).Do(on(ctx, prof.Conn)); err != nil {
			return err
		}
	}
	var errs []error
	for _, p := range pages {
		if err := b.attach(ctx, prof, p, filtered); err != nil {
			errs = append(errs, fmt.Errorf("reopen %s: %w", p.PanelID(), err))
		}
	}
	b.log.Info("Partition cleared", zap.String("partition", name), zap.Int("pages", len(pages)))
	return errors.Join(errs...)
}

// OpenPage creates a page for panelID in partition, installs the
// bootstrap script, and navigates it to rawURL.
func (b *Browser) OpenPage(ctx context.Context, panelID, partition, rawURL string) (*Page, error) {
	st, err := b.partition(partition)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	prof, filtered := st.profile, st.filter != nil
	b.mu.Unlock()

	page := newPage(panelID, partition)
	if err := b.attach(ctx, prof, page, filtered); err != nil {
		return nil, fmt.Errorf("prepare page for %s: %w", panelID, err)
	}
	if err := page.Load(ctx, rawURL); err != nil {
		b.log.Warn("Initial load failed", logging.Panel(panelID), zap.String("url", rawURL), zap.Error(err))
	}
	b.log.Info("Panel page opened", logging.Panel(panelID), zap.String("target", page.TargetID()))
	return page, nil
}

// attach gives p a new target in prof and prepares it.
func (b *Browser) attach(ctx context.Context, prof *Profile, p *Page, filtered bool) error {
	create := target.CreateTarget("about:blank").WithNewWindow(true)
	if prof.ContextID != "" {
		create = create.WithBrowserContextID(prof.ContextID)
	}
	targetID, err := create.Do(on(ctx, prof.Conn))
	if err != nil {
		return err
	}
	sessionID, err := target.AttachToTarget(targetID).WithFlatten(true).Do(on(ctx, prof.Conn))
	if err != nil {
		return err
	}
	p.bind(prof.Conn, targetID, sessionID)

	b.mu.Lock()
	b.pages[pageKey{prof.Conn, sessionID}] = p
	b.mu.Unlock()
	if err := b.setup(ctx, p, filtered); err != nil {
		b.forget(p)
		return err
	}
	return nil
}

func (b *Browser) setup(ctx context.Context, p *Page, filtered bool) error {
	ctx, err := p.session(ctx)
	if err != nil {
		return err
	}
	steps := []func(context.Context) error{
		cdppage.Enable().Do,
		cdpruntime.Enable().Do,
		func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(bootstrapScript).Do(ctx)
			return err
		},
		cdpruntime.AddBinding(ScrollBinding).Do,
	}
	if filtered {
		steps = append(steps, fetch.Enable().WithPatterns([]*fetch.RequestPattern{
			{URLPattern: "*", RequestStage: fetch.RequestStageResponse},
		}).Do)
	}
	if b.userAgent != "" {
		steps = append(steps, emulation.SetUserAgentOverride(b.userAgent).Do)
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ClosePage closes a page opened by OpenPage.
func (b *Browser) ClosePage(ctx context.Context, p *Page) error {
	b.forget(p)
	return p.Close(ctx)
}

func (b *Browser) forget(p *Page) {
	conn, sessionID := p.binding()
	b.mu.Lock()
	delete(b.pages, pageKey{conn, sessionID})
	b.mu.Unlock()
}

// Close stops scroll delivery and releases every partition's profile.
// Launched browsers are asked to close so their profiles are flushed.
func (b *Browser) Close(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })

	b.mu.Lock()
	names := make([]string, 0, len(b.partitions))
	for name, st := range b.partitions {
		st.releasing = true
		names = append(names, name)
	}
	for conn, unsub := range b.watched {
		for _, fn := range unsub {
			fn()
		}
		delete(b.watched, conn)
	}
	b.mu.Unlock()

	var errs []error
	for _, name := range names {
		if err := b.alloc.Release(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Browser) onRequestPaused(conn *Conn, sessionID target.SessionID, ev any) {
	e, ok := ev.(*fetch.EventRequestPaused)
	if !ok {
		return
	}
	b.mu.Lock()
	var filter func([]isolation.Header) []isolation.Header
	if page := b.pages[pageKey{conn, sessionID}]; page != nil {
		if st := b.partitions[page.partition]; st != nil {
			filter = st.filter
		}
	}
	b.mu.Unlock()

	// Calls must not run on the event goroutine.
	go func() {
		ctx := on(context.Background(), conn.Session(sessionID))
		if e.ResponseStatusCode == 0 || filter == nil {
			_ = fetch.ContinueRequest(e.RequestID).Do(ctx)
			return
		}
		in := make([]isolation.Header, len(e.ResponseHeaders))
		for i, h := range e.ResponseHeaders {
			in[i] = isolation.Header{Name: h.Name, Value: h.Value}
		}
		kept := filter(in)
		out := make([]*fetch.HeaderEntry, len(kept))
		for i, h := range kept {
			out[i] = &fetch.HeaderEntry{Name: h.Name, Value: h.Value}
		}
		// Modified headers must come with the status code.
		cont := fetch.ContinueResponse(e.RequestID).
			WithResponseCode(e.ResponseStatusCode).
			WithResponseHeaders(out)
		if e.ResponseStatusText != "" {
			cont = cont.WithResponsePhrase(e.ResponseStatusText)
		}
		if err := cont.Do(ctx); err != nil {
			b.log.Debug("Continue response failed", zap.String("request", string(e.RequestID)), zap.Error(err))
		}
	}()
}

// onBindingCalled runs on the event goroutine and only queues the delta.
func (b *Browser) onBindingCalled(conn *Conn, sessionID target.SessionID, ev any) {
	e, ok := ev.(*cdpruntime.EventBindingCalled)
	if !ok || e.Name != ScrollBinding {
		return
	}
	var payload struct {
		DeltaX float64 `json:"deltaX"`
	}
	if err := sonic.UnmarshalString(e.Payload, &payload); err != nil || payload.DeltaX == 0 {
		return
	}
	b.mu.Lock()
	page := b.pages[pageKey{conn, sessionID}]
	b.mu.Unlock()
	if page == nil {
		return
	}
	select {
	case b.scrolls <- scrollDelta{panelID: page.PanelID(), deltaX: payload.DeltaX}:
	default:
		b.log.Debug("Scroll queue full, dropping delta", logging.Panel(page.PanelID()))
	}
}

// scrollLoop delivers deltas one at a time, folding whatever queued up
// during the previous delivery into a single call.
func (b *Browser) scrollLoop() {
	for {
		var d scrollDelta
		select {
		case <-b.stop:
			return
		case d = <-b.scrolls:
		}
	drain:
		for {
			select {
			case next := <-b.scrolls:
				d.panelID = next.panelID
				d.deltaX += next.deltaX
			default:
				break drain
			}
		}

		b.mu.Lock()
		fn := b.onScroll
		b.mu.Unlock()
		if fn != nil && d.deltaX != 0 {
			fn(d.panelID, d.deltaX)
		}
	}
}
