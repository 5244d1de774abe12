package cdp

import (
	"context"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Window maps the wall's virtual window onto browser windows: each panel
// page has its own window, positioned at the wall origin plus its
// placement. Chrome views (toolbar, scrollbar, sidebar) are not browser
// targets; their placements are reported through OnPlace.
type Window struct {
	log     *logging.Logger
	timeout time.Duration

	mu         sync.Mutex
	bounds     types.Bounds
	panels     map[string]*panelWindow
	placements map[string]types.Bounds
	onPlace    func(id string, b types.Bounds)
}

type panelWindow struct {
	page *Page
	// target, id and minimized describe the page's current browser
	// window; a new target means a new window.
	target    string
	id        cdpbrowser.WindowID
	minimized bool
}

// NewWindow creates a window with the given outer bounds.
func NewWindow(bounds types.Bounds, log *logging.Logger) *Window {
	return &Window{
		log:        logging.OrNop(log).Named("window"),
		timeout:    5 * time.Second,
		bounds:     bounds,
		panels:     make(map[string]*panelWindow),
		placements: make(map[string]types.Bounds),
	}
}

// Attach binds a panel id to its page.
func (w *Window) Attach(id string, p *Page) {
	w.mu.Lock()
	w.panels[id] = &panelWindow{page: p}
	w.mu.Unlock()
}

// Detach forgets a panel's page.
func (w *Window) Detach(id string) {
	w.mu.Lock()
	delete(w.panels, id)
	w.mu.Unlock()
}

// OnPlace observes every placement.
func (w *Window) OnPlace(fn func(id string, b types.Bounds)) {
	w.mu.Lock()
	w.onPlace = fn
	w.mu.Unlock()
}

// SetBounds records a move or resize of the wall.
func (w *Window) SetBounds(b types.Bounds) {
	w.mu.Lock()
	w.bounds = b
	w.mu.Unlock()
}

// WindowBounds returns the wall's outer bounds.
func (w *Window) WindowBounds() (types.Bounds, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds, w.bounds.Width > 0 && w.bounds.Height > 0
}

// ContentSize returns the wall's size.
func (w *Window) ContentSize() types.Size {
	w.mu.Lock()
	defer w.mu.Unlock()
	return types.Size{Width: w.bounds.Width, Height: w.bounds.Height}
}

// Placement returns the last bounds given to id.
func (w *Window) Placement(id string) (types.Bounds, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.placements[id]
	return b, ok
}

// Place positions id. Panels with a zero size are minimized.
func (w *Window) Place(id string, b types.Bounds) {
	w.mu.Lock()
	w.placements[id] = b
	pw := w.panels[id]
	origin := w.bounds
	onPlace := w.onPlace
	w.mu.Unlock()

	if onPlace != nil {
		onPlace(id, b)
	}
	if pw == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.placePage(ctx, pw, origin, b); err != nil {
		w.log.Warn("Failed to place panel window", logging.Panel(id), zap.Error(err))
	}
}

// placement is Browser.setWindowBounds with every offset sent, since
// cdpbrowser.Bounds omits zero values and a window at the screen edge
// would otherwise stay where it was.
type placement struct {
	WindowID cdpbrowser.WindowID `json:"windowId"`
	Bounds   struct {
		Left   int64 `json:"left"`
		Top    int64 `json:"top"`
		Width  int64 `json:"width"`
		Height int64 `json:"height"`
	} `json:"bounds"`
}

func (w *Window) placePage(ctx context.Context, pw *panelWindow, origin, b types.Bounds) error {
	conn := pw.page.Conn()
	if conn == nil {
		return errDetached
	}
	ctx = on(ctx, conn)
	windowID, minimized, err := w.window(ctx, pw)
	if err != nil {
		return err
	}

	if b.Width <= 0 || b.Height <= 0 {
		if minimized {
			return nil
		}
		err := cdpbrowser.SetWindowBounds(windowID, &cdpbrowser.Bounds{WindowState: cdpbrowser.WindowStateMinimized}).Do(ctx)
		if err != nil {
			return err
		}
		w.setMinimized(pw, true)
		return nil
	}

	if minimized {
		err := cdpbrowser.SetWindowBounds(windowID, &cdpbrowser.Bounds{WindowState: cdpbrowser.WindowStateNormal}).Do(ctx)
		if err != nil {
			return err
		}
		w.setMinimized(pw, false)
	}
	params := placement{WindowID: windowID}
	params.Bounds.Left = int64(origin.X + b.X)
	params.Bounds.Top = int64(origin.Y + b.Y)
	params.Bounds.Width = int64(b.Width)
	params.Bounds.Height = int64(b.Height)
	return conn.Execute(ctx, cdpbrowser.CommandSetWindowBounds, &params, nil)
}

func (w *Window) setMinimized(pw *panelWindow, v bool) {
	w.mu.Lock()
	pw.minimized = v
	w.mu.Unlock()
}

// window returns the browser window of the page's current target.
func (w *Window) window(ctx context.Context, pw *panelWindow) (cdpbrowser.WindowID, bool, error) {
	targetID := pw.page.TargetID()
	w.mu.Lock()
	if pw.target == targetID && pw.id != 0 {
		id, minimized := pw.id, pw.minimized
		w.mu.Unlock()
		return id, minimized, nil
	}
	w.mu.Unlock()

	id, _, err := cdpbrowser.GetWindowForTarget().WithTargetID(target.ID(targetID)).Do(ctx)
	if err != nil {
		return 0, false, err
	}
	w.mu.Lock()
	pw.target, pw.id, pw.minimized = targetID, id, false
	w.mu.Unlock()
	return id, false, nil
}
