package layout

import (
	"sync"

	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
	"go.uber.org/zap"
)

// WindowAdapter is the host window: it reports the content area and
// positions views.
type WindowAdapter interface {
	ContentSize() types.Size
	Place(id string, bounds types.Bounds)
}

// PanelSource supplies the enabled and disabled panels in layout order.
type PanelSource interface {
	Enabled() []types.Panel
	Disabled() []types.Panel
}

// Observer receives the scroll state after each applied pass.
type Observer func(types.ScrollState)

// Engine owns the scroll offset. Every write to it goes through apply,
// which clamps and records the plan under mu. Placing the plan happens
// after mu is released, so a slow window never blocks readers or the
// next scroll; plans reach the window in order and stale ones are
// skipped.
type Engine struct {
	window  WindowAdapter
	panels  PanelSource
	log     *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.Mutex
	geometry Geometry
	offset   float64
	last     Plan
	seq      uint64

	placeMu sync.Mutex
	placed  uint64

	obsMu     sync.RWMutex
	observers map[uint64]Observer
	nextObs   uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine. No pass runs until Relayout is called.
func NewEngine(window WindowAdapter, panels PanelSource, geometry Geometry, opts ...Option) *Engine {
	e := &Engine{
		window:    window,
		panels:    panels,
		geometry:  geometry.normalized(),
		observers: make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.OrNop(e.log).Named("layout")
	return e
}

// SetGeometry replaces the layout knobs. Call Relayout afterwards.
func (e *Engine) SetGeometry(g Geometry) {
	e.mu.Lock()
	e.geometry = g.normalized()
	e.mu.Unlock()
}

// Geometry returns the current knobs.
func (e *Engine) Geometry() Geometry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.geometry
}

// Relayout runs a pass with the current offset.
func (e *Engine) Relayout() types.ScrollState {
	return e.apply(func(offset float64, _ types.ScrollState) (float64, bool) {
		return offset, true
	})
}

// ScrollBy moves the strip by delta pixels. Ignored when nothing scrolls.
func (e *Engine) ScrollBy(delta float64) types.ScrollState {
	return e.apply(func(offset float64, st types.ScrollState) (float64, bool) {
		if st.MaxScroll == 0 {
			return offset, false
		}
		return offset + delta, true
	})
}

// ScrollToFraction jumps to f of the scrollable range, f clamped to [0,1].
func (e *Engine) ScrollToFraction(f float64) types.ScrollState {
	return e.apply(func(offset float64, st types.ScrollState) (float64, bool) {
		if st.MaxScroll == 0 {
			return offset, false
		}
		return Clamp(f, 1) * float64(st.MaxScroll), true
	})
}

// State returns the state of the last applied pass.
func (e *Engine) State() types.ScrollState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.State
}

// LastPlan returns the last applied plan.
func (e *Engine) LastPlan() Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Subscribe registers an observer and returns its cancel func.
func (e *Engine) Subscribe(fn Observer) func() {
	e.obsMu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	e.obsMu.Unlock()

	return func() {
		e.obsMu.Lock()
		delete(e.observers, id)
		e.obsMu.Unlock()
	}
}

// apply is the single clamp-and-apply step. next receives the current
// offset and the state computed from it, and returns the requested offset
// and whether to run the pass at all.
func (e *Engine) apply(next func(offset float64, current types.ScrollState) (float64, bool)) types.ScrollState {
	e.mu.Lock()

	in := e.input()
	current := Compute(in)

	requested, run := next(current.State.OffsetX, current.State)
	if !run {
		if current.State == e.last.State {
			e.mu.Unlock()
			return current.State
		}
		// Panels or the viewport changed since the last pass: apply the
		// clamped offset so offset and last plan stay in step.
		requested = current.State.OffsetX
	}

	in.OffsetX = requested
	plan := Compute(in)
	e.offset = plan.State.OffsetX
	e.last = plan
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	e.place(seq, plan)

	e.metrics.RecordLayout(plan.State.OffsetX, plan.State.MaxScroll)
	e.log.Debug("Layout applied",
		zap.Float64("offset", plan.State.OffsetX),
		zap.Int("max_scroll", plan.State.MaxScroll),
		zap.Int("enabled", plan.State.TotalEnabled))

	e.notify(plan.State)
	return plan.State
}

// place hands plan number seq to the window unless a newer plan got
// there first.
func (e *Engine) place(seq uint64, plan Plan) {
	if e.window == nil {
		return
	}
	e.placeMu.Lock()
	defer e.placeMu.Unlock()
	if seq <= e.placed {
		return
	}
	e.placed = seq
	for _, p := range plan.Placements {
		e.window.Place(p.ID, p.Bounds)
	}
}

func (e *Engine) input() Input {
	var size types.Size
	if e.window != nil {
		size = e.window.ContentSize()
	}
	in := Input{Viewport: size, Geometry: e.geometry, OffsetX: e.offset}
	if e.panels != nil {
		for _, p := range e.panels.Enabled() {
			in.Enabled = append(in.Enabled, p.ID)
		}
		for _, p := range e.panels.Disabled() {
			in.Disabled = append(in.Disabled, p.ID)
		}
	}
	return in
}

func (e *Engine) notify(st types.ScrollState) {
	e.obsMu.RLock()
	obs := make([]Observer, 0, len(e.observers))
	for _, fn := range e.observers {
		obs = append(obs, fn)
	}
	e.obsMu.RUnlock()

	for _, fn := range obs {
		fn(st)
	}
}
