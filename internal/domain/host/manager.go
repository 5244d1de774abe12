package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/broadcast"
	"github.com/GriffinCanCode/tabwall/internal/domain/isolation"
	"github.com/GriffinCanCode/tabwall/internal/domain/layout"
	"github.com/GriffinCanCode/tabwall/internal/domain/registry"
	"github.com/GriffinCanCode/tabwall/internal/domain/state"
	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/persist"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// MinimumSize is the smallest window the wall accepts.
var MinimumSize = types.Size{Width: 800, Height: 600}

// Publisher pushes events to connected control surfaces.
type Publisher interface {
	Publish(eventType string, data any)
}

// Window is the host window as the manager sees it.
type Window interface {
	layout.WindowAdapter
	SetBounds(b types.Bounds)
	WindowBounds() (types.Bounds, bool)
}

// Launcher creates the content surface of a panel inside its prepared
// partition.
type Launcher interface {
	Launch(ctx context.Context, panel types.Panel, partition string) (surface.Surface, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, panel types.Panel, partition string) (surface.Surface, error)

func (f LauncherFunc) Launch(ctx context.Context, panel types.Panel, partition string) (surface.Surface, error) {
	return f(ctx, panel, partition)
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Registry   *registry.Registry
	Surfaces   *surface.Directory
	Engine     *layout.Engine
	Dispatcher *broadcast.Dispatcher
	Isolation  *isolation.Manager
	State      *state.Store
	Window     Window
	Launcher   Launcher
	Publisher  Publisher
}

// Manager implements the command surface. Commands that change ordering,
// enabled flags or configuration are serialised by one mutex; broadcasts
// and surface commands run concurrently.
type Manager struct {
	registry   *registry.Registry
	surfaces   *surface.Directory
	engine     *layout.Engine
	dispatcher *broadcast.Dispatcher
	isolation  *isolation.Manager
	state      *state.Store
	window     Window
	launcher   Launcher
	publisher  Publisher
	policy     Policy
	timeout    time.Duration
	log        *logging.Logger
	metrics    *monitoring.Metrics

	mu        sync.Mutex
	file      *config.PanelFile
	panelPath string
	panelFile *persist.Writer
	ownWrites config.Revisions

	unsubscribe func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mt *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithPolicy sets the navigation policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithSurfaceTimeout bounds single surface commands.
func WithSurfaceTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// NewManager wires a manager. file is the loaded panel file and panelPath
// where saveConfig writes it back.
func NewManager(deps Deps, file *config.PanelFile, panelPath string, opts ...Option) (*Manager, error) {
	if deps.Registry == nil || deps.Engine == nil || deps.Dispatcher == nil || deps.Surfaces == nil {
		return nil, errors.New("host: registry, engine, dispatcher and surfaces are required")
	}
	if file == nil {
		file = config.MinimalPanelFile()
	}
	m := &Manager{
		registry:   deps.Registry,
		surfaces:   deps.Surfaces,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		isolation:  deps.Isolation,
		state:      deps.State,
		window:     deps.Window,
		launcher:   deps.Launcher,
		publisher:  deps.Publisher,
		policy:     Policy{DefaultScheme: "https"},
		timeout:    15 * time.Second,
		file:       file.Clone(),
		panelPath:  panelPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.publisher == nil {
		m.publisher = nopPublisher{}
	}
	m.log = logging.OrNop(m.log).Named("host")

	if err := m.dispatcher.Table().RegisterAll(m.file.Strategies); err != nil {
		m.log.Warn("Ignoring invalid strategy records", zap.Error(err))
	}
	if panelPath != "" {
		m.panelFile = persist.NewWriter("panels", panelPath, m.encodePanelFile,
			persist.WithLogger(m.log),
			persist.WithMetrics(m.metrics))
	}
	m.unsubscribe = m.engine.Subscribe(func(st types.ScrollState) {
		m.publisher.Publish(types.EventScrollState, st)
	})
	return m, nil
}

// Start prepares every panel's partition, launches its surface and runs
// the first layout pass. A panel that fails to launch stays registered
// without a surface; broadcasts report it unavailable.
func (m *Manager) Start(ctx context.Context) error {
	for _, p := range m.registry.All() {
		if err := m.launch(ctx, p); err != nil {
			m.log.Error("Failed to launch panel", logging.Panel(p.ID), zap.Error(err))
		}
	}
	m.engine.Relayout()
	m.recordPanels()

	if m.panelFile != nil {
		if _, err := os.Stat(m.panelPath); errors.Is(err, os.ErrNotExist) {
			m.panelFile.Request()
		}
	}
	m.pushPanels()
	m.log.Info("Host started", zap.Int("panels", m.registry.Len()), zap.Int("surfaces", m.surfaces.Len()))
	return nil
}

func (m *Manager) launch(ctx context.Context, p types.Panel) error {
	if m.launcher == nil {
		return nil
	}
	partition := isolation.PartitionName(p.ID)
	if m.isolation != nil {
		var err error
		if partition, err = m.isolation.Prepare(ctx, p.ID); err != nil {
			return err
		}
	}
	surf, err := m.launcher.Launch(ctx, p, partition)
	if err != nil {
		return fmt.Errorf("launch %s: %w", p.ID, err)
	}
	id := p.ID
	surf.OnNavigate(func(url string) {
		if m.registry.SetCurrentURL(id, url) {
			m.publisher.Publish(types.EventToolbarInfo, m.Panels())
		}
	})
	m.surfaces.Put(id, surf)
	return nil
}

// Autosave persists the snapshot periodically until ctx is done.
func (m *Manager) Autosave(ctx context.Context, interval time.Duration) {
	if m.state != nil {
		m.state.Autosave(ctx, interval)
	}
}

// WatchPanelFile applies external edits of the panel file until ctx is
// done.
func (m *Manager) WatchPanelFile(ctx context.Context) error {
	if m.panelPath == "" {
		return nil
	}
	return config.WatchPanelFile(ctx, m.panelPath, &m.ownWrites, m.log, m.applyPanelFile)
}

// Close flushes the snapshot and the panel file.
func (m *Manager) Close() error {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	var errs []error
	if m.state != nil {
		errs = append(errs, m.state.Close())
	}
	if m.panelFile != nil {
		errs = append(errs, m.panelFile.Close())
	}
	return errors.Join(errs...)
}

func (m *Manager) encodePanelFile() ([]byte, error) {
	m.mu.Lock()
	f := m.file.Clone()
	m.mu.Unlock()
	data, err := config.EncodePanelFile(m.panelPath, f)
	if err == nil {
		m.ownWrites.Record(data)
	}
	return data, err
}

func (m *Manager) surfaceCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Manager) surface(id string) (surface.Surface, error) {
	if _, ok := m.registry.Get(id); !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrPanelNotFound, id)
	}
	s, ok := m.surfaces.Surface(id)
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrSurfaceMissing, id)
	}
	return s, nil
}

func (m *Manager) recordPanels() {
	total, enabled := m.registry.Counts()
	m.metrics.SetPanels(total, enabled)
}

// pushPanels sends the panel payload to the control panel and the toolbar,
// followed by the scroll state.
func (m *Manager) pushPanels() {
	payload := m.Panels()
	m.publisher.Publish(types.EventPanelInfo, payload)
	m.publisher.Publish(types.EventToolbarInfo, payload)
	m.publisher.Publish(types.EventScrollState, m.engine.State())
}
