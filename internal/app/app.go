package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/tabwall/internal/api/middleware"
	"github.com/GriffinCanCode/tabwall/internal/api/ws"
	"github.com/GriffinCanCode/tabwall/internal/cdp"
	"github.com/GriffinCanCode/tabwall/internal/domain/broadcast"
	"github.com/GriffinCanCode/tabwall/internal/domain/host"
	"github.com/GriffinCanCode/tabwall/internal/domain/isolation"
	"github.com/GriffinCanCode/tabwall/internal/domain/layout"
	"github.com/GriffinCanCode/tabwall/internal/domain/registry"
	"github.com/GriffinCanCode/tabwall/internal/domain/state"
	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/server"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled wall: the browser link, the host and its command
// surface.
type App struct {
	cfg     *config.Config
	log     *logging.Logger
	shared  *cdp.Conn // set when attached to a running browser
	browser *cdp.Browser
	host    *host.Manager
	hub     *ws.Hub
	server  *server.Server

	mu      sync.Mutex
	cancel  context.CancelFunc
	restart atomic.Bool
}

// New prepares the browser allocator and wires every component. Nothing
// is launched until Run.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger, version string) (*App, error) {
	log = logging.OrNop(log)
	metrics := monitoring.NewMetrics()
	a := &App{cfg: cfg, log: log.Named("app")}

	file := LoadPanelFile(cfg.Paths.PanelFile, log)
	snap := LoadSnapshot(cfg.Paths.StateFile, log)

	reg := registry.New()
	if _, err := state.Restore(reg, file.Panels, snap); err != nil {
		return nil, err
	}

	alloc, shared, err := newAllocator(ctx, cfg, log, metrics)
	if err != nil {
		return nil, err
	}
	a.shared = shared

	browser := cdp.NewBrowser(alloc, cdp.WithBrowserLogger(log), cdp.WithUserAgent(cfg.Browser.UserAgent))
	def := types.Size{Width: cfg.Layout.DefaultWidth, Height: cfg.Layout.DefaultHeight}
	window := cdp.NewWindow(state.InitialBounds(snap, def, host.MinimumSize), log)

	surfaces := surface.NewDirectory()
	engine := layout.NewEngine(window, reg,
		host.Geometry(file, cfg.Layout.ToolbarHeight, cfg.Layout.ScrollbarHeight),
		layout.WithLogger(log), layout.WithMetrics(metrics))
	dispatcher := broadcast.NewDispatcher(reg, surfaces, broadcast.NewTable(), BroadcastConfig(cfg),
		broadcast.WithLogger(log), broadcast.WithMetrics(metrics))
	store := state.NewStore(cfg.Paths.StateFile, reg, window,
		state.WithLogger(log), state.WithMetrics(metrics))
	iso := isolation.NewManager(browser, reg, surfaces,
		isolation.WithLogger(log),
		isolation.WithSnapshot(store),
		isolation.WithRestarter(isolation.RestartFunc(a.requestRestart)))
	origins := middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)
	hub := ws.NewHub(nil, ws.WithLogger(log), ws.WithMetrics(metrics), ws.WithOriginCheck(origins.Allowed))

	launcher := host.LauncherFunc(func(ctx context.Context, p types.Panel, partition string) (surface.Surface, error) {
		page, err := browser.OpenPage(ctx, p.ID, partition, p.CurrentURL)
		if err != nil {
			return nil, err
		}
		window.Attach(p.ID, page)
		return page, nil
	})

	mgr, err := host.NewManager(host.Deps{
		Registry:   reg,
		Surfaces:   surfaces,
		Engine:     engine,
		Dispatcher: dispatcher,
		Isolation:  iso,
		State:      store,
		Window:     window,
		Launcher:   launcher,
		Publisher:  hub,
	}, file, cfg.Paths.PanelFile,
		host.WithLogger(log),
		host.WithMetrics(metrics),
		host.WithSurfaceTimeout(cfg.Browser.SurfaceTimeout),
		host.WithPolicy(host.Policy{
			DefaultScheme: cfg.Navigation.DefaultScheme,
			AllowedHosts:  cfg.Navigation.AllowedHosts,
		}))
	if err != nil {
		_ = browser.Close(ctx)
		if shared != nil {
			_ = shared.Close()
		}
		return nil, err
	}

	hub.Bind(mgr)
	browser.OnScroll(mgr.HandleScroll)
	window.OnPlace(func(id string, b types.Bounds) {
		if id == layout.ToolbarID || id == layout.ScrollbarID || id == layout.SidebarID {
			hub.Publish(types.EventPlacement, types.Placement{ID: id, Bounds: b})
		}
	})

	srv := server.NewServer(cfg, server.Deps{
		Host:    mgr,
		Hub:     hub,
		Metrics: metrics,
		Logger:  log,
		Version: version,
	})

	a.browser, a.host, a.hub, a.server = browser, mgr, hub, srv
	return a, nil
}

// newAllocator attaches to cfg's DevTools endpoint when one is set and
// otherwise prepares to launch a browser per partition.
func newAllocator(ctx context.Context, cfg *config.Config, log *logging.Logger, metrics *monitoring.Metrics) (cdp.Allocator, *cdp.Conn, error) {
	connOpts := []cdp.ConnOption{cdp.WithConnLogger(log), cdp.WithConnMetrics(metrics)}
	if !cfg.Browser.Launches() {
		conn, ver, err := cdp.Connect(ctx, cfg.Browser.DevToolsURL, cfg.Browser.DiscoveryTimeout, connOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to browser at %s: %w", cfg.Browser.DevToolsURL, err)
		}
		log.Info("Connected to browser",
			zap.String("browser", ver.Browser),
			zap.String("protocol", ver.ProtocolVersion))
		log.Warn("Attached to a running browser; partitions will not outlive it")
		return cdp.NewContexts(conn), conn, nil
	}

	exe := cfg.Browser.ChromePath
	if exe == "" {
		var err error
		if exe, err = cdp.FindChrome(); err != nil {
			return nil, nil, err
		}
	}
	flags := cdp.DefaultFlags
	if cfg.Browser.Headless {
		flags = append(append([]string{}, flags...), "--headless=new")
	}
	root := cfg.ProfileRoot()
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create profile directory: %w", err)
	}
	log.Info("Launching a browser per partition", zap.String("chrome", exe), zap.String("profiles", root))
	return cdp.NewLauncher(exe, root,
		cdp.WithFlags(flags...),
		cdp.WithStartTimeout(cfg.Browser.DiscoveryTimeout),
		cdp.WithLauncherConnOptions(connOpts...),
		cdp.WithLauncherLogger(log)), nil, nil
}

// requestRestart ends Run so the browsers close cleanly; the caller
// checks RestartRequested and starts the next process.
func (a *App) requestRestart() error {
	a.restart.Store(true)
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel == nil {
		return errors.New("not running")
	}
	cancel()
	return nil
}

// RestartRequested reports whether Run ended for a restart.
func (a *App) RestartRequested() bool { return a.restart.Load() }

// Run launches the panels and serves until ctx is done or the browser
// goes away, then shuts down and saves.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	if err := a.host.Start(ctx); err != nil {
		return errors.Join(err, a.Close())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(a.server.Run)
	g.Go(func() error {
		a.host.Autosave(ctx, a.cfg.Persistence.AutosaveInterval)
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case err := <-a.browser.Lost():
			return fmt.Errorf("browser connection lost: %w", err)
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.cfg.Paths.WatchFile {
		if err := a.host.WatchPanelFile(ctx); err != nil {
			a.log.Warn("Panel file is not watched", zap.Error(err))
		}
	}

	err := g.Wait()
	return errors.Join(err, a.Close())
}

// Close saves state and shuts the browsers down, giving launched ones
// time to flush their profiles.
func (a *App) Close() error {
	err := a.host.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = errors.Join(err, a.browser.Close(ctx))
	if a.shared != nil {
		err = errors.Join(err, a.shared.Close())
	}
	return err
}

// LoadPanelFile reads the panel file, logging why defaults were used.
func LoadPanelFile(path string, log *logging.Logger) *config.PanelFile {
	f, err := config.LoadPanelFile(path)
	if err != nil {
		logging.OrNop(log).Warn("Using minimal panel configuration", zap.String("path", path), zap.Error(err))
		return f
	}
	if err := f.Validate(); err != nil {
		logging.OrNop(log).Warn("Using minimal panel configuration", zap.String("path", path), zap.Error(err))
		return config.MinimalPanelFile()
	}
	return f
}

// LoadSnapshot reads the saved state, falling back to empty defaults.
func LoadSnapshot(path string, log *logging.Logger) types.Snapshot {
	snap, err := state.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.OrNop(log).Warn("Ignoring unreadable state", zap.String("path", path), zap.Error(err))
	}
	return snap
}

// BroadcastConfig maps host settings to dispatcher timings.
func BroadcastConfig(cfg *config.Config) broadcast.Config {
	d := broadcast.DefaultConfig()
	d.SettleDelay = cfg.Broadcast.SettleDelay
	d.PostAttachDelay = cfg.Broadcast.PostAttachDelay
	d.SurfaceTimeout = cfg.Browser.SurfaceTimeout
	d.Attach.Settle = cfg.Broadcast.AttachSettle
	d.Attach.RetryDelay = cfg.Broadcast.AttachRetryDelay
	if cfg.Broadcast.MaxConcurrency > 0 {
		d.MaxConcurrency = cfg.Broadcast.MaxConcurrency
	}
	return d
}
