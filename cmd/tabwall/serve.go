package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/app"
	"github.com/GriffinCanCode/tabwall/internal/domain/isolation"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
	"github.com/GriffinCanCode/tabwall/internal/logging"
)

type serveOptions struct {
	port        string
	devtools    string
	chrome      string
	profiles    string
	headless    bool
	panelFile   string
	stateFile   string
	development bool
	noWatch     bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the panels and serve the command surface",
		Long: `Opens every configured panel in its own persistent partition and serves
the command API and the websocket push channel.

By default each partition gets its own browser process and profile under
--profiles, so logins survive restarts. With --devtools it attaches to a
browser started with --remote-debugging-port instead; partitions are then
kept in memory by that browser. Flags override the environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.port, "port", "", "command surface port (TABWALL_PORT)")
	f.StringVar(&opts.devtools, "devtools", "", "attach to this DevTools endpoint instead of launching (TABWALL_DEVTOOLS_URL)")
	f.StringVar(&opts.chrome, "chrome", "", "browser executable to launch (TABWALL_CHROME_PATH)")
	f.StringVar(&opts.profiles, "profiles", "", "partition profile directory (TABWALL_PROFILE_DIR)")
	f.BoolVar(&opts.headless, "headless", false, "launch browsers headless (TABWALL_HEADLESS)")
	f.StringVar(&opts.panelFile, "panels", "", "panel file path (TABWALL_PANEL_FILE)")
	f.StringVar(&opts.stateFile, "state", "", "state snapshot path (TABWALL_STATE_FILE)")
	f.BoolVar(&opts.development, "dev", false, "development logging (TABWALL_LOG_DEV)")
	f.BoolVar(&opts.noWatch, "no-watch", false, "do not reload the panel file on external edits")
	return cmd
}

func (o *serveOptions) apply(cfg *config.Config) {
	if o.port != "" {
		cfg.Server.Port = o.port
	}
	if o.devtools != "" {
		cfg.Browser.DevToolsURL = o.devtools
	}
	if o.chrome != "" {
		cfg.Browser.ChromePath = o.chrome
	}
	if o.profiles != "" {
		cfg.Browser.ProfileDir = o.profiles
	}
	if o.headless {
		cfg.Browser.Headless = true
	}
	if o.panelFile != "" {
		cfg.Paths.PanelFile = o.panelFile
	}
	if o.stateFile != "" {
		cfg.Paths.StateFile = o.stateFile
	}
	if o.development {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if o.noWatch {
		cfg.Paths.WatchFile = false
	}
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts.apply(cfg)

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	browser := zap.String("profiles", cfg.ProfileRoot())
	if !cfg.Browser.Launches() {
		browser = zap.String("devtools", cfg.Browser.DevToolsURL)
	}
	log.Info("Starting TabWall",
		zap.String("version", version),
		browser,
		zap.String("panels", cfg.Paths.PanelFile),
		zap.String("state", cfg.Paths.StateFile))

	a, err := app.New(ctx, cfg, log, version)
	if err != nil {
		return err
	}
	if err := a.Run(ctx); err != nil {
		log.Error("Stopped with error", zap.Error(err))
		return err
	}
	if a.RestartRequested() {
		log.Info("Restarting")
		return isolation.NewProcessRestarter(func(int) {}).Restart()
	}
	log.Info("Stopped")
	return nil
}
