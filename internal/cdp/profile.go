package cdp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	cdptypes "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/isolation"
	"github.com/GriffinCanCode/tabwall/internal/logging"
)

// Profile is where a partition's pages live: the connection that owns
// them and, for shared browsers, the browser context to create them in.
type Profile struct {
	Conn      *Conn
	ContextID cdptypes.BrowserContextID
}

// Allocator hands out profiles for partitions.
type Allocator interface {
	// Allocate returns the profile for partition, starting it if needed.
	Allocate(ctx context.Context, partition string) (*Profile, error)
	// Release shuts the profile down. Persistent data stays.
	Release(ctx context.Context, partition string) error
	// Wipe shuts the profile down and deletes everything it stored.
	Wipe(ctx context.Context, partition string) error
}

// chromeNames are tried in order on PATH by FindChrome.
var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
	"msedge",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// FindChrome returns the first Chromium-family executable found.
func FindChrome() (string, error) {
	for _, name := range chromeNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no chrome or chromium executable found; set TABWALL_CHROME_PATH")
}

// DefaultFlags are passed to every browser the Launcher starts.
var DefaultFlags = []string{
	"--remote-debugging-port=0",
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
}

// Launcher runs one browser process per partition, each with its own
// user data directory under root. Cookies, storage and caches are
// written there, so a partition picks up where it left off after a
// restart.
type Launcher struct {
	exec     string
	root     string
	flags    []string
	timeout  time.Duration
	grace    time.Duration
	connOpts []ConnOption
	log      *logging.Logger

	startMu sync.Mutex

	mu      sync.Mutex
	running map[string]*process
}

type process struct {
	cmd     *exec.Cmd
	dir     string
	profile *Profile
	exited  chan struct{}
}

var _ Allocator = (*Launcher)(nil)

// LauncherOption configures a Launcher.
type LauncherOption func(*Launcher)

// WithFlags replaces DefaultFlags.
func WithFlags(flags ...string) LauncherOption {
	return func(l *Launcher) { l.flags = flags }
}

// WithStartTimeout bounds how long a browser may take to open its
// DevTools port.
func WithStartTimeout(d time.Duration) LauncherOption {
	return func(l *Launcher) { l.timeout = d }
}

// WithGracePeriod sets how long a browser gets to flush its profile
// after Browser.close before it is killed.
func WithGracePeriod(d time.Duration) LauncherOption {
	return func(l *Launcher) { l.grace = d }
}

// WithLauncherConnOptions configures the connections to launched
// browsers.
func WithLauncherConnOptions(opts ...ConnOption) LauncherOption {
	return func(l *Launcher) { l.connOpts = opts }
}

// WithLauncherLogger sets the logger.
func WithLauncherLogger(log *logging.Logger) LauncherOption {
	return func(l *Launcher) { l.log = log }
}

// NewLauncher starts browsers from execPath with profiles under root.
func NewLauncher(execPath, root string, opts ...LauncherOption) *Launcher {
	l := &Launcher{
		exec:    execPath,
		root:    root,
		flags:   DefaultFlags,
		timeout: 20 * time.Second,
		grace:   5 * time.Second,
		running: make(map[string]*process),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logging.OrNop(l.log).Named("launcher")
	return l
}

// ProfileDir returns the user data directory of partition.
func (l *Launcher) ProfileDir(partition string) string {
	return filepath.Join(l.root, profileName(partition))
}

func profileName(partition string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, strings.TrimPrefix(partition, isolation.PartitionPrefix))
	if strings.Trim(name, ".") == "" {
		return "_" + name
	}
	return name
}

func (l *Launcher) Allocate(ctx context.Context, partition string) (*Profile, error) {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	l.mu.Lock()
	p, ok := l.running[partition]
	l.mu.Unlock()
	if ok {
		select {
		case <-p.exited:
			l.log.Warn("Profile browser had exited, starting it again", zap.String("partition", partition))
			_ = p.profile.Conn.Close()
		default:
			return p.profile, nil
		}
	}

	p, err := l.start(ctx, partition)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.running[partition] = p
	l.mu.Unlock()
	return p.profile, nil
}

func (l *Launcher) start(ctx context.Context, partition string) (*process, error) {
	dir := l.ProfileDir(partition)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile %s: %w", dir, err)
	}
	portFile := filepath.Join(dir, "DevToolsActivePort")
	if err := os.Remove(portFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale %s: %w", portFile, err)
	}

	args := append([]string{"--user-data-dir=" + dir}, l.flags...)
	args = append(args, "about:blank")
	cmd := exec.Command(l.exec, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start browser for %s: %w", partition, err)
	}
	p := &process{cmd: cmd, dir: dir, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	port, err := waitForPort(ctx, portFile, p.exited)
	if err != nil {
		l.kill(p)
		return nil, fmt.Errorf("browser for %s: %w", partition, err)
	}
	conn, _, err := Connect(ctx, "http://127.0.0.1:"+port, l.timeout, l.connOpts...)
	if err != nil {
		l.kill(p)
		return nil, err
	}
	p.profile = &Profile{Conn: conn}
	l.log.Info("Profile browser started",
		zap.String("partition", partition),
		zap.String("dir", dir),
		zap.Int("pid", cmd.Process.Pid))
	return p, nil
}

// waitForPort polls the DevToolsActivePort file the browser writes once
// --remote-debugging-port=0 has picked a port.
func waitForPort(ctx context.Context, path string, exited <-chan struct{}) (string, error) {
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if data, err := os.ReadFile(path); err == nil {
			line, _, _ := strings.Cut(string(data), "\n")
			if port := strings.TrimSpace(line); port != "" {
				return port, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for DevToolsActivePort: %w", ctx.Err())
		case <-exited:
			return "", errors.New("browser exited before opening its DevTools port")
		case <-tick.C:
		}
	}
}

func (l *Launcher) Release(ctx context.Context, partition string) error {
	l.mu.Lock()
	p, ok := l.running[partition]
	delete(l.running, partition)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	l.stop(ctx, p)
	l.log.Info("Profile browser stopped", zap.String("partition", partition))
	return nil
}

func (l *Launcher) Wipe(ctx context.Context, partition string) error {
	if err := l.Release(ctx, partition); err != nil {
		return err
	}
	dir := l.ProfileDir(partition)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove profile %s: %w", dir, err)
	}
	return nil
}

// Close stops every running browser.
func (l *Launcher) Close(ctx context.Context) error {
	l.mu.Lock()
	names := make([]string, 0, len(l.running))
	for name := range l.running {
		names = append(names, name)
	}
	l.mu.Unlock()
	var errs []error
	for _, name := range names {
		errs = append(errs, l.Release(ctx, name))
	}
	return errors.Join(errs...)
}

// stop asks the browser to close so it flushes its profile, and kills it
// when the grace period runs out.
func (l *Launcher) stop(ctx context.Context, p *process) {
	cctx, cancel := context.WithTimeout(ctx, l.grace)
	_ = cdpbrowser.Close().Do(on(cctx, p.profile.Conn))
	cancel()

	timer := time.NewTimer(l.grace)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
		l.log.Warn("Profile browser ignored close, killing it", zap.String("dir", p.dir))
		l.kill(p)
	}
	_ = p.profile.Conn.Close()
}

func (l *Launcher) kill(p *process) {
	_ = p.cmd.Process.Kill()
	<-p.exited
}

// Contexts backs partitions with browser contexts on one shared
// connection, for attaching to a browser that is already running.
// Browser contexts live in memory: partitions stay apart from each
// other, but nothing they store outlives that browser.
type Contexts struct {
	conn *Conn

	mu  sync.Mutex
	ids map[string]cdptypes.BrowserContextID
}

var _ Allocator = (*Contexts)(nil)

// NewContexts allocates browser contexts on conn.
func NewContexts(conn *Conn) *Contexts {
	return &Contexts{conn: conn, ids: make(map[string]cdptypes.BrowserContextID)}
}

func (c *Contexts) Allocate(ctx context.Context, partition string) (*Profile, error) {
	c.mu.Lock()
	id, ok := c.ids[partition]
	c.mu.Unlock()
	if ok {
		return &Profile{Conn: c.conn, ContextID: id}, nil
	}
	id, err := target.CreateBrowserContext().WithDisposeOnDetach(false).Do(on(ctx, c.conn))
	if err != nil {
		return nil, fmt.Errorf("create context for %s: %w", partition, err)
	}
	c.mu.Lock()
	c.ids[partition] = id
	c.mu.Unlock()
	return &Profile{Conn: c.conn, ContextID: id}, nil
}

// Release disposes the browser context, closing its pages.
func (c *Contexts) Release(ctx context.Context, partition string) error {
	c.mu.Lock()
	id, ok := c.ids[partition]
	delete(c.ids, partition)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := target.DisposeBrowserContext(id).Do(on(ctx, c.conn)); err != nil {
		return fmt.Errorf("dispose context for %s: %w", partition, err)
	}
	return nil
}

// Wipe is Release: a disposed context takes all of its data with it.
func (c *Contexts) Wipe(ctx context.Context, partition string) error {
	return c.Release(ctx, partition)
}
