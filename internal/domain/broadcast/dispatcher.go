package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/id"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Failure messages reported to callers.
const (
	MsgUnavailable   = "Panel not found or disabled"
	MsgInputNotFound = "Input element not found — is the page fully loaded?"
)

// PanelReader is the registry view the dispatcher needs.
type PanelReader interface {
	Get(id string) (types.Panel, bool)
}

// Config holds dispatcher timings.
type Config struct {
	SettleDelay     time.Duration
	SurfaceTimeout  time.Duration
	PostAttachDelay time.Duration
	Attach          AttachTiming
	MaxConcurrency  int
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		SettleDelay:     700 * time.Millisecond,
		SurfaceTimeout:  15 * time.Second,
		PostAttachDelay: 1600 * time.Millisecond,
		Attach: AttachTiming{
			Settle:      500 * time.Millisecond,
			MaxAttempts: 1,
			RetryDelay:  800 * time.Millisecond,
		},
		MaxConcurrency: 8,
	}
}

// Dispatcher sends one prompt to many panels. Each target runs its own
// pipeline; a failure or panic in one never reaches another.
type Dispatcher struct {
	panels   PanelReader
	surfaces surface.Provider
	table    *Table
	cfg      Config
	log      *logging.Logger
	metrics  *monitoring.Metrics

	// sleep waits between steps; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithSleep replaces the delay function.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(panels PanelReader, surfaces surface.Provider, table *Table, cfg Config, opts ...Option) *Dispatcher {
	if table == nil {
		table = NewTable()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	d := &Dispatcher{
		panels:   panels,
		surfaces: surfaces,
		table:    table,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logging.OrNop(d.log).Named("broadcast")
	return d
}

// Table returns the strategy table.
func (d *Dispatcher) Table() *Table { return d.table }

// Broadcast runs the pipeline for every id and returns once all have
// settled. Repeated ids run once.
func (d *Dispatcher) Broadcast(ctx context.Context, prompt string, ids []string, filePath string) types.BroadcastResult {
	runID := id.NewBroadcastID()
	log := d.log.With(zap.String("broadcast_id", runID.String()))
	start := time.Now()

	var mu sync.Mutex
	results := make(types.BroadcastResult, len(ids))

	// Cancellation of one target must not cancel the others, so the
	// group has no derived context.
	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrency)

	seen := make(map[string]bool, len(ids))
	for _, target := range ids {
		if seen[target] {
			continue
		}
		seen[target] = true

		g.Go(func() error {
			res := d.guard(ctx, log, target, prompt, filePath)
			mu.Lock()
			results[target] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.ObserveBroadcast(time.Since(start))
	log.Info("Broadcast finished",
		zap.Int("targets", len(results)),
		zap.Int("succeeded", results.Succeeded()),
		zap.Duration("elapsed", time.Since(start)))
	return results
}

// guard is the per-target boundary.
func (d *Dispatcher) guard(ctx context.Context, log *logging.Logger, target, prompt, filePath string) (res types.TargetResult) {
	log = log.With(logging.Panel(target))
	site := "unknown"
	defer func() {
		if r := recover(); r != nil {
			log.Error("Broadcast target panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = failure(types.CodeInternal, fmt.Sprintf("internal error: %v", r))
		}
		outcome := "success"
		if !res.Success {
			outcome = string(res.Code)
		}
		d.metrics.RecordBroadcastTarget(site, outcome)
	}()

	return d.run(ctx, log, target, prompt, filePath, &site)
}

func (d *Dispatcher) run(ctx context.Context, log *logging.Logger, target, prompt, filePath string, site *string) types.TargetResult {
	panel, ok := d.panels.Get(target)
	if !ok || !panel.Enabled {
		return failure(types.CodeUnavailable, MsgUnavailable)
	}
	surf, ok := d.surfaces.Surface(target)
	if !ok || surf == nil {
		return failure(types.CodeUnavailable, types.ErrSurfaceMissing.Error())
	}

	strategy := d.table.Resolve(target, panel.URL)
	*site = strategy.Site()
	log = log.With(zap.String("strategy", strategy.Site()))

	var attached bool
	if filePath != "" {
		attached = d.attach(ctx, log, surf, strategy, filePath)
	}

	fill, err := strategy.FillScript(prompt)
	if err != nil {
		return failure(types.CodeInternal, err.Error())
	}
	out, err := d.exec(ctx, surf, fill)
	if err != nil {
		log.Warn("Fill script failed", zap.Error(err))
		return failure(types.CodeSurface, err.Error())
	}
	switch {
	case out == resultOK:
	case out == resultInputNotFound:
		log.Info("Input not found")
		return failure(types.CodeInputNotFound, MsgInputNotFound)
	case strings.HasPrefix(out, resultErrorPrefix):
		log.Warn("Fill script raised", zap.String("result", out))
		return failure(types.CodeInjection, out)
	default:
		return failure(types.CodeInjection, fmt.Sprintf("unexpected fill result %q", out))
	}

	if err := d.sleep(ctx, d.cfg.SettleDelay); err != nil {
		return failure(types.CodeInternal, err.Error())
	}

	out, err = d.exec(ctx, surf, strategy.SubmitScript())
	if err != nil {
		log.Warn("Submit script failed", zap.Error(err))
		return failure(types.CodeSurface, err.Error())
	}

	res := types.TargetResult{Success: true, Attached: attached}
	switch {
	case out == resultClicked:
		res.Submit = types.SubmitClicked
	case out == resultEnter:
		res.Submit = types.SubmitEnter
	case strings.HasPrefix(out, resultErrorPrefix):
		log.Warn("Submit script raised", zap.String("result", out))
		return failure(types.CodeInjection, out)
	default:
		res.Submit = types.SubmitNone
	}
	log.Debug("Target submitted", zap.String("submit", string(res.Submit)))
	return res
}

// exec runs a script bounded by the surface timeout and returns its
// result as a string.
func (d *Dispatcher) exec(ctx context.Context, surf surface.Surface, script string) (string, error) {
	ctx, cancel := d.surfaceCtx(ctx)
	defer cancel()

	v, err := surf.ExecuteScript(ctx, script)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInjection, err)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(s), nil
	}
}

func failure(code types.FailureCode, msg string) types.TargetResult {
	return types.TargetResult{Success: false, Error: msg, Code: code}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
