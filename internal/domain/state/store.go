package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/persist"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// PanelSource lists the panels to capture.
type PanelSource interface {
	All() []types.Panel
}

// WindowSource reports the host window's outer bounds. ok is false when
// no window exists yet.
type WindowSource interface {
	WindowBounds() (b types.Bounds, ok bool)
}

// Store captures and persists the host snapshot.
type Store struct {
	path    string
	panels  PanelSource
	window  WindowSource
	writer  *persist.Writer
	log     *logging.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store writing to path. window may be nil.
func NewStore(path string, panels PanelSource, window WindowSource, opts ...Option) *Store {
	s := &Store{
		path:   path,
		panels: panels,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log).Named("state")
	s.writer = persist.NewWriter("state", path, s.encode,
		persist.WithLogger(s.log),
		persist.WithMetrics(s.metrics))
	return s
}

// Path returns the snapshot file.
func (s *Store) Path() string { return s.path }

// Capture builds a snapshot from the current panels and window.
func (s *Store) Capture() types.Snapshot {
	snap := types.EmptySnapshot()
	if s.window != nil {
		if b, ok := s.window.WindowBounds(); ok {
			snap.WindowBounds = &b
		}
	}
	for _, p := range s.panels.All() {
		snap.EnabledPanels[p.ID] = p.Enabled
		url := p.CurrentURL
		if url == "" {
			url = p.URL
		}
		snap.PanelURLs[p.ID] = url
	}
	snap.LastSaved = s.now().UTC().Format(time.RFC3339Nano)
	return snap
}

func (s *Store) encode() ([]byte, error) {
	return Encode(s.Capture())
}

// Save schedules an asynchronous write.
func (s *Store) Save() {
	s.writer.Request()
}

// Flush writes the snapshot synchronously.
func (s *Store) Flush() error {
	return s.writer.Flush()
}

// Close stops background writes after a final synchronous one.
func (s *Store) Close() error {
	return s.writer.Close()
}

// Delete removes the snapshot file and stops all further writes, so a
// shutdown after a reset does not recreate it.
func (s *Store) Delete() error {
	return s.writer.Discard()
}

// Stats returns the writer counters.
func (s *Store) Stats() persist.Stats {
	return s.writer.Stats()
}

// Autosave saves every interval until ctx is done.
func (s *Store) Autosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Save()
		}
	}
}

// Load reads the snapshot, returning empty defaults when the file is
// missing or unreadable.
func (s *Store) Load() types.Snapshot {
	snap, err := Load(s.path)
	switch {
	case err == nil:
		s.log.Info("State restored",
			zap.String("path", s.path),
			zap.Int("panels", len(snap.PanelURLs)),
			zap.String("last_saved", snap.LastSaved))
	case errors.Is(err, os.ErrNotExist):
		s.log.Debug("No saved state", zap.String("path", s.path))
	default:
		s.log.Warn("Ignoring unreadable state", zap.String("path", s.path), zap.Error(err))
	}
	return snap
}

// Load reads a snapshot from path. It always returns a usable snapshot;
// the error explains why the defaults were used.
func Load(path string) (types.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.EmptySnapshot(), fmt.Errorf("%w: %w", types.ErrStateLoad, err)
	}
	snap, err := Decode(data)
	if err != nil {
		return types.EmptySnapshot(), err
	}
	return snap, nil
}

// Decode parses snapshot JSON.
func Decode(data []byte) (types.Snapshot, error) {
	var snap types.Snapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return types.EmptySnapshot(), fmt.Errorf("%w: %v", types.ErrStateLoad, err)
	}
	snap.Normalize()
	return snap, nil
}

// Encode renders snapshot JSON.
func Encode(snap types.Snapshot) ([]byte, error) {
	snap.Normalize()
	return sonic.ConfigStd.MarshalIndent(snap, "", "  ")
}
