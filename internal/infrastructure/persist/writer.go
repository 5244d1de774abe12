package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/tabwall/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
	"go.uber.org/zap"
)

// Source renders the full file contents at write time.
type Source func() ([]byte, error)

// Stats counts completed writes.
type Stats struct {
	Writes   uint64
	Failures uint64
}

// Writer replaces one file in the background. Requests made while a write
// is pending collapse into that write, and at most one write runs at a time.
type Writer struct {
	name    string
	path    string
	source  Source
	log     *logging.Logger
	metrics *monitoring.Metrics

	pending chan struct{}
	quit    chan struct{}
	stopped chan struct{}

	mu        sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	writes    atomic.Uint64
	failures  atomic.Uint64
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Writer) { w.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

// NewWriter starts a background writer for path.
func NewWriter(name, path string, source Source, opts ...Option) *Writer {
	w := &Writer{
		name:    name,
		path:    path,
		source:  source,
		pending: make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = logging.OrNop(w.log).Named("persist").With(zap.String("file", name))

	go w.loop()
	return w
}

// Path returns the target file.
func (w *Writer) Path() string { return w.path }

// Request schedules a write and returns immediately.
func (w *Writer) Request() {
	if w.closed.Load() {
		return
	}
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Flush writes synchronously.
func (w *Writer) Flush() error {
	return w.write()
}

// Close stops the background goroutine and performs a final write.
func (w *Writer) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.quit)
		<-w.stopped
		err = w.write()
	})
	return err
}

// Discard stops the writer without a final write and removes the file.
// Later requests and Close are no-ops.
func (w *Writer) Discard() error {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.quit)
		<-w.stopped
	})
	return w.Remove()
}

// Remove deletes the file. A missing file is not an error.
func (w *Writer) Remove() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", types.ErrPersistenceWrite, w.path, err)
	}
	return nil
}

// Stats returns write counters.
func (w *Writer) Stats() Stats {
	return Stats{Writes: w.writes.Load(), Failures: w.failures.Load()}
}

func (w *Writer) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.quit:
			return
		case <-w.pending:
			if err := w.write(); err != nil {
				w.log.Warn("Background write failed", zap.Error(err))
			}
		}
	}
}

func (w *Writer) write() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := w.source()
	if err == nil {
		err = WriteFileAtomic(w.path, data, 0o644)
	} else {
		err = fmt.Errorf("%w: render %s: %v", types.ErrPersistenceWrite, w.name, err)
	}

	w.metrics.RecordPersist(w.name, err)
	if err != nil {
		w.failures.Add(1)
		return err
	}
	w.writes.Add(1)
	w.log.Debug("File written", zap.String("path", w.path), zap.Int("bytes", len(data)))
	return nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers see either the old or the new file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", types.ErrPersistenceWrite, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrPersistenceWrite, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write %s: %v", types.ErrPersistenceWrite, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync %s: %v", types.ErrPersistenceWrite, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close %s: %v", types.ErrPersistenceWrite, tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod %s: %v", types.ErrPersistenceWrite, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename %s: %v", types.ErrPersistenceWrite, path, err)
	}
	return nil
}
