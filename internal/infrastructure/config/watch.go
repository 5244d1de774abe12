package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/logging"
)

const watchDebounce = 250 * time.Millisecond

// Revisions remembers digests of the last few panel file contents this
// process wrote, so the watcher can tell them from outside edits. A nil
// Revisions remembers nothing.
type Revisions struct {
	mu   sync.Mutex
	sums [4]uint64
	next int
}

// Record notes data as written by this process.
func (r *Revisions) Record(data []byte) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.sums[r.next%len(r.sums)] = xxhash.Sum64(data)
	r.next++
	r.mu.Unlock()
}

// Own reports whether data is one of the recorded revisions.
func (r *Revisions) Own(data []byte) bool {
	if r == nil {
		return false
	}
	sum := xxhash.Sum64(data)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < min(r.next, len(r.sums)); i++ {
		if r.sums[i] == sum {
			return true
		}
	}
	return false
}

// WatchPanelFile calls onChange with the re-decoded panel file whenever it
// is written by another program. Contents recorded in own are this
// process's writes and are skipped. The directory is watched rather than
// the file so editors that replace the file by rename are still seen.
// Undecodable revisions are logged and skipped.
func WatchPanelFile(ctx context.Context, path string, own *Revisions, log *logging.Logger, onChange func(*PanelFile)) error {
	log = logging.OrNop(log)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				data, err := os.ReadFile(abs)
				if err != nil {
					log.Warn("Cannot read panel file revision", zap.String("path", abs), zap.Error(err))
					continue
				}
				if own.Own(data) {
					log.Debug("Skipping own panel file write", zap.String("path", abs))
					continue
				}
				f, err := DecodePanelFile(abs, data)
				if err != nil {
					log.Warn("Ignoring unreadable panel file revision", zap.String("path", abs), zap.Error(err))
					continue
				}
				onChange(f)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Panel file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
