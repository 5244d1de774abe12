package broadcast

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// UnsupportedFileError reports a file whose detected type the site's
// strategy does not accept.
type UnsupportedFileError struct {
	Site   string
	MIME   string
	Accept []string
}

func (e *UnsupportedFileError) Error() string {
	return fmt.Sprintf("%s does not accept %s files (accepts %s)", e.Site, e.MIME, strings.Join(e.Accept, ", "))
}

func (e *UnsupportedFileError) Unwrap() error { return types.ErrFileAttachment }

// attach tries to put filePath into the page's file inputs. Every failure
// is logged and reported as false; the caller continues with text only.
func (d *Dispatcher) attach(ctx context.Context, log *logging.Logger, surf surface.Surface, s *Strategy, filePath string) bool {
	log = log.With(zap.String("file", filepath.Base(filePath)))

	ok, err := d.tryAttach(ctx, log, surf, s, filePath)
	result := "attached"
	var unsupported *UnsupportedFileError
	switch {
	case errors.As(err, &unsupported):
		result = "unsupported"
		log.Warn("File type not accepted, continuing with text only",
			zap.String("mime", unsupported.MIME), zap.Strings("accept", unsupported.Accept))
	case err != nil:
		result = "error"
		log.Warn("File attachment failed, continuing with text only", zap.Error(err))
	case !ok:
		result = "no_input"
		log.Warn("No file input found, continuing with text only")
	}
	d.metrics.RecordAttach(s.Site(), result)

	if ok {
		if err := d.sleep(ctx, d.cfg.PostAttachDelay); err != nil {
			log.Debug("Post-attach delay interrupted", zap.Error(err))
		}
	}
	return ok
}

func (d *Dispatcher) tryAttach(ctx context.Context, log *logging.Logger, surf surface.Surface, s *Strategy, filePath string) (bool, error) {
	inspector, ok := surf.(surface.FileInspector)
	if !ok {
		return false, fmt.Errorf("%w: surface has no inspection channel", types.ErrFileAttachment)
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrFileAttachment, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrFileAttachment, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("%w: %s is a directory", types.ErrFileAttachment, abs)
	}
	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrFileAttachment, err)
	}
	if !s.Accepts(mt) {
		return false, &UnsupportedFileError{Site: s.Site(), MIME: mt.String(), Accept: s.Accept()}
	}
	log.Debug("Attaching file", zap.String("mime", mt.String()), zap.Int64("size", info.Size()))

	timing := s.Timing(d.cfg.Attach)

	if d.openAttachment(ctx, log, surf, s) {
		if err := d.sleep(ctx, timing.Settle); err != nil {
			return false, err
		}
	}

	for attempt := 0; attempt < timing.MaxAttempts; attempt++ {
		if attempt > 0 {
			log.Debug("Retrying file input search", zap.Int("attempt", attempt+1))
			if err := d.sleep(ctx, timing.RetryDelay); err != nil {
				return false, err
			}
		}
		if d.assign(ctx, log, inspector, abs) > 0 {
			return true, nil
		}
	}

	if timing.FinalRetry > 0 {
		log.Debug("Final attachment attempt")
		d.openAttachment(ctx, log, surf, s)
		if err := d.sleep(ctx, timing.FinalRetry); err != nil {
			return false, err
		}
		if d.assign(ctx, log, inspector, abs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// openAttachment clicks a control that reveals the file input.
func (d *Dispatcher) openAttachment(ctx context.Context, log *logging.Logger, surf surface.Surface, s *Strategy) bool {
	out, err := d.exec(ctx, surf, s.OpenAttachScript())
	if err != nil {
		log.Debug("Attachment control script failed", zap.Error(err))
		return false
	}
	log.Debug("Attachment control", zap.String("result", out))
	return out == resultClicked
}

// assign sets the file on every file input found and returns how many
// accepted it.
func (d *Dispatcher) assign(ctx context.Context, log *logging.Logger, inspector surface.FileInspector, path string) int {
	cctx, cancel := d.surfaceCtx(ctx)
	defer cancel()

	nodes, err := inspector.FileInputs(cctx)
	if err != nil {
		log.Debug("File input search failed", zap.Error(err))
		return 0
	}

	n := 0
	for _, node := range nodes {
		if err := inspector.SetFileInputFiles(cctx, node, []string{path}); err != nil {
			log.Debug("File input rejected the file", zap.Int64("node", int64(node)), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (d *Dispatcher) surfaceCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.SurfaceTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.SurfaceTimeout)
}
