package state

import (
	"fmt"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Registrar receives restored panels.
type Registrar interface {
	Register(id string, cfg types.PanelConfig, urlOverride string) (types.Panel, error)
}

// Restore registers every configured panel, reopening each at its saved
// URL. An explicit enabled flag in the panel file wins over the snapshot;
// a panel without one takes its saved flag, then defaults to enabled.
func Restore(reg Registrar, panels []types.PanelConfig, snap types.Snapshot) ([]types.Panel, error) {
	out := make([]types.Panel, 0, len(panels))
	for _, cfg := range panels {
		if cfg.Enabled == nil {
			if saved, ok := snap.EnabledPanels[cfg.ID]; ok {
				cfg.Enabled = types.BoolPtr(saved)
			}
		}
		p, err := reg.Register(cfg.ID, cfg, snap.PanelURLs[cfg.ID])
		if err != nil {
			return out, fmt.Errorf("restore panel %q: %w", cfg.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// InitialBounds returns the saved window bounds, or a window of the given
// default size. Saved dimensions below the minimum are raised to it.
func InitialBounds(snap types.Snapshot, def, minimum types.Size) types.Bounds {
	b := types.Bounds{Width: def.Width, Height: def.Height}
	if snap.WindowBounds != nil {
		b = *snap.WindowBounds
		if b.Width <= 0 {
			b.Width = def.Width
		}
		if b.Height <= 0 {
			b.Height = def.Height
		}
	}
	b.Width = max(b.Width, minimum.Width)
	b.Height = max(b.Height, minimum.Height)
	return b
}
