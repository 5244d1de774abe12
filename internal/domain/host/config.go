package host

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/layout"
	"github.com/GriffinCanCode/tabwall/internal/infrastructure/config"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// SaveConfig merges update into the panel file. A panel list reorders
// the registry (panels it omits keep their place at the end), applies each
// listed panel's enabled flag and refreshes labels, colors and URLs. The
// file and snapshot are written in the background.
func (m *Manager) SaveConfig(ctx context.Context, update types.ConfigUpdate) error {
	m.apply(ctx, update)
	if m.panelFile != nil {
		m.panelFile.Request()
	}
	if m.state != nil {
		m.state.Save()
	}
	return nil
}

// Config returns a copy of the current panel file.
func (m *Manager) Config() *config.PanelFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Clone()
}

// applyPanelFile takes an externally edited panel file.
func (m *Manager) applyPanelFile(f *config.PanelFile) {
	if err := m.dispatcher.Table().RegisterAll(f.Strategies); err != nil {
		m.log.Warn("Ignoring invalid strategy records", zap.Error(err))
	}
	m.mu.Lock()
	m.file.Strategies = f.Strategies
	m.mu.Unlock()

	m.apply(context.Background(), types.ConfigUpdate{
		PanelWidth:        f.PanelWidth,
		ControlPanelWidth: f.ControlPanelWidth,
		Panels:            f.Panels,
	})
	m.log.Info("Panel file reloaded", zap.Int("panels", len(f.Panels)))
}

func (m *Manager) apply(ctx context.Context, update types.ConfigUpdate) {
	update.Panels = uniquePanels(update.Panels)
	m.mu.Lock()
	m.file.Merge(update)
	var added []types.PanelConfig
	if update.Panels != nil {
		ids := make([]string, 0, len(update.Panels))
		for _, p := range update.Panels {
			ids = append(ids, p.ID)
			if !m.registry.Update(p.ID, p) {
				added = append(added, p)
				continue
			}
			m.registry.SetEnabled(p.ID, p.IsEnabled())
		}
		for _, p := range added {
			if _, err := m.registry.Register(p.ID, p, ""); err != nil {
				m.log.Warn("Cannot add panel", logging.Panel(p.ID), zap.Error(err))
			}
		}
		m.registry.Reorder(ids)
		m.file.Panels = m.retainOmitted(m.file.Panels)
	}
	geometry := m.engine.Geometry()
	geometry.PanelWidth = m.file.EffectivePanelWidth()
	geometry.SidebarWidth = m.file.EffectiveControlWidth()
	m.mu.Unlock()

	for _, p := range added {
		panel, ok := m.registry.Get(p.ID)
		if !ok {
			continue
		}
		if err := m.launch(ctx, panel); err != nil {
			m.log.Error("Failed to launch added panel", logging.Panel(p.ID), zap.Error(err))
		}
	}

	m.engine.SetGeometry(geometry)
	m.engine.Relayout()
	m.recordPanels()
	m.pushPanels()
}

// uniquePanels drops entries without an id and repeats of an id, keeping
// the first. A non-nil list stays non-nil.
func uniquePanels(list []types.PanelConfig) []types.PanelConfig {
	if list == nil {
		return nil
	}
	seen := make(map[string]bool, len(list))
	out := make([]types.PanelConfig, 0, len(list))
	for _, p := range list {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// retainOmitted appends the registry's panels that the list does not name,
// so the file keeps describing every panel the host shows.
func (m *Manager) retainOmitted(list []types.PanelConfig) []types.PanelConfig {
	named := make(map[string]bool, len(list))
	for _, p := range list {
		named[p.ID] = true
	}
	for _, p := range m.registry.All() {
		if named[p.ID] {
			continue
		}
		list = append(list, types.PanelConfig{
			ID:      p.ID,
			Label:   p.Label,
			URL:     p.URL,
			Color:   p.Color,
			Enabled: types.BoolPtr(p.Enabled),
		})
	}
	return list
}

// Geometry builds the layout geometry for a panel file.
func Geometry(f *config.PanelFile, toolbarHeight, scrollbarHeight int) layout.Geometry {
	return layout.Geometry{
		PanelWidth:      f.EffectivePanelWidth(),
		SidebarWidth:    f.EffectiveControlWidth(),
		ToolbarHeight:   toolbarHeight,
		ScrollbarHeight: scrollbarHeight,
	}
}
