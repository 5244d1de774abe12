package host

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/broadcast"
	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Panels returns the panel payload in layout order.
func (m *Manager) Panels() []types.PanelInfo {
	return Payload(m.registry.All())
}

// ScrollState returns the state of the last layout pass.
func (m *Manager) ScrollState() types.ScrollState {
	return m.engine.State()
}

// Reload reloads a panel's page.
func (m *Manager) Reload(ctx context.Context, id string) error {
	s, err := m.surface(id)
	if err != nil {
		return err
	}
	ctx, cancel := m.surfaceCtx(ctx)
	defer cancel()
	if err := s.Reload(ctx); err != nil {
		return fmt.Errorf("%w: reload %s: %v", types.ErrNavigation, id, err)
	}
	return nil
}

// NavigateBack goes one history entry back. Without history it does
// nothing.
func (m *Manager) NavigateBack(ctx context.Context, id string) error {
	s, err := m.surface(id)
	if err != nil {
		return err
	}
	ctx, cancel := m.surfaceCtx(ctx)
	defer cancel()
	ok, err := s.CanGoBack(ctx)
	if err != nil {
		return fmt.Errorf("%w: history of %s: %v", types.ErrNavigation, id, err)
	}
	if !ok {
		return nil
	}
	if err := s.GoBack(ctx); err != nil {
		return fmt.Errorf("%w: back in %s: %v", types.ErrNavigation, id, err)
	}
	return nil
}

// NavigateURL loads a user-typed address in a panel and returns the
// normalised URL.
func (m *Manager) NavigateURL(ctx context.Context, id, raw string) (string, error) {
	s, err := m.surface(id)
	if err != nil {
		return "", err
	}
	url, err := m.policy.Normalize(raw)
	if err != nil {
		return "", err
	}
	ctx, cancel := m.surfaceCtx(ctx)
	defer cancel()
	if err := s.Load(ctx, url); err != nil {
		return "", fmt.Errorf("%w: load %s in %s: %v", types.ErrNavigation, url, id, err)
	}
	m.log.Info("Panel navigated", logging.Panel(id), zap.String("url", url))
	return url, nil
}

// TogglePanel enables or disables a panel, relays out and saves.
func (m *Manager) TogglePanel(id string, enabled bool) error {
	m.mu.Lock()
	ok := m.registry.SetEnabled(id, enabled)
	if ok {
		for i := range m.file.Panels {
			if m.file.Panels[i].ID == id {
				m.file.Panels[i].Enabled = types.BoolPtr(enabled)
			}
		}
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrPanelNotFound, id)
	}

	m.engine.Relayout()
	m.recordPanels()
	m.pushPanels()
	if m.panelFile != nil {
		m.panelFile.Request()
	}
	if m.state != nil {
		m.state.Save()
	}
	m.log.Info("Panel toggled", logging.Panel(id), zap.Bool("enabled", enabled))
	return nil
}

// ScrollBy moves the strip by delta pixels.
func (m *Manager) ScrollBy(delta float64) types.ScrollState {
	return m.engine.ScrollBy(delta)
}

// ScrollToFraction jumps the strip to a fraction of its range.
func (m *Manager) ScrollToFraction(f float64) types.ScrollState {
	return m.engine.ScrollToFraction(f)
}

// Resize records a new window size and relays out. Sizes below the
// minimum are raised to it.
func (m *Manager) Resize(width, height int) types.ScrollState {
	if m.window != nil {
		b, _ := m.window.WindowBounds()
		b.Width = max(width, MinimumSize.Width)
		b.Height = max(height, MinimumSize.Height)
		m.window.SetBounds(b)
	}
	return m.engine.Relayout()
}

// ResetTab clears one panel's partition and reloads its base URL.
func (m *Manager) ResetTab(ctx context.Context, id string) error {
	if m.isolation == nil {
		return fmt.Errorf("%w: isolation is not configured", types.ErrSurfaceMissing)
	}
	return m.isolation.ResetPartition(ctx, id)
}

// ResetAll clears every partition, deletes the snapshot and restarts.
func (m *Manager) ResetAll(ctx context.Context) error {
	if m.isolation == nil {
		return fmt.Errorf("%w: isolation is not configured", types.ErrSurfaceMissing)
	}
	return m.isolation.ResetAll(ctx)
}

// Broadcast sends prompt to the given panels and publishes the result.
func (m *Manager) Broadcast(ctx context.Context, req types.BroadcastRequest) types.BroadcastResult {
	res := m.dispatcher.Broadcast(ctx, req.Prompt, req.PanelIDs, req.FilePath)
	m.publisher.Publish(types.EventBroadcast, res)
	return res
}

// Diagnose reports how a panel's strategy sees its current document.
func (m *Manager) Diagnose(ctx context.Context, id string) (*broadcast.Diagnosis, error) {
	s, err := m.surface(id)
	if err != nil {
		return nil, err
	}
	src, ok := s.(surface.DocumentSource)
	if !ok {
		return nil, fmt.Errorf("panel %s cannot capture its document", id)
	}
	ctx, cancel := m.surfaceCtx(ctx)
	defer cancel()
	html, err := src.OuterHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", id, err)
	}
	panel, _ := m.registry.Get(id)
	return broadcast.Diagnose(html, m.dispatcher.Table().Resolve(id, panel.URL))
}

// HandleScroll receives horizontal wheel input forwarded from a panel page.
func (m *Manager) HandleScroll(panelID string, deltaX float64) {
	if deltaX == 0 {
		return
	}
	m.engine.ScrollBy(deltaX)
}
