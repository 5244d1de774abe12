package isolation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/tabwall/internal/domain/surface"
	"github.com/GriffinCanCode/tabwall/internal/logging"
	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// PartitionPrefix marks partitions whose data survives restarts.
const PartitionPrefix = "persist:"

// StrippedHeaders are removed from every response so destinations can be
// embedded.
var StrippedHeaders = []string{
	"x-frame-options",
	"content-security-policy",
	"content-security-policy-report-only",
}

// GrantedPermissions are approved for every partition without prompting.
var GrantedPermissions = []string{
	"audioCapture",
	"videoCapture",
	"clipboardReadWrite",
	"clipboardSanitizedWrite",
	"geolocation",
	"notifications",
	"midi",
	"sensors",
	"durableStorage",
	"localFonts",
	"storageAccess",
	"windowManagement",
}

// Header is one response header.
type Header struct {
	Name  string
	Value string
}

// StripFrameHeaders returns headers without the ones that block embedding.
// Names compare case-insensitively.
func StripFrameHeaders(headers []Header) []Header {
	out := make([]Header, 0, len(headers))
	for _, h := range headers {
		if isStripped(h.Name) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func isStripped(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range StrippedHeaders {
		if name == s {
			return true
		}
	}
	return false
}

// Backend applies isolation policy to the browser.
type Backend interface {
	CreatePartition(ctx context.Context, partition string) error
	GrantPermissions(ctx context.Context, partition string, permissions []string) error
	FilterResponseHeaders(ctx context.Context, partition string, filter func([]Header) []Header) error
	IgnoreCertificateErrors(ctx context.Context, partition string) error
	// ClearPartition discards everything the partition stored, including
	// HTTP, auth and host-resolver caches, and leaves it empty but usable.
	// Its open surfaces stay valid.
	ClearPartition(ctx context.Context, partition string) error
}

// PanelReader looks up panels for reset reloads.
type PanelReader interface {
	Get(id string) (types.Panel, bool)
	IDs() []string
}

// SnapshotRemover deletes the persisted host state.
type SnapshotRemover interface {
	Delete() error
}

// Manager owns one partition per panel.
type Manager struct {
	backend   Backend
	panels    PanelReader
	surfaces  surface.Provider
	snapshot  SnapshotRemover
	restarter Restarter
	log       *logging.Logger

	mu       sync.Mutex
	prepared map[string]string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithSnapshot sets the snapshot deleted by ResetAll.
func WithSnapshot(s SnapshotRemover) Option {
	return func(m *Manager) { m.snapshot = s }
}

// WithRestarter replaces the process restarter.
func WithRestarter(r Restarter) Option {
	return func(m *Manager) { m.restarter = r }
}

// NewManager creates a manager.
func NewManager(backend Backend, panels PanelReader, surfaces surface.Provider, opts ...Option) *Manager {
	m := &Manager{
		backend:  backend,
		panels:   panels,
		surfaces: surfaces,
		prepared: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.restarter == nil {
		m.restarter = NewProcessRestarter(nil)
	}
	m.log = logging.OrNop(m.log).Named("isolation")
	return m
}

// PartitionName returns the partition for a panel id.
func PartitionName(id string) string {
	return PartitionPrefix + id
}

// Prepare allocates and configures the panel's partition. It must run
// before the panel's surface is created. Preparing twice is a no-op.
func (m *Manager) Prepare(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", errors.New("empty panel id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.prepared[id]; ok {
		return p, nil
	}
	partition := PartitionName(id)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create", func() error { return m.backend.CreatePartition(ctx, partition) }},
		{"permissions", func() error { return m.backend.GrantPermissions(ctx, partition, GrantedPermissions) }},
		{"headers", func() error { return m.backend.FilterResponseHeaders(ctx, partition, StripFrameHeaders) }},
		{"certificates", func() error { return m.backend.IgnoreCertificateErrors(ctx, partition) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return "", fmt.Errorf("isolation %s for %s: %w", step.name, partition, err)
		}
	}

	m.prepared[id] = partition
	m.log.Debug("Partition prepared", logging.Panel(id), zap.String("partition", partition))
	return partition, nil
}

// Partition returns the prepared partition for id.
func (m *Manager) Partition(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prepared[id]
	return p, ok
}

// Forget drops the record of a panel's partition.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	delete(m.prepared, id)
	m.mu.Unlock()
}

// ResetPartition clears the panel's partition and reloads it at its base
// URL.
func (m *Manager) ResetPartition(ctx context.Context, id string) error {
	panel, ok := m.panels.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrPanelNotFound, id)
	}
	if err := m.backend.ClearPartition(ctx, PartitionName(id)); err != nil {
		return fmt.Errorf("clear partition %s: %w", id, err)
	}

	surf, ok := m.surfaces.Surface(id)
	if !ok || surf == nil {
		m.log.Info("Partition cleared, panel has no surface to reload", logging.Panel(id))
		return nil
	}
	if err := surf.Load(ctx, panel.URL); err != nil {
		return fmt.Errorf("%w: reload %s after reset: %v", types.ErrNavigation, id, err)
	}
	m.log.Info("Partition reset", logging.Panel(id), zap.String("url", panel.URL))
	return nil
}

// ResetAll clears every panel's partition, deletes the persisted snapshot
// and restarts the process. Clearing continues past individual failures;
// the restart happens regardless.
func (m *Manager) ResetAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.panels.IDs() {
		if err := m.backend.ClearPartition(ctx, PartitionName(id)); err != nil {
			m.log.Warn("Failed to clear partition", logging.Panel(id), zap.Error(err))
			errs = append(errs, fmt.Errorf("clear partition %s: %w", id, err))
		}
	}

	if m.snapshot != nil {
		if err := m.snapshot.Delete(); err != nil {
			m.log.Warn("Failed to delete state file", zap.Error(err))
			errs = append(errs, err)
		}
	}

	m.log.Info("All partitions reset, restarting", zap.Int("failures", len(errs)))
	if err := m.restarter.Restart(); err != nil {
		errs = append(errs, fmt.Errorf("restart: %w", err))
	}
	return errors.Join(errs...)
}
