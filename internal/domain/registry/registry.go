package registry

import (
	"fmt"
	"sync"

	"github.com/GriffinCanCode/tabwall/internal/shared/types"
)

// Registry is the ordered arena of panels. Records are keyed by id and the
// order slice holds the layout sequence; every id in order has a record.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*types.Panel
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*types.Panel)}
}

// Register adds a panel at the end of the sequence. A non-empty
// urlOverride becomes the current URL. Registering an existing id replaces
// its record in place.
func (r *Registry) Register(id string, cfg types.PanelConfig, urlOverride string) (types.Panel, error) {
	if id == "" {
		return types.Panel{}, fmt.Errorf("panel id is required")
	}

	current := cfg.URL
	if urlOverride != "" {
		current = urlOverride
	}
	p := &types.Panel{
		ID:         id,
		Label:      cfg.Label,
		Color:      cfg.Color,
		URL:        cfg.URL,
		Enabled:    cfg.IsEnabled(),
		CurrentURL: current,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[id]; !exists {
		r.order = append(r.order, id)
	}
	r.records[id] = p
	return *p, nil
}

// Get returns a copy of the panel.
func (r *Registry) Get(id string) (types.Panel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[id]
	if !ok {
		return types.Panel{}, false
	}
	return *p, true
}

// Lookup returns the panel or an error wrapping ErrPanelNotFound.
func (r *Registry) Lookup(id string) (types.Panel, error) {
	p, ok := r.Get(id)
	if !ok {
		return types.Panel{}, fmt.Errorf("%w: %s", types.ErrPanelNotFound, id)
	}
	return p, nil
}

// All returns every panel in sequence order.
func (r *Registry) All() []types.Panel {
	return r.filter(func(*types.Panel) bool { return true })
}

// Enabled returns the enabled panels in sequence order.
func (r *Registry) Enabled() []types.Panel {
	return r.filter(func(p *types.Panel) bool { return p.Enabled })
}

// Disabled returns the disabled panels in sequence order.
func (r *Registry) Disabled() []types.Panel {
	return r.filter(func(p *types.Panel) bool { return !p.Enabled })
}

func (r *Registry) filter(keep func(*types.Panel) bool) []types.Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Panel, 0, len(r.order))
	for _, id := range r.order {
		if p := r.records[id]; keep(p) {
			out = append(out, *p)
		}
	}
	return out
}

// IDs returns the sequence.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SetEnabled flips the enabled flag. It reports whether the panel exists.
func (r *Registry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[id]
	if ok {
		p.Enabled = enabled
	}
	return ok
}

// SetCurrentURL records the last navigation location.
func (r *Registry) SetCurrentURL(id, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[id]
	if ok {
		p.CurrentURL = url
	}
	return ok
}

// Update refreshes label, color and base URL from configuration. The
// current URL follows the base URL only when it still pointed at the old one.
func (r *Registry) Update(id string, cfg types.PanelConfig) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[id]
	if !ok {
		return false
	}
	if cfg.Label != "" {
		p.Label = cfg.Label
	}
	if cfg.Color != "" {
		p.Color = cfg.Color
	}
	if cfg.URL != "" && cfg.URL != p.URL {
		if p.CurrentURL == p.URL {
			p.CurrentURL = cfg.URL
		}
		p.URL = cfg.URL
	}
	return true
}

// Reorder rebuilds the sequence from ids, then appends every existing
// panel the list did not name in its previous relative order. Unknown and
// repeated ids are ignored.
func (r *Registry) Reorder(ids []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(r.order))
	next := make([]string, 0, len(r.order))
	for _, id := range ids {
		if _, ok := r.records[id]; !ok || seen[id] {
			continue
		}
		seen[id] = true
		next = append(next, id)
	}
	for _, id := range r.order {
		if !seen[id] {
			seen[id] = true
			next = append(next, id)
		}
	}
	r.order = next
	return append([]string(nil), next...)
}

// Remove drops a panel from the arena.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return false
	}
	delete(r.records, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*types.Panel)
	r.order = nil
}

// Len returns the number of panels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Counts returns total and enabled counts.
func (r *Registry) Counts() (total, enabled int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.records {
		if p.Enabled {
			enabled++
		}
	}
	return len(r.order), enabled
}
