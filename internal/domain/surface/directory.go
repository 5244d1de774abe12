package surface

import "sync"

// Directory is a concurrency-safe Provider that surfaces are added to as
// they are created.
type Directory struct {
	mu    sync.RWMutex
	items map[string]Surface
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{items: make(map[string]Surface)}
}

// Put registers s for id, replacing any previous surface.
func (d *Directory) Put(id string, s Surface) {
	d.mu.Lock()
	d.items[id] = s
	d.mu.Unlock()
}

// Delete removes id and returns the surface it had.
func (d *Directory) Delete(id string) (Surface, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.items[id]
	delete(d.items, id)
	return s, ok
}

// Surface returns the surface for id.
func (d *Directory) Surface(id string) (Surface, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.items[id]
	return s, ok
}

// Len returns the number of surfaces.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items)
}
