package topo

import (
	"fmt"
	"sort"

	"github.com/chazu/brepseq/pkg/kernel"
)

// Set bundles one registry per registrable kind and keeps their groups in
// lock step.
type Set struct {
	regs [kernel.Solid + 1]*Registry
}

// NewSet returns six empty registries.
func NewSet() *Set {
	s := &Set{}
	for k := range s.regs {
		s.regs[k] = NewRegistry(kernel.Kind(k))
	}
	return s
}

// Registry returns the registry of kind. It panics for compounds.
func (s *Set) Registry(kind kernel.Kind) *Registry {
	return s.regs[kind]
}

func (s *Set) owns(kind kernel.Kind) bool {
	return int(kind) < len(s.regs)
}

// Get returns the handle registered under id.
func (s *Set) Get(id EntityID) (kernel.Shape, bool) {
	if !s.owns(id.Kind) {
		return nil, false
	}
	return s.regs[id.Kind].Get(id)
}

// Add registers h with the registry of its kind.
func (s *Set) Add(h kernel.Shape) (EntityID, error) {
	if h == nil || !s.owns(h.Kind()) {
		return EntityID{}, fmt.Errorf("cannot register %v", h)
	}
	return s.regs[h.Kind()].Add(h)
}

// IDOf returns the id of h in the registry of its kind.
func (s *Set) IDOf(h kernel.Shape) (EntityID, bool) {
	if h == nil || !s.owns(h.Kind()) {
		return EntityID{}, false
	}
	return s.regs[h.Kind()].IDOf(h)
}

// Remove deletes the slot of id.
func (s *Set) Remove(id EntityID) bool {
	if !s.owns(id.Kind) {
		return false
	}
	return s.regs[id.Kind].Remove(id)
}

// Replace swaps the handle of id in place.
func (s *Set) Replace(id EntityID, h kernel.Shape) error {
	if !s.owns(id.Kind) {
		return fmt.Errorf("cannot replace %v", id)
	}
	return s.regs[id.Kind].Replace(id, h)
}

// Resolve turns a bare reference into an id, searching the active group
// and then the root group.
func (s *Set) Resolve(ref Oriented) (Oriented, bool) {
	if !s.owns(ref.ID.Kind) {
		return Oriented{}, false
	}
	id, ok := s.regs[ref.ID.Kind].Lookup(ref.ID.Index)
	if !ok {
		return Oriented{}, false
	}
	return Oriented{ID: id, Reversed: ref.Reversed}, true
}

// Synchronize explores root and reconciles every registry with the live
// sub-shapes of its kind. Only the active group is touched.
func (s *Set) Synchronize(k kernel.Kernel, root kernel.Shape, mode SyncMode) (added, removed []EntityID) {
	for _, kind := range kernel.TopoKinds {
		var live []kernel.Shape
		if root != nil {
			live = kernel.Explore(k, root, kind)
		}
		a, r := s.regs[kind].Synchronize(live, mode)
		added = append(added, a...)
		removed = append(removed, r...)
	}
	return added, removed
}

// NewGroup opens a new group in every registry and returns its number.
func (s *Set) NewGroup() int {
	g := 0
	for _, r := range s.regs {
		g = r.NewGroup()
	}
	return g
}

// SetGroup activates g in every registry.
func (s *Set) SetGroup(g int) {
	for _, r := range s.regs {
		r.SetGroup(g)
	}
}

// CurrentGroup returns the active group.
func (s *Set) CurrentGroup() int { return s.regs[0].CurrentGroup() }

// DropGroup discards g in every registry.
func (s *Set) DropGroup(g int) error {
	for _, r := range s.regs {
		if err := r.DropGroup(g); err != nil {
			return err
		}
	}
	return nil
}

// IDs returns the live ids of kind in the active group.
func (s *Set) IDs(kind kernel.Kind) []EntityID {
	return s.regs[kind].IDs()
}

// GroupIDs returns the live ids of kind in group g.
func (s *Set) GroupIDs(kind kernel.Kind, g int) []EntityID {
	return s.regs[kind].GroupIDs(g)
}

// Reset empties every registry.
func (s *Set) Reset() {
	for _, r := range s.regs {
		r.Reset()
	}
}

// Export is a serializable snapshot of the registries: the live ids of
// every group, per kind, in registration order.
type Export map[string][]EntityID

// Export snapshots every group of every registry.
func (s *Set) Export() Export {
	out := make(Export)
	for _, kind := range kernel.TopoKinds {
		r := s.regs[kind]
		groups := make([]int, 0, len(r.groups))
		for g := range r.groups {
			groups = append(groups, g)
		}
		sort.Ints(groups)
		var ids []EntityID
		for _, g := range groups {
			ids = append(ids, r.groupIDs(g)...)
		}
		out[kind.String()] = ids
	}
	return out
}

// Count returns the number of ids of kind.
func (e Export) Count(kind kernel.Kind) int { return len(e[kind.String()]) }
