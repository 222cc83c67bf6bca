package topo

import (
	"fmt"

	"github.com/chazu/brepseq/pkg/kernel"
)

// Registry maps stable indices to kernel handles for one kind.
// It is not safe for concurrent use.
type Registry struct {
	kind    kernel.Kind
	next    int
	groups  map[int]*arena
	current int
	// highest group ever opened; group numbers are not reused
	lastGroup int
}

type slot struct {
	index int
	shape kernel.Shape
	live  bool
}

// arena holds the slots of one group in registration order, with side maps
// by index and by handle.
type arena struct {
	slots    []slot
	byIndex  map[int]int
	byHandle map[kernel.Shape]int
	dead     int
}

func newArena() *arena {
	return &arena{byIndex: make(map[int]int), byHandle: make(map[kernel.Shape]int)}
}

func (a *arena) add(index int, h kernel.Shape) {
	a.byIndex[index] = len(a.slots)
	a.byHandle[h] = index
	a.slots = append(a.slots, slot{index: index, shape: h, live: true})
}

func (a *arena) get(index int) (kernel.Shape, bool) {
	pos, ok := a.byIndex[index]
	if !ok {
		return nil, false
	}
	return a.slots[pos].shape, true
}

func (a *arena) remove(index int) bool {
	pos, ok := a.byIndex[index]
	if !ok {
		return false
	}
	s := &a.slots[pos]
	if a.byHandle[s.shape] == index {
		delete(a.byHandle, s.shape)
	}
	delete(a.byIndex, index)
	s.live, s.shape = false, nil
	a.dead++
	if a.dead > 32 && a.dead > len(a.slots)/2 {
		a.compact()
	}
	return true
}

func (a *arena) compact() {
	live := a.slots[:0]
	for _, s := range a.slots {
		if s.live {
			a.byIndex[s.index] = len(live)
			live = append(live, s)
		}
	}
	for i := len(live); i < len(a.slots); i++ {
		a.slots[i] = slot{}
	}
	a.slots, a.dead = live, 0
}

// NewRegistry returns an empty registry for kind with group 0 active.
func NewRegistry(kind kernel.Kind) *Registry {
	return &Registry{kind: kind, groups: map[int]*arena{0: newArena()}}
}

// Kind returns the kind of the registered shapes.
func (r *Registry) Kind() kernel.Kind { return r.kind }

func (r *Registry) active() *arena { return r.groups[r.current] }

func (r *Registry) check(h kernel.Shape) error {
	if h == nil {
		return fmt.Errorf("nil %v handle", r.kind)
	}
	if h.Kind() != r.kind {
		return fmt.Errorf("%v registry cannot hold a %v", r.kind, h.Kind())
	}
	return nil
}

// Add registers h in the active group and returns its id. A handle already
// registered in the active group keeps its id.
func (r *Registry) Add(h kernel.Shape) (EntityID, error) {
	if err := r.check(h); err != nil {
		return EntityID{}, err
	}
	a := r.active()
	if idx, ok := a.byHandle[h]; ok {
		return EntityID{Kind: r.kind, Group: r.current, Index: idx}, nil
	}
	r.next++
	a.add(r.next, h)
	return EntityID{Kind: r.kind, Group: r.current, Index: r.next}, nil
}

// Get returns the handle registered under id.
func (r *Registry) Get(id EntityID) (kernel.Shape, bool) {
	if id.Kind != r.kind {
		return nil, false
	}
	a, ok := r.groups[id.Group]
	if !ok {
		return nil, false
	}
	return a.get(id.Index)
}

// Remove deletes the slot of id. It reports whether the slot existed.
func (r *Registry) Remove(id EntityID) bool {
	if id.Kind != r.kind {
		return false
	}
	a, ok := r.groups[id.Group]
	if !ok {
		return false
	}
	return a.remove(id.Index)
}

// Replace swaps the handle of an existing slot without changing its id.
func (r *Registry) Replace(id EntityID, h kernel.Shape) error {
	if err := r.check(h); err != nil {
		return err
	}
	a, ok := r.groups[id.Group]
	if !ok || id.Kind != r.kind {
		return fmt.Errorf("no %v slot %v", r.kind, id)
	}
	pos, ok := a.byIndex[id.Index]
	if !ok {
		return fmt.Errorf("no %v slot %v", r.kind, id)
	}
	s := &a.slots[pos]
	if a.byHandle[s.shape] == id.Index {
		delete(a.byHandle, s.shape)
	}
	s.shape = h
	a.byHandle[h] = id.Index
	return nil
}

// Lookup resolves a bare index in the active group, falling back to the
// root group for shadowed reads from inside a frame.
func (r *Registry) Lookup(index int) (EntityID, bool) {
	if _, ok := r.active().byIndex[index]; ok {
		return EntityID{Kind: r.kind, Group: r.current, Index: index}, true
	}
	if r.current != 0 {
		if _, ok := r.groups[0].byIndex[index]; ok {
			return EntityID{Kind: r.kind, Index: index}, true
		}
	}
	return EntityID{}, false
}

// IDOf returns the id of h in the active group, then in the root group.
func (r *Registry) IDOf(h kernel.Shape) (EntityID, bool) {
	if idx, ok := r.active().byHandle[h]; ok {
		return EntityID{Kind: r.kind, Group: r.current, Index: idx}, true
	}
	if r.current != 0 {
		if idx, ok := r.groups[0].byHandle[h]; ok {
			return EntityID{Kind: r.kind, Index: idx}, true
		}
	}
	return EntityID{}, false
}

// IDs lists the live ids of the active group in registration order.
func (r *Registry) IDs() []EntityID {
	return r.groupIDs(r.current)
}

// GroupIDs lists the live ids of group g in registration order.
func (r *Registry) GroupIDs(g int) []EntityID { return r.groupIDs(g) }

func (r *Registry) groupIDs(g int) []EntityID {
	a, ok := r.groups[g]
	if !ok {
		return nil
	}
	out := make([]EntityID, 0, len(a.byIndex))
	for _, s := range a.slots {
		if s.live {
			out = append(out, EntityID{Kind: r.kind, Group: g, Index: s.index})
		}
	}
	return out
}

// Len returns the number of live slots in the active group.
func (r *Registry) Len() int { return len(r.active().byIndex) }

// Synchronize reconciles the active group with the live handles. The
// removal pass drops slots whose handle is not in live; the addition pass
// registers unseen live handles in the order given.
func (r *Registry) Synchronize(live []kernel.Shape, mode SyncMode) (added, removed []EntityID) {
	a := r.active()
	if mode&SyncRemove != 0 {
		set := make(map[kernel.Shape]bool, len(live))
		for _, h := range live {
			set[h] = true
		}
		for _, s := range a.slots {
			if s.live && !set[s.shape] {
				removed = append(removed, EntityID{Kind: r.kind, Group: r.current, Index: s.index})
			}
		}
		for _, id := range removed {
			a.remove(id.Index)
		}
	}
	if mode&SyncAdd != 0 {
		for _, h := range live {
			if h == nil || h.Kind() != r.kind {
				continue
			}
			if _, ok := a.byHandle[h]; ok {
				continue
			}
			r.next++
			a.add(r.next, h)
			added = append(added, EntityID{Kind: r.kind, Group: r.current, Index: r.next})
		}
	}
	return added, removed
}

// NewGroup opens the next generation group and makes it active.
func (r *Registry) NewGroup() int {
	r.lastGroup++
	g := r.lastGroup
	r.groups[g] = newArena()
	r.current = g
	return g
}

// SetGroup makes g the active group, creating it when needed.
func (r *Registry) SetGroup(g int) {
	if _, ok := r.groups[g]; !ok {
		r.groups[g] = newArena()
		r.lastGroup = max(r.lastGroup, g)
	}
	r.current = g
}

// CurrentGroup returns the active group.
func (r *Registry) CurrentGroup() int { return r.current }

// DropGroup discards a local group. The root group and the active group
// cannot be dropped.
func (r *Registry) DropGroup(g int) error {
	if g == 0 || g == r.current {
		return fmt.Errorf("cannot drop active or root group %d", g)
	}
	delete(r.groups, g)
	return nil
}

// Reset clears every group and restarts numbering.
func (r *Registry) Reset() {
	r.next, r.current, r.lastGroup = 0, 0, 0
	r.groups = map[int]*arena{0: newArena()}
}
