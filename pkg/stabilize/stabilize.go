// Package stabilize carries registry identities across a write/reload round
// trip of a shape.
//
// The kernel hands out new handles on reload. Capture records the order in
// which a deterministic walk first meets every sub-shape; running the same
// walk on the reloaded shape and zipping the two orders position by
// position relates old handles to new ones. This relies on the writer and
// reader preserving the walk order, which Verify checks against vertex
// coordinates.
package stabilize

import (
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

// Snapshot is the first-seen order of the sub-shapes of one shape, per kind.
type Snapshot struct {
	Order [kernel.Solid + 1][]kernel.Shape
}

// Len returns the number of sub-shapes of kind.
func (s *Snapshot) Len(kind kernel.Kind) int { return len(s.Order[kind]) }

// Capture walks s depth first, solids first and then the free shells, faces,
// wires, edges and vertices, recording every sub-shape the first time it is
// met.
func Capture(k kernel.Kernel, s kernel.Shape) *Snapshot {
	snap := &Snapshot{}
	seen := make(map[kernel.Shape]bool)
	var walk func(kernel.Shape)
	walk = func(x kernel.Shape) {
		if seen[x] {
			return
		}
		seen[x] = true
		if x.Kind() != kernel.Compound {
			snap.Order[x.Kind()] = append(snap.Order[x.Kind()], x)
		}
		for _, c := range k.Children(x) {
			if c.Kind() != kernel.Compound {
				walk(c)
			}
		}
	}
	for _, kind := range kernel.TopoKinds {
		for _, x := range kernel.Explore(k, s, kind) {
			walk(x)
		}
	}
	return snap
}

// Mapping relates pre-reload handles to post-reload handles, per kind.
type Mapping struct {
	m [kernel.Solid + 1]map[kernel.Shape]kernel.Shape
}

// Reconcile zips pre and post per kind. Different counts for any kind mean
// the round trip changed the topology.
func Reconcile(pre, post *Snapshot) (*Mapping, error) {
	out := &Mapping{}
	for _, kind := range kernel.TopoKinds {
		a, b := pre.Order[kind], post.Order[kind]
		if len(a) != len(b) {
			return nil, errs.NumberingInconsistency("%v count changed from %d to %d on reload", kind, len(a), len(b))
		}
		m := make(map[kernel.Shape]kernel.Shape, len(a))
		for i := range a {
			m[a[i]] = b[i]
		}
		out.m[kind] = m
	}
	return out, nil
}

// Len returns the size of the map of kind.
func (m *Mapping) Len(kind kernel.Kind) int { return len(m.m[kind]) }

// Lookup returns the reloaded handle of h.
func (m *Mapping) Lookup(h kernel.Shape) (kernel.Shape, bool) {
	if h == nil || int(h.Kind()) >= len(m.m) {
		return nil, false
	}
	n, ok := m.m[h.Kind()][h]
	return n, ok
}

// Verify checks that every vertex landed on the same coordinates, which
// holds only if the kernel kept its discovery order through the round trip.
func (m *Mapping) Verify(k kernel.Kernel, tol float64) error {
	for from, to := range m.m[kernel.Vertex] {
		a, err := k.Point(from)
		if err != nil {
			return err
		}
		b, err := k.Point(to)
		if err != nil {
			return err
		}
		if !geom.Near(a, b, tol) {
			return errs.NumberingInconsistency("vertex at %v reloaded at %v", a, b)
		}
	}
	return nil
}

// Apply points every slot of the active group of set at its reloaded
// handle. Entity ids are unchanged. A slot whose handle was not captured is
// a fatal inconsistency.
func (m *Mapping) Apply(set *topo.Set) error {
	for _, kind := range kernel.TopoKinds {
		for _, id := range set.IDs(kind) {
			h, _ := set.Get(id)
			n, ok := m.m[kind][h]
			if !ok {
				return errs.NumberingInconsistency("%v has no image after reload", id)
			}
			if err := set.Replace(id, n); err != nil {
				return errs.NumberingInconsistency("%v: %v", id, err)
			}
		}
	}
	return nil
}
