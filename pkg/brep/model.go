// Package brep is the modelling session: the live composite assembly, the
// registries that give its sub-shapes stable ids, the stack of local frames
// and the wrappers that keep the registries consistent across kernel calls.
//
// A Model owns its kernel session. Nothing in this package keeps state at
// package level, so independent models can run side by side.
package brep

import (
	"context"
	"fmt"

	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

// Options tune the kernel calls made by a Model.
type Options struct {
	// Boolean is passed to every Boolean operation.
	Boolean kernel.BooleanOptions
	// GeomTolerance is used for healing and sewing.
	GeomTolerance float64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Boolean:       kernel.BooleanOptions{FuzzyValue: 1e-8},
		GeomTolerance: 1e-6,
	}
}

// Model is one build session. It is not safe for concurrent use.
type Model struct {
	k      kernel.Kernel
	opts   Options
	reg    *topo.Set
	shape  kernel.Shape
	frames []*frameState
}

// New returns an empty model on kernel k.
func New(k kernel.Kernel, opts Options) *Model {
	m := &Model{k: k, opts: opts}
	m.Reset()
	return m
}

// Reset discards the assembly, the registries and any open frame.
func (m *Model) Reset() {
	m.shape = m.k.NewCompound()
	m.reg = topo.NewSet()
	m.frames = nil
}

// Kernel returns the kernel session of the model.
func (m *Model) Kernel() kernel.Kernel { return m.k }

// Options returns the kernel options in effect.
func (m *Model) Options() Options { return m.opts }

// SetOptions replaces the kernel options.
func (m *Model) SetOptions(o Options) { m.opts = o }

// Registries returns the entity registries.
func (m *Model) Registries() *topo.Set { return m.reg }

// Shape returns the live composite of the active frame.
func (m *Model) Shape() kernel.Shape { return m.shape }

// Get returns the live handle of id.
func (m *Model) Get(id topo.EntityID) (kernel.Shape, error) {
	h, ok := m.reg.Get(id)
	if !ok {
		return nil, errs.Construction("no live entity %v", id)
	}
	return h, nil
}

func (m *Model) handles(ids []topo.EntityID) ([]kernel.Shape, error) {
	out := make([]kernel.Shape, len(ids))
	for i, id := range ids {
		h, err := m.Get(id)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

// Resolve turns a bare reference such as "f3" into a live id, looking in
// the active group first and then in the root group.
func (m *Model) Resolve(ref topo.Oriented) (topo.Oriented, error) {
	o, ok := m.reg.Resolve(ref)
	if !ok {
		return topo.Oriented{}, errs.Construction("no live entity %v", ref)
	}
	return o, nil
}

// Point returns the coordinates of a vertex.
func (m *Model) Point(id topo.EntityID) (geom.Vec3, error) {
	h, err := m.Get(id)
	if err != nil {
		return geom.Vec3{}, err
	}
	return m.k.Point(h)
}

// BoundingBox returns the bounding box of an entity.
func (m *Model) BoundingBox(id topo.EntityID) (geom.BBox, error) {
	h, err := m.Get(id)
	if err != nil {
		return geom.BBox{}, err
	}
	return m.k.BoundingBox(h)
}

// IsTopLevel reports whether the handle of id is a direct member of the
// assembly.
func (m *Model) IsTopLevel(id topo.EntityID) bool {
	h, ok := m.reg.Get(id)
	if !ok {
		return false
	}
	for _, c := range m.k.Children(m.shape) {
		if c == h {
			return true
		}
	}
	return false
}

// Insert adds h to the assembly without registering it.
func (m *Model) Insert(h kernel.Shape) error {
	if err := m.k.AddToCompound(m.shape, h); err != nil {
		return fmt.Errorf("insert %v: %w", h.Kind(), err)
	}
	return nil
}

// Sync mirrors the registries of the active group to the assembly.
func (m *Model) Sync(ctx context.Context, mode topo.SyncMode) {
	added, removed := m.reg.Synchronize(m.k, m.shape, mode)
	if len(added)+len(removed) > 0 {
		ctxlog.FromContext(ctx).Debug("registries synchronized",
			"mode", mode, "added", len(added), "removed", len(removed))
	}
}

// Register records every sub-shape of result not registered yet, walking
// solids, shells, faces, wires, edges and vertices in turn, and adds the
// free top-level sub-shapes of result to the assembly. It returns the ids of
// those top-level sub-shapes: solids, faces outside shells, edges outside
// wires and vertices outside edges.
func (m *Model) Register(ctx context.Context, result kernel.Shape) ([]topo.EntityID, error) {
	if result == nil {
		return nil, errs.Construction("nothing to register")
	}
	for _, kind := range kernel.TopoKinds {
		for _, h := range kernel.Explore(m.k, result, kind) {
			if _, err := m.reg.Add(h); err != nil {
				return nil, err
			}
		}
	}

	var top []topo.EntityID
	for _, kind := range kernel.TopoKinds {
		var free []kernel.Shape
		if kind == kernel.Solid {
			free = kernel.Explore(m.k, result, kind)
		} else {
			free = kernel.ExploreOutside(m.k, result, kind, kind+1)
		}
		for _, h := range free {
			if err := m.Insert(h); err != nil {
				return nil, err
			}
			if kind == kernel.Shell || kind == kernel.Wire {
				continue
			}
			id, _ := m.reg.IDOf(h)
			top = append(top, id)
		}
	}
	ctxlog.FromContext(ctx).Debug("registered", "ids", len(top))
	return top, nil
}

// AddShape registers a freshly built shape and returns its top-level ids.
func (m *Model) AddShape(ctx context.Context, h kernel.Shape) ([]topo.EntityID, error) {
	return m.Register(ctx, h)
}

// Remove takes id out of the assembly. Without recursive, sub-shapes of id
// that would vanish with it stay in the assembly as free entities. An id
// that is only part of a larger entity is left in place. The registries are
// not synchronized.
func (m *Model) Remove(ctx context.Context, id topo.EntityID, recursive bool) error {
	h, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := m.k.RemoveFromCompound(m.shape, h); err != nil {
		// a sub-shape of a larger entity cannot leave on its own
		ctxlog.FromContext(ctx).Info("entity kept: not top-level", "id", id)
		return nil
	}
	if recursive || id.Kind == kernel.Vertex {
		return nil
	}
	for _, c := range m.k.Children(h) {
		if !kernel.Contains(m.k, m.shape, c) {
			if err := m.Insert(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// Keep replaces the assembly with just the given entities.
func (m *Model) Keep(ids []topo.EntityID) error {
	hs, err := m.handles(ids)
	if err != nil {
		return err
	}
	c := m.k.NewCompound()
	for _, h := range hs {
		if err := m.k.AddToCompound(c, h); err != nil {
			return err
		}
	}
	m.shape = c
	return nil
}

// Copy registers a copy of id and returns the top-level id of the copy.
func (m *Model) Copy(ctx context.Context, id topo.EntityID) (topo.EntityID, error) {
	h, err := m.Get(id)
	if err != nil {
		return topo.EntityID{}, err
	}
	c, _, err := m.k.Copy(h)
	if err != nil {
		return topo.EntityID{}, errs.KernelOperation("copy %v: %v", id, err)
	}
	if _, err := m.Register(ctx, c); err != nil {
		return topo.EntityID{}, err
	}
	nid, _ := m.reg.IDOf(c)
	return nid, nil
}

// SelectHighestDim returns a compound of the sub-shapes of s of its highest
// dimension: solids if any, else faces, else edges, else vertices.
func (m *Model) SelectHighestDim(s kernel.Shape) kernel.Shape {
	c := m.k.NewCompound()
	for _, kind := range []kernel.Kind{kernel.Solid, kernel.Face, kernel.Edge, kernel.Vertex} {
		subs := kernel.Explore(m.k, s, kind)
		if len(subs) == 0 {
			continue
		}
		for _, x := range subs {
			_ = m.k.AddToCompound(c, x)
		}
		break
	}
	return c
}

// Counts returns the number of live ids per kind in the active group.
func (m *Model) Counts() map[kernel.Kind]int {
	out := make(map[kernel.Kind]int)
	for _, kind := range kernel.TopoKinds {
		out[kind] = len(m.reg.IDs(kind))
	}
	return out
}
