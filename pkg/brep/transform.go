package brep

import (
	"context"

	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

// Transform applies t to the entity id. With copy the original stays and
// the moved copy gets a new id. Without copy the entity keeps its id, and so
// do its sub-shapes: their slots are pointed at the moved handles. Only
// top-level entities can be moved in place.
func (m *Model) Transform(ctx context.Context, id topo.EntityID, t geom.Transform, copy bool) (topo.EntityID, error) {
	h, err := m.Get(id)
	if err != nil {
		return topo.EntityID{}, err
	}
	if !copy && !m.IsTopLevel(id) {
		return topo.EntityID{}, errs.Construction("%v is part of a larger entity and cannot be moved in place", id)
	}
	moved, hist, err := m.k.Transform(h, t)
	if err != nil {
		return topo.EntityID{}, errs.KernelOperation("transform %v: %v", id, err)
	}
	if moved == h {
		return id, nil
	}

	if copy {
		if _, err := m.Register(ctx, moved); err != nil {
			return topo.EntityID{}, err
		}
		nid, _ := m.reg.IDOf(moved)
		return nid, nil
	}

	if err := m.k.RemoveFromCompound(m.shape, h); err != nil {
		return topo.EntityID{}, errs.KernelOperation("transform %v: %v", id, err)
	}
	if err := m.Insert(moved); err != nil {
		return topo.EntityID{}, err
	}
	m.rebind(h, hist)
	m.Sync(ctx, topo.SyncBoth)
	ctxlog.FromContext(ctx).Debug("moved in place", "id", id, "transform", t.String())
	return id, nil
}

// rebind points every registered sub-shape of old at its image in hist.
func (m *Model) rebind(old kernel.Shape, hist *kernel.History) {
	for _, kind := range kernel.TopoKinds {
		for _, x := range kernel.Explore(m.k, old, kind) {
			sid, ok := m.reg.IDOf(x)
			if !ok || sid.Group != m.reg.CurrentGroup() {
				continue
			}
			img, ok := hist.Image(x)
			if !ok {
				continue
			}
			if other, taken := m.reg.IDOf(img); taken && other != sid {
				continue
			}
			_ = m.reg.Replace(sid, img)
		}
	}
}

// TransformAll applies t to every id in turn.
func (m *Model) TransformAll(ctx context.Context, ids []topo.EntityID, t geom.Transform, copy bool) ([]topo.EntityID, error) {
	out := make([]topo.EntityID, 0, len(ids))
	for _, id := range ids {
		nid, err := m.Transform(ctx, id, t, copy)
		if err != nil {
			return nil, err
		}
		out = append(out, nid)
	}
	return out, nil
}
