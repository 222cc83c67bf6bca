package brep

import (
	"context"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

// Protruded is the outcome of sweeping one entity.
type Protruded struct {
	// Last is the far end of the sweep: the moved copy of the input.
	Last topo.EntityID
	// Result is the swept entity, one dimension above the input.
	Result topo.EntityID
	// IDs are the top-level ids registered from the result.
	IDs []topo.EntityID
}

// Protrude sweeps the entity id with fn and registers the result. A
// top-level input leaves the assembly; the result takes its place.
func (m *Model) Protrude(ctx context.Context, id topo.EntityID, fn func(kernel.Shape) (kernel.Protrusion, error)) (Protruded, error) {
	h, err := m.Get(id)
	if err != nil {
		return Protruded{}, err
	}
	top := m.IsTopLevel(id)
	p, err := fn(h)
	if err != nil {
		return Protruded{}, errs.KernelOperation("sweep %v: %v", id, err)
	}
	if top {
		if err := m.k.RemoveFromCompound(m.shape, h); err != nil {
			return Protruded{}, errs.KernelOperation("sweep %v: %v", id, err)
		}
	}
	ids, err := m.Register(ctx, p.Result)
	if err != nil {
		return Protruded{}, err
	}
	m.Sync(ctx, topo.SyncBoth)

	out := Protruded{IDs: ids}
	if rid, ok := m.reg.IDOf(p.Result); ok {
		out.Result = rid
	} else if len(ids) > 0 {
		out.Result = ids[0]
	}
	if p.Last != nil {
		last, ok := m.reg.IDOf(p.Last)
		if !ok {
			if _, err := m.Register(ctx, p.Last); err != nil {
				return Protruded{}, err
			}
			last, _ = m.reg.IDOf(p.Last)
		}
		out.Last = last
	}
	return out, nil
}
