package brep

import (
	"context"

	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

// BooleanFlags select what happens to the inputs and the result of a
// Boolean operation.
type BooleanFlags struct {
	RemoveOperands bool `yaml:"remove_operands" json:"remove_operands"`
	RemoveTools    bool `yaml:"remove_tools" json:"remove_tools"`
	// KeepHighestDim reduces the result to its highest dimension.
	KeepHighestDim bool `yaml:"keep_highest" json:"keep_highest"`
	// Upgrade merges coplanar faces and collinear edges of the result.
	Upgrade bool `yaml:"upgrade" json:"upgrade"`
}

// Boolean runs op on operands and tools and registers the result. Removed
// inputs leave the assembly and their ids stop resolving. Fragments takes
// operands and tools together as arguments.
func (m *Model) Boolean(ctx context.Context, op kernel.BooleanOp, operands, tools []topo.EntityID, f BooleanFlags) ([]topo.EntityID, error) {
	log := ctxlog.FromContext(ctx)
	if len(operands) == 0 {
		return nil, errs.Construction("%v needs at least one operand", op)
	}
	if op != kernel.Fragments && len(tools) == 0 && op != kernel.Fuse {
		return nil, errs.Construction("%v needs at least one tool", op)
	}
	args, err := m.handles(operands)
	if err != nil {
		return nil, err
	}
	tls, err := m.handles(tools)
	if err != nil {
		return nil, err
	}
	if op == kernel.Fragments {
		args, tls = append(args, tls...), nil
	}

	result, hist, err := m.k.Boolean(op, args, tls, m.opts.Boolean)
	if err != nil {
		return nil, errs.KernelOperation("%v failed: %v", op, err)
	}
	for _, h := range append(args, tls...) {
		if hist.IsDeleted(h) {
			log.Debug("input vanished", "op", op, "kind", h.Kind())
		}
	}

	if f.RemoveTools {
		for _, id := range tools {
			if err := m.Remove(ctx, id, true); err != nil {
				return nil, err
			}
		}
	}
	if f.RemoveOperands {
		for _, id := range operands {
			if err := m.Remove(ctx, id, true); err != nil {
				return nil, err
			}
		}
	}
	m.Sync(ctx, topo.SyncBoth)

	if f.Upgrade {
		result, _, err = m.k.Unify(result)
		if err != nil {
			return nil, errs.KernelOperation("unify %v result: %v", op, err)
		}
	}
	if f.KeepHighestDim {
		result = m.SelectHighestDim(result)
	}
	ids, err := m.Register(ctx, result)
	if err != nil {
		return nil, err
	}
	log.Debug("boolean", "op", op, "operands", len(operands), "tools", len(tools), "result", len(ids))
	return ids, nil
}

// ApplyFragments fragments all solids against each other, or all faces
// when there is no solid, or all edges when there is no face. A single
// entity of the highest dimension is left alone.
func (m *Model) ApplyFragments(ctx context.Context) ([]topo.EntityID, error) {
	var keys []topo.EntityID
	for _, kind := range []kernel.Kind{kernel.Solid, kernel.Face, kernel.Edge} {
		ids := m.reg.IDs(kind)
		if len(ids) == 0 {
			continue
		}
		if len(ids) > 1 {
			keys = ids
		}
		break
	}
	if len(keys) < 2 {
		return nil, nil
	}
	return m.Boolean(ctx, kernel.Fragments, keys[:1], keys[1:], BooleanFlags{RemoveOperands: true, RemoveTools: true})
}

// Heal repairs the given top-level entities, or every top-level entity when
// ids is empty. Entities that are not top level are skipped. It returns the
// ids of the repaired shapes and of the entities they replace.
func (m *Model) Heal(ctx context.Context, ids []topo.EntityID, opts kernel.HealOptions) (healed, removed []topo.EntityID, err error) {
	log := ctxlog.FromContext(ctx)
	if len(ids) == 0 {
		for _, c := range m.k.Children(m.shape) {
			if id, ok := m.reg.IDOf(c); ok {
				ids = append(ids, id)
			}
		}
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = m.opts.GeomTolerance
	}
	for _, id := range ids {
		if !m.IsTopLevel(id) {
			log.Info("skipping heal of nested entity", "id", id)
			continue
		}
		h, _ := m.reg.Get(id)
		fixed, _, err := m.k.Heal(h, opts)
		if err != nil {
			return nil, nil, errs.KernelOperation("heal %v: %v", id, err)
		}
		if err := m.Remove(ctx, id, true); err != nil {
			return nil, nil, err
		}
		m.Sync(ctx, topo.SyncRemove)
		if _, err := m.Register(ctx, fixed); err != nil {
			return nil, nil, err
		}
		nid, ok := m.reg.IDOf(fixed)
		if !ok {
			// the kernel may return a compound of several pieces
			nid = firstTop(m, fixed)
		}
		healed = append(healed, nid)
		removed = append(removed, id)
	}
	return healed, removed, nil
}

// Volume sews faces into a closed shell and registers the solid it bounds.
// Top-level input faces leave the assembly; faces of larger entities stay.
func (m *Model) Volume(ctx context.Context, faces []topo.EntityID) (topo.EntityID, error) {
	hs, err := m.handles(faces)
	if err != nil {
		return topo.EntityID{}, err
	}
	c := m.k.NewCompound()
	for i, h := range hs {
		if h.Kind() != kernel.Face {
			return topo.EntityID{}, errs.Construction("volume input %v is not a face", faces[i])
		}
		if err := m.k.AddToCompound(c, h); err != nil {
			return topo.EntityID{}, errs.KernelOperation("gather faces: %v", err)
		}
	}
	sewn, _, err := m.k.Heal(c, kernel.HealOptions{Tolerance: m.opts.GeomTolerance, SewFaces: true, MakeSolid: true})
	if err != nil {
		return topo.EntityID{}, errs.KernelOperation("sew faces: %v", err)
	}
	solids := kernel.Explore(m.k, sewn, kernel.Solid)
	if len(solids) != 1 {
		return topo.EntityID{}, errs.Construction("%d faces do not close a volume", len(faces))
	}

	for _, id := range faces {
		if !m.IsTopLevel(id) {
			continue
		}
		if err := m.Remove(ctx, id, true); err != nil {
			return topo.EntityID{}, err
		}
	}
	m.Sync(ctx, topo.SyncRemove)
	if _, err := m.Register(ctx, solids[0]); err != nil {
		return topo.EntityID{}, err
	}
	id, _ := m.reg.IDOf(solids[0])
	ctxlog.FromContext(ctx).Debug("volume closed", "faces", len(faces), "id", id)
	return id, nil
}

func firstTop(m *Model, s kernel.Shape) topo.EntityID {
	for _, kind := range kernel.TopoKinds {
		for _, h := range kernel.Explore(m.k, s, kind) {
			if id, ok := m.reg.IDOf(h); ok {
				return id
			}
		}
	}
	return topo.EntityID{}
}
