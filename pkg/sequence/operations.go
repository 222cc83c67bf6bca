package sequence

import (
	"context"
	"math"

	"github.com/chazu/brepseq/pkg/brep"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

func boolean(op kernel.BooleanOp, prefix string, upgrade bool) func(context.Context, *Executor, *BooleanParams) ([]string, error) {
	return func(ctx context.Context, x *Executor, p *BooleanParams) ([]string, error) {
		operands, err := x.targets(p.Operands)
		if err != nil {
			return nil, err
		}
		tools, err := x.targets(p.Tools)
		if err != nil {
			return nil, err
		}
		ids, err := x.model.Boolean(ctx, op, operands, tools, brep.BooleanFlags{
			RemoveOperands: p.DeleteInput,
			RemoveTools:    p.DeleteTool,
			KeepHighestDim: p.KeepHighest,
			Upgrade:        upgrade,
		})
		if err != nil {
			return nil, err
		}
		if p.DeleteInput {
			x.forget(p.Operands)
		}
		if p.DeleteTool {
			x.forget(p.Tools)
		}
		return x.nameAll(ids, prefix), nil
	}
}

// transformEach applies t to every target. Copies are named with prefix;
// entities moved in place keep their names.
func (x *Executor) transformEach(ctx context.Context, refs []string, t geom.Transform, copy bool, prefix string) ([]string, error) {
	ids, err := x.targets(refs)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range ids {
		nid, err := x.model.Transform(ctx, id, t, copy)
		if err != nil {
			return nil, err
		}
		if copy {
			out = append(out, x.name(nid, prefix))
		}
	}
	x.model.Sync(ctx, topo.SyncBoth)
	return out, nil
}

func move(ctx context.Context, x *Executor, p *MoveParams) ([]string, error) {
	return x.transformEach(ctx, p.Targets, geom.Translation(p.Delta.V()), p.Copy, "mv")
}

func rotate(ctx context.Context, x *Executor, p *RotateParams) ([]string, error) {
	t := geom.Rotation(p.Point.V(), p.Axis.V(), p.Angle*math.Pi/180)
	return x.transformEach(ctx, p.Targets, t, p.Copy, "mv")
}

func scale(ctx context.Context, x *Executor, p *ScaleParams) ([]string, error) {
	return x.transformEach(ctx, p.Targets, geom.Scaling(p.Center.V(), p.Factors.V()), p.Copy, "sc")
}

func flip(ctx context.Context, x *Executor, p *FlipParams) ([]string, error) {
	a, b, c, d := p.Plane[0], p.Plane[1], p.Plane[2], p.Plane[3]
	if a == 0 && b == 0 && c == 0 {
		return nil, errs.Construction("mirror plane has no normal")
	}
	return x.transformEach(ctx, p.Targets, geom.Mirror(a, b, c, d), p.Copy, "flp")
}

func array(ctx context.Context, x *Executor, p *ArrayParams) ([]string, error) {
	var out []string
	for i := 1; i < p.Count; i++ {
		names, err := x.transformEach(ctx, p.Targets, geom.Translation(p.Delta.V().MulScalar(float64(i))), true, "cp")
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

func arrayRot(ctx context.Context, x *Executor, p *ArrayRotParams) ([]string, error) {
	var out []string
	for i := 1; i < p.Count; i++ {
		t := geom.Rotation(p.Point.V(), p.Axis.V(), float64(i)*p.Angle*math.Pi/180)
		names, err := x.transformEach(ctx, p.Targets, t, true, "cp")
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

func arrayByPoints(ctx context.Context, x *Executor, p *ArrayByPointsParams) ([]string, error) {
	ids, err := x.targets(p.Points, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	pts := make([]geom.Vec3, len(ids))
	for i, id := range ids {
		if pts[i], err = x.model.Point(id); err != nil {
			return nil, err
		}
	}
	var deltas []geom.Vec3
	if p.Count == 1 {
		for _, pt := range pts[1:] {
			deltas = append(deltas, pt.Sub(pts[0]))
		}
	} else {
		step := pts[1].Sub(pts[0])
		for i := 1; i < p.Count; i++ {
			deltas = append(deltas, step.MulScalar(float64(i)))
		}
	}
	var out []string
	for _, d := range deltas {
		names, err := x.transformEach(ctx, p.Targets, geom.Translation(d), true, "cp")
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

// family is the prefix under which the far end of a sweep of ref is named.
// Bare references fall back to a prefix of the entity kind so the new name
// never reads as a reference.
func family(ref string, id topo.EntityID) string {
	if _, isRef := topo.ParseRef(ref); !isRef {
		return ref
	}
	switch id.Kind {
	case kernel.Vertex:
		return "pt"
	case kernel.Edge:
		return "ln"
	case kernel.Face:
		return "ps"
	}
	return "ex"
}

// protrude sweeps every target once per entry of sweeps. Each sweep starts
// from the far end of the previous one.
func (x *Executor) protrude(ctx context.Context, refs []string, sweeps int, prefix string,
	fn func(i int, id topo.EntityID, h kernel.Shape) (kernel.Protrusion, error)) ([]string, error) {
	ids, err := x.targets(refs)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := 0; i < sweeps; i++ {
		for j, id := range ids {
			cur := id
			res, err := x.model.Protrude(ctx, cur, func(h kernel.Shape) (kernel.Protrusion, error) {
				return fn(i, cur, h)
			})
			if err != nil {
				return nil, err
			}
			if !res.Last.IsZero() {
				out = append(out, x.name(res.Last, family(refs[j], id)))
				ids[j] = res.Last
			}
			if !res.Result.IsZero() {
				out = append(out, x.name(res.Result, prefix))
			}
		}
	}
	return out, nil
}

func (x *Executor) vertexPoints(id topo.EntityID) ([]geom.Vec3, error) {
	h, err := x.model.Get(id)
	if err != nil {
		return nil, err
	}
	k := x.model.Kernel()
	var pts []geom.Vec3
	for _, v := range kernel.Explore(k, h, kernel.Vertex) {
		p, err := k.Point(v)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return nil, errs.Construction("%v has no vertices", id)
	}
	return pts, nil
}

// direction is the unit extrusion direction of id for the given mode.
func (x *Executor) direction(p *ExtrudeParams, id topo.EntityID) (geom.Vec3, error) {
	var d geom.Vec3
	switch p.Mode {
	case "", ExtrudeVector:
		d = p.Dir.V()
	case ExtrudeNormal:
		if id.Kind != kernel.Face {
			return geom.Vec3{}, errs.Construction("normal extrusion needs a face, got %v", id)
		}
		pts, err := x.vertexPoints(id)
		if err != nil {
			return geom.Vec3{}, err
		}
		n, ok := geom.PolygonNormal(pts)
		if !ok {
			return geom.Vec3{}, errs.Construction("face %v has no normal", id)
		}
		d = n
	case ExtrudePolar, ExtrudeRadial:
		pts, err := x.vertexPoints(id)
		if err != nil {
			return geom.Vec3{}, err
		}
		c := geom.Centroid(pts)
		d = c.Sub(p.Center.V())
		if p.Mode == ExtrudeRadial {
			axis, ok := geom.Unit(p.Dir.V())
			if !ok {
				return geom.Vec3{}, errs.Construction("radial extrusion needs an axis")
			}
			d = d.Sub(axis.MulScalar(d.Dot(axis)))
		}
	}
	u, ok := geom.Unit(d)
	if !ok {
		return geom.Vec3{}, errs.Construction("zero extrusion direction for %v", id)
	}
	if p.Reverse {
		u = u.Neg()
	}
	return u, nil
}

func extrude(ctx context.Context, x *Executor, p *ExtrudeParams) ([]string, error) {
	k := x.model.Kernel()
	return x.protrude(ctx, p.Targets, len(p.Lengths), "ex", func(i int, id topo.EntityID, h kernel.Shape) (kernel.Protrusion, error) {
		d, err := x.direction(p, id)
		if err != nil {
			return kernel.Protrusion{}, err
		}
		return k.Extrude(h, d.MulScalar(p.Lengths[i]))
	})
}

func revolve(ctx context.Context, x *Executor, p *RevolveParams) ([]string, error) {
	k := x.model.Kernel()
	return x.protrude(ctx, p.Targets, len(p.Angles), "ex", func(i int, _ topo.EntityID, h kernel.Shape) (kernel.Protrusion, error) {
		return k.Revolve(h, p.Point.V(), p.Axis.V(), angle(p.Angles[i]))
	})
}

func sweep(ctx context.Context, x *Executor, p *SweepParams) ([]string, error) {
	k := x.model.Kernel()
	path, err := x.wire(p.Path)
	if err != nil {
		return nil, err
	}
	return x.protrude(ctx, p.Targets, 1, "swp", func(_ int, _ topo.EntityID, h kernel.Shape) (kernel.Protrusion, error) {
		return k.Sweep(h, path)
	})
}

// wire chains the referenced edges into an unregistered wire.
func (x *Executor) wire(refs []string) (kernel.Shape, error) {
	edges, err := x.oriented(refs, kernel.Edge)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, errs.Construction("no edges")
	}
	uses := make([]kernel.EdgeUse, len(edges))
	for i, o := range edges {
		h, err := x.model.Get(o.ID)
		if err != nil {
			return nil, err
		}
		uses[i] = kernel.EdgeUse{Edge: h, Reversed: o.Reversed}
	}
	return x.model.Kernel().MakeWire(uses)
}

func copyObjects(ctx context.Context, x *Executor, p *CopyParams) ([]string, error) {
	ids, err := x.targets(p.Targets)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range ids {
		nid, err := x.model.Copy(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, x.name(nid, "cp"))
	}
	return out, nil
}

func remove(ctx context.Context, x *Executor, p *RemoveParams) ([]string, error) {
	ids, err := x.targets(p.Targets)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errs.Construction("empty input objects")
	}
	for _, id := range ids {
		if err := x.model.Remove(ctx, id, p.Recursive); err != nil {
			return nil, err
		}
	}
	x.model.Sync(ctx, topo.SyncBoth)
	x.forget(p.Targets)
	return nil, nil
}

func (x *Executor) vertices(refs []string) ([]kernel.Shape, error) {
	ids, err := x.targets(refs, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	out := make([]kernel.Shape, len(ids))
	for i, id := range ids {
		if out[i], err = x.model.Get(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func createLine(ctx context.Context, x *Executor, p *CreateLineParams) ([]string, error) {
	verts, err := x.vertices(p.Points)
	if err != nil {
		return nil, err
	}
	k := x.model.Kernel()
	var out []string
	for i := 1; i < len(verts); i++ {
		e, err := k.MakeSegment(verts[i-1], verts[i])
		if err != nil {
			return nil, err
		}
		names, err := x.add(ctx, e, "ln")
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

func createSurface(ctx context.Context, x *Executor, p *CreateSurfaceParams) ([]string, error) {
	w, err := x.wire(p.Edges)
	if err != nil {
		return nil, err
	}
	face, err := x.model.Kernel().MakeFace(w)
	if err != nil {
		return nil, err
	}
	return x.add(ctx, face, "ps")
}

func pointCenter(ctx context.Context, x *Executor, p *PointCenterParams) ([]string, error) {
	first, err := x.targets(p.First, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	second, err := x.targets(p.Second, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	k := x.model.Kernel()
	var out []string
	for i := range first {
		a, err := x.model.Point(first[i])
		if err != nil {
			return nil, err
		}
		b, err := x.model.Point(second[i])
		if err != nil {
			return nil, err
		}
		v, err := k.MakeVertex(geom.Mid(a, b))
		if err != nil {
			return nil, err
		}
		names, err := x.add(ctx, v, "pt")
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

func createVolume(ctx context.Context, x *Executor, p *CreateVolumeParams) ([]string, error) {
	ids, err := x.targets(p.Faces, kernel.Face)
	if err != nil {
		return nil, err
	}
	id, err := x.model.Volume(ctx, ids)
	if err != nil {
		return nil, err
	}
	return []string{x.name(id, "vol")}, nil
}

func (f HealFlags) options() kernel.HealOptions {
	return kernel.HealOptions{
		Tolerance:      f.Tolerance,
		FixDegenerated: f.FixDegenerated,
		FixSmallEdges:  f.FixSmallEdges,
		FixSmallFaces:  f.FixSmallFaces,
		SewFaces:       f.SewFaces,
		MakeSolid:      f.MakeSolid,
	}
}

func heal(ctx context.Context, x *Executor, p *HealParams) ([]string, error) {
	ids, err := x.targets(p.Targets)
	if err != nil {
		return nil, err
	}
	healed, _, err := x.model.Heal(ctx, ids, p.Fix.options())
	if err != nil {
		return nil, err
	}
	return x.nameAll(healed, "hld"), nil
}
