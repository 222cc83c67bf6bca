package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
)

// Angular step used to sample revolutions.
const revolveStep = math.Pi / 12

// sweeper generates the topology swept by a shape through a sequence of
// placements. steps[0] is the identity; the last step places the far image.
type sweeper struct {
	steps []geom.Transform
	// closed sweeps end on the input itself (full revolutions).
	closed bool
	top    *copier
	rails  map[*shape]*shape
	sides  map[*shape]*shape
}

func newSweeper(steps []geom.Transform, closed bool) *sweeper {
	return &sweeper{
		steps:  steps,
		closed: closed,
		top:    newCopier(steps[len(steps)-1]),
		rails:  make(map[*shape]*shape),
		sides:  make(map[*shape]*shape),
	}
}

func (sw *sweeper) image(s *shape) *shape {
	if sw.closed {
		return s
	}
	return sw.top.copy(s)
}

func (sw *sweeper) samples(p geom.Vec3) []geom.Vec3 {
	out := make([]geom.Vec3, len(sw.steps))
	for i, t := range sw.steps {
		out[i] = t.Apply(p)
	}
	return out
}

// rail is the edge traced by a vertex.
func (sw *sweeper) rail(v *shape) *shape {
	if r, ok := sw.rails[v]; ok {
		return r
	}
	r := newEdge(v, sw.image(v), sw.samples(v.pt))
	sw.rails[v] = r
	return r
}

// side is the face traced by an edge.
func (sw *sweeper) side(e *shape) *shape {
	if f, ok := sw.sides[e]; ok {
		return f
	}
	a, b := e.ends()
	top := sw.image(e)
	w := newWire(
		[]*shape{e, sw.rail(b), top, sw.rail(a)},
		[]bool{false, false, true, true},
	)
	var f *shape
	if len(sw.steps) == 2 && len(e.poly) == 2 {
		f = newFace(surfPlane, w)
	} else {
		f = newFace(surfGrid, w)
		f.grid = make([][]geom.Vec3, len(sw.steps))
		for i, t := range sw.steps {
			f.grid[i] = t.ApplyAll(e.poly)
		}
	}
	sw.sides[e] = f
	return f
}

// shell sweeps every edge of a wire.
func (sw *sweeper) shell(w *shape) *shape {
	sh := &shape{kind: kernel.Shell}
	for _, e := range w.children {
		sh.children = append(sh.children, sw.side(e))
	}
	return sh
}

// generic sweeps vertices, edges and wires. Faces are handled by callers.
func (sw *sweeper) generic(s *shape) (kernel.Protrusion, error) {
	switch s.kind {
	case kernel.Vertex:
		return kernel.Protrusion{Last: sw.image(s), Result: sw.rail(s)}, nil
	case kernel.Edge:
		return kernel.Protrusion{Last: sw.image(s), Result: sw.side(s)}, nil
	case kernel.Wire:
		return kernel.Protrusion{Last: sw.image(s), Result: sw.shell(s)}, nil
	}
	return kernel.Protrusion{}, kernel.ErrUnsupported
}

// prism extrudes a planar face into a solid with full boundary topology:
// the input face at the bottom, its translated image on top and one side
// face per boundary edge.
func (k *SdfxKernel) prism(f *shape, d geom.Vec3) (kernel.Protrusion, error) {
	if f.surf != surfPlane || len(f.children) == 0 {
		return kernel.Protrusion{}, errs.Construction("only planar faces can be extruded into prisms")
	}
	outer := f.outer().wirePoints()
	if n, ok := geom.PolygonNormal(outer); !ok || math.Abs(n.Dot(d)) < k.tol {
		return kernel.Protrusion{}, errs.Construction("extrusion direction lies in the face plane")
	}
	sw := newSweeper([]geom.Transform{geom.Identity(), geom.Translation(d)}, false)
	top := sw.image(f)
	shell := &shape{kind: kernel.Shell, children: []*shape{f}}
	for _, w := range f.children {
		for _, e := range w.children {
			shell.children = append(shell.children, sw.side(e))
		}
	}
	shell.children = append(shell.children, top)

	node := &csgNode{Op: csgPrism, Pts: outer, Dir: d}
	if len(f.children) > 1 {
		kids := []*csgNode{node}
		for _, hole := range f.children[1:] {
			kids = append(kids, &csgNode{Op: csgPrism, Pts: hole.wirePoints(), Dir: d})
		}
		node = combine(csgCut, kids...)
	}
	if _, err := node.sdf3(); err != nil {
		return kernel.Protrusion{}, errs.Construction("%v", err)
	}
	solid := &shape{kind: kernel.Solid, children: []*shape{shell}, csg: node}
	return kernel.Protrusion{Last: top, Result: solid}, nil
}

// Extrude sweeps s along d. Faces become prisms; compounds are extruded
// member by member.
func (k *SdfxKernel) Extrude(s kernel.Shape, d geom.Vec3) (kernel.Protrusion, error) {
	sh, err := unwrap(s)
	if err != nil {
		return kernel.Protrusion{}, err
	}
	if d.Length() < k.tol {
		return kernel.Protrusion{}, errs.Construction("zero extrusion vector")
	}
	return k.each(sh, func(x *shape) (kernel.Protrusion, error) {
		if x.kind == kernel.Face {
			return k.prism(x, d)
		}
		sw := newSweeper([]geom.Transform{geom.Identity(), geom.Translation(d)}, false)
		return sw.generic(x)
	})
}

// Revolve turns s by angle radians about the axis through point. Faces
// become implicit solids of revolution.
func (k *SdfxKernel) Revolve(s kernel.Shape, point, axis geom.Vec3, angle float64) (kernel.Protrusion, error) {
	sh, err := unwrap(s)
	if err != nil {
		return kernel.Protrusion{}, err
	}
	if _, ok := geom.Unit(axis); !ok || angle == 0 {
		return kernel.Protrusion{}, errs.Construction("invalid revolution axis %v angle %g", axis, angle)
	}
	full := math.Abs(angle) >= 2*math.Pi-1e-9
	n := int(math.Ceil(math.Abs(angle) / revolveStep))
	if n < 2 {
		n = 2
	}
	steps := make([]geom.Transform, n+1)
	for i := range steps {
		steps[i] = geom.Rotation(point, axis, angle*float64(i)/float64(n))
	}
	steps[0] = geom.Identity()
	return k.each(sh, func(x *shape) (kernel.Protrusion, error) {
		sw := newSweeper(steps, full)
		if x.kind != kernel.Face {
			return sw.generic(x)
		}
		node, err := revolveNode(x, point, axis, angle)
		if err != nil {
			return kernel.Protrusion{}, err
		}
		return kernel.Protrusion{Last: sw.image(x), Result: newImplicitSolid(node)}, nil
	})
}

// revolveNode expresses a planar face in the (radius, height) half plane of
// the revolution axis.
func revolveNode(f *shape, point, axis geom.Vec3, angle float64) (*csgNode, error) {
	local := geom.AlignZ(point, axis)
	inv := local.Inverse()
	pts := inv.ApplyAll(f.outer().wirePoints())
	profile := make([][2]float64, len(pts))
	for i, p := range pts {
		profile[i] = [2]float64{math.Hypot(p.X, p.Y), p.Z}
	}
	c := geom.Centroid(pts)
	start := math.Atan2(c.Y, c.X)
	if angle < 0 {
		start += angle
		angle = -angle
	}
	node := &csgNode{Op: csgRevolve, Profile: profile, Start: start, Angle: angle, Xform: local}
	if _, err := node.sdf3(); err != nil {
		return nil, errs.Construction("%v", err)
	}
	return node, nil
}

// Sweep translates s along the path edge or wire without twisting it.
func (k *SdfxKernel) Sweep(s kernel.Shape, path kernel.Shape) (kernel.Protrusion, error) {
	sh, err := unwrap(s)
	if err != nil {
		return kernel.Protrusion{}, err
	}
	ps, err := unwrapKind(path, kernel.Edge, kernel.Wire)
	if err != nil {
		return kernel.Protrusion{}, err
	}
	var pts []geom.Vec3
	if ps.kind == kernel.Edge {
		pts = ps.poly
	} else {
		pts = ps.wirePoints()
	}
	if len(pts) < 2 {
		return kernel.Protrusion{}, errs.Construction("sweep path has no length")
	}
	steps := make([]geom.Transform, len(pts))
	for i, p := range pts {
		steps[i] = geom.Translation(p.Sub(pts[0]))
	}
	steps[0] = geom.Identity()
	return k.each(sh, func(x *shape) (kernel.Protrusion, error) {
		sw := newSweeper(steps, false)
		if x.kind != kernel.Face {
			return sw.generic(x)
		}
		outer := x.outer().wirePoints()
		var kids []*csgNode
		for i := 1; i < len(pts); i++ {
			seg := pts[i].Sub(pts[i-1])
			if seg.Length() < k.tol {
				continue
			}
			base := geom.Translation(pts[i-1].Sub(pts[0])).ApplyAll(outer)
			kids = append(kids, &csgNode{Op: csgPrism, Pts: base, Dir: seg})
		}
		node := combine(csgUnion, kids...)
		if _, err := node.sdf3(); err != nil {
			return kernel.Protrusion{}, errs.Construction("%v", err)
		}
		return kernel.Protrusion{Last: sw.image(x), Result: newImplicitSolid(node)}, nil
	})
}

// each applies fn to s, or to every member when s is a compound.
func (k *SdfxKernel) each(s *shape, fn func(*shape) (kernel.Protrusion, error)) (kernel.Protrusion, error) {
	if s.kind != kernel.Compound {
		p, err := fn(s)
		if err != nil {
			return p, fmt.Errorf("%v: %w", s.kind, err)
		}
		return p, nil
	}
	last, result := &shape{kind: kernel.Compound}, &shape{kind: kernel.Compound}
	for _, m := range s.children {
		p, err := k.each(m, fn)
		if err != nil {
			return p, err
		}
		last.children = append(last.children, p.Last.(*shape))
		result.children = append(result.children, p.Result.(*shape))
	}
	return kernel.Protrusion{Last: last, Result: result}, nil
}
