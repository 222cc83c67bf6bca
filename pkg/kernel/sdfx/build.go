package sdfx

import (
	"math"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
)

// MakeVertex creates a vertex at p.
func (k *SdfxKernel) MakeVertex(p geom.Vec3) (kernel.Shape, error) {
	return newVertex(p), nil
}

// MakeSegment creates a straight edge between two existing vertices.
func (k *SdfxKernel) MakeSegment(a, b kernel.Shape) (kernel.Shape, error) {
	va, err := unwrapKind(a, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	vb, err := unwrapKind(b, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	if geom.Near(va.pt, vb.pt, k.tol) {
		return nil, errs.Construction("segment endpoints coincide at %v", va.pt)
	}
	return newEdge(va, vb, []geom.Vec3{va.pt, vb.pt}), nil
}

// MakeCurve creates a smooth edge through pts (Catmull-Rom). A periodic
// curve closes on its first point and has a single vertex.
func (k *SdfxKernel) MakeCurve(pts []geom.Vec3, periodic bool) (kernel.Shape, error) {
	if len(pts) < 2 {
		return nil, errs.Construction("curve needs at least 2 points, got %d", len(pts))
	}
	if periodic && len(pts) < 3 {
		return nil, errs.Construction("periodic curve needs at least 3 points")
	}
	poly := catmullRom(pts, periodic, 8)
	a := newVertex(poly[0])
	if periodic {
		return newEdge(a, a, poly), nil
	}
	return newEdge(a, newVertex(poly[len(poly)-1]), poly), nil
}

// MakeCircle creates a closed circular edge starting at center + radius*xdir.
func (k *SdfxKernel) MakeCircle(center, normal, xdir geom.Vec3, radius float64) (kernel.Shape, error) {
	if radius <= 0 {
		return nil, errs.Construction("circle radius must be positive, got %g", radius)
	}
	n, ok := geom.Unit(normal)
	if !ok {
		return nil, errs.Construction("circle normal is zero")
	}
	x, ok := geom.Unit(xdir.Sub(n.MulScalar(xdir.Dot(n))))
	if !ok {
		x, _ = geom.Unit(geom.Perpendicular(n))
	}
	y := n.Cross(x)
	poly := make([]geom.Vec3, circleSegments+1)
	for i := 0; i < circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		poly[i] = center.Add(x.MulScalar(radius * math.Cos(a))).Add(y.MulScalar(radius * math.Sin(a)))
	}
	poly[circleSegments] = poly[0]
	v := newVertex(poly[0])
	return newEdge(v, v, poly), nil
}

// MakeWire chains edge uses into a wire. Consecutive uses must connect.
func (k *SdfxKernel) MakeWire(uses []kernel.EdgeUse) (kernel.Shape, error) {
	if len(uses) == 0 {
		return nil, errs.Construction("wire needs at least one edge")
	}
	edges := make([]*shape, len(uses))
	rev := make([]bool, len(uses))
	for i, u := range uses {
		e, err := unwrapKind(u.Edge, kernel.Edge)
		if err != nil {
			return nil, err
		}
		edges[i], rev[i] = e, u.Reversed
	}
	for i := 1; i < len(edges); i++ {
		_, end := oriented(edges[i-1], rev[i-1])
		start, _ := oriented(edges[i], rev[i])
		if end != start && !geom.Near(end.pt, start.pt, k.tol) {
			return nil, errs.Construction("edges %d and %d of the wire do not connect", i-1, i)
		}
	}
	return newWire(edges, rev), nil
}

func oriented(e *shape, reversed bool) (start, end *shape) {
	a, b := e.ends()
	if reversed {
		return b, a
	}
	return a, b
}

// MakeFace creates a planar face bounded by a closed wire.
func (k *SdfxKernel) MakeFace(wire kernel.Shape) (kernel.Shape, error) {
	w, err := unwrapKind(wire, kernel.Wire)
	if err != nil {
		return nil, err
	}
	first, _ := oriented(w.children[0], w.reversed[0])
	_, last := oriented(w.children[len(w.children)-1], w.reversed[len(w.children)-1])
	if first != last && !geom.Near(first.pt, last.pt, k.tol) {
		return nil, errs.Construction("face boundary is not closed")
	}
	pts := w.wirePoints()
	n, ok := geom.PolygonNormal(pts)
	if !ok || len(pts) < 3 {
		return nil, errs.Construction("face boundary is degenerate")
	}
	scale := geom.BBoxOf(pts...).Diagonal()
	for _, p := range pts {
		if math.Abs(p.Sub(pts[0]).Dot(n)) > 1e-6*math.Max(scale, 1) {
			return nil, errs.Construction("face boundary is not planar")
		}
	}
	return newFace(surfPlane, w), nil
}

// polygonFace builds a planar face with straight edges through pts.
func polygonFace(pts []geom.Vec3) *shape {
	vs := make([]*shape, len(pts))
	for i, p := range pts {
		vs[i] = newVertex(p)
	}
	edges := make([]*shape, len(pts))
	for i := range pts {
		a, b := vs[i], vs[(i+1)%len(pts)]
		edges[i] = newEdge(a, b, []geom.Vec3{a.pt, b.pt})
	}
	return newFace(surfPlane, newWire(edges, make([]bool, len(edges))))
}

// MakeBox creates the parallelepiped spanned by e1, e2, e3 from corner.
func (k *SdfxKernel) MakeBox(corner, e1, e2, e3 geom.Vec3) (kernel.Shape, error) {
	if math.Abs(e1.Cross(e2).Dot(e3)) < k.tol {
		return nil, errs.Construction("box edges are coplanar")
	}
	base := polygonFace([]geom.Vec3{corner, corner.Add(e1), corner.Add(e1).Add(e2), corner.Add(e2)})
	p, err := k.prism(base, e3)
	if err != nil {
		return nil, err
	}
	return p.Result, nil
}

// MakeWedge creates a right angular wedge: a trapezoid in the XY plane with
// bottom length size.X and top length ltx, extruded by size.Z.
func (k *SdfxKernel) MakeWedge(corner, size geom.Vec3, ltx float64) (kernel.Shape, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 || ltx < 0 {
		return nil, errs.Construction("invalid wedge size %v ltx %g", size, ltx)
	}
	pts := []geom.Vec3{corner, corner.Add(geom.V(size.X, 0, 0)), corner.Add(geom.V(ltx, size.Y, 0)), corner.Add(geom.V(0, size.Y, 0))}
	if ltx == 0 {
		pts = []geom.Vec3{pts[0], pts[1], pts[3]}
	}
	p, err := k.prism(polygonFace(pts), geom.V(0, 0, size.Z))
	if err != nil {
		return nil, err
	}
	return p.Result, nil
}

// MakeSphere creates a sphere; angle < 2pi keeps a sector around Z.
func (k *SdfxKernel) MakeSphere(center geom.Vec3, radius, angle float64) (kernel.Shape, error) {
	if radius <= 0 {
		return nil, errs.Construction("sphere radius must be positive, got %g", radius)
	}
	n := &csgNode{Op: csgSphere, R1: radius, Angle: angle, Xform: geom.Translation(center)}
	return k.implicit(n)
}

// MakeCylinder creates a cylinder of height |axis| along axis from base.
func (k *SdfxKernel) MakeCylinder(base, axis geom.Vec3, radius, angle float64) (kernel.Shape, error) {
	h := axis.Length()
	if radius <= 0 || h <= 0 {
		return nil, errs.Construction("invalid cylinder radius %g height %g", radius, h)
	}
	n := &csgNode{Op: csgCylinder, R1: radius, H: h, Angle: angle, Xform: geom.AlignZ(base, axis)}
	return k.implicit(n)
}

// MakeCone creates a truncated cone with radius r1 at base and r2 at
// base+axis. Either radius may be zero.
func (k *SdfxKernel) MakeCone(base, axis geom.Vec3, r1, r2, angle float64) (kernel.Shape, error) {
	h := axis.Length()
	if r1 < 0 || r2 < 0 || r1+r2 == 0 || h <= 0 {
		return nil, errs.Construction("invalid cone radii %g, %g height %g", r1, r2, h)
	}
	profile := [][2]float64{{0, 0}, {r1, 0}, {r2, h}, {0, h}}
	if r1 == 0 {
		profile = [][2]float64{{0, 0}, {r2, h}, {0, h}}
	} else if r2 == 0 {
		profile = [][2]float64{{0, 0}, {r1, 0}, {0, h}}
	}
	n := &csgNode{Op: csgRevolve, Profile: profile, Angle: angle, Xform: geom.AlignZ(base, axis)}
	return k.implicit(n)
}

// MakeTorus creates a torus around axis through center.
func (k *SdfxKernel) MakeTorus(center, axis geom.Vec3, r1, r2, angle float64) (kernel.Shape, error) {
	if r2 <= 0 || r1 <= r2 {
		return nil, errs.Construction("invalid torus radii %g, %g", r1, r2)
	}
	n := &csgNode{Op: csgTorus, R1: r1, R2: r2, Angle: angle, Xform: geom.AlignZ(center, axis)}
	return k.implicit(n)
}

func (k *SdfxKernel) implicit(n *csgNode) (kernel.Shape, error) {
	if _, err := n.sdf3(); err != nil {
		return nil, errs.Construction("%v", err)
	}
	return newImplicitSolid(n), nil
}

// catmullRom samples a uniform Catmull-Rom spline through pts with
// seg samples per span.
func catmullRom(pts []geom.Vec3, closed bool, seg int) []geom.Vec3 {
	if len(pts) == 2 && !closed {
		return []geom.Vec3{pts[0], pts[1]}
	}
	n := len(pts)
	at := func(i int) geom.Vec3 {
		if closed {
			return pts[((i%n)+n)%n]
		}
		if i < 0 {
			return pts[0].MulScalar(2).Sub(pts[1])
		}
		if i >= n {
			return pts[n-1].MulScalar(2).Sub(pts[n-2])
		}
		return pts[i]
	}
	spans := n - 1
	if closed {
		spans = n
	}
	out := make([]geom.Vec3, 0, spans*seg+1)
	for i := 0; i < spans; i++ {
		p0, p1, p2, p3 := at(i-1), at(i), at(i+1), at(i+2)
		for j := 0; j < seg; j++ {
			t := float64(j) / float64(seg)
			t2, t3 := t*t, t*t*t
			c0 := -0.5*t3 + t2 - 0.5*t
			c1 := 1.5*t3 - 2.5*t2 + 1
			c2 := -1.5*t3 + 2*t2 + 0.5*t
			c3 := 0.5*t3 - 0.5*t2
			out = append(out, p0.MulScalar(c0).Add(p1.MulScalar(c1)).Add(p2.MulScalar(c2)).Add(p3.MulScalar(c3)))
		}
	}
	if closed {
		out = append(out, out[0])
	} else {
		out = append(out, pts[n-1])
	}
	return out
}
