package sequence

import (
	"context"
	"math"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
)

// angle converts degrees to radians; zero means a full turn.
func angle(deg float64) float64 {
	if deg == 0 {
		return 2 * math.Pi
	}
	return deg * math.Pi / 180
}

// add registers a freshly built shape and names its top-level entities.
func (x *Executor) add(ctx context.Context, h kernel.Shape, prefix string) ([]string, error) {
	ids, err := x.model.AddShape(ctx, h)
	if err != nil {
		return nil, err
	}
	return x.nameAll(ids, prefix), nil
}

func point(ctx context.Context, x *Executor, p *PointParams) ([]string, error) {
	k := x.model.Kernel()
	var out []string
	for _, pt := range p.Points {
		v, err := k.MakeVertex(pt.V())
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

// checkSpacing rejects coincident points and spacings too uneven to mesh.
func checkSpacing(pts []geom.Vec3) error {
	lo, hi := math.Inf(1), 0.0
	for i := 1; i < len(pts); i++ {
		d := pts[i].Sub(pts[i-1]).Length()
		lo, hi = math.Min(lo, d), math.Max(hi, d)
	}
	if lo == 0 {
		return errs.Construction("minimum distance between points is 0")
	}
	if hi > lo*1e4 {
		return errs.Construction("some points are too close (d_max > d_min*1e4)")
	}
	return nil
}

func line(ctx context.Context, x *Executor, p *LineParams) ([]string, error) {
	k := x.model.Kernel()
	pts := vecs(p.Points)
	if err := checkSpacing(pts); err != nil {
		return nil, err
	}
	if p.Spline {
		e, err := k.MakeCurve(pts, p.Periodic)
		if err != nil {
			return nil, err
		}
		return x.add(ctx, e, "sp")
	}

	verts := make([]kernel.Shape, len(pts))
	for i, pt := range pts {
		v, err := k.MakeVertex(pt)
		if err != nil {
			return nil, err
		}
		verts[i] = v
	}
	pairs := len(verts) - 1
	if p.Periodic {
		pairs++
	}
	var out []string
	for i := 0; i < pairs; i++ {
		e, err := k.MakeSegment(verts[i], verts[(i+1)%len(verts)])
		if err != nil {
			return nil, err
		}
		names, err := x.add(ctx, e, "ln")
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	if !p.Periodic {
		for _, v := range []kernel.Shape{verts[0], verts[len(verts)-1]} {
			if id, ok := x.model.Registries().IDOf(v); ok {
				out = append(out, x.name(id, "pt"))
			}
		}
	}
	return out, nil
}

func circle(ctx context.Context, x *Executor, p *CircleParams) ([]string, error) {
	k := x.model.Kernel()
	f, err := geom.NewFrame(p.Center.V(), p.Axis1.V(), p.Axis2.V())
	if err != nil {
		return nil, errs.Construction("circle axes: %v", err)
	}
	e, err := k.MakeCircle(f.Origin, f.Normal(), f.A1, p.Radius)
	if err != nil {
		return nil, err
	}
	if !p.Face {
		return x.add(ctx, e, "cl")
	}
	face, err := faceOf(k, []kernel.EdgeUse{{Edge: e}})
	if err != nil {
		return nil, err
	}
	return x.add(ctx, face, "ps")
}

func faceOf(k kernel.Kernel, uses []kernel.EdgeUse) (kernel.Shape, error) {
	w, err := k.MakeWire(uses)
	if err != nil {
		return nil, err
	}
	return k.MakeFace(w)
}

func rect(ctx context.Context, x *Executor, p *RectParams) ([]string, error) {
	k := x.model.Kernel()
	c, e1, e2 := p.Corner.V(), p.E1.V(), p.E2.V()
	corners := []geom.Vec3{c, c.Add(e1), c.Add(e1).Add(e2), c.Add(e2)}
	verts := make([]kernel.Shape, len(corners))
	for i, pt := range corners {
		v, err := k.MakeVertex(pt)
		if err != nil {
			return nil, err
		}
		verts[i] = v
	}
	uses := make([]kernel.EdgeUse, len(verts))
	for i := range verts {
		e, err := k.MakeSegment(verts[i], verts[(i+1)%len(verts)])
		if err != nil {
			return nil, err
		}
		uses[i] = kernel.EdgeUse{Edge: e}
	}
	face, err := faceOf(k, uses)
	if err != nil {
		return nil, err
	}
	return x.add(ctx, face, "rec")
}

func box(ctx context.Context, x *Executor, p *BoxParams) ([]string, error) {
	h, err := x.model.Kernel().MakeBox(p.Corner.V(), p.E1.V(), p.E2.V(), p.E3.V())
	if err != nil {
		return nil, err
	}
	return x.add(ctx, h, "bx")
}

func ball(ctx context.Context, x *Executor, p *BallParams) ([]string, error) {
	k := x.model.Kernel()
	r := math.Min(p.Radii[0], math.Min(p.Radii[1], p.Radii[2]))
	h, err := k.MakeSphere(p.Center.V(), r, angle(p.Angles[2]))
	if err != nil {
		return nil, err
	}
	if p.Radii[0] != p.Radii[1] || p.Radii[1] != p.Radii[2] {
		s := geom.Scaling(p.Center.V(), geom.V(p.Radii[0]/r, p.Radii[1]/r, p.Radii[2]/r))
		h, _, err = k.Transform(h, s)
		if err != nil {
			return nil, errs.KernelOperation("stretch ball: %v", err)
		}
	}
	return x.add(ctx, h, "bl")
}

func cylinder(ctx context.Context, x *Executor, p *CylinderParams) ([]string, error) {
	h, err := x.model.Kernel().MakeCylinder(p.Base.V(), p.Axis.V(), p.Radius, angle(p.Angle))
	if err != nil {
		return nil, err
	}
	return x.add(ctx, h, "cyl")
}

func cone(ctx context.Context, x *Executor, p *ConeParams) ([]string, error) {
	h, err := x.model.Kernel().MakeCone(p.Base.V(), p.Axis.V(), p.R1, p.R2, angle(p.Angle))
	if err != nil {
		return nil, err
	}
	return x.add(ctx, h, "cn")
}

func torus(ctx context.Context, x *Executor, p *TorusParams) ([]string, error) {
	axis := p.Axis.V()
	if axis.Length() == 0 {
		axis = geom.ZAxis
	}
	h, err := x.model.Kernel().MakeTorus(p.Center.V(), axis, p.R1, p.R2, angle(p.Angle))
	if err != nil {
		return nil, err
	}
	return x.add(ctx, h, "trs")
}

func wedge(ctx context.Context, x *Executor, p *WedgeParams) ([]string, error) {
	h, err := x.model.Kernel().MakeWedge(p.Corner.V(), p.Size.V(), p.LTX)
	if err != nil {
		return nil, err
	}
	return x.add(ctx, h, "wg")
}

func polygon(ctx context.Context, x *Executor, p *PolygonParams) ([]string, error) {
	k := x.model.Kernel()
	pts := vecs(p.Points)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if err := checkSpacing(append(pts, pts[0])); err != nil {
		return nil, err
	}
	verts := make([]kernel.Shape, len(pts))
	for i, pt := range pts {
		v, err := k.MakeVertex(pt)
		if err != nil {
			return nil, err
		}
		verts[i] = v
	}
	uses := make([]kernel.EdgeUse, len(verts))
	for i := range verts {
		e, err := k.MakeSegment(verts[i], verts[(i+1)%len(verts)])
		if err != nil {
			return nil, err
		}
		uses[i] = kernel.EdgeUse{Edge: e}
	}
	face, err := faceOf(k, uses)
	if err != nil {
		return nil, err
	}
	return x.add(ctx, face, "pol")
}

func circleBy3Points(ctx context.Context, x *Executor, p *CircleBy3PointsParams) ([]string, error) {
	ids, err := x.targets(p.Points, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	var pts [3]geom.Vec3
	for i, id := range ids {
		if pts[i], err = x.model.Point(id); err != nil {
			return nil, err
		}
	}
	center, normal, r, ok := geom.Circumcircle(pts[0], pts[1], pts[2])
	if !ok {
		return nil, errs.Construction("points %v are collinear", p.Points)
	}
	xdir, _ := geom.Unit(pts[0].Sub(center))
	k := x.model.Kernel()
	e, err := k.MakeCircle(center, normal, xdir, r)
	if err != nil {
		return nil, err
	}
	if !p.Face {
		return x.add(ctx, e, "cl")
	}
	face, err := faceOf(k, []kernel.EdgeUse{{Edge: e}})
	if err != nil {
		return nil, err
	}
	return x.add(ctx, face, "ps")
}
