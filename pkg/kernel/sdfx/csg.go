package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// CSG node operators.
const (
	csgPrism    = "prism"
	csgSphere   = "sphere"
	csgCylinder = "cylinder"
	csgRevolve  = "revolve"
	csgTorus    = "torus"
	csgUnion    = "union"
	csgCut      = "cut"
	csgCommon   = "common"
)

// csgNode is the serializable description of an implicit solid. Leaves are
// primitives in a local frame; Xform places the node in its parent.
type csgNode struct {
	Op       string         `msgpack:"op"`
	Pts      []geom.Vec3    `msgpack:"pts,omitempty"`
	Dir      geom.Vec3      `msgpack:"dir"`
	Profile  [][2]float64   `msgpack:"profile,omitempty"`
	R1       float64        `msgpack:"r1,omitempty"`
	R2       float64        `msgpack:"r2,omitempty"`
	H        float64        `msgpack:"h,omitempty"`
	Start    float64        `msgpack:"start,omitempty"`
	Angle    float64        `msgpack:"angle,omitempty"` // 0 or >= 2pi is a full turn
	Xform    geom.Transform `msgpack:"xform"`
	Children []*csgNode     `msgpack:"children,omitempty"`

	cached sdf.SDF3
}

func (n *csgNode) partial() bool {
	return n.Angle > 0 && n.Angle < 2*math.Pi-1e-12
}

// placed returns a copy of n moved by t.
func (n *csgNode) placed(t geom.Transform) *csgNode {
	c := *n
	c.cached = nil
	c.Xform = n.Xform.Then(t)
	return &c
}

func combine(op string, kids ...*csgNode) *csgNode {
	return &csgNode{Op: op, Children: kids}
}

// sdf3 builds (once) the signed distance field of the node.
func (n *csgNode) sdf3() (sdf.SDF3, error) {
	if n.cached != nil {
		return n.cached, nil
	}
	var (
		s   sdf.SDF3
		err error
	)
	switch n.Op {
	case csgPrism:
		s, err = newPrismSDF(n.Pts, n.Dir)
	case csgSphere:
		s, err = sdf.Sphere3D(n.R1)
	case csgCylinder:
		s, err = sdf.Cylinder3D(n.H, n.R1, 0)
		if err == nil {
			s = sdf.Transform3D(s, sdf.Translate3d(v3.Vec{Z: n.H / 2}))
		}
	case csgRevolve:
		s, err = newRevolveSDF(n.Profile)
	case csgTorus:
		s = &torusSDF{major: n.R1, minor: n.R2}
	case csgUnion, csgCut, csgCommon:
		s, err = n.combined()
	default:
		err = fmt.Errorf("unknown csg operator %q", n.Op)
	}
	if err != nil {
		return nil, errs.KernelOperation("csg %s: %v", n.Op, err)
	}
	if n.partial() {
		s = sdf.Intersect3D(s, &sectorSDF{start: n.Start, angle: n.Angle, bb: s.BoundingBox()})
	}
	if !n.Xform.IsIdentity() {
		s = sdf.Transform3D(s, n.Xform.Matrix())
	}
	n.cached = s
	return s, nil
}

func (n *csgNode) combined() (sdf.SDF3, error) {
	if len(n.Children) == 0 {
		return nil, fmt.Errorf("%s without operands", n.Op)
	}
	kids := make([]sdf.SDF3, len(n.Children))
	for i, c := range n.Children {
		s, err := c.sdf3()
		if err != nil {
			return nil, err
		}
		kids[i] = s
	}
	switch n.Op {
	case csgUnion:
		if len(kids) == 1 {
			return kids[0], nil
		}
		return sdf.Union3D(kids...), nil
	case csgCut:
		if len(kids) == 1 {
			return kids[0], nil
		}
		tool := kids[1]
		if len(kids) > 2 {
			tool = sdf.Union3D(kids[1:]...)
		}
		return sdf.Difference3D(kids[0], tool), nil
	default:
		acc := kids[0]
		for _, k := range kids[1:] {
			acc = sdf.Intersect3D(acc, k)
		}
		return acc, nil
	}
}

// bbox is computed from the node parameters; it is exact for leaves and
// unions and conservative for cuts.
func (n *csgNode) bbox() geom.BBox {
	var b geom.BBox
	switch n.Op {
	case csgPrism:
		b = geom.BBoxOf(n.Pts...)
		for _, p := range n.Pts {
			b = b.Extend(p.Add(n.Dir))
		}
	case csgSphere:
		b = geom.BBox{Min: geom.V(-n.R1, -n.R1, -n.R1), Max: geom.V(n.R1, n.R1, n.R1)}
	case csgCylinder:
		b = geom.BBox{Min: geom.V(-n.R1, -n.R1, 0), Max: geom.V(n.R1, n.R1, n.H)}
	case csgRevolve:
		rmax, zmin, zmax := 0.0, math.Inf(1), math.Inf(-1)
		for _, p := range n.Profile {
			rmax = math.Max(rmax, math.Abs(p[0]))
			zmin = math.Min(zmin, p[1])
			zmax = math.Max(zmax, p[1])
		}
		b = geom.BBox{Min: geom.V(-rmax, -rmax, zmin), Max: geom.V(rmax, rmax, zmax)}
	case csgTorus:
		r := n.R1 + n.R2
		b = geom.BBox{Min: geom.V(-r, -r, -n.R2), Max: geom.V(r, r, n.R2)}
	case csgUnion:
		b = geom.EmptyBBox()
		for _, c := range n.Children {
			b = b.Union(c.bbox())
		}
	case csgCut:
		if len(n.Children) > 0 {
			b = n.Children[0].bbox()
		}
	case csgCommon:
		for i, c := range n.Children {
			if i == 0 {
				b = c.bbox()
			} else {
				b = b.Intersect(c.bbox())
			}
		}
	}
	if n.Xform.IsIdentity() || b.IsEmpty() {
		return b
	}
	out := geom.EmptyBBox()
	for _, c := range corners(b) {
		out = out.Extend(n.Xform.Apply(c))
	}
	return out
}

func corners(b geom.BBox) []geom.Vec3 {
	out := make([]geom.Vec3, 0, 8)
	for _, x := range []float64{b.Min.X, b.Max.X} {
		for _, y := range []float64{b.Min.Y, b.Max.Y} {
			for _, z := range []float64{b.Min.Z, b.Max.Z} {
				out = append(out, geom.V(x, y, z))
			}
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Custom SDF3 primitives
// ---------------------------------------------------------------------------

// prismSDF is a planar polygon swept along dir (not necessarily normal to
// the polygon).
type prismSDF struct {
	origin, n, u, v, dir geom.Vec3
	h                    float64 // dir . n
	poly                 [][2]float64
	bb                   sdf.Box3
}

func newPrismSDF(pts []geom.Vec3, dir geom.Vec3) (*prismSDF, error) {
	if len(pts) < 3 {
		return nil, fmt.Errorf("prism base needs 3 points, got %d", len(pts))
	}
	n, ok := geom.PolygonNormal(pts)
	if !ok {
		return nil, fmt.Errorf("degenerate prism base")
	}
	h := dir.Dot(n)
	if math.Abs(h) < 1e-12 {
		return nil, fmt.Errorf("prism direction lies in the base plane")
	}
	u, _ := geom.Unit(geom.Perpendicular(n))
	p := &prismSDF{origin: pts[0], n: n, u: u, v: n.Cross(u), dir: dir, h: h}
	for _, q := range pts {
		d := q.Sub(p.origin)
		p.poly = append(p.poly, [2]float64{d.Dot(p.u), d.Dot(p.v)})
	}
	b := geom.BBoxOf(pts...)
	for _, q := range pts {
		b = b.Extend(q.Add(dir))
	}
	p.bb = b.Box3()
	return p, nil
}

func (p *prismSDF) Evaluate(q v3.Vec) float64 {
	t := q.Sub(p.origin).Dot(p.n) / p.h
	base := q.Sub(p.dir.MulScalar(t)).Sub(p.origin)
	d2 := polygonSD([2]float64{base.Dot(p.u), base.Dot(p.v)}, p.poly)
	dh := math.Max(-t, t-1) * math.Abs(p.h)
	return extrudeDist(d2, dh)
}

func (p *prismSDF) BoundingBox() sdf.Box3 { return p.bb }

// revolveSDF turns a (radius, height) profile around the local Z axis.
type revolveSDF struct {
	profile [][2]float64
	bb      sdf.Box3
}

func newRevolveSDF(profile [][2]float64) (*revolveSDF, error) {
	if len(profile) < 3 {
		return nil, fmt.Errorf("revolve profile needs 3 points, got %d", len(profile))
	}
	n := &csgNode{Op: csgRevolve, Profile: profile}
	return &revolveSDF{profile: profile, bb: n.bbox().Box3()}, nil
}

func (r *revolveSDF) Evaluate(q v3.Vec) float64 {
	return polygonSD([2]float64{math.Hypot(q.X, q.Y), q.Z}, r.profile)
}

func (r *revolveSDF) BoundingBox() sdf.Box3 { return r.bb }

type torusSDF struct {
	major, minor float64
}

func (t *torusSDF) Evaluate(q v3.Vec) float64 {
	return math.Hypot(math.Hypot(q.X, q.Y)-t.major, q.Z) - t.minor
}

func (t *torusSDF) BoundingBox() sdf.Box3 {
	r := t.major + t.minor
	return sdf.Box3{Min: v3.Vec{X: -r, Y: -r, Z: -t.minor}, Max: v3.Vec{X: r, Y: r, Z: t.minor}}
}

// sectorSDF keeps the azimuth range [start, start+angle] around local Z.
type sectorSDF struct {
	start, angle float64
	bb           sdf.Box3
}

func (s *sectorSDF) Evaluate(q v3.Vec) float64 {
	a := math.Atan2(q.Y, q.X) - s.start
	for a < 0 {
		a += 2 * math.Pi
	}
	r := math.Hypot(q.X, q.Y)
	d0 := rayDist(q.X, q.Y, s.start)
	d1 := rayDist(q.X, q.Y, s.start+s.angle)
	d := math.Min(d0, d1)
	if a <= s.angle {
		if r == 0 {
			return 0
		}
		return -d
	}
	return d
}

func (s *sectorSDF) BoundingBox() sdf.Box3 { return s.bb }

// rayDist is the distance from (x, y) to the ray from the origin at angle a.
func rayDist(x, y, a float64) float64 {
	dx, dy := math.Cos(a), math.Sin(a)
	t := math.Max(0, x*dx+y*dy)
	return math.Hypot(x-t*dx, y-t*dy)
}

// polygonSD is the signed distance from p to a simple polygon, negative
// inside.
func polygonSD(p [2]float64, poly [][2]float64) float64 {
	n := len(poly)
	dx, dy := p[0]-poly[0][0], p[1]-poly[0][1]
	d := dx*dx + dy*dy
	s := 1.0
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		ex, ey := poly[j][0]-poly[i][0], poly[j][1]-poly[i][1]
		wx, wy := p[0]-poly[i][0], p[1]-poly[i][1]
		k := 0.0
		if ee := ex*ex + ey*ey; ee > 0 {
			k = math.Max(0, math.Min(1, (wx*ex+wy*ey)/ee))
		}
		bx, by := wx-ex*k, wy-ey*k
		d = math.Min(d, bx*bx+by*by)
		c1 := p[1] >= poly[i][1]
		c2 := p[1] < poly[j][1]
		c3 := ex*wy > ey*wx
		if (c1 && c2 && c3) || (!c1 && !c2 && !c3) {
			s = -s
		}
	}
	return s * math.Sqrt(d)
}

func extrudeDist(d2, dh float64) float64 {
	if d2 <= 0 && dh <= 0 {
		return math.Max(d2, dh)
	}
	return math.Hypot(math.Max(d2, 0), math.Max(dh, 0))
}
