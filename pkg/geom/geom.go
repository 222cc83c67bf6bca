// Package geom holds the small amount of linear algebra the build pipeline
// needs on top of sdfx: points, bounding boxes, composable transforms and the
// pose of a local working frame.
package geom

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Vec3 is a point or direction in model space.
type Vec3 = v3.Vec

// Unit axes.
var (
	XAxis = Vec3{X: 1}
	YAxis = Vec3{Y: 1}
	ZAxis = Vec3{Z: 1}
)

// V is shorthand for a Vec3 literal.
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// FromSlice converts a 3-element slice. Missing components are zero.
func FromSlice(s []float64) Vec3 {
	var v Vec3
	if len(s) > 0 {
		v.X = s[0]
	}
	if len(s) > 1 {
		v.Y = s[1]
	}
	if len(s) > 2 {
		v.Z = s[2]
	}
	return v
}

// Unit returns v scaled to length 1. ok is false for the zero vector.
func Unit(v Vec3) (u Vec3, ok bool) {
	l := v.Length()
	if l == 0 || math.IsNaN(l) {
		return v, false
	}
	return v.MulScalar(1 / l), true
}

// Near reports whether a and b are within tol of each other.
func Near(a, b Vec3, tol float64) bool {
	return a.Sub(b).Length() <= tol
}

// Mid returns the midpoint of a and b.
func Mid(a, b Vec3) Vec3 {
	return a.Add(b).MulScalar(0.5)
}

// Perpendicular returns some unit vector orthogonal to v.
func Perpendicular(v Vec3) Vec3 {
	p := v.Cross(XAxis)
	if p.Length() < 1e-9 {
		p = v.Cross(YAxis)
	}
	u, _ := Unit(p)
	return u
}

// PolygonNormal returns the unit normal of a closed polygon using Newell's
// method. ok is false when the polygon is degenerate.
func PolygonNormal(pts []Vec3) (Vec3, bool) {
	var n Vec3
	for i := range pts {
		a := pts[i]
		b := pts[(i+1)%len(pts)]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	return Unit(n)
}

// Centroid returns the arithmetic mean of pts.
func Centroid(pts []Vec3) Vec3 {
	var c Vec3
	if len(pts) == 0 {
		return c
	}
	for _, p := range pts {
		c = c.Add(p)
	}
	return c.MulScalar(1 / float64(len(pts)))
}

// Circumcircle returns the center, unit normal and radius of the circle
// through a, b and c. ok is false when the points are collinear.
func Circumcircle(a, b, c Vec3) (center, normal Vec3, radius float64, ok bool) {
	ab, ac := b.Sub(a), c.Sub(a)
	n := ab.Cross(ac)
	nn := n.Dot(n)
	if nn <= 1e-24*ab.Dot(ab)*ac.Dot(ac) {
		return Vec3{}, Vec3{}, 0, false
	}
	off := n.Cross(ab).MulScalar(ac.Dot(ac)).Add(ac.Cross(n).MulScalar(ab.Dot(ab))).MulScalar(1 / (2 * nn))
	normal, _ = Unit(n)
	return a.Add(off), normal, off.Length(), true
}

// BBox is an axis-aligned bounding box. The zero value is not empty; use
// EmptyBBox to start an accumulation.
type BBox struct {
	Min Vec3 `msgpack:"min" json:"min"`
	Max Vec3 `msgpack:"max" json:"max"`
}

// EmptyBBox returns a box that contains nothing.
func EmptyBBox() BBox {
	inf := math.Inf(1)
	return BBox{
		Min: Vec3{X: inf, Y: inf, Z: inf},
		Max: Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// BBoxOf returns the bounding box of pts.
func BBoxOf(pts ...Vec3) BBox {
	b := EmptyBBox()
	for _, p := range pts {
		b = b.Extend(p)
	}
	return b
}

// FromBox3 converts an sdfx box.
func FromBox3(b sdf.Box3) BBox {
	return BBox{Min: b.Min, Max: b.Max}
}

// Box3 converts to an sdfx box.
func (b BBox) Box3() sdf.Box3 {
	return sdf.Box3{Min: b.Min, Max: b.Max}
}

// IsEmpty reports whether the box contains no point.
func (b BBox) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend grows the box to contain p.
func (b BBox) Extend(p Vec3) BBox {
	b.Min = Vec3{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = Vec3{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	return b
}

// Union returns the smallest box containing b and o.
func (b BBox) Union(o BBox) BBox {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Intersect returns the overlap of b and o, which may be empty.
func (b BBox) Intersect(o BBox) BBox {
	return BBox{
		Min: Vec3{X: math.Max(b.Min.X, o.Min.X), Y: math.Max(b.Min.Y, o.Min.Y), Z: math.Max(b.Min.Z, o.Min.Z)},
		Max: Vec3{X: math.Min(b.Max.X, o.Max.X), Y: math.Min(b.Max.Y, o.Max.Y), Z: math.Min(b.Max.Z, o.Max.Z)},
	}
}

// Size returns the edge lengths of the box.
func (b BBox) Size() Vec3 {
	if b.IsEmpty() {
		return Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// MaxExtent returns the longest edge length.
func (b BBox) MaxExtent() float64 {
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}

// Diagonal returns the length of the box diagonal.
func (b BBox) Diagonal() float64 {
	return b.Size().Length()
}

// Center returns the box center.
func (b BBox) Center() Vec3 {
	return Mid(b.Min, b.Max)
}

// Enlarge pads the box by d on every side.
func (b BBox) Enlarge(d float64) BBox {
	pad := Vec3{X: d, Y: d, Z: d}
	return BBox{Min: b.Min.Sub(pad), Max: b.Max.Add(pad)}
}
