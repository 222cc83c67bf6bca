package geom

import (
	"fmt"
	"math"
)

// Frame is a local working plane: local X runs along A1, local Y along A2
// and local Z along A1 x A2, all anchored at Origin.
type Frame struct {
	Origin Vec3 `msgpack:"origin" json:"origin"`
	A1     Vec3 `msgpack:"a1" json:"a1"`
	A2     Vec3 `msgpack:"a2" json:"a2"`
}

// NewFrame normalizes both axes. A2 is made orthogonal to A1.
func NewFrame(origin, a1, a2 Vec3) (Frame, error) {
	u1, ok := Unit(a1)
	if !ok {
		return Frame{}, fmt.Errorf("frame axis 1 is zero")
	}
	n := u1.Cross(a2)
	if n.Length() < 1e-12 {
		return Frame{}, fmt.Errorf("frame axes are parallel")
	}
	u2, _ := Unit(n.Cross(u1))
	return Frame{Origin: origin, A1: u1, A2: u2}, nil
}

// FrameByPoints builds a frame at c whose first axis points at p1 and whose
// second axis lies in the plane of c, p1 and p2. flip1 and flip2 reverse the
// corresponding axis.
func FrameByPoints(c, p1, p2 Vec3, flip1, flip2 bool) (Frame, error) {
	d1, ok := Unit(p1.Sub(c))
	if !ok {
		return Frame{}, fmt.Errorf("frame points coincide")
	}
	if flip1 {
		d1 = d1.Neg()
	}
	d3, ok := Unit(d1.Cross(p2.Sub(c)))
	if !ok {
		return Frame{}, fmt.Errorf("frame points are collinear")
	}
	d2, _ := Unit(d3.Cross(d1))
	if flip2 {
		d2 = d2.Neg()
	}
	return Frame{Origin: c, A1: d1, A2: d2}, nil
}

// Normal returns the local Z direction.
func (f Frame) Normal() Vec3 {
	n, _ := Unit(f.A1.Cross(f.A2))
	return n
}

// Pose returns the local-to-parent transform: a first rotation bringing
// the X axis onto A1, a second rotation about A1 bringing the rotated Y axis
// onto A2, then the translation to Origin.
func (f Frame) Pose() Transform {
	ax1, an1 := XAxis, 0.0
	ax := XAxis.Cross(f.A1)
	an := math.Atan2(ax.Length(), f.A1.Dot(XAxis))
	if ax.Dot(ax) == 0 {
		if an != 0 {
			ax, an = YAxis, math.Pi
		} else {
			ax, an = XAxis, 0
		}
	}
	if ax.Dot(ax) != 0 && an != 0 {
		ax1, an1 = ax, an
	}

	y2 := YAxis
	if an1 != 0 {
		y2 = Rotation(Vec3{}, ax1, an1).Apply(YAxis)
	}
	ax2 := f.A1
	an2 := math.Atan2(f.A2.Dot(f.A1.Cross(y2)), f.A2.Dot(y2))

	var t Transform
	if an1 != 0 {
		t = t.Then(Rotation(Vec3{}, ax1, an1))
	}
	if ax2.Dot(ax2) != 0 && an2 != 0 {
		t = t.Then(Rotation(Vec3{}, ax2, an2))
	}
	if f.Origin != (Vec3{}) {
		t = t.Then(Translation(f.Origin))
	}
	return t
}
