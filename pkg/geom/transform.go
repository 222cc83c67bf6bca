package geom

import (
	"fmt"
	"math"
	"strings"

	"github.com/deadsy/sdfx/sdf"
)

// OpKind identifies one elementary transform.
type OpKind uint8

const (
	OpTranslate OpKind = iota + 1
	OpRotate
	OpScale
	OpMirror
)

func (k OpKind) String() string {
	switch k {
	case OpTranslate:
		return "translate"
	case OpRotate:
		return "rotate"
	case OpScale:
		return "scale"
	case OpMirror:
		return "mirror"
	}
	return fmt.Sprintf("OpKind(%d)", k)
}

// Op is one elementary transform. Vec holds the translation, rotation axis,
// scale factors or mirror-plane normal; Point holds the rotation or scale
// center, or a point on the mirror plane.
type Op struct {
	Kind  OpKind  `msgpack:"k" json:"kind"`
	Vec   Vec3    `msgpack:"v" json:"vec"`
	Point Vec3    `msgpack:"p" json:"point"`
	Angle float64 `msgpack:"a,omitempty" json:"angle,omitempty"`
}

// Transform is an ordered list of elementary ops; the first op is applied
// first. It stays serializable, unlike sdf.M44 whose fields are private.
type Transform struct {
	Ops []Op `msgpack:"ops" json:"ops"`
}

// Identity returns the empty transform.
func Identity() Transform { return Transform{} }

// Translation moves by d.
func Translation(d Vec3) Transform {
	return Transform{Ops: []Op{{Kind: OpTranslate, Vec: d}}}
}

// Rotation turns by angle radians (right hand rule) about the axis through
// point with direction axis.
func Rotation(point, axis Vec3, angle float64) Transform {
	return Transform{Ops: []Op{{Kind: OpRotate, Vec: axis, Point: point, Angle: angle}}}
}

// Scaling scales by per-axis factors about center.
func Scaling(center, factors Vec3) Transform {
	return Transform{Ops: []Op{{Kind: OpScale, Vec: factors, Point: center}}}
}

// Mirror reflects through the plane a*x + b*y + c*z + d = 0.
func Mirror(a, b, c, d float64) Transform {
	n := V(a, b, c)
	p := math.Max(n.Dot(n), 1e-12)
	return Transform{Ops: []Op{{Kind: OpMirror, Vec: n, Point: n.MulScalar(-d / p)}}}
}

// Then returns t followed by u.
func (t Transform) Then(u Transform) Transform {
	ops := make([]Op, 0, len(t.Ops)+len(u.Ops))
	ops = append(ops, t.Ops...)
	ops = append(ops, u.Ops...)
	return Transform{Ops: ops}
}

// IsIdentity reports whether t has no ops.
func (t Transform) IsIdentity() bool { return len(t.Ops) == 0 }

// IsRigid reports whether t preserves lengths. Mirrors count as rigid.
func (t Transform) IsRigid() bool {
	for _, op := range t.Ops {
		if op.Kind == OpScale {
			f := op.Vec
			if math.Abs(math.Abs(f.X)-1) > 1e-12 || math.Abs(math.Abs(f.Y)-1) > 1e-12 || math.Abs(math.Abs(f.Z)-1) > 1e-12 {
				return false
			}
		}
	}
	return true
}

// Matrix composes t into an sdfx matrix.
func (t Transform) Matrix() sdf.M44 {
	m := identity()
	for _, op := range t.Ops {
		m = op.matrix().Mul(m)
	}
	return m
}

// Apply maps a point.
func (t Transform) Apply(p Vec3) Vec3 {
	if t.IsIdentity() {
		return p
	}
	return t.Matrix().MulPosition(p)
}

// ApplyAll maps every point of pts into a new slice.
func (t Transform) ApplyAll(pts []Vec3) []Vec3 {
	out := make([]Vec3, len(pts))
	if t.IsIdentity() {
		copy(out, pts)
		return out
	}
	m := t.Matrix()
	for i, p := range pts {
		out[i] = m.MulPosition(p)
	}
	return out
}

// ApplyVector maps a direction (translation ignored).
func (t Transform) ApplyVector(v Vec3) Vec3 {
	m := t.Matrix()
	return m.MulPosition(v).Sub(m.MulPosition(Vec3{}))
}

// Inverse returns the transform undoing t.
func (t Transform) Inverse() Transform {
	ops := make([]Op, 0, len(t.Ops))
	for i := len(t.Ops) - 1; i >= 0; i-- {
		op := t.Ops[i]
		switch op.Kind {
		case OpTranslate:
			op.Vec = op.Vec.Neg()
		case OpRotate:
			op.Angle = -op.Angle
		case OpScale:
			op.Vec = Vec3{X: 1 / op.Vec.X, Y: 1 / op.Vec.Y, Z: 1 / op.Vec.Z}
		}
		ops = append(ops, op)
	}
	return Transform{Ops: ops}
}

func (t Transform) String() string {
	if t.IsIdentity() {
		return "identity"
	}
	parts := make([]string, len(t.Ops))
	for i, op := range t.Ops {
		switch op.Kind {
		case OpTranslate:
			parts[i] = fmt.Sprintf("translate(%g,%g,%g)", op.Vec.X, op.Vec.Y, op.Vec.Z)
		case OpRotate:
			parts[i] = fmt.Sprintf("rotate(%g,%g,%g;%g)", op.Vec.X, op.Vec.Y, op.Vec.Z, op.Angle)
		case OpScale:
			parts[i] = fmt.Sprintf("scale(%g,%g,%g)", op.Vec.X, op.Vec.Y, op.Vec.Z)
		case OpMirror:
			parts[i] = fmt.Sprintf("mirror(%g,%g,%g)", op.Vec.X, op.Vec.Y, op.Vec.Z)
		}
	}
	return strings.Join(parts, " then ")
}

func (op Op) matrix() sdf.M44 {
	switch op.Kind {
	case OpTranslate:
		return sdf.Translate3d(op.Vec)
	case OpRotate:
		axis, ok := Unit(op.Vec)
		if !ok || op.Angle == 0 {
			return identity()
		}
		return about(op.Point, sdf.Rotate3d(axis, op.Angle))
	case OpScale:
		return about(op.Point, sdf.Scale3d(op.Vec))
	case OpMirror:
		n, ok := Unit(op.Vec)
		if !ok {
			return identity()
		}
		flip := rotateOnto(ZAxis, n).Mul(sdf.Scale3d(V(1, 1, -1))).Mul(rotateOnto(n, ZAxis))
		return about(op.Point, flip)
	}
	return identity()
}

func identity() sdf.M44 {
	return sdf.Translate3d(Vec3{})
}

// about conjugates m so it acts around p instead of the origin.
func about(p Vec3, m sdf.M44) sdf.M44 {
	if p == (Vec3{}) {
		return m
	}
	return sdf.Translate3d(p).Mul(m).Mul(sdf.Translate3d(p.Neg()))
}

// rotateOnto returns the rotation taking unit vector from onto unit vector to.
func rotateOnto(from, to Vec3) sdf.M44 {
	axis := from.Cross(to)
	s := axis.Length()
	c := from.Dot(to)
	if s < 1e-12 {
		if c > 0 {
			return identity()
		}
		return sdf.Rotate3d(Perpendicular(from), math.Pi)
	}
	return sdf.Rotate3d(axis.MulScalar(1/s), math.Atan2(s, c))
}

// AlignZ returns the transform that maps the +Z axis onto dir and the
// origin onto base. Primitives built along Z are placed with it.
func AlignZ(base, dir Vec3) Transform {
	d, ok := Unit(dir)
	if !ok {
		return Translation(base)
	}
	var t Transform
	axis := ZAxis.Cross(d)
	s := axis.Length()
	c := ZAxis.Dot(d)
	switch {
	case s >= 1e-12:
		t = Rotation(Vec3{}, axis, math.Atan2(s, c))
	case c < 0:
		t = Rotation(Vec3{}, XAxis, math.Pi)
	}
	if base != (Vec3{}) {
		t = t.Then(Translation(base))
	}
	return t
}
