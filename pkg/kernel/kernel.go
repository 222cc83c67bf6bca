// Package kernel defines the geometry kernel session contract.
// Implementations (sdfx) provide B-Rep construction, Boolean operations,
// transforms, meshing and serialization behind this interface. The rest of
// the system only ever sees opaque Shape handles, compared by identity.
package kernel

import (
	"fmt"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
)

// Kind is the topological kind of a shape.
type Kind uint8

const (
	Vertex Kind = iota
	Edge
	Wire
	Face
	Shell
	Solid
	Compound
)

var kindNames = [...]string{"vertex", "edge", "wire", "face", "shell", "solid", "compound"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Dim is the geometric dimension of the kind; -1 for compounds.
func (k Kind) Dim() int {
	switch k {
	case Vertex:
		return 0
	case Edge, Wire:
		return 1
	case Face, Shell:
		return 2
	case Solid:
		return 3
	}
	return -1
}

// Ref returns the single-letter prefix used for bare references to
// entities of this kind ("p3", "l3", "f3", "v3"), or "" when entities of
// the kind cannot be referenced directly.
func (k Kind) Ref() string {
	switch k {
	case Vertex:
		return "p"
	case Edge:
		return "l"
	case Face:
		return "f"
	case Solid:
		return "v"
	}
	return ""
}

// TopoKinds lists the registrable kinds from the highest to the lowest.
var TopoKinds = [...]Kind{Solid, Shell, Face, Wire, Edge, Vertex}

// Shape is an opaque kernel handle. Two handles denote the same entity only
// if they are equal as interface values.
type Shape interface {
	Kind() Kind
}

// EdgeUse is an edge together with the direction it is traversed in a wire.
type EdgeUse struct {
	Edge     Shape
	Reversed bool
}

// BooleanOp selects a Boolean operation.
type BooleanOp uint8

const (
	Fuse BooleanOp = iota + 1
	Cut
	Common
	Fragments
)

func (op BooleanOp) String() string {
	switch op {
	case Fuse:
		return "fuse"
	case Cut:
		return "cut"
	case Common:
		return "common"
	case Fragments:
		return "fragments"
	}
	return fmt.Sprintf("BooleanOp(%d)", uint8(op))
}

// BooleanOptions are forwarded to every Boolean call.
type BooleanOptions struct {
	RunParallel bool
	FuzzyValue  float64
}

// HealOptions control shape healing.
type HealOptions struct {
	Tolerance      float64
	FixDegenerated bool
	FixSmallEdges  bool
	FixSmallFaces  bool
	SewFaces       bool
	MakeSolid      bool
}

// Protrusion is the output of an extrusion, revolution or sweep.
// Last is the image of the input at the far end of the sweep and Result is
// the generated shape of one dimension higher.
type Protrusion struct {
	Last   Shape
	Result Shape
}

// Triangulation is the mesh attached to one face.
type Triangulation struct {
	Nodes     []geom.Vec3
	Normals   []geom.Vec3
	Triangles [][3]int
}

// ErrUnsupported is returned for operations a kernel does not implement for
// the given input.
var ErrUnsupported = fmt.Errorf("%w: unsupported", errs.ErrKernelOperation)

// Kernel is one modeling session. Implementations are not safe for
// concurrent use.
type Kernel interface {
	// Topology
	Children(s Shape) []Shape
	NewCompound() Shape
	AddToCompound(c, s Shape) error
	RemoveFromCompound(c, s Shape) error

	// Construction
	MakeVertex(p geom.Vec3) (Shape, error)
	MakeSegment(a, b Shape) (Shape, error)
	MakeCurve(pts []geom.Vec3, periodic bool) (Shape, error)
	MakeCircle(center, normal, xdir geom.Vec3, radius float64) (Shape, error)
	MakeWire(uses []EdgeUse) (Shape, error)
	MakeFace(wire Shape) (Shape, error)
	MakeBox(corner, e1, e2, e3 geom.Vec3) (Shape, error)
	MakeWedge(corner, size geom.Vec3, ltx float64) (Shape, error)
	MakeSphere(center geom.Vec3, radius, angle float64) (Shape, error)
	MakeCylinder(base, axis geom.Vec3, radius, angle float64) (Shape, error)
	MakeCone(base, axis geom.Vec3, r1, r2, angle float64) (Shape, error)
	MakeTorus(center, axis geom.Vec3, r1, r2, angle float64) (Shape, error)
	Extrude(s Shape, d geom.Vec3) (Protrusion, error)
	Revolve(s Shape, point, axis geom.Vec3, angle float64) (Protrusion, error)
	Sweep(s Shape, path Shape) (Protrusion, error)

	// Modification. The returned History maps input sub-shapes to their
	// images in the result.
	Boolean(op BooleanOp, args, tools []Shape, opts BooleanOptions) (Shape, *History, error)
	Unify(s Shape) (Shape, *History, error)
	Transform(s Shape, t geom.Transform) (Shape, *History, error)
	Copy(s Shape) (Shape, *History, error)
	Heal(s Shape, opts HealOptions) (Shape, *History, error)

	// Queries
	Point(v Shape) (geom.Vec3, error)
	BoundingBox(s Shape) (geom.BBox, error)

	// Tessellation. Mesh attaches triangulations and polygons to every
	// sub-shape of s; the accessors report false when none is attached.
	Mesh(s Shape, deflection float64) error
	Triangulation(face Shape) (*Triangulation, bool)
	Polygon3D(edge Shape) ([]geom.Vec3, bool)
	PolygonOnTriangulation(edge, face Shape) ([]int, bool)

	// Files
	Write(s Shape, path string) error
	Read(path string) (Shape, error)
	ImportCAD(path string, scale float64) (Shape, error)
}
