package sequence

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Opcode identifies the operation a step performs.
type Opcode uint8

const (
	OpInvalid Opcode = iota

	// primitives
	OpPoint
	OpLine
	OpCircle
	OpRect
	OpBox
	OpBall
	OpCylinder
	OpCone
	OpTorus
	OpWedge
	OpPolygon
	OpCircleBy3Points

	// Booleans
	OpUnion
	OpUnion2
	OpDifference
	OpIntersection
	OpFragments

	// transforms
	OpMove
	OpRotate
	OpScale
	OpFlip
	OpArray
	OpArrayRot
	OpArrayByPoints

	// protrusions
	OpExtrude
	OpRevolve
	OpSweep

	// frame brackets
	OpFrameStart
	OpFrameStartByPoints
	OpFrameEnd

	// imports
	OpBrepImport
	OpCADImport

	// edits
	OpCopy
	OpRemove
	OpCreateLine
	OpCreateSurface
	OpPointCenter
	OpHeal
	OpCreateVolume

	opCount
)

var opNames = [opCount]string{
	OpInvalid:            "Invalid",
	OpPoint:              "Point",
	OpLine:               "Line",
	OpCircle:             "Circle",
	OpRect:               "Rect",
	OpBox:                "Box",
	OpBall:               "Ball",
	OpCylinder:           "Cylinder",
	OpCone:               "Cone",
	OpTorus:              "Torus",
	OpWedge:              "Wedge",
	OpPolygon:            "Polygon",
	OpCircleBy3Points:    "CircleBy3Points",
	OpUnion:              "Union",
	OpUnion2:             "Union2",
	OpDifference:         "Difference",
	OpIntersection:       "Intersection",
	OpFragments:          "Fragments",
	OpMove:               "Move",
	OpRotate:             "Rotate",
	OpScale:              "Scale",
	OpFlip:               "Flip",
	OpArray:              "Array",
	OpArrayRot:           "ArrayRot",
	OpArrayByPoints:      "ArrayByPoints",
	OpExtrude:            "Extrude",
	OpRevolve:            "Revolve",
	OpSweep:              "Sweep",
	OpFrameStart:         "FrameStart",
	OpFrameStartByPoints: "FrameStartByPoints",
	OpFrameEnd:           "FrameEnd",
	OpBrepImport:         "BrepImport",
	OpCADImport:          "CADImport",
	OpCopy:               "Copy",
	OpRemove:             "Remove",
	OpCreateLine:         "CreateLine",
	OpCreateSurface:      "CreateSurface",
	OpPointCenter:        "PointCenter",
	OpHeal:               "Heal",
	OpCreateVolume:       "CreateVolume",
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, opCount)
	for op := OpPoint; op < opCount; op++ {
		m[opNames[op]] = op
	}
	return m
}()

func (op Opcode) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Valid reports whether op names a real operation.
func (op Opcode) Valid() bool { return op > OpInvalid && op < opCount }

// ParseOpcode returns the opcode with the given name.
func ParseOpcode(s string) (Opcode, error) {
	op, ok := opByName[s]
	if !ok {
		return OpInvalid, fmt.Errorf("unknown opcode %q", s)
	}
	return op, nil
}

// IsFrame reports whether op opens or closes a local frame.
func (op Opcode) IsFrame() bool {
	return op == OpFrameStart || op == OpFrameStartByPoints || op == OpFrameEnd
}

// Opens reports whether op opens a local frame.
func (op Opcode) Opens() bool {
	return op == OpFrameStart || op == OpFrameStartByPoints
}

func (op Opcode) MarshalYAML() (any, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("cannot encode %v", op)
	}
	return op.String(), nil
}

func (op *Opcode) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParseOpcode(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*op = v
	return nil
}
