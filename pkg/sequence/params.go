package sequence

import (
	"fmt"

	"github.com/chazu/brepseq/pkg/geom"
)

// Vec is a coordinate triple as written in scripts.
type Vec [3]float64

// V converts v to a geometry vector.
func (v Vec) V() geom.Vec3 { return geom.V(v[0], v[1], v[2]) }

func vecs(vs []Vec) []geom.Vec3 {
	out := make([]geom.Vec3, len(vs))
	for i, v := range vs {
		out[i] = v.V()
	}
	return out
}

// validator is implemented by params that can check themselves before
// anything reaches the kernel.
type validator interface {
	Validate() error
}

type PointParams struct {
	Points []Vec `yaml:"points"`
}

func (p *PointParams) Validate() error {
	if len(p.Points) == 0 {
		return fmt.Errorf("no points")
	}
	return nil
}

type LineParams struct {
	Points   []Vec `yaml:"points"`
	Spline   bool  `yaml:"spline,omitempty"`
	Periodic bool  `yaml:"periodic,omitempty"`
}

func (p *LineParams) Validate() error {
	if len(p.Points) < 2 {
		return fmt.Errorf("a line needs at least 2 points, got %d", len(p.Points))
	}
	return nil
}

type CircleParams struct {
	Center Vec     `yaml:"center"`
	Axis1  Vec     `yaml:"axis1"`
	Axis2  Vec     `yaml:"axis2"`
	Radius float64 `yaml:"radius"`
	Face   bool    `yaml:"face,omitempty"`
}

func (p *CircleParams) Validate() error {
	if p.Radius <= 0 {
		return fmt.Errorf("circle radius must be > 0")
	}
	return nil
}

type RectParams struct {
	Corner Vec `yaml:"corner"`
	E1     Vec `yaml:"e1"`
	E2     Vec `yaml:"e2"`
}

type BoxParams struct {
	Corner Vec `yaml:"corner"`
	E1     Vec `yaml:"e1"`
	E2     Vec `yaml:"e2"`
	E3     Vec `yaml:"e3"`
}

// BallParams describes an ellipsoid. Angles are in degrees; only the
// azimuth (the third angle) cuts the ball in the reference kernel.
type BallParams struct {
	Center Vec        `yaml:"center"`
	Radii  [3]float64 `yaml:"radii"`
	Angles [3]float64 `yaml:"angles"`
}

func (p *BallParams) Validate() error {
	for _, r := range p.Radii {
		if r <= 0 {
			return fmt.Errorf("ball radii must be > 0, got %v", p.Radii)
		}
	}
	return nil
}

type CylinderParams struct {
	Base   Vec     `yaml:"base"`
	Axis   Vec     `yaml:"axis"`
	Radius float64 `yaml:"radius"`
	Angle  float64 `yaml:"angle"`
}

type ConeParams struct {
	Base  Vec     `yaml:"base"`
	Axis  Vec     `yaml:"axis"`
	R1    float64 `yaml:"r1"`
	R2    float64 `yaml:"r2"`
	Angle float64 `yaml:"angle"`
}

type TorusParams struct {
	Center Vec     `yaml:"center"`
	Axis   Vec     `yaml:"axis,omitempty"`
	R1     float64 `yaml:"r1"`
	R2     float64 `yaml:"r2"`
	Angle  float64 `yaml:"angle"`
}

type WedgeParams struct {
	Corner Vec     `yaml:"corner"`
	Size   Vec     `yaml:"size"`
	LTX    float64 `yaml:"ltx"`
}

// PolygonParams trace a closed planar polygon. A last point repeating the
// first is dropped.
type PolygonParams struct {
	Points []Vec `yaml:"points"`
}

func (p *PolygonParams) Validate() error {
	pts := p.Points
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return fmt.Errorf("a polygon needs at least 3 distinct points, got %d", len(pts))
	}
	return nil
}

// CircleBy3PointsParams pass a circle through three existing points.
type CircleBy3PointsParams struct {
	Points []string `yaml:"points"`
	Face   bool     `yaml:"face,omitempty"`
}

func (p *CircleBy3PointsParams) Validate() error {
	if len(p.Points) != 3 {
		return fmt.Errorf("a circle needs 3 points, got %d", len(p.Points))
	}
	return nil
}

// BooleanParams are shared by Union, Union2, Difference, Intersection and
// Fragments.
type BooleanParams struct {
	Operands    []string `yaml:"operands"`
	Tools       []string `yaml:"tools,omitempty"`
	DeleteInput bool     `yaml:"delete_input,omitempty"`
	DeleteTool  bool     `yaml:"delete_tool,omitempty"`
	KeepHighest bool     `yaml:"keep_highest,omitempty"`
}

func (p *BooleanParams) Validate() error {
	if len(p.Operands) == 0 {
		return fmt.Errorf("no operands")
	}
	return nil
}

type MoveParams struct {
	Targets []string `yaml:"targets"`
	Delta   Vec      `yaml:"delta"`
	Copy    bool     `yaml:"copy,omitempty"`
}

type RotateParams struct {
	Targets []string `yaml:"targets"`
	Point   Vec      `yaml:"point"`
	Axis    Vec      `yaml:"axis"`
	Angle   float64  `yaml:"angle"`
	Copy    bool     `yaml:"copy,omitempty"`
}

type ScaleParams struct {
	Targets []string `yaml:"targets"`
	Center  Vec      `yaml:"center"`
	Factors Vec      `yaml:"factors"`
	Copy    bool     `yaml:"copy,omitempty"`
}

func (p *ScaleParams) Validate() error {
	if p.Factors[0] == 0 || p.Factors[1] == 0 || p.Factors[2] == 0 {
		return fmt.Errorf("scale factors must be non-zero, got %v", p.Factors)
	}
	return nil
}

// FlipParams mirror across the plane ax+by+cz+d = 0.
type FlipParams struct {
	Targets []string   `yaml:"targets"`
	Plane   [4]float64 `yaml:"plane"`
	Copy    bool       `yaml:"copy,omitempty"`
}

type ArrayParams struct {
	Targets []string `yaml:"targets"`
	Count   int      `yaml:"count"`
	Delta   Vec      `yaml:"delta"`
}

type ArrayRotParams struct {
	Targets []string `yaml:"targets"`
	Count   int      `yaml:"count"`
	Point   Vec      `yaml:"point"`
	Axis    Vec      `yaml:"axis"`
	Angle   float64  `yaml:"angle"`
}

// ArrayByPointsParams copy targets by offsets read from points. With a
// count of 1 there is one copy per point after the first, offset from the
// first. Otherwise count-1 copies step by the offset from the first point
// to the second.
type ArrayByPointsParams struct {
	Targets []string `yaml:"targets"`
	Count   int      `yaml:"count"`
	Points  []string `yaml:"points"`
}

func (p *ArrayByPointsParams) Validate() error {
	if len(p.Points) < 2 {
		return fmt.Errorf("need at least 2 reference points, got %d", len(p.Points))
	}
	if p.Count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", p.Count)
	}
	return nil
}

// Extrude direction modes.
const (
	ExtrudeVector = "vector"
	ExtrudeNormal = "normal"
	ExtrudePolar  = "polar"
	ExtrudeRadial = "radial"
)

// ExtrudeParams sweep targets along straight lines. Each length adds one
// more extrusion starting from the far end of the previous one.
type ExtrudeParams struct {
	Targets []string  `yaml:"targets"`
	Mode    string    `yaml:"mode,omitempty"`
	Dir     Vec       `yaml:"dir,omitempty"`
	Center  Vec       `yaml:"center,omitempty"`
	Reverse bool      `yaml:"reverse,omitempty"`
	Lengths []float64 `yaml:"lengths"`
}

func (p *ExtrudeParams) Validate() error {
	switch p.Mode {
	case "", ExtrudeVector, ExtrudeNormal, ExtrudePolar, ExtrudeRadial:
	default:
		return fmt.Errorf("unknown extrude mode %q", p.Mode)
	}
	if len(p.Lengths) == 0 {
		return fmt.Errorf("no extrusion length")
	}
	return nil
}

type RevolveParams struct {
	Targets []string  `yaml:"targets"`
	Point   Vec       `yaml:"point"`
	Axis    Vec       `yaml:"axis"`
	Angles  []float64 `yaml:"angles"`
}

func (p *RevolveParams) Validate() error {
	if len(p.Angles) == 0 {
		return fmt.Errorf("no revolution angle")
	}
	return nil
}

type SweepParams struct {
	Targets []string `yaml:"targets"`
	Path    []string `yaml:"path"`
}

type FrameParams struct {
	Origin Vec `yaml:"origin"`
	Axis1  Vec `yaml:"axis1"`
	Axis2  Vec `yaml:"axis2"`
}

// FrameByPointsParams place a frame at Center with its first axis towards
// Point1 and its plane through Point2.
type FrameByPointsParams struct {
	Center string `yaml:"center"`
	Point1 string `yaml:"point1"`
	Point2 string `yaml:"point2"`
	Flip1  bool   `yaml:"flip1,omitempty"`
	Flip2  bool   `yaml:"flip2,omitempty"`
}

type FrameEndParams struct{}

// HealFlags select the repairs applied to imported or existing shapes.
type HealFlags struct {
	Tolerance      float64 `yaml:"tolerance,omitempty"`
	FixDegenerated bool    `yaml:"fix_degenerated,omitempty"`
	FixSmallEdges  bool    `yaml:"fix_small_edges,omitempty"`
	FixSmallFaces  bool    `yaml:"fix_small_faces,omitempty"`
	SewFaces       bool    `yaml:"sew_faces,omitempty"`
	MakeSolid      bool    `yaml:"make_solid,omitempty"`
}

type ImportParams struct {
	Path           string    `yaml:"path"`
	Heal           bool      `yaml:"heal,omitempty"`
	Fix            HealFlags `yaml:"fix,omitempty"`
	HighestDimOnly bool      `yaml:"highest_dim_only,omitempty"`
	// Unit of the file coordinates; CAD imports only.
	Unit string `yaml:"unit,omitempty"`
}

func (p *ImportParams) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("no file")
	}
	if _, ok := unitScale[p.Unit]; !ok {
		return fmt.Errorf("unknown unit %q", p.Unit)
	}
	return nil
}

// unitScale converts file units to model units (meters).
var unitScale = map[string]float64{
	"":   1,
	"m":  1,
	"cm": 1e-2,
	"mm": 1e-3,
	"um": 1e-6,
	"in": 0.0254,
	"ft": 0.3048,
}

type CopyParams struct {
	Targets []string `yaml:"targets"`
}

type RemoveParams struct {
	Targets   []string `yaml:"targets"`
	Recursive bool     `yaml:"recursive,omitempty"`
}

func (p *RemoveParams) Validate() error {
	if len(p.Targets) == 0 {
		return fmt.Errorf("nothing to remove")
	}
	return nil
}

type CreateLineParams struct {
	Points []string `yaml:"points"`
}

func (p *CreateLineParams) Validate() error {
	if len(p.Points) < 2 {
		return fmt.Errorf("a line needs at least 2 points, got %d", len(p.Points))
	}
	return nil
}

type CreateSurfaceParams struct {
	Edges []string `yaml:"edges"`
}

type PointCenterParams struct {
	First  []string `yaml:"first"`
	Second []string `yaml:"second"`
}

func (p *PointCenterParams) Validate() error {
	if len(p.First) != len(p.Second) {
		return fmt.Errorf("%d first points for %d second points", len(p.First), len(p.Second))
	}
	return nil
}

// CreateVolumeParams close faces into a solid.
type CreateVolumeParams struct {
	Faces []string `yaml:"faces"`
}

func (p *CreateVolumeParams) Validate() error {
	if len(p.Faces) < 2 {
		return fmt.Errorf("a volume needs at least 2 faces, got %d", len(p.Faces))
	}
	return nil
}

// HealParams repair top-level entities; no targets means all of them.
type HealParams struct {
	Targets []string  `yaml:"targets,omitempty"`
	Fix     HealFlags `yaml:"fix,omitempty"`
}
