package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/chazu/brepseq/pkg/brep"
	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/kernel/sdfx"
	"github.com/chazu/brepseq/pkg/sequence"
	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(box :e1 (vec3 1 0 0))`,
			expect: `(box "__kw_e1" (vec3 1 0 0))`,
		},
		{
			name:   "multiple keywords",
			input:  `(cylinder :radius 2 :angle 90)`,
			expect: `(cylinder "__kw_radius" 2 "__kw_angle" 90)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(frame-start :origin o)`,
			expect: `(frame_start "__kw_origin" o)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:delete-input`,
			expect: `"__kw_delete-input"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

func TestBuiltinNames(t *testing.T) {
	tests := []struct {
		op   sequence.Opcode
		want string
	}{
		{sequence.OpBox, "box"},
		{sequence.OpUnion2, "union2"},
		{sequence.OpFrameStartByPoints, "frame_start_by_points"},
		{sequence.OpCADImport, "cad_import"},
		{sequence.OpBrepImport, "brep_import"},
		{sequence.OpArray, "linear_array"},
		{sequence.OpCreateSurface, "create_surface"},
		{sequence.OpCircleBy3Points, "circle_by_3_points"},
		{sequence.OpArrayByPoints, "array_by_points"},
		{sequence.OpCreateVolume, "create_volume"},
	}
	for _, tt := range tests {
		if got := builtinName(tt.op); got != tt.want {
			t.Errorf("builtinName(%v) = %q, want %q", tt.op, got, tt.want)
		}
	}

	seen := make(map[string]sequence.Opcode)
	for op := sequence.OpPoint; op.Valid(); op++ {
		n := builtinName(op)
		if prev, dup := seen[n]; dup {
			t.Errorf("%v and %v share builtin %q", prev, op, n)
		}
		seen[n] = op
	}
}

func mustEvaluate(t *testing.T, src string) *sequence.Script {
	t.Helper()
	sc, evalErrs, err := NewEngine().Evaluate(src)
	if err != nil {
		t.Fatalf("fatal: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return sc
}

// ---------------------------------------------------------------------------
// Step builtins
// ---------------------------------------------------------------------------

func TestBoxStep(t *testing.T) {
	sc := mustEvaluate(t, `(box "base" :corner (vec3 0 0 -1) :e1 (vec3 2 0 0) :e2 (vec3 0 3 0) :e3 (vec3 0 0 4))`)
	if sc.Len() != 1 {
		t.Fatalf("got %d steps, want 1", sc.Len())
	}
	s := sc.Steps[0]
	if s.Name != "base" || s.Op != sequence.OpBox {
		t.Errorf("step = %s %v", s.Name, s.Op)
	}
	want := &sequence.BoxParams{
		Corner: sequence.Vec{0, 0, -1},
		E1:     sequence.Vec{2, 0, 0},
		E2:     sequence.Vec{0, 3, 0},
		E3:     sequence.Vec{0, 0, 4},
	}
	if diff := cmp.Diff(want, s.Params); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}
}

func TestKeywordsAndLists(t *testing.T) {
	sc := mustEvaluate(t, `
(union :operands (list "bx1") :tools ["bx2"] :delete-input true :delete-tool)
(extrude "ex" :targets (list "rec1") :mode :normal :lengths (list 1 2.5))
`)
	if sc.Len() != 2 {
		t.Fatalf("got %d steps, want 2", sc.Len())
	}
	if sc.Steps[0].Name != "union1" {
		t.Errorf("unnamed step called %q, want union1", sc.Steps[0].Name)
	}
	wantU := &sequence.BooleanParams{Operands: []string{"bx1"}, Tools: []string{"bx2"}, DeleteInput: true, DeleteTool: true}
	if diff := cmp.Diff(wantU, sc.Steps[0].Params); diff != "" {
		t.Errorf("union params (-want +got):\n%s", diff)
	}
	wantE := &sequence.ExtrudeParams{Targets: []string{"rec1"}, Mode: sequence.ExtrudeNormal, Lengths: []float64{1, 2.5}}
	if diff := cmp.Diff(wantE, sc.Steps[1].Params); diff != "" {
		t.Errorf("extrude params (-want +got):\n%s", diff)
	}
}

func TestPointReferenceSteps(t *testing.T) {
	sc := mustEvaluate(t, `
(circle_by_3_points "c" :points (list "pt1" "pt2" "pt3") :face true)
(array_by_points :targets (list "bx1") :count 1 :points (list "pt1" "pt2"))
(create_volume :faces (list "pol1" "pol2" "pol3" "pol4"))
`)
	want := []any{
		&sequence.CircleBy3PointsParams{Points: []string{"pt1", "pt2", "pt3"}, Face: true},
		&sequence.ArrayByPointsParams{Targets: []string{"bx1"}, Count: 1, Points: []string{"pt1", "pt2"}},
		&sequence.CreateVolumeParams{Faces: []string{"pol1", "pol2", "pol3", "pol4"}},
	}
	if sc.Len() != len(want) {
		t.Fatalf("got %d steps, want %d", sc.Len(), len(want))
	}
	for i, w := range want {
		if diff := cmp.Diff(w, sc.Steps[i].Params); diff != "" {
			t.Errorf("step %d params (-want +got):\n%s", i, diff)
		}
	}
}

func TestVariableReference(t *testing.T) {
	sc := mustEvaluate(t, `
(def up (vec3 0 0 1))
(def h 2)
(def base (rect :e1 (vec3 1 0 0) :e2 (vec3 0 1 0)))
(extrude :targets (list "rec1") :dir up :lengths (list h))
`)
	if sc.Len() != 2 {
		t.Fatalf("got %d steps, want 2", sc.Len())
	}
	if sc.Steps[0].Name != "rect1" {
		t.Errorf("rect step called %q", sc.Steps[0].Name)
	}
	p := sc.Steps[1].Params.(*sequence.ExtrudeParams)
	if p.Dir != (sequence.Vec{0, 0, 1}) || p.Lengths[0] != 2 {
		t.Errorf("extrude params = %+v", p)
	}
}

func TestStepErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown keyword", `(box :colour "red")`, "colour"},
		{"wrong type", `(cylinder :radius "big")`, "cylinder"},
		{"params check", `(ball :radii (list 1 0 1))`, "radii"},
		{"extra positional", `(box "a" "b")`, "at most a step name"},
		{"bad vec3", `(vec3 1 2)`, "exactly 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, evalErrs, err := NewEngine().Evaluate(tt.src)
			if err != nil {
				t.Fatalf("fatal: %v", err)
			}
			if sc != nil {
				t.Fatal("expected nil script on error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected an eval error")
			}
			if !strings.Contains(evalErrs[0].Message, tt.want) {
				t.Errorf("message %q does not mention %q", evalErrs[0].Message, tt.want)
			}
		})
	}
}

func TestCheckReportsFindings(t *testing.T) {
	res, err := NewEngine().Check(`
(box "a" :e1 (vec3 1 0 0) :e2 (vec3 0 1 0) :e3 (vec3 0 0 1))
(box "a" :e1 (vec3 1 0 0) :e2 (vec3 0 1 0) :e3 (vec3 0 0 1))
(frame-start :axis1 (vec3 1 0 0) :axis2 (vec3 0 1 0))
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Message, "already used") {
		t.Errorf("errors = %v", res.Errors)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0].Message, "left open") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestArithmeticStillWorks(t *testing.T) {
	sc := mustEvaluate(t, `(def w (* 2 1.5)) (box :e1 (vec3 w 0 0) :e2 (vec3 0 1 0) :e3 (vec3 0 0 1))`)
	if got := sc.Steps[0].Params.(*sequence.BoxParams).E1[0]; got != 3 {
		t.Errorf("e1.x = %v, want 3", got)
	}
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestTwoBoxUnionRuns(t *testing.T) {
	sc := mustEvaluate(t, `
;; two overlapping unit boxes
(def x (vec3 1 0 0))
(def y (vec3 0 1 0))
(def z (vec3 0 0 1))
(box "b1" :e1 x :e2 y :e3 z)
(box "b2" :corner (vec3 0.5 0 0) :e1 x :e2 y :e3 z)
(union "u" :operands (list "bx1") :tools (list "bx2") :delete-input true :delete-tool true)
`)
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	x := sequence.New(brep.New(sdfx.New(), brep.DefaultOptions()))
	out, err := x.Run(ctx, sc, sequence.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]string{"uni1"}, out.Results["u"].NewObjects); diff != "" {
		t.Errorf("new objects (-want +got):\n%s", diff)
	}
	if n := out.Registry.Count(kernel.Solid); n != 1 {
		t.Errorf("%d solids, want 1", n)
	}
}
