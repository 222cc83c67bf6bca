package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/brepseq/pkg/brep"
	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/kernel/sdfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T) (*Executor, context.Context) {
	t.Helper()
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.Discard())
	return New(brep.New(sdfx.New(), brep.DefaultOptions())), ctx
}

// script builds a script from name/op/params triples and fails the test on
// malformed steps.
func script(t *testing.T, steps ...Step) *Script {
	t.Helper()
	sc := &Script{}
	for _, s := range steps {
		_, err := sc.Append(s.Name, s.Op, s.Params)
		require.NoError(t, err, "step %s", s.Name)
	}
	return sc
}

func unitBox(name string, x float64) Step {
	return Step{Name: name, Op: OpBox, Params: &BoxParams{
		Corner: Vec{x, 0, 0}, E1: Vec{1, 0, 0}, E2: Vec{0, 1, 0}, E3: Vec{0, 0, 1},
	}}
}

func segment(name string, a, b Vec) Step {
	return Step{Name: name, Op: OpLine, Params: &LineParams{Points: []Vec{a, b}}}
}

func TestLineNamingNeverReusesSuffix(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		segment("line1", Vec{0, 0, 0}, Vec{1, 0, 0}),
		segment("line2", Vec{0, 1, 0}, Vec{1, 1, 0}),
		segment("line3", Vec{0, 2, 0}, Vec{1, 2, 0}),
		Step{Name: "del", Op: OpRemove, Params: &RemoveParams{Targets: []string{"ln2"}, Recursive: true}},
		segment("line4", Vec{0, 3, 0}, Vec{1, 3, 0}),
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"ln1", "pt1", "pt2"}, out.Results["line1"].NewObjects)
	assert.Equal(t, "ln2", out.Results["line2"].NewObjects[0])
	assert.Equal(t, "ln3", out.Results["line3"].NewObjects[0])
	assert.Equal(t, "ln4", out.Results["line4"].NewObjects[0])
	assert.NotContains(t, out.Results["del"].ObjectKeys, "ln2")

	_, ok := x.Names().Lookup("ln2")
	assert.False(t, ok)
	assert.Len(t, x.Model().Registries().IDs(kernel.Edge), 3)
}

func TestUnionOfTwoBoxes(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		unitBox("b1", 0),
		unitBox("b2", 0.5),
		Step{Name: "u", Op: OpUnion, Params: &BooleanParams{
			Operands: []string{"bx1"}, Tools: []string{"bx2"},
			DeleteInput: true, DeleteTool: true, KeepHighest: true,
		}},
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)

	require.Equal(t, []string{"uni1"}, out.Results["u"].NewObjects)
	for _, n := range []string{"bx1", "bx2"} {
		_, ok := x.Names().Lookup(n)
		assert.False(t, ok, "%s must be gone", n)
	}
	assert.Equal(t, 1, out.Registry.Count(kernel.Solid))

	id, ok := x.Names().Lookup("uni1")
	require.True(t, ok)
	assert.Equal(t, kernel.Solid, id.Kind)
	box, err := x.Model().BoundingBox(id)
	require.NoError(t, err)
	assert.InDelta(t, 0, box.Min.X, 1e-9)
	assert.InDelta(t, 1.5, box.Max.X, 1e-9)
	assert.InDelta(t, 1, box.Max.Y, 1e-9)
	assert.InDelta(t, 1, box.Max.Z, 1e-9)
}

func TestFrameRectangleLandsOnPlane(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		Step{Name: "wp", Op: OpFrameStart, Params: &FrameParams{Origin: Vec{0, 0, 1}, Axis1: Vec{1, 0, 0}, Axis2: Vec{0, 1, 0}}},
		Step{Name: "r", Op: OpRect, Params: &RectParams{E1: Vec{1, 0, 0}, E2: Vec{0, 1, 0}}},
		Step{Name: "end", Op: OpFrameEnd, Params: &FrameEndParams{}},
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, out.OpenFrames)
	assert.Equal(t, []string{"rec1"}, out.Results["r"].NewObjects)
	assert.Equal(t, []string{"rec1"}, out.Results["end"].NewObjects)

	id, ok := x.Names().Lookup("rec1")
	require.True(t, ok)
	assert.Equal(t, 0, id.Group)
	h, err := x.Model().Get(id)
	require.NoError(t, err)
	k := x.Model().Kernel()
	verts := kernel.Explore(k, h, kernel.Vertex)
	require.Len(t, verts, 4)
	for _, v := range verts {
		p, err := k.Point(v)
		require.NoError(t, err)
		assert.InDelta(t, 1, p.Z, 1e-9)
	}
}

func TestFrameNamesDoNotCollide(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		unitBox("outer", 0),
		Step{Name: "wp", Op: OpFrameStart, Params: &FrameParams{Origin: Vec{0, 0, 5}, Axis1: Vec{1, 0, 0}, Axis2: Vec{0, 1, 0}}},
		unitBox("inner", 0),
		Step{Name: "end", Op: OpFrameEnd, Params: &FrameEndParams{}},
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"bx2"}, out.Results["inner"].NewObjects)
	assert.Equal(t, []string{"bx1", "bx2"}, out.Results["end"].ObjectKeys)

	a, _ := x.Names().Lookup("bx1")
	b, _ := x.Names().Lookup("bx2")
	assert.NotEqual(t, a, b)
	box, err := x.Model().BoundingBox(b)
	require.NoError(t, err)
	assert.InDelta(t, 5, box.Min.Z, 1e-9)
}

func TestFrameByPoints(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		Step{Name: "pts", Op: OpPoint, Params: &PointParams{Points: []Vec{{0, 0, 2}, {1, 0, 2}, {0, 1, 2}}}},
		Step{Name: "wp", Op: OpFrameStartByPoints, Params: &FrameByPointsParams{Center: "pt1", Point1: "pt2", Point2: "pt3"}},
		Step{Name: "p", Op: OpPoint, Params: &PointParams{Points: []Vec{{0.5, 0.5, 0}}}},
		Step{Name: "end", Op: OpFrameEnd, Params: &FrameEndParams{}},
	)
	_, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	id, ok := x.Names().Lookup("pt4")
	require.True(t, ok)
	p, err := x.Model().Point(id)
	require.NoError(t, err)
	assert.InDelta(t, 2, p.Z, 1e-9)
	assert.InDelta(t, 0.5, p.X, 1e-9)
}

func TestContinuation(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t, unitBox("b1", 0))
	_, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	first, _ := x.Names().Lookup("bx1")

	_, err = sc.Append("b2", OpBox, unitBox("", 3).Params)
	require.NoError(t, err)
	var progress []string
	out, err := x.Run(ctx, sc, RunOptions{StartIndex: 1, Progress: func(m string) { progress = append(progress, m) }})
	require.NoError(t, err)

	assert.Equal(t, []string{"processing b2"}, progress, "only the new suffix runs")
	assert.Equal(t, 2, out.Registry.Count(kernel.Solid))
	again, _ := x.Names().Lookup("bx1")
	assert.Equal(t, first, again)
	assert.Equal(t, 2, out.Next)

	_, err = x.Run(ctx, sc, RunOptions{StartIndex: 5})
	assert.ErrorIs(t, err, errs.ErrConstruction)
}

func TestConsumedEntityDropsEveryName(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t, unitBox("b1", 0), unitBox("b2", 0.5))
	_, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	id, ok := x.Names().Lookup("bx1")
	require.True(t, ok)
	x.Names().Bind("base", id)

	_, err = sc.Append("u", OpUnion, &BooleanParams{
		Operands: []string{"bx1"}, Tools: []string{"bx2"}, DeleteInput: true, DeleteTool: true,
	})
	require.NoError(t, err)
	out, err := x.Run(ctx, sc, RunOptions{StartIndex: 2})
	require.NoError(t, err)

	assert.NotContains(t, out.Results["u"].ObjectKeys, "base", "an alias of a consumed solid goes with it")
	_, ok = x.Names().Lookup("base")
	assert.False(t, ok)
}

func TestStopAtStep(t *testing.T) {
	sc := script(t, unitBox("b1", 0), unitBox("b2", 3), unitBox("b3", 6))

	t.Run("before", func(t *testing.T) {
		x, ctx := newExecutor(t)
		out, err := x.Run(ctx, sc, RunOptions{Stop: &StopAt{Name: "b2"}})
		require.NoError(t, err)
		assert.True(t, out.Stopped)
		assert.Equal(t, 1, out.StopIndex)
		assert.Equal(t, 1, out.Registry.Count(kernel.Solid))
	})
	t.Run("after", func(t *testing.T) {
		x, ctx := newExecutor(t)
		out, err := x.Run(ctx, sc, RunOptions{Stop: &StopAt{Index: 1, After: true}})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Registry.Count(kernel.Solid))
		assert.Equal(t, 2, out.Next)

		// the halt point is a valid resume point
		out, err = x.Run(ctx, sc, RunOptions{StartIndex: out.Next})
		require.NoError(t, err)
		assert.Equal(t, 3, out.Registry.Count(kernel.Solid))
	})
}

func TestStopInsideFrame(t *testing.T) {
	sc := script(t,
		Step{Name: "wp", Op: OpFrameStart, Params: &FrameParams{Origin: Vec{0, 0, 1}, Axis1: Vec{1, 0, 0}, Axis2: Vec{0, 1, 0}}},
		Step{Name: "r", Op: OpRect, Params: &RectParams{E1: Vec{1, 0, 0}, E2: Vec{0, 1, 0}}},
		Step{Name: "b", Op: OpBox, Params: unitBox("", 0).Params},
		Step{Name: "end", Op: OpFrameEnd, Params: &FrameEndParams{}},
	)

	t.Run("closes", func(t *testing.T) {
		x, ctx := newExecutor(t)
		out, err := x.Run(ctx, sc, RunOptions{Stop: &StopAt{Name: "r", After: true}})
		require.NoError(t, err)
		assert.Equal(t, 0, out.OpenFrames)
		_, ok := x.Names().Lookup("rec1")
		assert.True(t, ok)
		_, err = x.Run(ctx, sc, RunOptions{StartIndex: out.Next})
		assert.Error(t, err, "a sealed state cannot continue")
	})
	t.Run("keeps open", func(t *testing.T) {
		x, ctx := newExecutor(t)
		out, err := x.Run(ctx, sc, RunOptions{Stop: &StopAt{Name: "r", After: true, KeepFrameOpen: true}})
		require.NoError(t, err)
		assert.Equal(t, 1, out.OpenFrames)
		out, err = x.Run(ctx, sc, RunOptions{StartIndex: out.Next})
		require.NoError(t, err)
		assert.Equal(t, 0, out.OpenFrames)
		assert.Equal(t, 1, out.Registry.Count(kernel.Solid))
	})
}

func TestFailingStepReportsIndex(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		unitBox("b1", 0),
		Step{Name: "mv", Op: OpMove, Params: &MoveParams{Targets: []string{"nope"}, Delta: Vec{1, 0, 0}}},
	)
	_, err := x.Run(ctx, sc, RunOptions{})
	var se *errs.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, "mv", se.Name)
	assert.ErrorIs(t, err, errs.ErrConstruction)
	assert.False(t, errs.IsFatal(err))

	// fix the step and resume from it
	sc.Steps[1].Params = &MoveParams{Targets: []string{"bx1"}, Delta: Vec{1, 0, 0}}
	_, err = x.Run(ctx, sc, RunOptions{StartIndex: se.Index})
	require.NoError(t, err)
	id, _ := x.Names().Lookup("bx1")
	box, err := x.Model().BoundingBox(id)
	require.NoError(t, err)
	assert.InDelta(t, 1, box.Min.X, 1e-9)
}

func TestTransforms(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		unitBox("b", 0),
		Step{Name: "cp", Op: OpMove, Params: &MoveParams{Targets: []string{"bx1"}, Delta: Vec{2, 0, 0}, Copy: true}},
		Step{Name: "arr", Op: OpArray, Params: &ArrayParams{Targets: []string{"bx1"}, Count: 3, Delta: Vec{0, 2, 0}}},
		Step{Name: "rot", Op: OpRotate, Params: &RotateParams{Targets: []string{"mv1"}, Axis: Vec{0, 0, 1}, Angle: 90}},
		Step{Name: "flip", Op: OpFlip, Params: &FlipParams{Targets: []string{"bx1"}, Plane: [4]float64{0, 0, 1, 0}, Copy: true}},
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"mv1"}, out.Results["cp"].NewObjects)
	assert.Equal(t, []string{"cp1", "cp2"}, out.Results["arr"].NewObjects)
	assert.Empty(t, out.Results["rot"].NewObjects)
	assert.Equal(t, []string{"flp1"}, out.Results["flip"].NewObjects)
	assert.Equal(t, 5, out.Registry.Count(kernel.Solid))

	id, _ := x.Names().Lookup("mv1")
	box, err := x.Model().BoundingBox(id)
	require.NoError(t, err)
	assert.InDelta(t, 3, box.Max.Y, 1e-9)
	assert.InDelta(t, -1, box.Min.X, 1e-9)
	assert.InDelta(t, 0, box.Max.X, 1e-9)

	id, _ = x.Names().Lookup("flp1")
	box, err = x.Model().BoundingBox(id)
	require.NoError(t, err)
	assert.InDelta(t, -1, box.Min.Z, 1e-9)
}

func TestExtrudeRect(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		Step{Name: "r", Op: OpRect, Params: &RectParams{E1: Vec{1, 0, 0}, E2: Vec{0, 1, 0}}},
		Step{Name: "ex", Op: OpExtrude, Params: &ExtrudeParams{Targets: []string{"rec1"}, Mode: ExtrudeNormal, Lengths: []float64{2}}},
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"rec2", "ex1"}, out.Results["ex"].NewObjects)

	id, ok := x.Names().Lookup("ex1")
	require.True(t, ok)
	assert.Equal(t, kernel.Solid, id.Kind)
	box, err := x.Model().BoundingBox(id)
	require.NoError(t, err)
	assert.InDelta(t, 2, box.Max.Z, 1e-9)

	top, _ := x.Names().Lookup("rec2")
	p, err := x.Model().BoundingBox(top)
	require.NoError(t, err)
	assert.InDelta(t, 2, p.Min.Z, 1e-9)
}

func TestCreateLineAndSurface(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		Step{Name: "pts", Op: OpPoint, Params: &PointParams{Points: []Vec{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}}},
		Step{Name: "lines", Op: OpCreateLine, Params: &CreateLineParams{Points: []string{"pt1", "pt2", "pt3", "pt1"}}},
		Step{Name: "s", Op: OpCreateSurface, Params: &CreateSurfaceParams{Edges: []string{"ln1", "ln2", "ln3"}}},
		Step{Name: "mid", Op: OpPointCenter, Params: &PointCenterParams{First: []string{"pt1"}, Second: []string{"pt2"}}},
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ln1", "ln2", "ln3"}, out.Results["lines"].NewObjects)
	assert.Equal(t, []string{"ps1"}, out.Results["s"].NewObjects)
	id, _ := x.Names().Lookup("pt4")
	p, err := x.Model().Point(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.X, 1e-9)
}

func TestBareReferences(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t,
		unitBox("b", 0),
		Step{Name: "cp", Op: OpCopy, Params: &CopyParams{Targets: []string{"v1"}}},
	)
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cp1"}, out.Results["cp"].NewObjects)

	_, err = x.resolve("f99")
	assert.ErrorIs(t, err, errs.ErrConstruction)
	o, err := x.resolve("-l1")
	require.NoError(t, err)
	assert.True(t, o.Reversed)
}

func TestInterruptedRun(t *testing.T) {
	x, ctx := newExecutor(t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err := x.Run(ctx, script(t, unitBox("b", 0)), RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolygon(t *testing.T) {
	x, ctx := newExecutor(t)
	sc := script(t, Step{Name: "pg", Op: OpPolygon, Params: &PolygonParams{
		Points: []Vec{{0, 0, 0}, {2, 0, 0}, {2, 1, 0}, {0, 1, 0}, {0, 0, 0}},
	}})
	out, err := x.Run(ctx, sc, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"pol1"}, out.Results["pg"].NewObjects)

	id, _ := x.Names().Lookup("pol1")
	assert.Equal(t, kernel.Face, id.Kind)
	assert.Len(t, x.Model().Registries().IDs(kernel.Edge), 4, "the repeated last point does not add an edge")
	box, err := x.Model().BoundingBox(id)
	require.NoError(t, err)
	assert.InDelta(t, 2, box.Max.X, 1e-9)

	err = (&PolygonParams{Points: []Vec{{0, 0, 0}, {1, 0, 0}, {0, 0, 0}}}).Validate()
	assert.Error(t, err)
}

func TestCircleBy3Points(t *testing.T) {
	pts := Step{Name: "pts", Op: OpPoint, Params: &PointParams{Points: []Vec{{1, 0, 2}, {0, 1, 2}, {-1, 0, 2}}}}

	x, ctx := newExecutor(t)
	out, err := x.Run(ctx, script(t, pts,
		Step{Name: "c", Op: OpCircleBy3Points, Params: &CircleBy3PointsParams{Points: []string{"pt1", "pt2", "pt3"}, Face: true}},
	), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"ps1"}, out.Results["c"].NewObjects)
	id, _ := x.Names().Lookup("ps1")
	box, err := x.Model().BoundingBox(id)
	require.NoError(t, err)
	assert.InDelta(t, -1, box.Min.X, 1e-2)
	assert.InDelta(t, 1, box.Max.X, 1e-2)
	assert.InDelta(t, 2, box.Min.Z, 1e-6)
	assert.InDelta(t, 2, box.Max.Z, 1e-6)

	x, ctx = newExecutor(t)
	_, err = x.Run(ctx, script(t,
		Step{Name: "pts", Op: OpPoint, Params: &PointParams{Points: []Vec{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}}},
		Step{Name: "c", Op: OpCircleBy3Points, Params: &CircleBy3PointsParams{Points: []string{"pt1", "pt2", "pt3"}}},
	), RunOptions{})
	assert.ErrorIs(t, err, errs.ErrConstruction)
}

func TestArrayByPoints(t *testing.T) {
	pts := Step{Name: "pts", Op: OpPoint, Params: &PointParams{Points: []Vec{{0, 0, 0}, {3, 0, 0}, {7, 0, 0}}}}

	t.Run("one copy per point", func(t *testing.T) {
		x, ctx := newExecutor(t)
		out, err := x.Run(ctx, script(t, unitBox("b", 0), pts,
			Step{Name: "arr", Op: OpArrayByPoints, Params: &ArrayByPointsParams{Targets: []string{"bx1"}, Count: 1, Points: []string{"pt1", "pt2", "pt3"}}},
		), RunOptions{})
		require.NoError(t, err)
		require.Equal(t, []string{"cp1", "cp2"}, out.Results["arr"].NewObjects)
		id, _ := x.Names().Lookup("cp2")
		box, err := x.Model().BoundingBox(id)
		require.NoError(t, err)
		assert.InDelta(t, 7, box.Min.X, 1e-9)
	})

	t.Run("repeated step", func(t *testing.T) {
		x, ctx := newExecutor(t)
		out, err := x.Run(ctx, script(t, unitBox("b", 0), pts,
			Step{Name: "arr", Op: OpArrayByPoints, Params: &ArrayByPointsParams{Targets: []string{"bx1"}, Count: 3, Points: []string{"pt1", "pt2"}}},
		), RunOptions{})
		require.NoError(t, err)
		require.Len(t, out.Results["arr"].NewObjects, 2)
		assert.Equal(t, 3, out.Registry.Count(kernel.Solid))
		id, _ := x.Names().Lookup("cp2")
		box, err := x.Model().BoundingBox(id)
		require.NoError(t, err)
		assert.InDelta(t, 6, box.Min.X, 1e-9)
	})
}

func TestCreateVolume(t *testing.T) {
	tri := func(name string, a, b, c Vec) Step {
		return Step{Name: name, Op: OpPolygon, Params: &PolygonParams{Points: []Vec{a, b, c}}}
	}
	o, px, py, pz := Vec{0, 0, 0}, Vec{1, 0, 0}, Vec{0, 1, 0}, Vec{0, 0, 1}
	faces := []Step{tri("t1", o, py, px), tri("t2", o, px, pz), tri("t3", px, py, pz), tri("t4", o, pz, py)}

	x, ctx := newExecutor(t)
	steps := append(append([]Step(nil), faces...),
		Step{Name: "vol", Op: OpCreateVolume, Params: &CreateVolumeParams{Faces: []string{"pol1", "pol2", "pol3", "pol4"}}})
	out, err := x.Run(ctx, script(t, steps...), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"vol1"}, out.Results["vol"].NewObjects)

	id, _ := x.Names().Lookup("vol1")
	assert.Equal(t, kernel.Solid, id.Kind)
	assert.Equal(t, 1, out.Registry.Count(kernel.Solid))
	assert.Equal(t, 4, out.Registry.Count(kernel.Face))
	assert.Equal(t, 6, out.Registry.Count(kernel.Edge), "neighbouring faces share their edges")
	_, ok := x.Names().Lookup("pol1")
	assert.False(t, ok, "consumed faces lose their names")

	x, ctx = newExecutor(t)
	steps = append(append([]Step(nil), faces[:3]...),
		Step{Name: "vol", Op: OpCreateVolume, Params: &CreateVolumeParams{Faces: []string{"pol1", "pol2", "pol3"}}})
	_, err = x.Run(ctx, script(t, steps...), RunOptions{})
	assert.ErrorIs(t, err, errs.ErrConstruction)
}
