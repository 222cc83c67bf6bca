package sdfx

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitBox(t *testing.T, k *SdfxKernel, corner geom.Vec3) kernel.Shape {
	t.Helper()
	b, err := k.MakeBox(corner, geom.V(1, 0, 0), geom.V(0, 1, 0), geom.V(0, 0, 1))
	require.NoError(t, err)
	return b
}

func counts(k kernel.Kernel, s kernel.Shape) map[kernel.Kind]int {
	out := map[kernel.Kind]int{}
	for _, kind := range kernel.TopoKinds {
		out[kind] = len(kernel.Explore(k, s, kind))
	}
	return out
}

func TestBoxTopology(t *testing.T) {
	k := New()
	box := unitBox(t, k, geom.Vec3{})
	assert.Equal(t, map[kernel.Kind]int{
		kernel.Solid: 1, kernel.Shell: 1, kernel.Face: 6,
		kernel.Wire: 6, kernel.Edge: 12, kernel.Vertex: 8,
	}, counts(k, box))

	bb, err := k.BoundingBox(box)
	require.NoError(t, err)
	assert.Equal(t, geom.V(0, 0, 0), bb.Min)
	assert.Equal(t, geom.V(1, 1, 1), bb.Max)
}

func TestWedgeTopology(t *testing.T) {
	k := New()
	w, err := k.MakeWedge(geom.Vec3{}, geom.V(2, 1, 1), 1)
	require.NoError(t, err)
	c := counts(k, w)
	assert.Equal(t, 6, c[kernel.Face])
	assert.Equal(t, 8, c[kernel.Vertex])

	_, err = k.MakeWedge(geom.Vec3{}, geom.V(0, 1, 1), 1)
	assert.ErrorIs(t, err, errs.ErrConstruction)
}

func TestFuseTwoBoxes(t *testing.T) {
	k := New()
	a := unitBox(t, k, geom.Vec3{})
	b := unitBox(t, k, geom.V(0.5, 0, 0))
	res, hist, err := k.Boolean(kernel.Fuse, []kernel.Shape{a}, []kernel.Shape{b}, kernel.BooleanOptions{})
	require.NoError(t, err)

	solids := kernel.Explore(k, res, kernel.Solid)
	require.Len(t, solids, 1)
	bb, err := k.BoundingBox(solids[0])
	require.NoError(t, err)
	assert.InDelta(t, 0, bb.Min.X, 1e-9)
	assert.InDelta(t, 1.5, bb.Max.X, 1e-9)
	assert.InDelta(t, 1, bb.Max.Y, 1e-9)
	assert.InDelta(t, 1, bb.Max.Z, 1e-9)

	img, ok := hist.Image(a)
	require.True(t, ok)
	assert.Equal(t, solids[0], img)
}

func TestCommonDisjointIsEmpty(t *testing.T) {
	k := New()
	a := unitBox(t, k, geom.Vec3{})
	b := unitBox(t, k, geom.V(5, 0, 0))
	res, hist, err := k.Boolean(kernel.Common, []kernel.Shape{a}, []kernel.Shape{b}, kernel.BooleanOptions{})
	require.NoError(t, err)
	assert.Empty(t, kernel.Explore(k, res, kernel.Solid))
	assert.True(t, hist.IsDeleted(a))
}

func TestCutKeepsDisjointArgument(t *testing.T) {
	k := New()
	a := unitBox(t, k, geom.Vec3{})
	b := unitBox(t, k, geom.V(5, 0, 0))
	res, _, err := k.Boolean(kernel.Cut, []kernel.Shape{a}, []kernel.Shape{b}, kernel.BooleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []kernel.Shape{a}, kernel.Explore(k, res, kernel.Solid))
}

func TestFragments(t *testing.T) {
	k := New()
	t.Run("disjoint solids keep their handles", func(t *testing.T) {
		a := unitBox(t, k, geom.Vec3{})
		b := unitBox(t, k, geom.V(3, 0, 0))
		res, _, err := k.Boolean(kernel.Fragments, []kernel.Shape{a, b}, nil, kernel.BooleanOptions{})
		require.NoError(t, err)
		assert.Equal(t, []kernel.Shape{a, b}, kernel.Explore(k, res, kernel.Solid))
	})
	t.Run("overlapping pair splits in three", func(t *testing.T) {
		a := unitBox(t, k, geom.Vec3{})
		b := unitBox(t, k, geom.V(0.5, 0, 0))
		res, hist, err := k.Boolean(kernel.Fragments, []kernel.Shape{a, b}, nil, kernel.BooleanOptions{})
		require.NoError(t, err)
		solids := kernel.Explore(k, res, kernel.Solid)
		assert.Len(t, solids, 3)
		require.Len(t, hist.Modified(a), 2)
		assert.Len(t, hist.Modified(b), 2, "b keeps its remainder and shares the common piece")
		for _, img := range hist.Modified(a) {
			assert.Contains(t, solids, img)
		}
		assert.Subset(t, hist.Modified(b), hist.Modified(a)[1:], "the common piece is an image of both")
	})
}

func TestTransformHistory(t *testing.T) {
	k := New()
	box := unitBox(t, k, geom.Vec3{})
	moved, hist, err := k.Transform(box, geom.Translation(geom.V(0, 0, 2)))
	require.NoError(t, err)
	assert.NotEqual(t, box, moved)

	for _, v := range kernel.Explore(k, box, kernel.Vertex) {
		img, ok := hist.Image(v)
		require.True(t, ok)
		p0, _ := k.Point(v)
		p1, _ := k.Point(img)
		assert.InDelta(t, p0.Z+2, p1.Z, 1e-12)
	}
	bb, _ := k.BoundingBox(moved)
	assert.InDelta(t, 2, bb.Min.Z, 1e-9)
	assert.Equal(t, counts(k, box), counts(k, moved))
}

func TestWriteReadPreservesOrder(t *testing.T) {
	k := New()
	c := k.NewCompound()
	require.NoError(t, k.AddToCompound(c, unitBox(t, k, geom.Vec3{})))
	sph, err := k.MakeSphere(geom.V(3, 0, 0), 0.5, 2*math.Pi)
	require.NoError(t, err)
	require.NoError(t, k.AddToCompound(c, sph))

	path := filepath.Join(t.TempDir(), "model.brep")
	require.NoError(t, k.Write(c, path))
	back, err := k.Read(path)
	require.NoError(t, err)

	assert.Equal(t, counts(k, c), counts(k, back))
	pre := kernel.Explore(k, c, kernel.Vertex)
	post := kernel.Explore(k, back, kernel.Vertex)
	require.Len(t, post, len(pre))
	for i := range pre {
		p0, _ := k.Point(pre[i])
		p1, _ := k.Point(post[i])
		assert.Equal(t, p0, p1)
	}
	bb0, _ := k.BoundingBox(c)
	bb1, _ := k.BoundingBox(back)
	assert.Equal(t, bb0, bb1)
}

func TestReadRejectsGarbage(t *testing.T) {
	k := New()
	_, err := k.Read(filepath.Join(t.TempDir(), "missing.brep"))
	assert.True(t, errors.Is(err, errs.ErrSerialization))
}

func TestMeshBox(t *testing.T) {
	k := New()
	box := unitBox(t, k, geom.Vec3{})
	require.NoError(t, k.Mesh(box, 0.05))

	for _, f := range kernel.Explore(k, box, kernel.Face) {
		tri, ok := k.Triangulation(f)
		require.True(t, ok)
		assert.Len(t, tri.Triangles, 2)
		for _, e := range kernel.Explore(k, f, kernel.Edge) {
			idx, ok := k.PolygonOnTriangulation(e, f)
			require.True(t, ok)
			assert.Len(t, idx, 2)
		}
	}
	for _, e := range kernel.Explore(k, box, kernel.Edge) {
		_, ok := k.Polygon3D(e)
		assert.False(t, ok, "edges of faces carry no 3-D polygon")
	}
}

func TestMeshFreeEdge(t *testing.T) {
	k := New()
	a, _ := k.MakeVertex(geom.Vec3{})
	b, _ := k.MakeVertex(geom.V(1, 0, 0))
	e, err := k.MakeSegment(a, b)
	require.NoError(t, err)
	require.NoError(t, k.Mesh(e, 0.1))
	poly, ok := k.Polygon3D(e)
	require.True(t, ok)
	assert.Len(t, poly, 2)
}

func TestMeshSphere(t *testing.T) {
	k := New(WithMaxCells(32))
	s, err := k.MakeSphere(geom.Vec3{}, 1, 2*math.Pi)
	require.NoError(t, err)
	require.NoError(t, k.Mesh(s, 0.2))
	faces := kernel.Explore(k, s, kernel.Face)
	require.Len(t, faces, 1)
	tri, ok := k.Triangulation(faces[0])
	require.True(t, ok)
	require.NotEmpty(t, tri.Triangles)
	for _, p := range tri.Nodes {
		assert.InDelta(t, 1, p.Length(), 0.1)
	}
}

func TestExtrude(t *testing.T) {
	k := New()
	a, _ := k.MakeVertex(geom.Vec3{})
	b, _ := k.MakeVertex(geom.V(1, 0, 0))
	e, _ := k.MakeSegment(a, b)

	p, err := k.Extrude(e, geom.V(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, kernel.Face, p.Result.Kind())
	assert.Equal(t, kernel.Edge, p.Last.Kind())
	assert.Len(t, kernel.Explore(k, p.Result, kernel.Edge), 4)
	assert.True(t, kernel.Contains(k, p.Result, e))

	circle, err := k.MakeCircle(geom.Vec3{}, geom.ZAxis, geom.XAxis, 1)
	require.NoError(t, err)
	w, err := k.MakeWire([]kernel.EdgeUse{{Edge: circle}})
	require.NoError(t, err)
	disk, err := k.MakeFace(w)
	require.NoError(t, err)
	cyl, err := k.Extrude(disk, geom.V(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, kernel.Solid, cyl.Result.Kind())
	assert.Len(t, kernel.Explore(k, cyl.Result, kernel.Face), 3)
}

func TestRevolveVertexFullTurn(t *testing.T) {
	k := New()
	v, _ := k.MakeVertex(geom.V(1, 0, 0))
	p, err := k.Revolve(v, geom.Vec3{}, geom.ZAxis, 2*math.Pi)
	require.NoError(t, err)
	assert.Equal(t, v, p.Last)
	verts := kernel.Explore(k, p.Result, kernel.Vertex)
	assert.Equal(t, []kernel.Shape{v}, verts)
}

func TestMakeFaceRejectsOpenWire(t *testing.T) {
	k := New()
	a, _ := k.MakeVertex(geom.Vec3{})
	b, _ := k.MakeVertex(geom.V(1, 0, 0))
	c, _ := k.MakeVertex(geom.V(1, 1, 0))
	e1, _ := k.MakeSegment(a, b)
	e2, _ := k.MakeSegment(b, c)
	w, err := k.MakeWire([]kernel.EdgeUse{{Edge: e1}, {Edge: e2}})
	require.NoError(t, err)
	_, err = k.MakeFace(w)
	assert.ErrorIs(t, err, errs.ErrConstruction)

	_, err = k.MakeWire([]kernel.EdgeUse{{Edge: e2}, {Edge: e1}})
	assert.ErrorIs(t, err, errs.ErrConstruction)
}

func TestHealMergesVertices(t *testing.T) {
	k := New()
	a, _ := k.MakeVertex(geom.Vec3{})
	b, _ := k.MakeVertex(geom.V(1, 0, 0))
	b2, _ := k.MakeVertex(geom.V(1, 1e-9, 0))
	c, _ := k.MakeVertex(geom.V(2, 0, 0))
	e1, _ := k.MakeSegment(a, b)
	e2, _ := k.MakeSegment(b2, c)
	comp := k.NewCompound()
	require.NoError(t, k.AddToCompound(comp, e1))
	require.NoError(t, k.AddToCompound(comp, e2))
	require.Len(t, kernel.Explore(k, comp, kernel.Vertex), 4)

	healed, hist, err := k.Heal(comp, kernel.HealOptions{Tolerance: 1e-6})
	require.NoError(t, err)
	assert.Len(t, kernel.Explore(k, healed, kernel.Vertex), 3)
	ib, _ := hist.Image(b)
	ib2, _ := hist.Image(b2)
	assert.Equal(t, ib, ib2)
}

func TestHealSewsFacesIntoSolid(t *testing.T) {
	k := New()
	pts := []geom.Vec3{geom.V(0, 0, 0), geom.V(1, 0, 0), geom.V(0, 1, 0), geom.V(0, 0, 1)}
	tris := [][3]int{{0, 2, 1}, {0, 1, 3}, {1, 2, 3}, {0, 3, 2}}
	comp := k.NewCompound()
	for _, tr := range tris {
		f := polygonFace([]geom.Vec3{pts[tr[0]], pts[tr[1]], pts[tr[2]]})
		require.NoError(t, k.AddToCompound(comp, f))
	}
	require.Len(t, kernel.Explore(k, comp, kernel.Edge), 12)

	healed, _, err := k.Heal(comp, kernel.HealOptions{Tolerance: 1e-6, SewFaces: true, MakeSolid: true})
	require.NoError(t, err)
	solids := kernel.Explore(k, healed, kernel.Solid)
	require.Len(t, solids, 1)
	assert.Len(t, kernel.Explore(k, solids[0], kernel.Edge), 6)
	assert.Len(t, kernel.Explore(k, solids[0], kernel.Vertex), 4)

	open := k.NewCompound()
	for _, tr := range tris[:3] {
		require.NoError(t, k.AddToCompound(open, polygonFace([]geom.Vec3{pts[tr[0]], pts[tr[1]], pts[tr[2]]})))
	}
	healed, _, err = k.Heal(open, kernel.HealOptions{Tolerance: 1e-6, SewFaces: true, MakeSolid: true})
	require.NoError(t, err)
	assert.Empty(t, kernel.Explore(k, healed, kernel.Solid))
	assert.Len(t, kernel.Explore(k, healed, kernel.Shell), 1)
}

func TestTriangleShellClosed(t *testing.T) {
	pts := []geom.Vec3{geom.V(0, 0, 0), geom.V(1, 0, 0), geom.V(0, 1, 0), geom.V(0, 0, 1)}
	tris := [][3]int{{0, 2, 1}, {0, 1, 3}, {1, 2, 3}, {0, 3, 2}}
	s, err := triangleShell(pts, tris)
	require.NoError(t, err)
	assert.Equal(t, kernel.Solid, s.Kind())

	open, err := triangleShell(pts, tris[:3])
	require.NoError(t, err)
	assert.Equal(t, kernel.Shell, open.Kind())
}

func TestEarClip(t *testing.T) {
	square := [][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	assert.Len(t, earClip(square), 2)

	// L shape, clockwise.
	l := [][2]float64{{0, 0}, {0, 2}, {1, 2}, {1, 1}, {2, 1}, {2, 0}}
	tris := earClip(l)
	require.Len(t, tris, 4)
	area := 0.0
	for _, tr := range tris {
		c := cross2(l[tr[0]], l[tr[1]], l[tr[2]])
		assert.Greater(t, c, 0.0)
		area += c / 2
	}
	assert.InDelta(t, 3, area, 1e-12)
}

func TestPrismSDFSign(t *testing.T) {
	p, err := newPrismSDF([]geom.Vec3{{}, geom.V(1, 0, 0), geom.V(1, 1, 0), geom.V(0, 1, 0)}, geom.V(0, 0, 1))
	require.NoError(t, err)
	assert.Less(t, p.Evaluate(geom.V(0.5, 0.5, 0.5)), 0.0)
	assert.Greater(t, p.Evaluate(geom.V(0.5, 0.5, 1.5)), 0.0)
	assert.InDelta(t, 0.5, p.Evaluate(geom.V(0.5, 0.5, 1.5)), 1e-9)
	assert.Greater(t, p.Evaluate(geom.V(-1, 0.5, 0.5)), 0.0)
}
