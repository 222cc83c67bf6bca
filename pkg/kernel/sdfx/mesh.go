package sdfx

import (
	"math"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/deadsy/sdfx/render"
)

// Mesh attaches a triangulation to every face of s and a 3-D polygon to
// every edge of s that bounds no face. Faces already meshed at the same or
// a finer deflection are left alone.
func (k *SdfxKernel) Mesh(s kernel.Shape, deflection float64) error {
	sh, err := unwrap(s)
	if err != nil {
		return err
	}
	if deflection <= 0 || math.IsNaN(deflection) {
		return errs.KernelOperation("invalid deflection %g", deflection)
	}
	inFaces := sh.edgesInFaces()
	var firstErr error
	sh.walk(func(x *shape) {
		switch x.kind {
		case kernel.Face:
			if x.mesh != nil && x.mesh.deflection <= deflection {
				return
			}
			m, err := k.meshFace(x, deflection)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			x.mesh = m
		case kernel.Edge:
			x.poly3D = !inFaces[x]
		}
	})
	return firstErr
}

// Triangulation returns the mesh attached to a face.
func (k *SdfxKernel) Triangulation(face kernel.Shape) (*kernel.Triangulation, bool) {
	f, ok := face.(*shape)
	if !ok || f.kind != kernel.Face || f.mesh == nil {
		return nil, false
	}
	return &f.mesh.tri, true
}

// Polygon3D returns the polygon of a free edge.
func (k *SdfxKernel) Polygon3D(edge kernel.Shape) ([]geom.Vec3, bool) {
	e, ok := edge.(*shape)
	if !ok || e.kind != kernel.Edge || !e.poly3D {
		return nil, false
	}
	return e.poly, true
}

// PolygonOnTriangulation returns the node indices of edge within the
// triangulation of face.
func (k *SdfxKernel) PolygonOnTriangulation(edge, face kernel.Shape) ([]int, bool) {
	e, ok1 := edge.(*shape)
	f, ok2 := face.(*shape)
	if !ok1 || !ok2 || f.mesh == nil {
		return nil, false
	}
	idx, ok := f.mesh.onTri[e]
	return idx, ok
}

func (k *SdfxKernel) meshFace(f *shape, deflection float64) (*faceMesh, error) {
	m := &faceMesh{deflection: deflection}
	switch f.surf {
	case surfPlane:
		pts := f.outer().wirePoints()
		n, ok := geom.PolygonNormal(pts)
		if !ok {
			return nil, errs.KernelOperation("degenerate planar face")
		}
		m.tri.Nodes = pts
		m.tri.Triangles = earClip(project(pts, n))
		m.tri.Normals = make([]geom.Vec3, len(pts))
		for i := range m.tri.Normals {
			m.tri.Normals[i] = n
		}
	case surfGrid:
		gridMesh(&m.tri, f.grid)
	case surfImplicit:
		if err := k.marchFace(&m.tri, f.csg, deflection); err != nil {
			return nil, err
		}
	default:
		return nil, errs.KernelOperation("face has no surface")
	}
	m.onTri = edgeIndices(f, m.tri.Nodes)
	return m, nil
}

// project expresses planar points in a 2-D basis (u, v) with u x v = n.
func project(pts []geom.Vec3, n geom.Vec3) [][2]float64 {
	u := geom.Perpendicular(n)
	v := n.Cross(u)
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		d := p.Sub(pts[0])
		out[i] = [2]float64{d.Dot(u), d.Dot(v)}
	}
	return out
}

func gridMesh(t *kernel.Triangulation, grid [][]geom.Vec3) {
	if len(grid) == 0 {
		return
	}
	rows, cols := len(grid), len(grid[0])
	for _, row := range grid {
		t.Nodes = append(t.Nodes, row...)
	}
	for i := 0; i+1 < rows; i++ {
		for j := 0; j+1 < cols; j++ {
			a, b := i*cols+j, i*cols+j+1
			c, d := (i+1)*cols+j+1, (i+1)*cols+j
			t.Triangles = append(t.Triangles, [3]int{a, b, c}, [3]int{a, c, d})
		}
	}
	t.Normals = vertexNormals(t.Nodes, t.Triangles)
}

// marchFace samples the implicit solid with marching cubes. The number of
// cells along the longest side follows the deflection.
func (k *SdfxKernel) marchFace(t *kernel.Triangulation, n *csgNode, deflection float64) error {
	if n == nil {
		return errs.KernelOperation("implicit face without solid")
	}
	s, err := n.sdf3()
	if err != nil {
		return err
	}
	ext := n.bbox().MaxExtent()
	cells := int(math.Ceil(4 * ext / deflection))
	cells = max(minMeshCells, min(cells, k.maxCells))
	tris := render.ToTriangles(s, render.NewMarchingCubesUniform(cells))

	q := 1e-9 * math.Max(ext, 1)
	index := make(map[[3]int64]int)
	for _, tri := range tris {
		var f [3]int
		for j := 0; j < 3; j++ {
			p := tri[j]
			key := [3]int64{int64(math.Round(p.X / q)), int64(math.Round(p.Y / q)), int64(math.Round(p.Z / q))}
			i, ok := index[key]
			if !ok {
				i = len(t.Nodes)
				index[key] = i
				t.Nodes = append(t.Nodes, p)
			}
			f[j] = i
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		t.Triangles = append(t.Triangles, f)
	}
	t.Normals = vertexNormals(t.Nodes, t.Triangles)
	return nil
}

func vertexNormals(nodes []geom.Vec3, tris [][3]int) []geom.Vec3 {
	acc := make([]geom.Vec3, len(nodes))
	for _, t := range tris {
		a, b, c := nodes[t[0]], nodes[t[1]], nodes[t[2]]
		n := b.Sub(a).Cross(c.Sub(a))
		for _, i := range t {
			acc[i] = acc[i].Add(n)
		}
	}
	for i, n := range acc {
		if u, ok := geom.Unit(n); ok {
			acc[i] = u
		}
	}
	return acc
}

// edgeIndices locates the samples of every boundary edge of f among the
// triangulation nodes. Edges with a sample not found are left out.
func edgeIndices(f *shape, nodes []geom.Vec3) map[*shape][]int {
	out := make(map[*shape][]int)
	if len(f.children) == 0 || len(nodes) == 0 {
		return out
	}
	b := geom.BBoxOf(nodes...)
	q := 1e-9 * math.Max(b.MaxExtent(), 1)
	key := func(p geom.Vec3) [3]int64 {
		return [3]int64{int64(math.Round(p.X / q)), int64(math.Round(p.Y / q)), int64(math.Round(p.Z / q))}
	}
	index := make(map[[3]int64]int, len(nodes))
	for i, p := range nodes {
		if _, ok := index[key(p)]; !ok {
			index[key(p)] = i
		}
	}
	for _, w := range f.children {
	edges:
		for _, e := range w.children {
			if _, done := out[e]; done {
				continue
			}
			idx := make([]int, len(e.poly))
			for i, p := range e.poly {
				j, ok := index[key(p)]
				if !ok {
					continue edges
				}
				idx[i] = j
			}
			out[e] = idx
		}
	}
	return out
}

// earClip triangulates a simple polygon. Output triangles are counter
// clockwise in the given 2-D coordinates.
func earClip(pts [][2]float64) [][3]int {
	n := len(pts)
	if n < 3 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if signedArea(pts) < 0 {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			idx[i], idx[j] = idx[j], idx[i]
		}
	}
	var tris [][3]int
	for len(idx) > 3 {
		clipped := false
		for i := range idx {
			a := idx[(i+len(idx)-1)%len(idx)]
			b := idx[i]
			c := idx[(i+1)%len(idx)]
			if cross2(pts[a], pts[b], pts[c]) <= 0 {
				continue
			}
			if anyInside(pts, idx, a, b, c) {
				continue
			}
			tris = append(tris, [3]int{a, b, c})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			// Degenerate remainder: fan it.
			for i := 1; i+1 < len(idx); i++ {
				tris = append(tris, [3]int{idx[0], idx[i], idx[i+1]})
			}
			return tris
		}
	}
	return append(tris, [3]int{idx[0], idx[1], idx[2]})
}

func signedArea(pts [][2]float64) float64 {
	a := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i][0]*pts[j][1] - pts[j][0]*pts[i][1]
	}
	return a / 2
}

func cross2(a, b, c [2]float64) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func anyInside(pts [][2]float64, idx []int, a, b, c int) bool {
	for _, i := range idx {
		if i == a || i == b || i == c {
			continue
		}
		p := pts[i]
		if cross2(pts[a], pts[b], p) >= 0 && cross2(pts[b], pts[c], p) >= 0 && cross2(pts[c], pts[a], p) >= 0 {
			return true
		}
	}
	return false
}
