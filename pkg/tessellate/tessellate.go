// Package tessellate turns a live assembly into preview data: one shared
// point buffer with triangles, segments and points tagged by the entity
// they came from, plus the adjacency used for mesh sizing.
package tessellate

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/brepseq/pkg/brep"
	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

// DefaultResolution is the preview resolution at which the deflection is
// 5% of the largest bounding box extent.
const DefaultResolution = 30

// Options control extraction.
type Options struct {
	// Resolution is the preview density factor. Higher is finer.
	Resolution int
	// Deflection overrides the derived deflection when positive.
	Deflection float64
	// EdgesOnly leaves face triangles out.
	EdgesOnly bool
}

// DefaultOptions returns the options used by previews.
func DefaultOptions() Options {
	return Options{Resolution: DefaultResolution}
}

// Quality is the factor applied to the base deflection.
func (o Options) Quality() float64 {
	if o.Resolution <= 0 {
		return 1
	}
	return float64(DefaultResolution) / float64(o.Resolution)
}

// Elements are the primitives emitted for one kind. Indices has Stride
// entries per primitive, all pointing into PreviewData.Points.
type Elements struct {
	Stride      int   `msgpack:"stride" json:"stride"`
	Indices     []int `msgpack:"indices" json:"indices"`
	Geometrical []int `msgpack:"geometrical" json:"geometrical"`
	Physical    []int `msgpack:"physical" json:"physical"`
}

// Count returns the number of primitives.
func (e *Elements) Count() int { return len(e.Geometrical) }

func (e *Elements) add(tag int, idx ...int) {
	e.Indices = append(e.Indices, idx...)
	e.Geometrical = append(e.Geometrical, tag)
	e.Physical = append(e.Physical, 0)
}

func (e *Elements) offsetCopy(off int) Elements {
	out := Elements{
		Stride:      e.Stride,
		Indices:     make([]int, len(e.Indices)),
		Geometrical: append([]int(nil), e.Geometrical...),
		Physical:    append([]int(nil), e.Physical...),
	}
	for i, v := range e.Indices {
		out.Indices[i] = v + off
	}
	return out
}

// PreviewData is the tessellated assembly. Geometrical tags are entity
// indices; the index counters are shared by all groups so tags from a local
// frame never collide with root tags.
type PreviewData struct {
	Deflection float64     `msgpack:"deflection" json:"deflection"`
	Points     []geom.Vec3 `msgpack:"points" json:"points"`
	// Normals has one entry per point; points of edges and vertices carry
	// a zero normal.
	Normals   []geom.Vec3 `msgpack:"normals" json:"normals"`
	Triangles Elements    `msgpack:"triangles" json:"triangles"`
	Segments  Elements    `msgpack:"segments" json:"segments"`
	Nodes     Elements    `msgpack:"nodes" json:"nodes"`

	SolidFaces   map[int][]int `msgpack:"solid_faces" json:"solidFaces"`
	FaceEdges    map[int][]int `msgpack:"face_edges" json:"faceEdges"`
	EdgeVertices map[int][]int `msgpack:"edge_vertices" json:"edgeVertices"`
	// EdgeSize is the bounding box diagonal of every edge.
	EdgeSize map[int]float64 `msgpack:"edge_size" json:"edgeSize"`
	// VertexCharLength is the smallest size of the edges at every vertex.
	VertexCharLength map[int]float64 `msgpack:"vertex_char_length" json:"vertexCharLength"`
}

func newPreviewData() *PreviewData {
	return &PreviewData{
		Triangles:        Elements{Stride: 3},
		Segments:         Elements{Stride: 2},
		Nodes:            Elements{Stride: 1},
		SolidFaces:       make(map[int][]int),
		FaceEdges:        make(map[int][]int),
		EdgeVertices:     make(map[int][]int),
		EdgeSize:         make(map[int]float64),
		VertexCharLength: make(map[int]float64),
	}
}

// IsEmpty reports whether nothing was emitted.
func (p *PreviewData) IsEmpty() bool { return len(p.Points) == 0 }

func (p *PreviewData) push(pt, n geom.Vec3) int {
	p.Points = append(p.Points, pt)
	p.Normals = append(p.Normals, n)
	return len(p.Points) - 1
}

type extractor struct {
	k    kernel.Kernel
	reg  *topo.Set
	out  *PreviewData
	opts Options
}

func (x *extractor) tag(h kernel.Shape) int {
	if id, ok := x.reg.IDOf(h); ok {
		return id.Index
	}
	return 0
}

// Extract meshes shape and gathers the result. Entities are tagged through
// reg, which must be synchronized with shape.
func Extract(k kernel.Kernel, shape kernel.Shape, reg *topo.Set, o Options) (*PreviewData, error) {
	out := newPreviewData()
	if shape == nil || len(k.Children(shape)) == 0 {
		return out, nil
	}
	box, err := k.BoundingBox(shape)
	if err != nil {
		return nil, errs.KernelOperation("preview bounds: %v", err)
	}
	defl := o.Deflection
	if defl <= 0 {
		defl = 0.05 * box.MaxExtent() * o.Quality()
	}
	x := &extractor{k: k, reg: reg, out: out, opts: o}
	if defl <= 0 || math.IsNaN(defl) || math.IsInf(defl, 0) {
		// A shape without extent, such as a lone vertex, has nothing to
		// mesh. Its vertices are still shown.
		x.vertices(shape)
		x.adjacency(shape)
		return out, nil
	}
	out.Deflection = defl
	if err := k.Mesh(shape, defl); err != nil {
		return nil, errs.KernelOperation("mesh: %v", err)
	}

	offsets := x.faces(shape)
	x.edges(shape, offsets)
	x.vertices(shape)
	x.adjacency(shape)
	return out, nil
}

// faces appends every triangulated face and returns the buffer offset at
// which the nodes of each face start.
func (x *extractor) faces(shape kernel.Shape) map[kernel.Shape]int {
	offsets := make(map[kernel.Shape]int)
	for _, f := range kernel.Explore(x.k, shape, kernel.Face) {
		tri, ok := x.k.Triangulation(f)
		if !ok {
			continue
		}
		off := len(x.out.Points)
		offsets[f] = off
		for i, p := range tri.Nodes {
			var n geom.Vec3
			if i < len(tri.Normals) {
				n = tri.Normals[i]
			}
			x.out.push(p, n)
		}
		if x.opts.EdgesOnly {
			continue
		}
		tag := x.tag(f)
		for _, t := range tri.Triangles {
			x.out.Triangles.add(tag, t[0]+off, t[1]+off, t[2]+off)
		}
	}
	return offsets
}

// edges appends a polyline per edge: its own polygon when it has one,
// otherwise the nodes it occupies in an adjacent face triangulation.
func (x *extractor) edges(shape kernel.Shape, offsets map[kernel.Shape]int) {
	edgeFaces := kernel.Ancestors(x.k, shape, kernel.Edge, kernel.Face)
	for _, e := range kernel.Explore(x.k, shape, kernel.Edge) {
		tag := x.tag(e)
		if poly, ok := x.k.Polygon3D(e); ok {
			prev := -1
			for _, p := range poly {
				i := x.out.push(p, geom.Vec3{})
				if prev >= 0 {
					x.out.Segments.add(tag, prev, i)
				}
				prev = i
			}
			continue
		}
		for _, f := range edgeFaces[e] {
			off, meshed := offsets[f]
			if !meshed {
				continue
			}
			idx, ok := x.k.PolygonOnTriangulation(e, f)
			if !ok {
				continue
			}
			for i := 1; i < len(idx); i++ {
				x.out.Segments.add(tag, idx[i-1]+off, idx[i]+off)
			}
			break
		}
	}
}

func (x *extractor) vertices(shape kernel.Shape) {
	for _, v := range kernel.Explore(x.k, shape, kernel.Vertex) {
		p, err := x.k.Point(v)
		if err != nil {
			continue
		}
		x.out.Nodes.add(x.tag(v), x.out.push(p, geom.Vec3{}))
	}
}

func (x *extractor) adjacency(shape kernel.Shape) {
	link := func(dst map[int][]int, parent, child kernel.Kind) {
		for _, p := range kernel.Explore(x.k, shape, parent) {
			pt := x.tag(p)
			for _, c := range kernel.Explore(x.k, p, child) {
				dst[pt] = append(dst[pt], x.tag(c))
			}
		}
	}
	link(x.out.SolidFaces, kernel.Solid, kernel.Face)
	link(x.out.FaceEdges, kernel.Face, kernel.Edge)
	link(x.out.EdgeVertices, kernel.Edge, kernel.Vertex)

	for _, e := range kernel.Explore(x.k, shape, kernel.Edge) {
		box, err := x.k.BoundingBox(e)
		if err != nil {
			continue
		}
		x.out.EdgeSize[x.tag(e)] = box.Diagonal()
	}
	for v, es := range kernel.Ancestors(x.k, shape, kernel.Vertex, kernel.Edge) {
		size := math.Inf(1)
		for _, e := range es {
			if s, ok := x.out.EdgeSize[x.tag(e)]; ok && s < size {
				size = s
			}
		}
		if !math.IsInf(size, 1) {
			x.out.VertexCharLength[x.tag(v)] = size
		}
	}
}

// Merge returns root with local appended. The local points are placed by
// pose and every local index is shifted past the root points.
func Merge(root, local *PreviewData, pose geom.Transform) *PreviewData {
	out := newPreviewData()
	out.Deflection = math.Max(root.Deflection, local.Deflection)
	off := len(root.Points)

	out.Points = append(append(out.Points, root.Points...), pose.ApplyAll(local.Points)...)
	out.Normals = append(out.Normals, root.Normals...)
	for _, n := range local.Normals {
		if n == (geom.Vec3{}) {
			out.Normals = append(out.Normals, n)
			continue
		}
		u, _ := geom.Unit(pose.ApplyVector(n))
		out.Normals = append(out.Normals, u)
	}

	for _, pair := range []struct{ dst, a, b *Elements }{
		{&out.Triangles, &root.Triangles, &local.Triangles},
		{&out.Segments, &root.Segments, &local.Segments},
		{&out.Nodes, &root.Nodes, &local.Nodes},
	} {
		base := pair.a.offsetCopy(0)
		shifted := pair.b.offsetCopy(off)
		pair.dst.Indices = append(base.Indices, shifted.Indices...)
		pair.dst.Geometrical = append(base.Geometrical, shifted.Geometrical...)
		pair.dst.Physical = append(base.Physical, shifted.Physical...)
	}

	for _, src := range []*PreviewData{root, local} {
		union(out.SolidFaces, src.SolidFaces)
		union(out.FaceEdges, src.FaceEdges)
		union(out.EdgeVertices, src.EdgeVertices)
		for k, v := range src.EdgeSize {
			out.EdgeSize[k] = v
		}
		for k, v := range src.VertexCharLength {
			out.VertexCharLength[k] = v
		}
	}
	return out
}

func union(dst, src map[int][]int) {
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
}

// Preview extracts the assembly of m. With frames open, every enclosing
// assembly is extracted too and the nested ones are placed into the root
// frame before merging.
func Preview(ctx context.Context, m *brep.Model, o Options) (*PreviewData, error) {
	log := ctxlog.FromContext(ctx)
	var out *PreviewData
	err := m.Levels(func(depth int, shape kernel.Shape, pose geom.Transform) error {
		p, err := Extract(m.Kernel(), shape, m.Registries(), o)
		if err != nil {
			return fmt.Errorf("preview level %d: %w", depth, err)
		}
		if out == nil {
			out = p
			return nil
		}
		out = Merge(out, p, pose)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug("preview extracted", "points", len(out.Points), "deflection", out.Deflection, "depth", m.Depth())
	return out, nil
}

// ToMesh flattens p into a renderer mesh named name. Segments and nodes are
// not part of the mesh.
func ToMesh(p *PreviewData, name string) *kernel.Mesh {
	m := &kernel.Mesh{
		Vertices: make([]float32, 0, 3*len(p.Points)),
		Normals:  make([]float32, 0, 3*len(p.Normals)),
		Indices:  make([]uint32, 0, len(p.Triangles.Indices)),
		FaceTags: append([]int(nil), p.Triangles.Geometrical...),
		Name:     name,
	}
	for _, v := range p.Points {
		m.Vertices = append(m.Vertices, float32(v.X), float32(v.Y), float32(v.Z))
	}
	for _, n := range p.Normals {
		m.Normals = append(m.Normals, float32(n.X), float32(n.Y), float32(n.Z))
	}
	for _, i := range p.Triangles.Indices {
		m.Indices = append(m.Indices, uint32(i))
	}
	return m
}
