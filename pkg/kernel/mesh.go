package kernel

import "github.com/chazu/brepseq/pkg/geom"

// Mesh is a flat triangle mesh handed to renderers.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
// FaceTags holds one geometrical tag per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices" msgpack:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals" msgpack:"normals"`   // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices" msgpack:"indices"`   // [i0,i1,i2, ...] triangles
	FaceTags []int     `json:"faceTags" msgpack:"face_tags"`
	Name     string    `json:"name" msgpack:"name"` // build target this came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Bounds returns the bounding box of the vertex buffer.
func (m *Mesh) Bounds() geom.BBox {
	b := geom.EmptyBBox()
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		b = b.Extend(geom.V(float64(m.Vertices[i]), float64(m.Vertices[i+1]), float64(m.Vertices[i+2])))
	}
	return b
}
