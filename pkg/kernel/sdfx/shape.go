package sdfx

import (
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
)

type surfaceKind uint8

const (
	surfNone surfaceKind = iota
	// Planar face bounded by its outer wire.
	surfPlane
	// Ruled or swept face sampled as a rows x cols point grid.
	surfGrid
	// Boundary of an implicit solid.
	surfImplicit
)

// shape is the concrete kernel handle. Handles are never copied by value:
// identity is the pointer.
type shape struct {
	kind     kernel.Kind
	children []*shape
	// reversed flags the traversal direction of each edge in a wire.
	reversed []bool

	pt geom.Vec3 // vertices

	poly   []geom.Vec3 // edges: sampled curve from first to last vertex
	closed bool        // edges: first and last sample coincide

	surf surfaceKind
	grid [][]geom.Vec3 // surfGrid samples, row-major along the sweep

	csg *csgNode // solids and implicit faces

	mesh *faceMesh // faces
	// edges: polygon attached by Mesh for edges outside any face
	poly3D bool
}

// faceMesh caches the triangulation attached to a face.
type faceMesh struct {
	deflection float64
	tri        kernel.Triangulation
	onTri      map[*shape][]int
}

func (s *shape) Kind() kernel.Kind { return s.kind }

func newVertex(p geom.Vec3) *shape {
	return &shape{kind: kernel.Vertex, pt: p}
}

// newEdge builds an edge along poly between the vertices a and b.
func newEdge(a, b *shape, poly []geom.Vec3) *shape {
	e := &shape{kind: kernel.Edge, poly: poly}
	if a == b {
		e.closed = true
		e.children = []*shape{a}
	} else {
		e.children = []*shape{a, b}
	}
	return e
}

func newWire(uses []*shape, reversed []bool) *shape {
	return &shape{kind: kernel.Wire, children: uses, reversed: reversed}
}

func newFace(surf surfaceKind, wires ...*shape) *shape {
	return &shape{kind: kernel.Face, surf: surf, children: wires}
}

// newImplicitSolid wraps a CSG tree in solid -> shell -> face.
func newImplicitSolid(n *csgNode) *shape {
	f := &shape{kind: kernel.Face, surf: surfImplicit, csg: n}
	sh := &shape{kind: kernel.Shell, children: []*shape{f}}
	return &shape{kind: kernel.Solid, children: []*shape{sh}, csg: n}
}

// first and last vertex of an edge.
func (s *shape) ends() (*shape, *shape) {
	if len(s.children) == 1 {
		return s.children[0], s.children[0]
	}
	return s.children[0], s.children[1]
}

// wirePoints concatenates the edge samples of a wire in traversal order.
// The closing point is not repeated.
func (s *shape) wirePoints() []geom.Vec3 {
	var pts []geom.Vec3
	for i, e := range s.children {
		p := e.poly
		if s.reversed[i] {
			p = reversedPts(p)
		}
		if len(pts) > 0 && len(p) > 0 {
			p = p[1:]
		}
		pts = append(pts, p...)
	}
	if n := len(pts); n > 1 && geom.Near(pts[0], pts[n-1], 1e-12) {
		pts = pts[:n-1]
	}
	return pts
}

// outer returns the outer wire of a face.
func (s *shape) outer() *shape {
	if len(s.children) == 0 {
		return nil
	}
	return s.children[0]
}

func reversedPts(p []geom.Vec3) []geom.Vec3 {
	out := make([]geom.Vec3, len(p))
	for i := range p {
		out[len(p)-1-i] = p[i]
	}
	return out
}

// walk visits s and its descendants once each, parents first.
func (s *shape) walk(fn func(*shape)) {
	seen := make(map[*shape]bool)
	var rec func(*shape)
	rec = func(x *shape) {
		if seen[x] {
			return
		}
		seen[x] = true
		fn(x)
		for _, c := range x.children {
			rec(c)
		}
	}
	rec(s)
}

// bbox covers every sample point of s and the CSG bounds of implicit parts.
func (s *shape) bbox() geom.BBox {
	b := geom.EmptyBBox()
	s.walk(func(x *shape) {
		switch {
		case x.csg != nil:
			b = b.Union(x.csg.bbox())
		case x.kind == kernel.Vertex:
			b = b.Extend(x.pt)
		case x.kind == kernel.Edge:
			for _, p := range x.poly {
				b = b.Extend(p)
			}
		case x.surf == surfGrid:
			for _, row := range x.grid {
				for _, p := range row {
					b = b.Extend(p)
				}
			}
		}
	})
	return b
}

// edgesInFaces collects the edges of s bounding some face of s.
func (s *shape) edgesInFaces() map[*shape]bool {
	out := make(map[*shape]bool)
	s.walk(func(x *shape) {
		if x.kind != kernel.Face {
			return
		}
		for _, w := range x.children {
			for _, e := range w.children {
				out[e] = true
			}
		}
	})
	return out
}
