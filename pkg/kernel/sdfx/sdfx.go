// Package sdfx implements the kernel.Kernel interface on top of the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// Topology is kept explicitly (solid, shell, face, wire, edge, vertex) so
// the identity layer above has real sub-shapes to track. Planar primitives
// carry a complete boundary representation; curved primitives and Boolean
// results are implicit: one solid, one shell and a single face whose
// geometry is the signed distance field, tessellated by marching cubes.
package sdfx

import (
	"fmt"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

const (
	defaultTolerance = 1e-6
	// Bounds on marching cubes resolution for implicit faces.
	minMeshCells = 16
	maxMeshCells = 200
	// Segments used to sample full circles.
	circleSegments = 64
)

// SdfxKernel is one modeling session.
type SdfxKernel struct {
	tol      float64
	maxCells int
}

// Option configures a kernel session.
type Option func(*SdfxKernel)

// WithTolerance sets the distance below which points are considered equal.
func WithTolerance(tol float64) Option {
	return func(k *SdfxKernel) {
		if tol > 0 {
			k.tol = tol
		}
	}
}

// WithMaxCells caps the marching cubes resolution.
func WithMaxCells(n int) Option {
	return func(k *SdfxKernel) {
		if n >= minMeshCells {
			k.maxCells = n
		}
	}
}

// New returns a new SdfxKernel.
func New(opts ...Option) *SdfxKernel {
	k := &SdfxKernel{tol: defaultTolerance, maxCells: maxMeshCells}
	for _, o := range opts {
		o(k)
	}
	return k
}

// unwrap extracts the concrete shape from a kernel.Shape.
func unwrap(s kernel.Shape) (*shape, error) {
	sh, ok := s.(*shape)
	if !ok || sh == nil {
		return nil, errs.KernelOperation("foreign shape handle %T", s)
	}
	return sh, nil
}

func unwrapKind(s kernel.Shape, kinds ...kernel.Kind) (*shape, error) {
	sh, err := unwrap(s)
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if sh.kind == k {
			return sh, nil
		}
	}
	return nil, errs.KernelOperation("expected %v, got %v", kinds, sh.kind)
}

func unwrapAll(in []kernel.Shape) ([]*shape, error) {
	out := make([]*shape, 0, len(in))
	for _, s := range in {
		sh, err := unwrap(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}

// Children returns the direct sub-shapes of s.
func (k *SdfxKernel) Children(s kernel.Shape) []kernel.Shape {
	sh, ok := s.(*shape)
	if !ok || sh == nil {
		return nil
	}
	out := make([]kernel.Shape, len(sh.children))
	for i, c := range sh.children {
		out[i] = c
	}
	return out
}

// NewCompound returns an empty compound.
func (k *SdfxKernel) NewCompound() kernel.Shape {
	return &shape{kind: kernel.Compound}
}

// AddToCompound appends s to the compound c. Adding a member twice is a
// no-op.
func (k *SdfxKernel) AddToCompound(c, s kernel.Shape) error {
	cs, err := unwrapKind(c, kernel.Compound)
	if err != nil {
		return err
	}
	sh, err := unwrap(s)
	if err != nil {
		return err
	}
	if cs == sh {
		return errs.KernelOperation("compound cannot contain itself")
	}
	for _, m := range cs.children {
		if m == sh {
			return nil
		}
	}
	cs.children = append(cs.children, sh)
	return nil
}

// RemoveFromCompound removes s from the members of c.
func (k *SdfxKernel) RemoveFromCompound(c, s kernel.Shape) error {
	cs, err := unwrapKind(c, kernel.Compound)
	if err != nil {
		return err
	}
	for i, m := range cs.children {
		if kernel.Shape(m) == s {
			cs.children = append(cs.children[:i], cs.children[i+1:]...)
			return nil
		}
	}
	return errs.KernelOperation("shape is not a member of the compound")
}

// Point returns the location of a vertex.
func (k *SdfxKernel) Point(v kernel.Shape) (geom.Vec3, error) {
	sh, err := unwrapKind(v, kernel.Vertex)
	if err != nil {
		return geom.Vec3{}, err
	}
	return sh.pt, nil
}

// BoundingBox returns the axis-aligned bounding box of s.
func (k *SdfxKernel) BoundingBox(s kernel.Shape) (geom.BBox, error) {
	sh, err := unwrap(s)
	if err != nil {
		return geom.BBox{}, err
	}
	return sh.bbox(), nil
}

func (k *SdfxKernel) String() string {
	return fmt.Sprintf("sdfx(tol=%g, cells<=%d)", k.tol, k.maxCells)
}
