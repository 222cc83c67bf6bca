package sdfx

import (
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
)

// Boolean combines solids through their CSG trees. Non-solid operands are
// passed through unchanged. The result is always a compound.
//
// Fragments splits overlapping solids pairwise: every solid minus the
// solids it overlaps, plus one piece per overlapping pair. Solids that
// overlap nothing are returned as they are, keeping their handles.
func (k *SdfxKernel) Boolean(op kernel.BooleanOp, args, tools []kernel.Shape, opts kernel.BooleanOptions) (kernel.Shape, *kernel.History, error) {
	a, err := unwrapAll(args)
	if err != nil {
		return nil, nil, err
	}
	t, err := unwrapAll(tools)
	if err != nil {
		return nil, nil, err
	}
	a, t = flatten(a), flatten(t)
	if len(a) == 0 {
		return nil, nil, errs.KernelOperation("%v without arguments", op)
	}
	b := &booleanRun{fuzzy: opts.FuzzyValue, hist: kernel.NewHistory(), out: &shape{kind: kernel.Compound}}
	argSolids, argOther := splitSolids(a)
	toolSolids, toolOther := splitSolids(t)
	for _, s := range append(argSolids, toolSolids...) {
		if s.csg == nil {
			return nil, nil, errs.KernelOperation("%v: solid has no implicit description", op)
		}
	}

	switch op {
	case kernel.Fuse:
		all := append(argSolids, toolSolids...)
		if len(all) == 1 {
			b.keep(all...)
		} else if len(all) > 1 {
			b.replace(all, newImplicitSolid(union(all)))
		}
		b.keep(argOther...)
		b.keep(toolOther...)
	case kernel.Cut:
		if len(toolSolids) == 0 {
			b.keep(argSolids...)
		}
		for _, s := range argSolids {
			if len(toolSolids) == 0 {
				break
			}
			hits := b.overlapping(s, toolSolids)
			if len(hits) == 0 {
				b.keep(s)
				continue
			}
			kids := append([]*csgNode{s.csg}, csgs(hits)...)
			b.replace([]*shape{s}, newImplicitSolid(combine(csgCut, kids...)))
		}
		b.keep(argOther...)
		b.drop(toolSolids...)
		b.drop(toolOther...)
	case kernel.Common:
		for _, s := range argSolids {
			hits := b.overlapping(s, toolSolids)
			if len(hits) != len(toolSolids) || len(toolSolids) == 0 {
				b.drop(s)
				continue
			}
			kids := append([]*csgNode{s.csg}, csgs(hits)...)
			b.replace([]*shape{s}, newImplicitSolid(combine(csgCommon, kids...)))
		}
		b.drop(toolSolids...)
		b.drop(argOther...)
		b.drop(toolOther...)
	case kernel.Fragments:
		b.fragments(append(argSolids, toolSolids...))
		b.keep(argOther...)
		b.keep(toolOther...)
	default:
		return nil, nil, errs.KernelOperation("unknown Boolean operation %v", op)
	}
	return b.out, b.hist, nil
}

type booleanRun struct {
	fuzzy float64
	hist  *kernel.History
	out   *shape
}

// keep passes shapes through with their handles.
func (b *booleanRun) keep(ss ...*shape) {
	b.out.children = append(b.out.children, ss...)
}

// replace records result as the image of every input and of their
// sub-shapes, which do not survive in the implicit result.
func (b *booleanRun) replace(inputs []*shape, result *shape) {
	for _, in := range inputs {
		b.hist.AddModified(in, result)
		in.walk(func(x *shape) {
			if x != in {
				b.hist.MarkDeleted(x)
			}
		})
	}
	b.out.children = append(b.out.children, result)
}

func (b *booleanRun) drop(ss ...*shape) {
	for _, s := range ss {
		s.walk(func(x *shape) { b.hist.MarkDeleted(x) })
	}
}

// overlapping returns the candidates whose bounds meet the bounds of s,
// grown by the fuzzy value.
func (b *booleanRun) overlapping(s *shape, cands []*shape) []*shape {
	box := s.bbox().Enlarge(b.fuzzy)
	var out []*shape
	for _, c := range cands {
		if c != s && !box.Intersect(c.bbox()).IsEmpty() {
			out = append(out, c)
		}
	}
	return out
}

func (b *booleanRun) fragments(solids []*shape) {
	for i, s := range solids {
		hits := b.overlapping(s, solids)
		if len(hits) == 0 {
			b.keep(s)
			continue
		}
		var pieces []*shape
		kids := append([]*csgNode{s.csg}, csgs(hits)...)
		pieces = append(pieces, newImplicitSolid(combine(csgCut, kids...)))
		for _, h := range hits {
			j := indexOf(solids, h)
			if j < i {
				continue
			}
			common := newImplicitSolid(combine(csgCommon, s.csg, h.csg))
			pieces = append(pieces, common)
			b.hist.AddModified(h, common)
		}
		images := make([]kernel.Shape, len(pieces))
		for j, p := range pieces {
			images[j] = p
		}
		b.hist.AddModified(s, images...)
		s.walk(func(x *shape) {
			if x != s {
				b.hist.MarkDeleted(x)
			}
		})
		b.out.children = append(b.out.children, pieces...)
	}
}

func indexOf(ss []*shape, s *shape) int {
	for i, x := range ss {
		if x == s {
			return i
		}
	}
	return -1
}

func union(ss []*shape) *csgNode {
	if len(ss) == 1 {
		return ss[0].csg
	}
	return combine(csgUnion, csgs(ss)...)
}

func csgs(ss []*shape) []*csgNode {
	out := make([]*csgNode, len(ss))
	for i, s := range ss {
		out[i] = s.csg
	}
	return out
}

// flatten replaces compounds by their members, recursively.
func flatten(ss []*shape) []*shape {
	var out []*shape
	for _, s := range ss {
		if s.kind == kernel.Compound {
			out = append(out, flatten(s.children)...)
			continue
		}
		out = append(out, s)
	}
	return out
}

func splitSolids(ss []*shape) (solids, other []*shape) {
	for _, s := range ss {
		if s.kind == kernel.Solid {
			solids = append(solids, s)
		} else {
			other = append(other, s)
		}
	}
	return solids, other
}
