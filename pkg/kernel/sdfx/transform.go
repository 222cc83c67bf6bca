package sdfx

import (
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
)

// copier deep-copies shape trees, preserving sharing, mapping every point
// through xf and recording old -> new in hist.
type copier struct {
	xf      geom.Transform
	memo    map[*shape]*shape
	csgMemo map[*csgNode]*csgNode
	hist    *kernel.History

	// mergeTol > 0 fuses vertices closer than the tolerance.
	mergeTol float64
	verts    []*shape
}

func newCopier(xf geom.Transform) *copier {
	return &copier{
		xf:      xf,
		memo:    make(map[*shape]*shape),
		csgMemo: make(map[*csgNode]*csgNode),
		hist:    kernel.NewHistory(),
	}
}

func (c *copier) copy(s *shape) *shape {
	if n, ok := c.memo[s]; ok {
		return n
	}
	if s.kind == kernel.Vertex {
		n := c.vertex(s)
		c.memo[s] = n
		c.hist.AddModified(s, n)
		return n
	}
	n := &shape{kind: s.kind, closed: s.closed, surf: s.surf}
	if s.reversed != nil {
		n.reversed = append([]bool(nil), s.reversed...)
	}
	if s.poly != nil {
		n.poly = c.xf.ApplyAll(s.poly)
	}
	if s.grid != nil {
		n.grid = make([][]geom.Vec3, len(s.grid))
		for i, row := range s.grid {
			n.grid[i] = c.xf.ApplyAll(row)
		}
	}
	if s.csg != nil {
		n.csg = c.csg(s.csg)
	}
	c.memo[s] = n
	n.children = make([]*shape, len(s.children))
	for i, ch := range s.children {
		n.children[i] = c.copy(ch)
	}
	if n.kind == kernel.Edge && len(n.children) == 2 && n.children[0] == n.children[1] {
		n.children = n.children[:1]
		n.closed = true
	}
	c.hist.AddModified(s, n)
	return n
}

func (c *copier) vertex(s *shape) *shape {
	p := c.xf.Apply(s.pt)
	if c.mergeTol > 0 {
		for _, v := range c.verts {
			if geom.Near(v.pt, p, c.mergeTol) {
				return v
			}
		}
	}
	n := newVertex(p)
	c.verts = append(c.verts, n)
	return n
}

func (c *copier) csg(n *csgNode) *csgNode {
	if m, ok := c.csgMemo[n]; ok {
		return m
	}
	var m *csgNode
	if !c.xf.IsIdentity() {
		m = n.placed(c.xf)
	} else {
		cp := *n
		cp.cached = nil
		m = &cp
	}
	c.csgMemo[n] = m
	return m
}

// Transform returns a moved copy of s. The history maps every sub-shape of
// s to its image.
func (k *SdfxKernel) Transform(s kernel.Shape, t geom.Transform) (kernel.Shape, *kernel.History, error) {
	sh, err := unwrap(s)
	if err != nil {
		return nil, nil, err
	}
	c := newCopier(t)
	return c.copy(sh), c.hist, nil
}

// Copy returns a deep copy of s.
func (k *SdfxKernel) Copy(s kernel.Shape) (kernel.Shape, *kernel.History, error) {
	return k.Transform(s, geom.Identity())
}

// Unify returns s unchanged. Faces are never split on shared planes here.
func (k *SdfxKernel) Unify(s kernel.Shape) (kernel.Shape, *kernel.History, error) {
	if _, err := unwrap(s); err != nil {
		return nil, nil, err
	}
	return s, kernel.NewHistory(), nil
}

// Heal rebuilds s with coincident vertices fused and, when FixSmallEdges is
// set, edges shorter than the tolerance dropped from their wires. SewFaces
// gathers free faces of a compound into a shell.
func (k *SdfxKernel) Heal(s kernel.Shape, opts kernel.HealOptions) (kernel.Shape, *kernel.History, error) {
	sh, err := unwrap(s)
	if err != nil {
		return nil, nil, err
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = k.tol
	}
	c := newCopier(geom.Identity())
	c.mergeTol = tol
	out := c.copy(sh)
	if opts.FixSmallEdges || opts.FixDegenerated {
		out.walk(func(x *shape) {
			if x.kind != kernel.Wire || len(x.children) < 2 {
				return
			}
			var keep []*shape
			var rev []bool
			for i, e := range x.children {
				if a, b := e.ends(); a == b && !e.closed {
					c.hist.MarkDeleted(e)
					continue
				}
				if !e.closed && polyLength(e.poly) < tol {
					c.hist.MarkDeleted(e)
					continue
				}
				keep = append(keep, e)
				rev = append(rev, x.reversed[i])
			}
			if len(keep) > 0 {
				x.children, x.reversed = keep, rev
			}
		})
	}
	if opts.SewFaces && out.kind == kernel.Compound {
		out = sewFaces(out, tol)
		if opts.MakeSolid {
			out = closeShells(out)
		}
	}
	return out, c.hist, nil
}

func polyLength(p []geom.Vec3) float64 {
	l := 0.0
	for i := 1; i < len(p); i++ {
		l += p[i].Sub(p[i-1]).Length()
	}
	return l
}

// sewFaces moves the direct face members of a compound into one shell.
// Edges of different faces that run between the same vertices along the
// same samples become one shared edge.
func sewFaces(c *shape, tol float64) *shape {
	shell := &shape{kind: kernel.Shell}
	out := &shape{kind: kernel.Compound}
	for _, m := range c.children {
		if m.kind == kernel.Face {
			shell.children = append(shell.children, m)
		} else {
			out.children = append(out.children, m)
		}
	}
	if len(shell.children) > 0 {
		shareEdges(shell, tol)
		out.children = append(out.children, shell)
	}
	return out
}

func shareEdges(shell *shape, tol float64) {
	var seen []*shape
	match := func(e *shape) (*shape, bool) {
		a, b := e.ends()
		for _, o := range seen {
			if o == e || len(o.poly) != len(e.poly) {
				continue
			}
			oa, ob := o.ends()
			switch {
			case oa == a && ob == b && samePoly(o.poly, e.poly, tol, false):
				return o, false
			case oa == b && ob == a && samePoly(o.poly, e.poly, tol, true):
				return o, true
			}
		}
		return nil, false
	}
	for _, f := range shell.children {
		for _, w := range f.children {
			if w.kind != kernel.Wire {
				continue
			}
			for i, e := range w.children {
				if e.closed {
					continue
				}
				if o, flip := match(e); o != nil {
					w.children[i] = o
					if flip && i < len(w.reversed) {
						w.reversed[i] = !w.reversed[i]
					}
					continue
				}
				seen = append(seen, e)
			}
		}
	}
}

func samePoly(p, q []geom.Vec3, tol float64, reversed bool) bool {
	n := len(p)
	for i := range p {
		j := i
		if reversed {
			j = n - 1 - i
		}
		if !geom.Near(p[i], q[j], tol) {
			return false
		}
	}
	return true
}

// closeShells turns every closed shell member into a solid. A shell is
// closed when each of its edges bounds exactly two face uses.
func closeShells(c *shape) *shape {
	for i, m := range c.children {
		if m.kind != kernel.Shell || !isClosed(m) {
			continue
		}
		c.children[i] = &shape{kind: kernel.Solid, children: []*shape{m}}
	}
	return c
}

func isClosed(shell *shape) bool {
	uses := make(map[*shape]int)
	for _, f := range shell.children {
		if f.surf == surfImplicit {
			return true
		}
		for _, w := range f.children {
			for _, e := range w.children {
				uses[e]++
			}
		}
	}
	if len(uses) == 0 {
		return false
	}
	for _, n := range uses {
		if n%2 != 0 {
			return false
		}
	}
	return true
}
