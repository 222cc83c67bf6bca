package kernel

import (
	"reflect"
	"testing"

	"github.com/chazu/brepseq/pkg/geom"
)

// --- Mesh helper method tests ---

func TestMeshVertexCount(t *testing.T) {
	tests := []struct {
		name     string
		vertices []float32
		want     int
	}{
		{"empty", nil, 0},
		{"one vertex", []float32{1, 2, 3}, 1},
		{"four vertices", []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices}
			if got := m.VertexCount(); got != tt.want {
				t.Errorf("VertexCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshTriangleCount(t *testing.T) {
	tests := []struct {
		name    string
		indices []uint32
		want    int
	}{
		{"empty", nil, 0},
		{"one triangle", []uint32{0, 1, 2}, 1},
		{"two triangles", []uint32{0, 1, 2, 2, 3, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Indices: tt.indices}
			if got := m.TriangleCount(); got != tt.want {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshIsEmpty(t *testing.T) {
	t.Run("empty mesh", func(t *testing.T) {
		m := &Mesh{}
		if !m.IsEmpty() {
			t.Error("IsEmpty() = false for empty mesh, want true")
		}
	})
	t.Run("non-empty mesh", func(t *testing.T) {
		m := &Mesh{Vertices: []float32{1, 2, 3}}
		if m.IsEmpty() {
			t.Error("IsEmpty() = true for non-empty mesh, want false")
		}
	})
}

func TestMeshBounds(t *testing.T) {
	m := &Mesh{Vertices: []float32{0, 0, 0, 2, 1, 0, 1, 3, -1}}
	b := m.Bounds()
	if b.Min != geom.V(0, 0, -1) || b.Max != geom.V(2, 3, 0) {
		t.Errorf("Bounds() = %v, want [0 0 -1]-[2 3 0]", b)
	}
}

// --- Topology helpers over a hand-built tree ---

type node struct {
	kind Kind
	name string
}

func (n *node) Kind() Kind { return n.kind }

// treeKernel answers Children from a fixed map. Every other method panics
// through the nil embedded interface.
type treeKernel struct {
	Kernel
	kids map[Shape][]Shape
}

func (k *treeKernel) Children(s Shape) []Shape { return k.kids[s] }

var _ Kernel = (*treeKernel)(nil)

// twoFaces builds a shell of two faces sharing edge e2, plus a free edge in
// a compound.
func twoFaces() (*treeKernel, map[string]*node) {
	n := map[string]*node{}
	mk := func(name string, kind Kind) *node {
		n[name] = &node{kind: kind, name: name}
		return n[name]
	}
	for _, v := range []string{"p1", "p2", "p3", "p4", "p5"} {
		mk(v, Vertex)
	}
	for _, e := range []string{"e1", "e2", "e3", "e4", "e5", "efree"} {
		mk(e, Edge)
	}
	mk("w1", Wire)
	mk("w2", Wire)
	mk("f1", Face)
	mk("f2", Face)
	mk("sh", Shell)
	mk("c", Compound)
	k := &treeKernel{kids: map[Shape][]Shape{
		n["e1"]:    {n["p1"], n["p2"]},
		n["e2"]:    {n["p2"], n["p3"]},
		n["e3"]:    {n["p3"], n["p1"]},
		n["e4"]:    {n["p3"], n["p4"]},
		n["e5"]:    {n["p4"], n["p2"]},
		n["efree"]: {n["p5"], n["p4"]},
		n["w1"]:    {n["e1"], n["e2"], n["e3"]},
		n["w2"]:    {n["e2"], n["e4"], n["e5"]},
		n["f1"]:    {n["w1"]},
		n["f2"]:    {n["w2"]},
		n["sh"]:    {n["f1"], n["f2"]},
		n["c"]:     {n["sh"], n["efree"]},
	}}
	return k, n
}

func names(shapes []Shape) []string {
	out := make([]string, len(shapes))
	for i, s := range shapes {
		out[i] = s.(*node).name
	}
	return out
}

func TestExplore(t *testing.T) {
	k, n := twoFaces()
	tests := []struct {
		kind Kind
		want []string
	}{
		{Face, []string{"f1", "f2"}},
		{Edge, []string{"e1", "e2", "e3", "e4", "e5", "efree"}},
		{Vertex, []string{"p1", "p2", "p3", "p4", "p5"}},
		{Solid, nil},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got := names(Explore(k, n["c"], tt.kind))
			if !reflect.DeepEqual(got, tt.want) && !(len(got) == 0 && len(tt.want) == 0) {
				t.Errorf("Explore(%v) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}

func TestExploreOutside(t *testing.T) {
	k, n := twoFaces()
	got := names(ExploreOutside(k, n["c"], Edge, Wire))
	if !reflect.DeepEqual(got, []string{"efree"}) {
		t.Errorf("ExploreOutside(Edge, Wire) = %v, want [efree]", got)
	}
	if got := ExploreOutside(k, n["c"], Face, Shell); len(got) != 0 {
		t.Errorf("ExploreOutside(Face, Shell) = %v, want none", names(got))
	}
}

func TestAncestors(t *testing.T) {
	k, n := twoFaces()
	anc := Ancestors(k, n["c"], Edge, Face)
	if got := names(anc[n["e2"]]); !reflect.DeepEqual(got, []string{"f1", "f2"}) {
		t.Errorf("faces of e2 = %v, want [f1 f2]", got)
	}
	if got := anc[n["efree"]]; len(got) != 0 {
		t.Errorf("faces of efree = %v, want none", names(got))
	}
	if !Contains(k, n["sh"], n["p3"]) {
		t.Error("Contains(sh, p3) = false")
	}
	if Contains(k, n["f1"], n["p4"]) {
		t.Error("Contains(f1, p4) = true")
	}
}

func TestHistory(t *testing.T) {
	a, b, c := &node{kind: Face}, &node{kind: Face}, &node{kind: Face}
	h := NewHistory()
	h.AddModified(a, b, c)
	h.MarkDeleted(c)
	if img, ok := h.Image(a); !ok || img != b {
		t.Errorf("Image(a) = %v, %v", img, ok)
	}
	if !h.IsDeleted(c) || h.IsDeleted(a) {
		t.Error("IsDeleted mismatch")
	}
	var nilH *History
	if nilH.Modified(a) != nil || nilH.IsDeleted(a) || nilH.Len() != 0 {
		t.Error("nil history should be empty")
	}
}

func TestKindDim(t *testing.T) {
	want := map[Kind]int{Vertex: 0, Edge: 1, Wire: 1, Face: 2, Shell: 2, Solid: 3, Compound: -1}
	for k, d := range want {
		if k.Dim() != d {
			t.Errorf("%v.Dim() = %d, want %d", k, k.Dim(), d)
		}
	}
	if Edge.Ref() != "l" || Wire.Ref() != "" {
		t.Errorf("Ref mismatch: %q %q", Edge.Ref(), Wire.Ref())
	}
}
