package sdfx

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/hpinc/go3mf"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	fileFormat  = "brepseq-shape"
	fileVersion = 1
)

// document is the on-disk form of a shape tree: a post-order table in
// which children always precede their parents. The root is the last
// record.
type document struct {
	Format  string     `msgpack:"format"`
	Version int        `msgpack:"version"`
	Shapes  []record   `msgpack:"shapes"`
	CSG     []*csgNode `msgpack:"csg,omitempty"`
}

type record struct {
	Kind     kernel.Kind   `msgpack:"k"`
	Children []int         `msgpack:"c,omitempty"`
	Reversed []bool        `msgpack:"r,omitempty"`
	Point    geom.Vec3     `msgpack:"p"`
	Poly     []geom.Vec3   `msgpack:"poly,omitempty"`
	Closed   bool          `msgpack:"closed,omitempty"`
	Surf     surfaceKind   `msgpack:"s,omitempty"`
	Grid     [][]geom.Vec3 `msgpack:"g,omitempty"`
	CSG      int           `msgpack:"csg,omitempty"` // 1-based index into document.CSG
}

// Write serializes s to path. Child order is preserved so that a reload
// enumerates sub-shapes in the same order.
func (k *SdfxKernel) Write(s kernel.Shape, path string) error {
	sh, err := unwrap(s)
	if err != nil {
		return err
	}
	doc := document{Format: fileFormat, Version: fileVersion}
	index := make(map[*shape]int)
	csgIndex := make(map[*csgNode]int)
	var add func(*shape) int
	add = func(x *shape) int {
		if i, ok := index[x]; ok {
			return i
		}
		rec := record{
			Kind:     x.kind,
			Reversed: x.reversed,
			Point:    x.pt,
			Poly:     x.poly,
			Closed:   x.closed,
			Surf:     x.surf,
			Grid:     x.grid,
		}
		for _, c := range x.children {
			rec.Children = append(rec.Children, add(c))
		}
		if x.csg != nil {
			ci, ok := csgIndex[x.csg]
			if !ok {
				doc.CSG = append(doc.CSG, x.csg)
				ci = len(doc.CSG)
				csgIndex[x.csg] = ci
			}
			rec.CSG = ci
		}
		doc.Shapes = append(doc.Shapes, rec)
		index[x] = len(doc.Shapes) - 1
		return index[x]
	}
	add(sh)
	data, err := msgpack.Marshal(&doc)
	if err != nil {
		return errs.Serialization(err, "encode %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Serialization(err, "write %s", path)
	}
	return nil
}

// Read loads a shape tree written by Write. Every handle is new.
func (k *SdfxKernel) Read(path string) (kernel.Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Serialization(err, "read %s", path)
	}
	var doc document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, errs.Serialization(err, "decode %s", path)
	}
	if doc.Format != fileFormat {
		return nil, errs.Serialization(nil, "%s: unknown format %q", path, doc.Format)
	}
	if len(doc.Shapes) == 0 {
		return nil, errs.Serialization(nil, "%s: empty shape table", path)
	}
	shapes := make([]*shape, len(doc.Shapes))
	for i, rec := range doc.Shapes {
		x := &shape{
			kind:     rec.Kind,
			reversed: rec.Reversed,
			pt:       rec.Point,
			poly:     rec.Poly,
			closed:   rec.Closed,
			surf:     rec.Surf,
			grid:     rec.Grid,
		}
		for _, c := range rec.Children {
			if c < 0 || c >= i {
				return nil, errs.Serialization(nil, "%s: record %d refers forward to %d", path, i, c)
			}
			x.children = append(x.children, shapes[c])
		}
		if rec.CSG > 0 {
			if rec.CSG > len(doc.CSG) {
				return nil, errs.Serialization(nil, "%s: record %d has bad csg index", path, i)
			}
			x.csg = doc.CSG[rec.CSG-1]
		}
		shapes[i] = x
	}
	return shapes[len(shapes)-1], nil
}

// ImportCAD reads an external model, scaling coordinates by scale. 3MF
// meshes become one shell per object, closed shells become solids; files in
// the native format are read as is.
func (k *SdfxKernel) ImportCAD(path string, scale float64) (kernel.Shape, error) {
	if scale == 0 {
		scale = 1
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".3mf":
		return k.import3MF(path, scale)
	case ".brep", ".bsq":
		s, err := k.Read(path)
		if err != nil || scale == 1 {
			return s, err
		}
		out, _, err := k.Transform(s, geom.Scaling(geom.Vec3{}, geom.V(scale, scale, scale)))
		return out, err
	}
	return nil, errs.Serialization(kernel.ErrUnsupported, "import %s", path)
}

func (k *SdfxKernel) import3MF(path string, scale float64) (kernel.Shape, error) {
	r, err := go3mf.OpenReader(path)
	if err != nil {
		return nil, errs.Serialization(err, "open %s", path)
	}
	defer r.Close()
	var model go3mf.Model
	if err := r.Decode(&model); err != nil {
		return nil, errs.Serialization(err, "decode %s", path)
	}
	out := &shape{kind: kernel.Compound}
	for _, obj := range model.Resources.Objects {
		if obj.Mesh == nil {
			continue
		}
		pts := make([]geom.Vec3, len(obj.Mesh.Vertices.Vertex))
		for i, v := range obj.Mesh.Vertices.Vertex {
			pts[i] = geom.V(float64(v[0])*scale, float64(v[1])*scale, float64(v[2])*scale)
		}
		tris := make([][3]int, 0, len(obj.Mesh.Triangles.Triangle))
		for _, t := range obj.Mesh.Triangles.Triangle {
			tris = append(tris, [3]int{int(t.V1), int(t.V2), int(t.V3)})
		}
		sh, err := triangleShell(pts, tris)
		if err != nil {
			return nil, errs.Serialization(err, "%s: object %d", path, obj.ID)
		}
		out.children = append(out.children, sh)
	}
	if len(out.children) == 0 {
		return nil, errs.Serialization(nil, "%s: no mesh objects", path)
	}
	return out, nil
}

// triangleShell sews triangles into a shell of planar faces sharing
// vertices and edges. A closed shell is wrapped in a solid.
func triangleShell(pts []geom.Vec3, tris [][3]int) (*shape, error) {
	verts := make([]*shape, len(pts))
	vertex := func(i int) (*shape, error) {
		if i < 0 || i >= len(pts) {
			return nil, errs.Construction("vertex index %d out of range", i)
		}
		if verts[i] == nil {
			verts[i] = newVertex(pts[i])
		}
		return verts[i], nil
	}
	edges := make(map[[2]int]*shape)
	shell := &shape{kind: kernel.Shell}
	for _, t := range tris {
		var uses []*shape
		var rev []bool
		for j := 0; j < 3; j++ {
			a, b := t[j], t[(j+1)%3]
			key, r := [2]int{a, b}, false
			if a > b {
				key, r = [2]int{b, a}, true
			}
			e, ok := edges[key]
			if !ok {
				va, err := vertex(key[0])
				if err != nil {
					return nil, err
				}
				vb, err := vertex(key[1])
				if err != nil {
					return nil, err
				}
				e = newEdge(va, vb, []geom.Vec3{va.pt, vb.pt})
				edges[key] = e
			}
			uses = append(uses, e)
			rev = append(rev, r)
		}
		shell.children = append(shell.children, newFace(surfPlane, newWire(uses, rev)))
	}
	if isClosed(shell) {
		return &shape{kind: kernel.Solid, children: []*shape{shell}}, nil
	}
	return shell, nil
}
