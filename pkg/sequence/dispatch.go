package sequence

import (
	"context"
	"strings"

	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

// handler runs one step and returns the names it created.
type handler func(ctx context.Context, x *Executor, params any) ([]string, error)

type opInfo struct {
	params func() any
	run    handler
}

func typed[P any](fn func(context.Context, *Executor, *P) ([]string, error)) opInfo {
	return opInfo{
		params: func() any { return new(P) },
		run: func(ctx context.Context, x *Executor, params any) ([]string, error) {
			p, ok := params.(*P)
			if !ok {
				return nil, errs.Construction("params %T, want %T", params, p)
			}
			return fn(ctx, x, p)
		},
	}
}

var ops = map[Opcode]opInfo{
	OpPoint:    typed(point),
	OpLine:     typed(line),
	OpCircle:   typed(circle),
	OpRect:     typed(rect),
	OpBox:      typed(box),
	OpBall:     typed(ball),
	OpCylinder: typed(cylinder),
	OpCone:     typed(cone),
	OpTorus:    typed(torus),
	OpWedge:    typed(wedge),

	OpPolygon:         typed(polygon),
	OpCircleBy3Points: typed(circleBy3Points),

	OpUnion:        typed(boolean(kernel.Fuse, "uni", false)),
	OpUnion2:       typed(boolean(kernel.Fuse, "uni", true)),
	OpDifference:   typed(boolean(kernel.Cut, "diff", false)),
	OpIntersection: typed(boolean(kernel.Common, "diff", false)),
	OpFragments:    typed(boolean(kernel.Fragments, "diff", false)),

	OpMove:     typed(move),
	OpRotate:   typed(rotate),
	OpScale:    typed(scale),
	OpFlip:     typed(flip),
	OpArray:    typed(array),
	OpArrayRot: typed(arrayRot),

	OpArrayByPoints: typed(arrayByPoints),

	OpExtrude: typed(extrude),
	OpRevolve: typed(revolve),
	OpSweep:   typed(sweep),

	OpFrameStart:         typed(frameStart),
	OpFrameStartByPoints: typed(frameStartByPoints),
	OpFrameEnd:           typed(frameEnd),

	OpBrepImport: typed(brepImport),
	OpCADImport:  typed(cadImport),

	OpCopy:          typed(copyObjects),
	OpRemove:        typed(remove),
	OpCreateLine:    typed(createLine),
	OpCreateSurface: typed(createSurface),
	OpPointCenter:   typed(pointCenter),
	OpHeal:          typed(heal),
	OpCreateVolume:  typed(createVolume),
}

// resolve maps a name or a bare reference ("p3", "-l3") to a live entity.
func (x *Executor) resolve(ref string) (topo.Oriented, error) {
	ref = strings.TrimSpace(ref)
	if id, ok := x.names.Lookup(ref); ok {
		return topo.Oriented{ID: id}, nil
	}
	if rest, neg := strings.CutPrefix(ref, "-"); neg {
		if id, ok := x.names.Lookup(rest); ok {
			return topo.Oriented{ID: id, Reversed: true}, nil
		}
	}
	o, ok := topo.ParseRef(ref)
	if !ok {
		return topo.Oriented{}, errs.Construction("unknown object %q", ref)
	}
	r, err := x.model.Resolve(o)
	if err != nil {
		return topo.Oriented{}, errs.Construction("unknown object %q", ref)
	}
	return r, nil
}

// targets resolves refs, keeping only the listed kinds when any are given.
func (x *Executor) targets(refs []string, kinds ...kernel.Kind) ([]topo.EntityID, error) {
	out := make([]topo.EntityID, 0, len(refs))
	for _, r := range refs {
		o, err := x.resolve(r)
		if err != nil {
			return nil, err
		}
		if len(kinds) > 0 && !hasKind(kinds, o.ID.Kind) {
			return nil, errs.Construction("%q is a %v, want %v", r, o.ID.Kind, kinds)
		}
		out = append(out, o.ID)
	}
	return out, nil
}

// oriented resolves refs keeping their orientation.
func (x *Executor) oriented(refs []string, kind kernel.Kind) ([]topo.Oriented, error) {
	out := make([]topo.Oriented, 0, len(refs))
	for _, r := range refs {
		o, err := x.resolve(r)
		if err != nil {
			return nil, err
		}
		if o.ID.Kind != kind {
			return nil, errs.Construction("%q is a %v, want %v", r, o.ID.Kind, kind)
		}
		out = append(out, o)
	}
	return out, nil
}

func hasKind(kinds []kernel.Kind, k kernel.Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// forget drops the names of refs that were consumed.
func (x *Executor) forget(refs []string) {
	for _, r := range refs {
		x.names.Delete(strings.TrimSpace(r))
	}
}
