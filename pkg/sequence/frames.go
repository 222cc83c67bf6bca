package sequence

import (
	"context"

	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

func frameStart(ctx context.Context, x *Executor, p *FrameParams) ([]string, error) {
	f, err := geom.NewFrame(p.Origin.V(), p.Axis1.V(), p.Axis2.V())
	if err != nil {
		return nil, errs.Construction("frame: %v", err)
	}
	x.openFrame(ctx, f)
	return nil, nil
}

func frameStartByPoints(ctx context.Context, x *Executor, p *FrameByPointsParams) ([]string, error) {
	ids, err := x.targets([]string{p.Center, p.Point1, p.Point2}, kernel.Vertex)
	if err != nil {
		return nil, err
	}
	pts := make([]geom.Vec3, len(ids))
	for i, id := range ids {
		if pts[i], err = x.model.Point(id); err != nil {
			return nil, err
		}
	}
	f, err := geom.FrameByPoints(pts[0], pts[1], pts[2], p.Flip1, p.Flip2)
	if err != nil {
		return nil, errs.Construction("frame: %v", err)
	}
	x.openFrame(ctx, f)
	return nil, nil
}

func frameEnd(ctx context.Context, x *Executor, _ *FrameEndParams) ([]string, error) {
	return x.closeFrame(ctx)
}

// openFrame saves the name table and continues with an empty copy that
// shares its name history.
func (x *Executor) openFrame(ctx context.Context, f geom.Frame) {
	x.outer = append(x.outer, x.names)
	local := x.names.Duplicate()
	local.Clear()
	x.names = local
	g := x.model.PushFrame(ctx, f)
	ctxlog.FromContext(ctx).Debug("frame opened", "group", g, "origin", f.Origin)
}

// closeFrame merges the local geometry into the enclosing scope. Local
// names follow their entities to the merged ids; merged entities left
// without a name are named with the "wp" prefix.
func (x *Executor) closeFrame(ctx context.Context) ([]string, error) {
	if len(x.outer) == 0 || x.model.Depth() == 0 {
		return nil, errs.Construction("FrameEnd without an open frame")
	}
	merge, err := x.model.PopFrame(ctx)
	if err != nil {
		return nil, err
	}
	local := x.names
	x.names = x.outer[len(x.outer)-1]
	x.outer = x.outer[:len(x.outer)-1]

	var out []string
	named := make(map[topo.EntityID]bool)
	for _, e := range local.Entries() {
		pid, ok := merge.Remap[e.ID]
		if !ok {
			continue
		}
		x.names.Bind(e.Name, pid)
		named[pid] = true
		out = append(out, e.Name)
	}
	for _, id := range merge.IDs {
		if named[id] {
			continue
		}
		if _, has := x.names.NameOf(id); has {
			continue
		}
		out = append(out, x.name(id, "wp"))
	}
	ctxlog.FromContext(ctx).Debug("frame closed", "group", merge.Group, "names", len(out))
	return out, nil
}
