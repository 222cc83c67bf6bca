package brep

import (
	"context"
	"fmt"

	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/geom"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/topo"
)

type frameState struct {
	frame       geom.Frame
	group       int
	parent      kernel.Shape
	parentGroup int
}

// FrameMerge describes a local frame folded back into its parent.
type FrameMerge struct {
	Frame geom.Frame
	// Group is the local group that was dropped.
	Group int
	// IDs are the top-level parent ids of the merged geometry.
	IDs []topo.EntityID
	// Remap maps local ids to the parent ids of their moved images.
	Remap map[topo.EntityID]topo.EntityID
}

// PushFrame opens a local frame: the assembly is set aside, a fresh one
// starts and every registry opens a new group. It returns the group.
func (m *Model) PushFrame(ctx context.Context, f geom.Frame) int {
	st := &frameState{frame: f, parent: m.shape, parentGroup: m.reg.CurrentGroup()}
	m.shape = m.k.NewCompound()
	st.group = m.reg.NewGroup()
	m.frames = append(m.frames, st)
	ctxlog.FromContext(ctx).Debug("frame pushed", "group", st.group, "depth", len(m.frames))
	return st.group
}

// Depth returns the number of open frames.
func (m *Model) Depth() int { return len(m.frames) }

// TopFrame returns the innermost open frame.
func (m *Model) TopFrame() (geom.Frame, bool) {
	if len(m.frames) == 0 {
		return geom.Frame{}, false
	}
	return m.frames[len(m.frames)-1].frame, true
}

// Frames returns the open frames, outermost first.
func (m *Model) Frames() []geom.Frame {
	out := make([]geom.Frame, len(m.frames))
	for i, st := range m.frames {
		out[i] = st.frame
	}
	return out
}

// PopFrame closes the innermost frame. The local assembly is placed by the
// frame pose, registered into the parent group with fresh ids and merged
// into the parent assembly. The local group is dropped.
func (m *Model) PopFrame(ctx context.Context) (*FrameMerge, error) {
	if len(m.frames) == 0 {
		return nil, errs.Construction("no open frame to close")
	}
	st := m.frames[len(m.frames)-1]
	local := m.shape

	m.Sync(ctx, topo.SyncBoth)
	localIDs := make(map[kernel.Kind][]topo.EntityID)
	for _, kind := range kernel.TopoKinds {
		localIDs[kind] = m.reg.GroupIDs(kind, st.group)
	}

	moved, hist, err := m.k.Transform(local, st.frame.Pose())
	if err != nil {
		return nil, errs.KernelOperation("place frame: %v", err)
	}

	m.frames = m.frames[:len(m.frames)-1]
	m.shape = st.parent
	m.reg.SetGroup(st.parentGroup)

	var ids []topo.EntityID
	if len(m.k.Children(moved)) > 0 {
		ids, err = m.Register(ctx, moved)
		if err != nil {
			return nil, fmt.Errorf("merge frame: %w", err)
		}
	}

	remap := make(map[topo.EntityID]topo.EntityID)
	for _, kind := range kernel.TopoKinds {
		for _, lid := range localIDs[kind] {
			h, ok := m.reg.Get(lid)
			if !ok {
				continue
			}
			img, ok := hist.Image(h)
			if !ok {
				continue
			}
			if pid, ok := m.reg.IDOf(img); ok {
				remap[lid] = pid
			}
		}
	}
	if err := m.reg.DropGroup(st.group); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("frame popped", "group", st.group, "merged", len(ids))
	return &FrameMerge{Frame: st.frame, Group: st.group, IDs: ids, Remap: remap}, nil
}

// Levels visits every assembly from the root to the innermost frame. For
// each one the matching registry group is active while fn runs, and pose
// places that assembly into the root frame. The innermost group is
// reactivated afterwards.
func (m *Model) Levels(fn func(depth int, shape kernel.Shape, pose geom.Transform) error) error {
	if len(m.frames) == 0 {
		return fn(0, m.shape, geom.Identity())
	}
	defer m.reg.SetGroup(m.frames[len(m.frames)-1].group)

	var pose geom.Transform
	for d := 0; d <= len(m.frames); d++ {
		shape, group := m.shape, m.frames[len(m.frames)-1].group
		if d < len(m.frames) {
			shape, group = m.frames[d].parent, m.frames[d].parentGroup
		}
		if d > 0 {
			// Frame d-1 sits inside every frame opened before it.
			pose = m.frames[d-1].frame.Pose().Then(pose)
		}
		m.reg.SetGroup(group)
		if err := fn(d, shape, pose); err != nil {
			return err
		}
	}
	return nil
}
