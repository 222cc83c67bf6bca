// Package sequence replays construction scripts against a model. Each step
// is dispatched through a static opcode table; its results are named in the
// named object table and recorded per step so a caller can show what every
// step produced.
package sequence

import (
	"context"
	"fmt"

	"github.com/chazu/brepseq/pkg/brep"
	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/names"
	"github.com/chazu/brepseq/pkg/topo"
)

// StepResult records the table after a step and the names it created.
type StepResult struct {
	Index      int      `msgpack:"index" json:"index"`
	Op         string   `msgpack:"op" json:"op"`
	ObjectKeys []string `msgpack:"object_keys" json:"objectKeys"`
	NewObjects []string `msgpack:"new_objects" json:"newObjects"`
}

// StopAt halts a pass at a step, picked by Name or else by Index.
type StopAt struct {
	Name  string
	Index int
	// After runs the step before halting.
	After bool
	// KeepFrameOpen leaves frames open at the halt so a preview can merge
	// them. Otherwise open frames are closed as if FrameEnd followed.
	KeepFrameOpen bool
}

func (s *StopAt) matches(i int, st Step) bool {
	if s == nil {
		return false
	}
	if s.Name != "" {
		return s.Name == st.Name
	}
	return s.Index == i
}

// RunOptions control Run.
type RunOptions struct {
	// StartIndex below 1 rebuilds from scratch. Otherwise the state of the
	// previous run is kept and only Steps[StartIndex:] are replayed.
	StartIndex int
	Stop       *StopAt
	// Progress receives "processing <name>" before every step.
	Progress func(msg string)
}

// Outcome is the state after a run.
type Outcome struct {
	Results  map[string]StepResult
	Order    []string
	Names    []names.Entry
	Registry topo.Export
	// Next is the index a continuation starts from.
	Next       int
	Stopped    bool
	StopIndex  int
	OpenFrames int
}

// Executor runs scripts against one model. It is not safe for concurrent
// use.
type Executor struct {
	model   *brep.Model
	names   *names.Table
	outer   []*names.Table
	results map[string]StepResult
	order   []string
	next    int
	// sealed is set when a halt closed frames the script had left open.
	// The state no longer matches any script prefix.
	sealed bool
}

// New returns an executor driving m.
func New(m *brep.Model) *Executor {
	x := &Executor{model: m}
	x.reset()
	return x
}

func (x *Executor) reset() {
	x.model.Reset()
	x.names = names.New()
	x.outer = nil
	x.results = make(map[string]StepResult)
	x.order = nil
	x.next = 0
	x.sealed = false
}

// Model returns the model the executor drives.
func (x *Executor) Model() *brep.Model { return x.model }

// Names returns the active name table.
func (x *Executor) Names() *names.Table { return x.names }

// Next returns the index a continuation starts from.
func (x *Executor) Next() int { return x.next }

// Result returns the record of the step called name.
func (x *Executor) Result(name string) (StepResult, bool) {
	r, ok := x.results[name]
	return r, ok
}

// Run replays script. A failing step aborts the pass with a
// *errs.StepError; the state up to the failing step is kept so the caller
// can fix the script and continue with StartIndex set to the step index.
func (x *Executor) Run(ctx context.Context, script *Script, o RunOptions) (*Outcome, error) {
	log := ctxlog.FromContext(ctx)
	start := o.StartIndex
	if start < 1 {
		x.reset()
		start = 0
	} else {
		if x.sealed {
			return nil, errs.Construction("cannot continue: a previous halt closed open frames")
		}
		if start > x.next || start > script.Len() {
			return nil, errs.Construction("cannot continue from step %d: state ends at step %d", start, x.next)
		}
	}
	log.Debug("run", "start", start, "steps", script.Len())

	out := &Outcome{StopIndex: -1}
	for i := start; i < script.Len(); i++ {
		s := script.Steps[i]
		if !o.Stop.matches(i, s) || o.Stop.After {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("run interrupted before step %d: %w", i, err)
			}
			log.Info("processing", "step", s.Name, "index", i)
			log.Debug("data", "op", s.Op.String(), "params", fmt.Sprintf("%+v", s.Params))
			if o.Progress != nil {
				o.Progress("processing " + s.Name)
			}
			if err := x.exec(ctx, i, s); err != nil {
				log.Error("failed", "step", s.Name, "index", i, "err", err)
				x.next = i
				return nil, &errs.StepError{Index: i, Name: s.Name, Op: s.Op.String(), Err: err}
			}
			x.next = i + 1
		}
		if o.Stop.matches(i, s) {
			out.Stopped, out.StopIndex = true, i
			break
		}
	}

	if out.Stopped && x.model.Depth() > 0 && !o.Stop.KeepFrameOpen {
		for x.model.Depth() > 0 {
			if _, err := x.closeFrame(ctx); err != nil {
				return nil, fmt.Errorf("close frame at halt: %w", err)
			}
		}
		x.sealed = true
	}
	x.model.Sync(ctx, topo.SyncBoth)
	x.prune()
	return x.outcome(out), nil
}

func (x *Executor) exec(ctx context.Context, i int, s Step) error {
	info, ok := ops[s.Op]
	if !ok {
		return errs.Construction("unknown opcode %v", s.Op)
	}
	if err := s.check(); err != nil {
		return errs.Construction("%v", err)
	}
	created, err := info.run(ctx, x, s.Params)
	if err != nil {
		return err
	}
	x.prune()
	if _, seen := x.results[s.Name]; !seen {
		x.order = append(x.order, s.Name)
	}
	x.results[s.Name] = StepResult{Index: i, Op: s.Op.String(), ObjectKeys: x.names.Names(), NewObjects: created}
	return nil
}

// prune drops names whose entity no longer exists.
func (x *Executor) prune() {
	dead := make(map[topo.EntityID]bool)
	for _, e := range x.names.Entries() {
		if dead[e.ID] {
			continue
		}
		if _, err := x.model.Get(e.ID); err != nil {
			dead[e.ID] = true
			x.names.DeleteID(e.ID)
		}
	}
}

func (x *Executor) outcome(out *Outcome) *Outcome {
	out.Results = make(map[string]StepResult, len(x.results))
	for k, v := range x.results {
		out.Results[k] = v
	}
	out.Order = append([]string(nil), x.order...)
	out.Names = x.names.Entries()
	out.Registry = x.model.Registries().Export()
	out.Next = x.next
	out.OpenFrames = x.model.Depth()
	return out
}

// name binds id under the next free name of the prefix family.
func (x *Executor) name(id topo.EntityID, prefix string) string {
	return x.names.AddObject(id, prefix)
}

func (x *Executor) nameAll(ids []topo.EntityID, prefix string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, x.name(id, prefix))
	}
	return out
}
