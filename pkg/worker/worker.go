package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/chazu/brepseq/pkg/brep"
	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/sequence"
	"github.com/chazu/brepseq/pkg/tessellate"
)

type job struct {
	task Task
	out  chan Message
}

// Worker runs tasks one at a time on its own goroutine. Its model and
// executor persist between tasks so a task can continue the previous one.
type Worker struct {
	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	newKernel func() kernel.Kernel
	logDir    string
	logLevel  slog.Level

	x *sequence.Executor
}

// Start launches a worker. newKernel opens the kernel session on first use;
// task logs go to logDir (the OS temp dir when empty).
func Start(newKernel func() kernel.Kernel, logDir string, level slog.Level) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		jobs:      make(chan job),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		newKernel: newKernel,
		logDir:    logDir,
		logLevel:  level,
	}
	go w.loop()
	return w
}

// Submit hands t to the worker and returns the channel its messages arrive
// on. The channel is buffered for the whole task so the worker never
// blocks on a slow reader.
func (w *Worker) Submit(t Task) (<-chan Message, error) {
	n := 3
	if t.Script != nil {
		n += t.Script.Len()
	}
	j := job{task: t, out: make(chan Message, n)}
	select {
	case w.jobs <- j:
		return j.out, nil
	case <-w.done:
		return nil, &errs.WorkerError{TaskID: t.ID, Err: errors.New("worker has exited")}
	}
}

// Abandon stops the worker. A kernel call in flight runs to completion but
// the task stops at the next step boundary and nothing more is sent.
func (w *Worker) Abandon() { w.cancel() }

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			if fatal := w.handle(j); fatal {
				w.cancel()
				return
			}
		}
	}
}

func (w *Worker) openLog(id string) (*os.File, error) {
	dir := w.logDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(dir, "brepseq-"+id+".log"))
}

// handle runs one job and reports whether the worker must exit.
func (w *Worker) handle(j job) (fatal bool) {
	t := j.task
	f, err := w.openLog(t.ID)
	if err != nil {
		j.out <- Failure{TaskID: t.ID, Err: &errs.WorkerError{TaskID: t.ID, Err: err}, Fatal: true}
		return true
	}
	defer f.Close()
	j.out <- LogPath{TaskID: t.ID, Path: f.Name()}

	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: w.logLevel})).With("task", t.ID)
	ctx := ctxlog.WithLogger(w.ctx, log)

	defer func() {
		if r := recover(); r != nil {
			trace := string(debug.Stack())
			log.Error("failed", "panic", r)
			j.out <- Failure{
				TaskID: t.ID,
				Err:    &errs.WorkerError{TaskID: t.ID, Trace: trace, Err: fmt.Errorf("panic: %v", r)},
				Trace:  trace,
				Fatal:  true,
			}
			fatal = true
		}
	}()

	res, err := w.build(ctx, t, func(msg string) {
		j.out <- Progress{TaskID: t.ID, Text: msg}
	})
	if w.ctx.Err() != nil {
		// Abandoned; the driver no longer listens.
		return true
	}
	if err != nil {
		fatal = errs.IsFatal(err)
		log.Error("failed", "err", err, "fatal", fatal)
		j.out <- Failure{TaskID: t.ID, Err: err, Fatal: fatal}
		return fatal
	}
	j.out <- *res
	return false
}

func (w *Worker) build(ctx context.Context, t Task, progress func(string)) (*Result, error) {
	log := ctxlog.FromContext(ctx)
	if t.Script == nil {
		return nil, errs.Construction("task %s has no script", t.ID)
	}
	if w.x == nil {
		w.x = sequence.New(brep.New(w.newKernel(), t.Kernel.ModelOptions()))
	}
	m := w.x.Model()
	m.SetOptions(t.Kernel.ModelOptions())

	out, err := w.x.Run(ctx, t.Script, sequence.RunOptions{
		StartIndex: t.StartIndex,
		Stop:       t.Stop,
		Progress:   progress,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		TaskID:     t.ID,
		Names:      out.Names,
		Steps:      out.Results,
		Order:      out.Order,
		Next:       out.Next,
		Stopped:    out.Stopped,
		OpenFrames: out.OpenFrames,
	}
	if out.OpenFrames == 0 {
		if res.BrepPath, err = w.write(ctx, t, out); err != nil {
			return nil, err
		}
	} else {
		log.Info("frames open, shape file skipped", "depth", out.OpenFrames)
	}
	res.Registry = m.Registries().Export()

	if !t.NoMesh {
		p, err := tessellate.Preview(ctx, m, t.Kernel.PreviewOptions())
		if err != nil {
			return nil, fmt.Errorf("preview: %w", err)
		}
		res.Preview = p
		res.Mesh = tessellate.ToMesh(p, t.Filename)
	}
	return res, nil
}

// write stores the assembly. Final builds go to the working directory
// under the target file name; others go to the scratch dir under the name
// of the last step that ran.
func (w *Worker) write(ctx context.Context, t Task, out *sequence.Outcome) (string, error) {
	m := w.x.Model()
	if t.Finalize {
		return m.Finalize(ctx, brep.FinalizeOptions{
			Name:            t.Filename,
			Fragments:       !t.Kernel.SkipFragments,
			Reload:          true,
			VerifyTolerance: t.Kernel.GeomTolerance,
		})
	}
	name := t.Filename
	if n := len(out.Order); n > 0 {
		name = out.Order[n-1]
	}
	if name == "" {
		name = "empty"
	}
	dir := t.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	return m.Finalize(ctx, brep.FinalizeOptions{Name: name, Dir: dir})
}
