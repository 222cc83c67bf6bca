package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/brepseq/pkg/config"
	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/engine"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/journal"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/kernel/sdfx"
	"github.com/chazu/brepseq/pkg/sequence"
	"github.com/chazu/brepseq/pkg/worker"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// colorPalette is a default palette used to assign distinct colors to parts.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App holds what the commands share.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	newEngine func() *engine.Engine
	journal   *journal.Store
	newKernel func() kernel.Kernel
}

// MeshData is the JSON mesh format written by the preview command.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

// NewApp opens the journal when one is configured.
func NewApp(cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{
		cfg:       cfg,
		log:       log,
		newEngine: engine.NewEngine,
		newKernel: func() kernel.Kernel { return sdfx.New() },
	}
	if cfg.Journal.Path != "" {
		if dir := filepath.Dir(cfg.Journal.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory: %w", err)
			}
		}
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
	}
	return a, nil
}

// Close releases the journal.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return a.journal.Close()
}

func isLisp(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lisp", ".zy", ".brepseq":
		return true
	}
	return false
}

// LoadScript reads a YAML script, or evaluates a Lisp source into one.
// Every source gets its own engine so parallel builds never supersede
// each other.
func (a *App) LoadScript(path string) (*sequence.Script, error) {
	if !isLisp(path) {
		return sequence.LoadFile(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sc, evalErrs, err := a.newEngine().Evaluate(string(src))
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", path, err)
	}
	if len(evalErrs) > 0 {
		joined := make([]error, len(evalErrs))
		for i, e := range evalErrs {
			joined[i] = e
		}
		return nil, errs.Construction("%s: %v", path, errors.Join(joined...))
	}
	return sc, nil
}

// BuildRequest is one script to build.
type BuildRequest struct {
	Path     string
	Finalize bool
	NoMesh   bool
	Stop     *sequence.StopAt
}

// BuildReport is the outcome of one build.
type BuildReport struct {
	Target   string
	TaskID   string
	LogPath  string
	Result   *worker.Result
	Duration time.Duration
}

// targetName is the script file name without directory or extension.
func targetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Build runs one script on its own worker and records it in the journal.
func (a *App) Build(ctx context.Context, req BuildRequest) (*BuildReport, error) {
	rep := &BuildReport{Target: targetName(req.Path), TaskID: uuid.NewString()}
	log := a.log.With("target", rep.Target, "task", rep.TaskID)
	ctx = ctxlog.WithLogger(ctx, log)

	sc, err := a.LoadScript(req.Path)
	if err != nil {
		return rep, err
	}
	if blocking := sequence.Errors(sequence.Validate(sc)); len(blocking) > 0 {
		joined := make([]error, len(blocking))
		for i, f := range blocking {
			joined[i] = f
		}
		return rep, errs.Construction("%s: %v", req.Path, errors.Join(joined...))
	}

	d := worker.NewDriver(a.newKernel, worker.Options{
		LogDir:   a.cfg.Worker.LogDir,
		LogLevel: slog.LevelDebug,
		Timeout:  a.cfg.Worker.Timeout,
	})
	defer d.Close()

	task := worker.Task{
		ID:         rep.TaskID,
		Script:     sc,
		NoMesh:     req.NoMesh,
		Finalize:   req.Finalize,
		Filename:   rep.Target,
		ScratchDir: a.cfg.Worker.ScratchDir,
		Kernel:     a.cfg.Kernel,
		Stop:       req.Stop,
	}
	start := time.Now()
	log.Info("build started", "steps", sc.Len())
	res, err := d.Run(ctx, task, func(m worker.Message) {
		switch m := m.(type) {
		case worker.LogPath:
			rep.LogPath = m.Path
		case worker.Progress:
			log.Debug(m.Text)
		}
	})
	rep.Duration = time.Since(start)
	rep.Result = res
	if err != nil {
		log.Error("build failed", "err", err, "log", rep.LogPath)
	} else {
		log.Info("build finished", "brep", res.BrepPath, "duration", rep.Duration)
	}
	a.record(ctx, rep, sc, err)
	return rep, err
}

func (a *App) record(ctx context.Context, rep *BuildReport, sc *sequence.Script, buildErr error) {
	if a.journal == nil {
		return
	}
	r := journal.Record{
		TaskID:   rep.TaskID,
		Target:   rep.Target,
		Steps:    sc.Len(),
		Outcome:  journal.OutcomeSucceeded,
		Duration: rep.Duration,
	}
	if rep.Result != nil {
		r.BrepPath = rep.Result.BrepPath
		r.Names = rep.Result.Names
	}
	if buildErr != nil {
		r.Outcome = journal.OutcomeFailed
		r.Error = buildErr.Error()
		var we *errs.WorkerError
		if errors.As(buildErr, &we) && we.Cancelled {
			r.Outcome = journal.OutcomeCancelled
		}
		var se *errs.StepError
		if errors.As(buildErr, &se) {
			r.FailedStep = se.Name
		}
	}
	// The journal must not fail a build that already ran.
	if err := a.journal.Record(context.WithoutCancel(ctx), r); err != nil {
		a.log.Warn("journal write failed", "task", rep.TaskID, "err", err)
	}
}

// BuildAll builds independent scripts concurrently, at most
// kernel.max_threads at a time. Every build runs to its end; the errors
// of all failed builds are joined.
func (a *App) BuildAll(ctx context.Context, reqs []BuildRequest) ([]*BuildReport, error) {
	reports := make([]*BuildReport, len(reqs))
	failures := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(max(1, a.cfg.Kernel.MaxThreads))
	for i, req := range reqs {
		g.Go(func() error {
			rep, err := a.Build(ctx, req)
			reports[i] = rep
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", req.Path, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(failures...)
}

// Meshes converts the previews of reports into colored mesh data.
func Meshes(reports []*BuildReport) []MeshData {
	out := []MeshData{}
	for _, rep := range reports {
		if rep == nil || rep.Result == nil || rep.Result.Mesh == nil {
			continue
		}
		m := rep.Result.Mesh
		out = append(out, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.Name,
			Color:    colorPalette[len(out)%len(colorPalette)],
		})
	}
	return out
}

// CheckReport is what eval prints for one source.
type CheckReport struct {
	Path     string
	Result   *engine.EvalResult
	Rendered string
}

// Check evaluates a Lisp source without building it. When emit is set the
// produced script is rendered as YAML.
func (a *App) Check(path string, emit bool) (*CheckReport, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := a.newEngine().Check(string(src))
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", path, err)
	}
	rep := &CheckReport{Path: path, Result: res}
	if emit && res.Script != nil {
		var buf bytes.Buffer
		if err := sequence.Encode(&buf, res.Script); err != nil {
			return nil, err
		}
		rep.Rendered = buf.String()
	}
	return rep, nil
}
