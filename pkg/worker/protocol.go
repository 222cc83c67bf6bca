// Package worker runs builds off the caller's goroutine. A Worker owns one
// kernel session, model and executor and talks to its Driver only through
// messages: first a LogPath, then one Progress per step, then exactly one
// Result or Failure.
package worker

import (
	"github.com/chazu/brepseq/pkg/brep"
	"github.com/chazu/brepseq/pkg/kernel"
	"github.com/chazu/brepseq/pkg/names"
	"github.com/chazu/brepseq/pkg/sequence"
	"github.com/chazu/brepseq/pkg/tessellate"
	"github.com/chazu/brepseq/pkg/topo"
)

// KernelConfig carries the kernel settings of a task.
type KernelConfig struct {
	PreviewResolution int     `koanf:"preview_resolution"`
	PreviewAlgorithm  int     `koanf:"preview_algorithm"`
	Parallel          bool    `koanf:"parallel"`
	BooleanTolerance  float64 `koanf:"boolean_tolerance"`
	GeomTolerance     float64 `koanf:"geom_tolerance"`
	MaxThreads        int     `koanf:"max_threads"`
	SkipFragments     bool    `koanf:"skip_frag"`
	Use1DPreview      bool    `koanf:"use_1d_preview"`
	LongEdgeThr       float64 `koanf:"long_edge_thr"`
	SmallEdgeThr      float64 `koanf:"small_edge_thr"`
	SmallEdgeSeg      int     `koanf:"small_edge_seg"`
	MaxSeg            int     `koanf:"max_seg"`
}

// DefaultKernelConfig returns the configuration defaults.
func DefaultKernelConfig() KernelConfig {
	return KernelConfig{
		PreviewResolution: tessellate.DefaultResolution,
		PreviewAlgorithm:  2,
		BooleanTolerance:  1e-8,
		GeomTolerance:     1e-6,
		MaxThreads:        1,
		LongEdgeThr:       0.1,
		SmallEdgeThr:      0.001,
		SmallEdgeSeg:      3,
		MaxSeg:            30,
	}
}

// ModelOptions maps the configuration onto model options.
func (c KernelConfig) ModelOptions() brep.Options {
	return brep.Options{
		Boolean:       kernel.BooleanOptions{RunParallel: c.Parallel, FuzzyValue: c.BooleanTolerance},
		GeomTolerance: c.GeomTolerance,
	}
}

// PreviewOptions maps the configuration onto preview options.
func (c KernelConfig) PreviewOptions() tessellate.Options {
	return tessellate.Options{Resolution: c.PreviewResolution, EdgesOnly: c.Use1DPreview}
}

// Task is one build request.
type Task struct {
	// ID is assigned by the driver when empty.
	ID     string
	Script *sequence.Script
	// NoMesh skips the preview.
	NoMesh bool
	// Finalize writes Filename into the working directory, runs fragments
	// unless disabled and reloads the file. Otherwise the shape is written
	// to ScratchDir under the name of the last executed step.
	Finalize   bool
	Filename   string
	StartIndex int
	ScratchDir string
	Kernel     KernelConfig
	Stop       *sequence.StopAt
}

// Message is anything a worker sends back.
type Message interface {
	// Final reports whether no further message follows for the task.
	Final() bool
}

// LogPath names the task's log file. It is always the first message.
type LogPath struct {
	TaskID string
	Path   string
}

// Progress is sent once per step, before the step runs.
type Progress struct {
	TaskID string
	Text   string
}

// Result is the successful end of a task.
type Result struct {
	TaskID     string
	Names      []names.Entry
	Steps      map[string]sequence.StepResult
	Order      []string
	Registry   topo.Export
	BrepPath   string
	Preview    *tessellate.PreviewData
	Mesh       *kernel.Mesh
	Next       int
	Stopped    bool
	OpenFrames int
}

// Failure is the unsuccessful end of a task. A non-fatal failure keeps the
// worker state so the caller can fix the script and continue from the
// failing step; after a fatal one the worker is gone.
type Failure struct {
	TaskID string
	Err    error
	Trace  string
	Fatal  bool
}

func (LogPath) Final() bool  { return false }
func (Progress) Final() bool { return false }
func (Result) Final() bool   { return true }
func (Failure) Final() bool  { return true }
