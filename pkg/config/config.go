// Package config loads brepseq settings. Precedence, highest first: flags,
// BREPSEQ_* environment variables, the YAML config file, defaults.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chazu/brepseq/pkg/worker"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes environment overrides: BREPSEQ_KERNEL_MAX_THREADS sets
// kernel.max_threads.
const EnvPrefix = "BREPSEQ_"

// Config is the full configuration.
type Config struct {
	Kernel  worker.KernelConfig `koanf:"kernel"`
	Worker  WorkerConfig        `koanf:"worker"`
	Journal JournalConfig       `koanf:"journal"`
	Log     LogConfig           `koanf:"log"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// WorkerConfig configures the build worker.
type WorkerConfig struct {
	// ScratchDir receives non-final shape files. Empty means the OS temp dir.
	ScratchDir string        `koanf:"scratch_dir"`
	LogDir     string        `koanf:"log_dir"`
	Timeout    time.Duration `koanf:"timeout"`
}

// JournalConfig configures the build journal. An empty path disables it.
type JournalConfig struct {
	Path string `koanf:"path"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"resolution":        "kernel.preview_resolution",
	"parallel":          "kernel.parallel",
	"boolean-tolerance": "kernel.boolean_tolerance",
	"geom-tolerance":    "kernel.geom_tolerance",
	"max-threads":       "kernel.max_threads",
	"skip-frag":         "kernel.skip_frag",
	"edges-only":        "kernel.use_1d_preview",
	"scratch-dir":       "worker.scratch_dir",
	"worker-log-dir":    "worker.log_dir",
	"timeout":           "worker.timeout",
	"journal":           "journal.path",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

func defaults() map[string]any {
	kc := worker.DefaultKernelConfig()
	return map[string]any{
		"kernel.preview_resolution": kc.PreviewResolution,
		"kernel.preview_algorithm":  kc.PreviewAlgorithm,
		"kernel.parallel":           kc.Parallel,
		"kernel.boolean_tolerance":  kc.BooleanTolerance,
		"kernel.geom_tolerance":     kc.GeomTolerance,
		"kernel.max_threads":        kc.MaxThreads,
		"kernel.skip_frag":          kc.SkipFragments,
		"kernel.use_1d_preview":     kc.Use1DPreview,
		"kernel.long_edge_thr":      kc.LongEdgeThr,
		"kernel.small_edge_thr":     kc.SmallEdgeThr,
		"kernel.small_edge_seg":     kc.SmallEdgeSeg,
		"kernel.max_seg":            kc.MaxSeg,
		"worker.scratch_dir":        "",
		"worker.log_dir":            "",
		"worker.timeout":            "5m",
		"journal.path":              "",
		"log.level":                 "info",
		"log.format":                "text",
	}
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	kc := worker.DefaultKernelConfig()
	fs.Int("resolution", kc.PreviewResolution, "preview density factor")
	fs.Bool("parallel", false, "run Boolean operations in parallel")
	fs.Float64("boolean-tolerance", kc.BooleanTolerance, "fuzzy value for Boolean operations")
	fs.Float64("geom-tolerance", kc.GeomTolerance, "healing and sewing tolerance")
	fs.Int("max-threads", kc.MaxThreads, "concurrent builds")
	fs.Bool("skip-frag", false, "skip fragments when finalizing")
	fs.Bool("edges-only", false, "edges-only preview")
	fs.String("scratch-dir", "", "directory for intermediate shape files")
	fs.String("worker-log-dir", "", "directory for per-task worker logs")
	fs.Duration("timeout", 5*time.Minute, "timeout per build task")
	fs.String("journal", "", "SQLite build journal (empty disables)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
}

// findConfigFile returns explicit, or brepseq.yaml / brepseq.yml in the
// working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"brepseq.yaml", "brepseq.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads the configuration. cfgFile may be empty; flags may be nil.
// Only flags the user changed override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", used, err)
		}
	}

	// BREPSEQ_KERNEL_MAX_THREADS -> kernel.max_threads
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = used
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Kernel.PreviewResolution <= 0:
		return fmt.Errorf("kernel.preview_resolution must be positive, got %d", c.Kernel.PreviewResolution)
	case c.Kernel.MaxThreads < 1:
		return fmt.Errorf("kernel.max_threads must be at least 1, got %d", c.Kernel.MaxThreads)
	case c.Kernel.BooleanTolerance < 0:
		return fmt.Errorf("kernel.boolean_tolerance must not be negative")
	case c.Kernel.GeomTolerance < 0:
		return fmt.Errorf("kernel.geom_tolerance must not be negative")
	case c.Worker.Timeout < 0:
		return fmt.Errorf("worker.timeout must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the CLI logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.SlogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
