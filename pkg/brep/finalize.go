package brep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/brepseq/pkg/ctxlog"
	"github.com/chazu/brepseq/pkg/errs"
	"github.com/chazu/brepseq/pkg/stabilize"
	"github.com/chazu/brepseq/pkg/topo"
)

// FileExt is the extension of written shape files.
const FileExt = ".brep"

var unsafeChars = strings.NewReplacer("/", "_", ":", "_", `\`, "_")

// SafeFile derives a file path from a target name. Path separators and
// colons become underscores. An empty dir means the working directory.
func SafeFile(name, dir, ext string) (string, error) {
	base := unsafeChars.Replace(name) + ext
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errs.Serialization(err, "working directory")
		}
		dir = wd
	}
	return filepath.Join(dir, base), nil
}

// FinalizeOptions control Finalize.
type FinalizeOptions struct {
	// Name is the target name the file is named after.
	Name string
	// Dir receives the file; empty means the working directory.
	Dir string
	// Fragments runs ApplyFragments before writing.
	Fragments bool
	// Reload reads the file back and rebinds every registry slot to the
	// reloaded handles.
	Reload bool
	// VerifyTolerance, when positive, checks reloaded vertex positions.
	VerifyTolerance float64
}

// Finalize writes the assembly to a shape file and returns its path.
func (m *Model) Finalize(ctx context.Context, o FinalizeOptions) (string, error) {
	log := ctxlog.FromContext(ctx)
	if o.Fragments {
		log.Info("finalize is on")
		if _, err := m.ApplyFragments(ctx); err != nil {
			return "", err
		}
	}
	path, err := SafeFile(o.Name, o.Dir, FileExt)
	if err != nil {
		return "", err
	}

	m.Sync(ctx, topo.SyncBoth)
	pre := stabilize.Capture(m.k, m.shape)
	if err := m.k.Write(m.shape, path); err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	log.Debug("shape written", "path", path)
	if !o.Reload {
		return path, nil
	}

	reloaded, err := m.k.Read(path)
	if err != nil {
		return "", fmt.Errorf("finalize: %w", err)
	}
	mapping, err := stabilize.Reconcile(pre, stabilize.Capture(m.k, reloaded))
	if err != nil {
		return "", err
	}
	if o.VerifyTolerance > 0 {
		if err := mapping.Verify(m.k, o.VerifyTolerance); err != nil {
			return "", err
		}
	}
	if err := mapping.Apply(m.reg); err != nil {
		return "", err
	}
	m.shape = reloaded
	log.Debug("numbering reconciled", "path", path)
	return path, nil
}
