// Package check provides the tool diagnostics behind the check subcommand:
// whether each upscaler family is installed under the tools directory with
// its model files, and whether pdftoppm is available for PDF inputs.
package check

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/tool"
	"github.com/backmassage/pixmaster/internal/transform"
)

// versionTimeout bounds the pdftoppm -v probe.
const versionTimeout = 10 * time.Second

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// stays testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Dependency is the availability of one external tool.
type Dependency struct {
	Name string
	Path string
	Err  error // *tool.NotFoundError when the executable is missing

	// MissingModels lists model directories that do not exist.
	MissingModels []string

	// Version is the first line of the tool's version output, when known.
	Version string
}

// OK reports whether the tool and all of its models are present.
func (d Dependency) OK() bool { return d.Err == nil && len(d.MissingModels) == 0 }

// Inspect looks for every upscaler family and for pdftoppm. Only pdftoppm
// is executed (with -v); the ncnn tools are checked on disk.
func Inspect(ctx context.Context, cfg *config.Config, inv *tool.Invoker) []Dependency {
	if inv == nil {
		inv = tool.NewInvoker(nil, false)
	}
	var deps []Dependency
	for _, f := range transform.Families {
		deps = append(deps, inspectFamily(cfg.ToolsDir, f))
	}
	return append(deps, inspectPdftoppm(ctx, cfg, inv))
}

func inspectFamily(toolsDir string, f transform.Family) Dependency {
	d := Dependency{Name: f.Name, Path: f.Executable(toolsDir)}
	if _, err := tool.Resolve(d.Path); err != nil {
		d.Err = err
		return d
	}
	seen := map[string]bool{}
	for _, m := range f.Models {
		dir := f.ModelDir(toolsDir, m)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			d.MissingModels = append(d.MissingModels, dir)
		}
	}
	return d
}

func inspectPdftoppm(ctx context.Context, cfg *config.Config, inv *tool.Invoker) Dependency {
	d := Dependency{Name: "pdftoppm", Path: cfg.Pdftoppm}
	path, err := tool.Resolve(cfg.Pdftoppm)
	if err != nil {
		d.Err = err
		return d
	}
	d.Path = path

	// Some poppler builds exit 99 after printing the version.
	res, err := inv.Invoke(ctx, path, []string{"-v"}, versionTimeout)
	var stderr string
	var fe *tool.FailedError
	switch {
	case err == nil:
		stderr = res.Stderr
	case errors.As(err, &fe):
		stderr = fe.Stderr
	}
	d.Version = firstLine(stderr)
	return d
}

// RunCheck logs the state of every dependency. It returns false when an
// upscaler family is unusable; a missing pdftoppm only warns since it is
// needed for PDF inputs alone.
func RunCheck(ctx context.Context, cfg *config.Config, log Logger, inv *tool.Invoker) bool {
	log.Info("=== Tool Check ===")
	log.Info("Tools directory: %s", cfg.ToolsDir)

	ok := true
	for _, d := range Inspect(ctx, cfg, inv) {
		switch {
		case d.Err != nil && d.Name == "pdftoppm":
			log.Warn("pdftoppm not found (PDF inputs will fail): %s", d.Path)
		case d.Err != nil:
			log.Error("%s not found: %s", d.Name, d.Path)
			ok = false
		case len(d.MissingModels) > 0:
			log.Error("%s: missing model files", d.Name)
			for _, m := range d.MissingModels {
				log.Error("  %s", m)
			}
			ok = false
		case d.Version != "":
			log.Success("%s: %s", d.Name, d.Version)
		default:
			log.Success("%s: %s", d.Name, d.Path)
		}
	}
	return ok
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
