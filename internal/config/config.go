// Package config holds runtime configuration: defaults, layered loading
// (config file, environment, CLI flags), and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// ParseColorMode maps user input onto a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch ColorMode(strings.ToLower(strings.TrimSpace(s))) {
	case ColorAuto:
		return ColorAuto, nil
	case ColorAlways:
		return ColorAlways, nil
	case ColorNever:
		return ColorNever, nil
	}
	return "", fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", s)
}

// DefaultToolTimeout bounds every external tool invocation.
const DefaultToolTimeout = 300 * time.Second

// Config holds all runtime settings shared by every subcommand. It is
// populated by [DefaultConfig] and then overlaid by [Load] before being
// passed (by pointer) to packages that need it.
type Config struct {
	// Paths.
	OutputDir string
	ToolsDir  string // Default: "<dir of executable>/tools".
	Pdftoppm  string // Default: "pdftoppm" (resolved on PATH).

	// External tools.
	ToolTimeout time.Duration // Default: 300s.

	// Behavior flags.
	SkipExisting bool // Default: false. Existing outputs are overwritten.
	MaxDimension int  // Default: 0 (off). Longest side cap before encoding.

	// Display and logging.
	Verbose   bool
	JSON      bool      // Emit machine-readable events instead of console progress.
	ColorMode ColorMode // Default: "auto".
	LogFile   string    // Optional log file path.
}

// DefaultConfig returns a Config with all defaults. Used as the base before
// [Load] applies config file, environment, and flag overrides.
func DefaultConfig() Config {
	return Config{
		ToolsDir:     DefaultToolsDir(),
		Pdftoppm:     "pdftoppm",
		ToolTimeout:  DefaultToolTimeout,
		SkipExisting: false,
		MaxDimension: 0,
		Verbose:      false,
		JSON:         false,
		ColorMode:    ColorAuto,
	}
}

// DefaultToolsDir returns the tools directory next to the running
// executable. External upscalers are installed there, never per item.
func DefaultToolsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "tools"
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "tools")
}

// ExecutableName appends the platform executable suffix to a tool name.
func ExecutableName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		return name + ".exe"
	}
	return name
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks enum and range fields.
func (c *Config) Validate() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("invalid tool timeout %s (must be positive)", c.ToolTimeout)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("invalid max dimension %d (use 0 to disable)", c.MaxDimension)
	}
	if c.ToolsDir == "" {
		return errors.New("tools directory must not be empty")
	}
	return nil
}

// ValidatePaths ensures the resolved output directory is not inside (or equal
// to) the resolved input directory, so a folder walk never picks up its own
// outputs. Both arguments must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == inputAbs || strings.HasPrefix(outputAbs+sep, inputAbs+sep) {
		return errors.New("output directory must not be inside input directory")
	}
	return nil
}
