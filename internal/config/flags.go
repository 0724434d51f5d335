package config

// This file binds the shared CLI flags and merges them with the config file
// and PIXMASTER_* environment variables. Precedence (highest first):
// flag, environment, config file, DefaultConfig.

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys shared by flags, environment variables and the config file.
const (
	KeyConfigFile   = "config"
	KeyOutputDir    = "output"
	KeyToolsDir     = "tools-dir"
	KeyPdftoppm     = "pdftoppm"
	KeyToolTimeout  = "timeout"
	KeySkipExisting = "skip-existing"
	KeyMaxDimension = "max-dimension"
	KeyVerbose      = "verbose"
	KeyJSON         = "json"
	KeyColor        = "color"
	KeyNoColor      = "no-color"
	KeyLogFile      = "log"
)

// EnvPrefix is prepended to every environment override (PIXMASTER_TOOLS_DIR, …).
const EnvPrefix = "PIXMASTER"

// BindFlags registers the shared flags on fs and binds each one to v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	def := DefaultConfig()

	fs.String(KeyConfigFile, "", "YAML config file")
	fs.StringP(KeyOutputDir, "o", "", "Output directory (created if missing)")
	fs.String(KeyToolsDir, def.ToolsDir, "Directory holding the upscaler/denoiser tools")
	fs.String(KeyPdftoppm, def.Pdftoppm, "pdftoppm executable used to render PDF pages")
	fs.Duration(KeyToolTimeout, def.ToolTimeout, "Timeout for each external tool invocation")
	fs.Bool(KeySkipExisting, def.SkipExisting, "Skip items whose output already exists")
	fs.Int(KeyMaxDimension, def.MaxDimension, "Downscale rasters whose longest side exceeds this (0 = off)")
	fs.BoolP(KeyVerbose, "v", false, "Verbose output")
	fs.Bool(KeyJSON, false, "Emit JSON events instead of console progress")
	fs.String(KeyColor, string(def.ColorMode), "Colored logs: auto | always | never")
	fs.Bool(KeyNoColor, false, "Same as --color=never")
	fs.StringP(KeyLogFile, "l", "", "Append logs to file")

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// Load reads the optional config file and environment into v and returns
// the merged Config. It does not validate; call [Config.Validate].
func Load(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	if v.IsSet(KeyOutputDir) {
		cfg.OutputDir = NormalizeDirArg(v.GetString(KeyOutputDir))
	}
	if v.IsSet(KeyToolsDir) {
		cfg.ToolsDir = NormalizeDirArg(v.GetString(KeyToolsDir))
	}
	if v.IsSet(KeyPdftoppm) {
		cfg.Pdftoppm = v.GetString(KeyPdftoppm)
	}
	if v.IsSet(KeyToolTimeout) {
		cfg.ToolTimeout = v.GetDuration(KeyToolTimeout)
	}
	if v.IsSet(KeySkipExisting) {
		cfg.SkipExisting = v.GetBool(KeySkipExisting)
	}
	if v.IsSet(KeyMaxDimension) {
		cfg.MaxDimension = v.GetInt(KeyMaxDimension)
	}
	cfg.Verbose = v.GetBool(KeyVerbose)
	cfg.JSON = v.GetBool(KeyJSON)
	cfg.LogFile = v.GetString(KeyLogFile)

	if v.IsSet(KeyColor) {
		mode, err := ParseColorMode(v.GetString(KeyColor))
		if err != nil {
			return cfg, err
		}
		cfg.ColorMode = mode
	}
	if v.GetBool(KeyNoColor) {
		cfg.ColorMode = ColorNever
	}
	return cfg, nil
}
