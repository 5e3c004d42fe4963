package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "cytops.yaml"
	ConfigFileNameAlt = "cytops.yml"
)

// maxUpwardSearchLevels limits how far up the directory tree the
// project root search goes.
const maxUpwardSearchLevels = 10

// configFileUsed records the config file loaded by the last Load call.
var configFileUsed string

// currentConfig holds the config produced by the last successful Load.
var currentConfig *Config

// Current returns the config from the last successful Load, or nil.
func Current() *Config {
	return currentConfig
}

// ConfigFileUsed returns the path of the config file used by the last
// Load, or empty if none was found.
func ConfigFileUsed() string {
	return configFileUsed
}

func configIn(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// FindProjectRoot searches upward from startDir for a directory
// containing a cytops config file. Returns empty if not found.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if configIn(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Load loads configuration from file, environment variables, and
// flags. Precedence (highest to lowest): flags > env (CYTOPS_*) >
// config file > defaults. Relative paths in the result are resolved
// against the project root.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// Project root: the config file's directory, or the nearest
	// ancestor carrying a config file, or the working directory.
	projectRoot := ""
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("invalid config path %s: %w", cfgFile, err)
		}
		cfgFile = abs
		projectRoot = filepath.Dir(abs)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if root := FindProjectRoot(cwd); root != "" {
			projectRoot = root
			cfgFile = configIn(root)
		} else {
			projectRoot = cwd
		}
	}

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"raw_path":          DefaultRawPath,
		"raw_format":        DefaultRawFormat,
		"artifacts_dir":     DefaultArtifactsDir,
		"state_path":        DefaultStateFile,
		"environment":       DefaultEnv,
		"time_adjust_hours": DefaultTimeAdjustHours,
		"validation_days":   DefaultValidationDays,
		"test_days":         DefaultTestDays,
		"export_format":     DefaultExportFormat,
		"keep_runs":         DefaultKeepRuns,
		"verbose":           false,
		"output":            DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file.
	configFileUsed = ""
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
			}
			configFileUsed = cfgFile
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// 3. Environment variables: CYTOPS_RAW_PATH -> raw_path,
	// CYTOPS_WAREHOUSE__TYPE -> warehouse.type.
	if err := k.Load(env.Provider("CYTOPS_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "CYTOPS_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set.
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ApplyDefaults()

	// Resolve relative paths against the project root.
	cfg.RawPath = resolveRelativeTo(cfg.RawPath, projectRoot)
	cfg.ArtifactsDir = resolveRelativeTo(cfg.ArtifactsDir, projectRoot)
	cfg.StatePath = resolveRelativeTo(cfg.StatePath, projectRoot)
	if cfg.Warehouse != nil && cfg.Warehouse.Type == "duckdb" && cfg.Warehouse.Path != ":memory:" {
		cfg.Warehouse.Path = resolveRelativeTo(cfg.Warehouse.Path, projectRoot)
	}

	if err := cfg.Warehouse.Validate(); err != nil {
		return nil, err
	}
	currentConfig = &cfg
	return &cfg, nil
}

// flagKey maps a CLI flag name to its config key.
func flagKey(name string) string {
	switch name {
	case "env":
		return "environment"
	case "state":
		return "state_path"
	}
	return strings.ReplaceAll(name, "-", "_")
}

func resolveRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
