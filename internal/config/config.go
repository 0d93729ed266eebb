// Package config resolves notecache's ambient settings the way the
// teacher's internal/ticket.LoadConfig resolves the ticket directory:
// defaults, then a global JWCC config file, then a project-local one, then
// the NOTECACHE_HOME environment variable, then explicit CLI overrides —
// highest precedence wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the default project-local config file name.
const ConfigFileName = ".notecache.json"

// DefaultCacheRoot is used when neither a config file, NOTECACHE_HOME, nor
// a CLI override name a cache root.
const DefaultCacheRoot = ".notecache"

// Config holds every ambient setting the cache and pipeline consult.
type Config struct {
	// From config files / environment (serialized).
	CacheRoot      string `json:"cache_root,omitempty"`
	LogLevel       string `json:"log_level,omitempty"`
	PerCellTimeout int    `json:"per_cell_timeout_seconds,omitempty"`
	AllowErrors    bool   `json:"allow_errors,omitempty"`
	Scheduling     string `json:"scheduling,omitempty"`
	Sandbox        string `json:"sandbox,omitempty"`
	Workers        int    `json:"workers,omitempty"`

	// Resolved paths (computed, not serialized).
	EffectiveCwd string `json:"-"`
	CacheRootAbs string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics).
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// DefaultConfig returns the zero-override configuration.
func DefaultConfig() Config {
	return Config{
		CacheRoot:      DefaultCacheRoot,
		LogLevel:       "info",
		PerCellTimeout: 0,
		Scheduling:     "serial",
		Sandbox:        "in_place",
	}
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string // -C/--cwd flag value; empty means os.Getwd()
	ConfigPath      string // -c/--config flag value
	CacheRootFlag   string // --cache-root flag value; empty means no override
	Env             map[string]string
}

// Load resolves a Config with the precedence documented on the package.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	if home := input.Env["NOTECACHE_HOME"]; home != "" {
		cfg.CacheRoot = home
	}

	if level := input.Env["NOTECACHE_LOG_LEVEL"]; level != "" {
		cfg.LogLevel = level
	}

	if input.CacheRootFlag != "" {
		cfg.CacheRoot = input.CacheRootFlag
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.CacheRoot) {
		cfg.CacheRootAbs = cfg.CacheRoot
	} else {
		cfg.CacheRootAbs = filepath.Join(workDir, cfg.CacheRoot)
	}

	return cfg, nil
}

func getGlobalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "notecache", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "notecache", "config.json")
	}

	return ""
}

func loadGlobalConfig(env map[string]string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var (
		path      string
		mustExist bool
	)

	if configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true

		if _, err := os.Stat(path); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		path = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	cfg, loaded, err := loadConfigFile(path, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w %s: invalid JSON: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func merge(base, overlay Config) Config {
	if overlay.CacheRoot != "" {
		base.CacheRoot = overlay.CacheRoot
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.PerCellTimeout != 0 {
		base.PerCellTimeout = overlay.PerCellTimeout
	}

	if overlay.Scheduling != "" {
		base.Scheduling = overlay.Scheduling
	}

	if overlay.Sandbox != "" {
		base.Sandbox = overlay.Sandbox
	}

	if overlay.Workers != 0 {
		base.Workers = overlay.Workers
	}

	base.AllowErrors = base.AllowErrors || overlay.AllowErrors

	return base
}

func validate(cfg Config) error {
	if cfg.CacheRoot == "" {
		return ErrCacheRootEmpty
	}

	return nil
}
