// Package config holds the daemon's runtime settings: defaults, partial
// overrides loaded from YAML or JSON files, and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wix/reactive-fs/ignore"
	"github.com/wix/reactive-fs/internal/util"
	"gopkg.in/yaml.v3"
)

// Backend selects the store a served filesystem is built on.
type Backend string

const (
	// BackendMemory serves an empty in-memory store.
	BackendMemory Backend = "memory"
	// BackendDisk serves a host directory.
	BackendDisk Backend = "disk"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultListenAddr = ":8462"

	DefaultRealm = "default"

	DefaultBackend = BackendMemory

	// DefaultCallTimeoutMS bounds every filesystem call served by the
	// daemon. Zero disables the deadline proxy entirely.
	DefaultCallTimeoutMS = 30_000

	DefaultLogLvl = util.InfoLevel
)

// CLI verbosity counts. Verbosity runs the opposite direction from
// [util.LogLevel]: more -v flags mean chattier logs.
const (
	ErrorVerbose = 1
	WarnVerbose  = 2
	InfoVerbose  = 3
	DebugVerbose = 4
	TraceVerbose = 5
)

// Config contains the resolved runtime configuration for the daemon.
type Config struct {
	ListenAddr     string        // TCP address the bridge server listens on (Default ":8462")
	Realm          string        // Realm the server accepts clients for (Default "default")
	Backend        Backend       // Store backing the served filesystem (Default "memory")
	RootDir        string        // Host directory for the disk backend; required when Backend is "disk"
	CallTimeout    time.Duration // Per-call deadline; 0 disables the deadline proxy (Default 30s)
	IgnorePatterns []string      // Glob patterns for paths the filesystem hides
	LogLvl         util.LogLevel // Resolved log level (Default info)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading partial configuration. See [Config] for field
// descriptions; CallTimeoutMS is in milliseconds and LogLvl is a CLI
// verbosity count, clamped to [ErrorVerbose, TraceVerbose].
type ConfigOverride struct {
	ListenAddr     *string   `yaml:"listen_addr,omitempty" json:"listen_addr,omitempty"`
	Realm          *string   `yaml:"realm,omitempty" json:"realm,omitempty"`
	Backend        *string   `yaml:"backend,omitempty" json:"backend,omitempty"`
	RootDir        *string   `yaml:"root_dir,omitempty" json:"root_dir,omitempty"`
	CallTimeoutMS  *int      `yaml:"call_timeout_ms,omitempty" json:"call_timeout_ms,omitempty"`
	IgnorePatterns *[]string `yaml:"ignore,omitempty" json:"ignore,omitempty"`
	LogLvl         *int      `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override yields the pure defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := &Config{
		ListenAddr:  DefaultListenAddr,
		Realm:       DefaultRealm,
		Backend:     DefaultBackend,
		CallTimeout: DefaultCallTimeoutMS * time.Millisecond,
		LogLvl:      DefaultLogLvl,
	}
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config. This allows
// partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.ListenAddr != nil {
		c.ListenAddr = *override.ListenAddr
	}
	if override.Realm != nil {
		c.Realm = *override.Realm
	}
	if override.Backend != nil {
		c.Backend = Backend(*override.Backend)
	}
	if override.RootDir != nil {
		c.RootDir = *override.RootDir
	}
	if override.CallTimeoutMS != nil {
		c.CallTimeout = time.Duration(*override.CallTimeoutMS) * time.Millisecond
	}
	if override.IgnorePatterns != nil {
		c.IgnorePatterns = *override.IgnorePatterns
	}
	if override.LogLvl != nil {
		c.LogLvl = verboseToLevel(*override.LogLvl)
	}
}

// Validate reports the first problem that would keep the daemon from
// starting with this configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.Realm == "" {
		return fmt.Errorf("realm must not be empty")
	}
	switch c.Backend {
	case BackendMemory:
	case BackendDisk:
		if c.RootDir == "" {
			return fmt.Errorf("root_dir is required for the %q backend", BackendDisk)
		}
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendMemory, BackendDisk)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout_ms must not be negative")
	}
	if _, err := ignore.Patterns(c.IgnorePatterns...); err != nil {
		return fmt.Errorf("invalid ignore pattern: %w", err)
	}
	return nil
}

// IgnorePredicate compiles the configured ignore patterns.
func (c *Config) IgnorePredicate() (ignore.Predicate, error) {
	return ignore.Patterns(c.IgnorePatterns...)
}

// verboseToLevel maps a CLI verbosity count onto a log level, clamping
// out-of-range counts to the nearest bound.
func verboseToLevel(verbose int) util.LogLevel {
	if verbose < ErrorVerbose {
		verbose = ErrorVerbose
	}
	if verbose > TraceVerbose {
		verbose = TraceVerbose
	}
	return util.ErrorLevel - util.LogLevel(verbose-ErrorVerbose)
}

// LoadConfigOverrideFile loads configuration overrides from a file without
// merging. Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with
// defaults. This is a convenience function that combines NewConfig and
// LoadConfigOverrideFile.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
