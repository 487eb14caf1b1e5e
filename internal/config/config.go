// Package config provides configuration management for devloop.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (DEVLOOP_ prefix, plus the unprefixed legacy
//     names WORKSPACE, BLUEPRINT_DIR, SDK_PYTHON_DIR, SDK_CORE_DIR and
//     UV_VENV_PATH used by the container tooling)
//  3. Config file (.devloop.yaml)
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// DefaultWorkspace is the workspace root used when WORKSPACE is unset.
const DefaultWorkspace = "/workspace"

// legacyEnvNames maps config keys to the unprefixed environment variable
// names the container entrypoint and bootstrap tooling export.
var legacyEnvNames = map[string]string{
	"workspace":      "WORKSPACE",
	"blueprint-dir":  "BLUEPRINT_DIR",
	"sdk-python-dir": "SDK_PYTHON_DIR",
	"sdk-core-dir":   "SDK_CORE_DIR",
	"venv-path":      "UV_VENV_PATH",
}

// Config represents the global configuration for devloop.
type Config struct {
	// Workspace is the root directory of the development workspace.
	Workspace string `mapstructure:"workspace" json:"workspace"`

	// BlueprintDir is the blueprint application source location.
	// Empty means $WORKSPACE/blueprints/simple-workflow.
	BlueprintDir string `mapstructure:"blueprint-dir" json:"blueprintDir"`

	// SDKPythonDir is the SDK python binding source location.
	// Empty means $WORKSPACE/sdk/sdk-python.
	SDKPythonDir string `mapstructure:"sdk-python-dir" json:"sdkPythonDir"`

	// SDKCoreDir is the SDK core (native) source location.
	// Empty means $WORKSPACE/sdk/sdk-core.
	SDKCoreDir string `mapstructure:"sdk-core-dir" json:"sdkCoreDir"`

	// VenvPath is the target virtual environment path.
	// Empty means $WORKSPACE/.venv.
	VenvPath string `mapstructure:"venv-path" json:"venvPath"`

	// Debounce is the quiet period before a file change triggers a
	// rebuild-and-relaunch cycle.
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`

	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load() — not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// Default returns a Config with sensible default values. Workspace-relative
// paths are already resolved.
func Default() *Config {
	cfg := &Config{
		Workspace: DefaultWorkspace,
		Debounce:  500 * time.Millisecond,
		LogLevel:  LogLevelInfo,
		LogFormat: LogFormatText,
	}
	cfg.resolvePaths()

	return cfg
}

// resolvePaths fills empty path fields with their workspace-relative defaults.
func (c *Config) resolvePaths() {
	if c.Workspace == "" {
		c.Workspace = DefaultWorkspace
	}

	if c.BlueprintDir == "" {
		c.BlueprintDir = filepath.Join(c.Workspace, "blueprints", "simple-workflow")
	}

	if c.SDKPythonDir == "" {
		c.SDKPythonDir = filepath.Join(c.Workspace, "sdk", "sdk-python")
	}

	if c.SDKCoreDir == "" {
		c.SDKCoreDir = filepath.Join(c.Workspace, "sdk", "sdk-core")
	}

	if c.VenvPath == "" {
		c.VenvPath = filepath.Join(c.Workspace, ".venv")
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Debounce < 0 {
		return fmt.Errorf("invalid debounce %s: must not be negative", c.Debounce)
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// Python returns the venv python interpreter path.
func (c *Config) Python() string {
	return filepath.Join(c.VenvPath, "bin", "python")
}

// Entrypoint returns the blueprint worker entry point.
func (c *Config) Entrypoint() string {
	return filepath.Join(c.BlueprintDir, "app.py")
}

// WatchPaths returns the source locations the reload supervisor monitors:
// the blueprint entry point and source tree, the SDK binding python and
// native source trees, and the SDK core source tree plus its manifest.
func (c *Config) WatchPaths() []string {
	return []string{
		c.Entrypoint(),
		filepath.Join(c.BlueprintDir, "src"),
		filepath.Join(c.SDKPythonDir, "src"),
		filepath.Join(c.SDKPythonDir, "rust"),
		filepath.Join(c.SDKCoreDir, "src"),
		filepath.Join(c.SDKCoreDir, "Cargo.toml"),
	}
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Store the resolved config file path so downstream code can locate it.
	cfg.ConfigFile = v.ConfigFileUsed()

	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper. Path defaults stay empty
// here so that a WORKSPACE override still relocates the derived paths.
func setDefaults(v *viper.Viper) {
	v.SetDefault("workspace", DefaultWorkspace)
	v.SetDefault("blueprint-dir", "")
	v.SetDefault("sdk-python-dir", "")
	v.SetDefault("sdk-core-dir", "")
	v.SetDefault("venv-path", "")
	v.SetDefault("debounce", 500*time.Millisecond)
	v.SetDefault("log-level", LogLevelInfo)
	v.SetDefault("log-format", LogFormatText)
	v.SetDefault("no-color", false)
	v.SetDefault("quiet", false)
}

// configureEnv sets up environment variable support. The provisioning keys
// additionally bind their legacy unprefixed names.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("DEVLOOP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	for key, env := range legacyEnvNames {
		// Prefixed name wins when both are set.
		_ = v.BindEnv(key, "DEVLOOP_"+env, env)
	}
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	// Auto-discovery mode.
	v.SetConfigName(".devloop")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "devloop"))
	}

	if err := v.ReadInConfig(); err != nil {
		// No config file found → perfectly fine in auto-discovery.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}

		// Found a file but it was malformed.
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags walks from cmd up to the root and binds all PersistentFlags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	// Bind the current command's own flags.
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	// Walk up to root and bind all persistent flags at each level.
	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
