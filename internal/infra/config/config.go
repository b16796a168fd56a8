package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stderr | stdout | file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | noop
}

// ToolsConfig holds tool execution limits.
type ToolsConfig struct {
	ShellTimeout string `yaml:"shell_timeout"` // duration string (default "30s")
	MaxOutputKB  int    `yaml:"max_output_kb"` // process output ceiling (default 256)
	MaxWriteKB   int    `yaml:"max_write_kb"`  // filesystem write ceiling (default 1024)
	AuditMaxKB   int    `yaml:"audit_max_kb"`  // audit log size ceiling, 0 = unbounded
}

// PlannerConfig holds settings for the model-backed router stage.
type PlannerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKeyEnv  string `yaml:"api_key_env"` // env var holding the key, never the key itself
	Timeout    string `yaml:"timeout"`     // per-request timeout (default "60s")
	MaxRetries int    `yaml:"max_retries"` // retry attempts for transient failures (default 3)
	RatePerMin int    `yaml:"rate_per_min"`
}

// RouterConfig holds deterministic-router settings.
type RouterConfig struct {
	MaxInputLen    int `yaml:"max_input_len"`    // default 8192
	ScopeCacheSize int `yaml:"scope_cache_size"` // per-agent tool filter cache (default 16)
}

// AgentConfig declares one agent role.
type AgentConfig struct {
	Name  string   `yaml:"name"`
	Kind  string   `yaml:"kind"` // system | restricted
	Tools []string `yaml:"tools"`
}

// Config is the top-level application configuration.
type Config struct {
	Workspace  string        `yaml:"workspace"`   // sandbox root (default ".")
	DataDir    string        `yaml:"data_dir"`    // stores + audit log (default "./data")
	PolicyPath string        `yaml:"policy_path"` // permission policy file (default "policy.yaml")
	Logger     LoggerConfig  `yaml:"logger"`
	Tracer     TracerConfig  `yaml:"tracer"`
	Tools      ToolsConfig   `yaml:"tools"`
	Planner    PlannerConfig `yaml:"planner"`
	Router     RouterConfig  `yaml:"router"`
	Agents     []AgentConfig `yaml:"agents"`
	Default    string        `yaml:"default_agent"`
}

// Load reads and parses the YAML config at path, applies defaults, and
// validates. A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file: run on defaults.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workspace == "" {
		c.Workspace = "."
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.PolicyPath == "" {
		c.PolicyPath = "policy.yaml"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Tools.ShellTimeout == "" {
		c.Tools.ShellTimeout = "30s"
	}
	if c.Tools.MaxOutputKB == 0 {
		c.Tools.MaxOutputKB = 256
	}
	if c.Tools.MaxWriteKB == 0 {
		c.Tools.MaxWriteKB = 1024
	}
	if c.Planner.Timeout == "" {
		c.Planner.Timeout = "60s"
	}
	if c.Planner.MaxRetries == 0 {
		c.Planner.MaxRetries = 3
	}
	if c.Planner.RatePerMin == 0 {
		c.Planner.RatePerMin = 30
	}
	if c.Router.MaxInputLen == 0 {
		c.Router.MaxInputLen = 8192
	}
	if c.Router.ScopeCacheSize == 0 {
		c.Router.ScopeCacheSize = 16
	}
}

// ShellTimeout returns the parsed shell timeout duration.
func (c *ToolsConfig) ShellTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShellTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// PlannerTimeout returns the parsed planner request timeout.
func (c *PlannerConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// AuditPath returns the audit log location under the data dir.
func (c *Config) AuditPath() string {
	return filepath.Join(c.DataDir, "audit.jsonl")
}
