package config

import (
	"fmt"
	"time"
)

// Validate checks configuration invariants. Violations are startup faults:
// the process refuses to start rather than running with ambiguous limits.
func (c *Config) Validate() error {
	if _, err := time.ParseDuration(c.Tools.ShellTimeout); err != nil {
		return fmt.Errorf("tools.shell_timeout: %w", err)
	}
	if c.Tools.MaxOutputKB < 0 {
		return fmt.Errorf("tools.max_output_kb must be >= 0, got %d", c.Tools.MaxOutputKB)
	}
	if c.Tools.MaxWriteKB < 0 {
		return fmt.Errorf("tools.max_write_kb must be >= 0, got %d", c.Tools.MaxWriteKB)
	}
	if c.Tools.AuditMaxKB < 0 {
		return fmt.Errorf("tools.audit_max_kb must be >= 0, got %d", c.Tools.AuditMaxKB)
	}
	if c.Planner.Enabled {
		if c.Planner.BaseURL == "" {
			return fmt.Errorf("planner.base_url is required when planner.enabled")
		}
		if _, err := time.ParseDuration(c.Planner.Timeout); err != nil {
			return fmt.Errorf("planner.timeout: %w", err)
		}
		if c.Planner.MaxRetries < 1 {
			return fmt.Errorf("planner.max_retries must be >= 1, got %d", c.Planner.MaxRetries)
		}
	}
	if c.Router.MaxInputLen < 1 {
		return fmt.Errorf("router.max_input_len must be >= 1, got %d", c.Router.MaxInputLen)
	}
	if c.Router.ScopeCacheSize < 1 {
		return fmt.Errorf("router.scope_cache_size must be >= 1, got %d", c.Router.ScopeCacheSize)
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents: name is required")
		}
		if seen[a.Name] {
			return fmt.Errorf("agents: duplicate name %q", a.Name)
		}
		seen[a.Name] = true
		switch a.Kind {
		case "system", "restricted", "":
		default:
			return fmt.Errorf("agents: %q has unknown kind %q", a.Name, a.Kind)
		}
	}
	if c.Default != "" && !seen[c.Default] {
		return fmt.Errorf("default_agent %q is not declared in agents", c.Default)
	}
	return nil
}
