package domain

// AgentKind distinguishes the privileged system role from restricted roles.
type AgentKind string

const (
	// AgentKindSystem bypasses the per-agent tool allowlist. It never
	// bypasses the global deny list.
	AgentKindSystem AgentKind = "system"
	// AgentKindRestricted may only use tools named in AllowedTools.
	AgentKindRestricted AgentKind = "restricted"
)

// Agent is a named role that proposes and executes tool calls.
type Agent struct {
	Name         string    `json:"name" yaml:"name"`
	Kind         AgentKind `json:"kind" yaml:"kind"`
	AllowedTools []string  `json:"allowed_tools" yaml:"allowed_tools"`
}

// AllowsTool reports whether the agent's allowlist contains the tool.
// System agents allow everything at this level; the deny list is checked
// separately by the permission engine.
func (a *Agent) AllowsTool(name string) bool {
	if a.Kind == AgentKindSystem {
		return true
	}
	for _, t := range a.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// Identity returns a stable cache key for this agent. The empty string
// identifies the no-agent context.
func (a *Agent) Identity() string {
	if a == nil {
		return ""
	}
	return string(a.Kind) + ":" + a.Name
}
