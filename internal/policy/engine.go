package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"warden/internal/domain"
)

// Outcome is the three-way result of an authorization check.
type Outcome int

const (
	OutcomeAllowed Outcome = iota
	OutcomeDenied
	OutcomeNeedsConfirmation
)

// Decision carries the outcome plus a machine-readable reason code so
// callers and tests can discriminate causes without parsing messages.
type Decision struct {
	Outcome Outcome
	Code    domain.ErrorCode
	Reason  string
}

func allowed() Decision { return Decision{Outcome: OutcomeAllowed} }

func denied(code domain.ErrorCode, reason string) Decision {
	return Decision{Outcome: OutcomeDenied, Code: code, Reason: reason}
}

// SchemaIndex provides compiled argument schemas per tool. Implemented by
// the tool registry so the validation step can never drift from the
// registered tool set.
type SchemaIndex interface {
	CompiledSchema(name string) (*jsonschema.Schema, bool)
}

// safeTools is the fixed minimal set runnable with no agent context: pure
// computation, no filesystem, process, or network effect.
var safeTools = map[string]bool{
	"current_time": true,
	"echo":         true,
}

// SafeTools returns the names of the fixed safe tool set.
func SafeTools() []string {
	names := make([]string, 0, len(safeTools))
	for n := range safeTools {
		names = append(names, n)
	}
	return names
}

// Engine composes the policy snapshot, the agent model, and per-tool
// argument schemas into authorization decisions. It is fail-closed: an
// absent policy, an unknown tool, or a missing agent context all deny.
type Engine struct {
	store   *Store
	schemas SchemaIndex
	logger  *slog.Logger
}

// NewEngine creates a permission engine over the given policy store and
// schema index.
func NewEngine(store *Store, schemas SchemaIndex, logger *slog.Logger) *Engine {
	return &Engine{store: store, schemas: schemas, logger: logger}
}

// Authorize decides whether the agent may run the named tool with the
// given arguments. Checks run in a fixed order, first match wins:
//
//  1. system agents skip the per-agent allowlist (never the deny list)
//  2. global deny list
//  3. no agent context: only the fixed safe tool set
//  4. per-agent allowlist
//  5. confirmation-required set (unless confirmed)
//  6. argument schema validation (a terminal denial distinct from a
//     permission denial)
func (e *Engine) Authorize(agent *domain.Agent, tool string, args json.RawMessage, confirmed bool) Decision {
	snap := e.store.Snapshot()

	d := e.checkIdentity(snap, agent, tool)
	if d.Outcome == OutcomeAllowed {
		if snap.ConfirmTools[tool] && !confirmed {
			return Decision{
				Outcome: OutcomeNeedsConfirmation,
				Code:    domain.CodeNeedsConfirmation,
				Reason:  fmt.Sprintf("tool %q requires explicit confirmation", tool),
			}
		}
		d = e.validateArgs(tool, args)
	}
	if d.Outcome == OutcomeDenied {
		e.logger.Debug("authorization denied",
			"tool", tool, "agent", agent.Identity(), "code", d.Code)
	}
	return d
}

// AllowedForAgent filters catalog names down to the tools the agent could
// be authorized to run, ignoring per-argument and confirmation state. The
// router uses this — and only this — to build the tool set it may propose,
// so the router's notion of "allowed" cannot diverge from the engine's.
func (e *Engine) AllowedForAgent(agent *domain.Agent, names []string) []string {
	snap := e.store.Snapshot()
	out := make([]string, 0, len(names))
	for _, name := range names {
		if d := e.checkIdentity(snap, agent, name); d.Outcome == OutcomeAllowed {
			out = append(out, name)
		}
	}
	return out
}

// checkIdentity runs the identity-level checks (steps 1-4): everything
// that depends on who is asking, not on what the arguments are.
func (e *Engine) checkIdentity(snap *Snapshot, agent *domain.Agent, tool string) Decision {
	if snap.DenyTools[tool] {
		return denied(domain.CodeDeniedToolBlocklist,
			fmt.Sprintf("tool %q is on the deny list", tool))
	}

	if agent == nil {
		if !safeTools[tool] {
			return denied(domain.CodeDeniedNoAgent,
				fmt.Sprintf("tool %q requires an agent context", tool))
		}
		return allowed()
	}

	if agent.Kind != domain.AgentKindSystem && !agent.AllowsTool(tool) {
		return denied(domain.CodeDeniedAgentAllowlist,
			fmt.Sprintf("tool %q not in allowlist of agent %q", tool, agent.Name))
	}
	return allowed()
}

// validateArgs checks arguments against the tool's declared schema. A
// missing schema entry means the tool is not registered: deny.
func (e *Engine) validateArgs(tool string, args json.RawMessage) Decision {
	schema, ok := e.schemas.CompiledSchema(tool)
	if !ok {
		return denied(domain.CodeToolNotFound, fmt.Sprintf("tool %q is not registered", tool))
	}
	if schema == nil {
		return allowed() // tool declares no parameters
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return denied(domain.CodeValidationError, fmt.Sprintf("arguments are not valid JSON: %v", err))
	}
	if err := schema.Validate(v); err != nil {
		return denied(domain.CodeValidationError, fmt.Sprintf("schema validation failed: %v", err))
	}
	return allowed()
}
