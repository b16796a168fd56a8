package policy

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/domain"
)

// stubSchemas implements SchemaIndex from a plain map. A nil value means
// "registered, no parameters"; an absent key means "not registered".
type stubSchemas map[string]*jsonschema.Schema

func (s stubSchemas) CompiledSchema(name string) (*jsonschema.Schema, bool) {
	schema, ok := s[name]
	return schema, ok
}

func compileTestSchema(t *testing.T, raw string) *jsonschema.Schema {
	t.Helper()
	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("test.json", strings.NewReader(raw)))
	schema, err := compiler.Compile("test.json")
	require.NoError(t, err)
	return schema
}

func newTestEngine(t *testing.T, policyYAML string, schemas stubSchemas) *Engine {
	t.Helper()
	dir := t.TempDir()
	path := writePolicy(t, dir, policyYAML)
	st, err := NewStore(path, dir, discard())
	require.NoError(t, err)
	return NewEngine(st, schemas, discard())
}

var (
	systemAgent     = &domain.Agent{Name: "main", Kind: domain.AgentKindSystem}
	restrictedAgent = &domain.Agent{
		Name: "helper", Kind: domain.AgentKindRestricted,
		AllowedTools: []string{"echo", "tasks"},
	}
)

func TestEngineDenyListBeatsEveryone(t *testing.T) {
	e := newTestEngine(t, "deny_tools: [run_cmd]\n", stubSchemas{"run_cmd": nil})

	for _, agent := range []*domain.Agent{systemAgent, restrictedAgent, nil} {
		d := e.Authorize(agent, "run_cmd", nil, false)
		assert.Equal(t, OutcomeDenied, d.Outcome, "agent %v", agent.Identity())
		assert.Equal(t, domain.CodeDeniedToolBlocklist, d.Code)
	}
}

func TestEngineNoAgentOnlySafeTools(t *testing.T) {
	e := newTestEngine(t, "version: 1\n", stubSchemas{"current_time": nil, "echo": nil, "tasks": nil})

	d := e.Authorize(nil, "current_time", nil, false)
	assert.Equal(t, OutcomeAllowed, d.Outcome)

	d = e.Authorize(nil, "tasks", nil, false)
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, domain.CodeDeniedNoAgent, d.Code)
}

func TestEngineRestrictedAgentAllowlist(t *testing.T) {
	e := newTestEngine(t, "version: 1\n", stubSchemas{"echo": nil, "run_cmd": nil})

	d := e.Authorize(restrictedAgent, "echo", nil, false)
	assert.Equal(t, OutcomeAllowed, d.Outcome)

	d = e.Authorize(restrictedAgent, "run_cmd", nil, false)
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, domain.CodeDeniedAgentAllowlist, d.Code)
}

func TestEngineSystemAgentBypassesAllowlistOnly(t *testing.T) {
	e := newTestEngine(t, "version: 1\n", stubSchemas{"run_cmd": nil})

	d := e.Authorize(systemAgent, "run_cmd", nil, false)
	assert.Equal(t, OutcomeAllowed, d.Outcome)
}

func TestEngineConfirmationRequired(t *testing.T) {
	e := newTestEngine(t, "require_confirmation_for: [filesystem]\n", stubSchemas{"filesystem": nil})

	d := e.Authorize(systemAgent, "filesystem", nil, false)
	assert.Equal(t, OutcomeNeedsConfirmation, d.Outcome)
	assert.Equal(t, domain.CodeNeedsConfirmation, d.Code)

	d = e.Authorize(systemAgent, "filesystem", nil, true)
	assert.Equal(t, OutcomeAllowed, d.Outcome)
}

func TestEngineUnregisteredToolDenied(t *testing.T) {
	e := newTestEngine(t, "version: 1\n", stubSchemas{})

	d := e.Authorize(systemAgent, "ghost", nil, false)
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, domain.CodeToolNotFound, d.Code)
}

func TestEngineSchemaValidationIsDistinctFromPermissionDenial(t *testing.T) {
	schema := compileTestSchema(t, `{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"],
		"additionalProperties": false
	}`)
	e := newTestEngine(t, "version: 1\n", stubSchemas{"echo": schema})

	d := e.Authorize(systemAgent, "echo", json.RawMessage(`{"text":"hi"}`), false)
	assert.Equal(t, OutcomeAllowed, d.Outcome)

	d = e.Authorize(systemAgent, "echo", json.RawMessage(`{"wrong":1}`), false)
	assert.Equal(t, OutcomeDenied, d.Outcome)
	assert.Equal(t, domain.CodeValidationError, d.Code)
	assert.False(t, d.Code.IsDenial(), "validation failure is not a permission denial")

	d = e.Authorize(systemAgent, "echo", json.RawMessage(`{not json`), false)
	assert.Equal(t, domain.CodeValidationError, d.Code)
}

func TestEngineLogsDenials(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dir := t.TempDir()
	path := writePolicy(t, dir, "deny_tools: [run_cmd]\n")
	st, err := NewStore(path, dir, discard())
	require.NoError(t, err)
	e := NewEngine(st, stubSchemas{"run_cmd": nil}, log)

	d := e.Authorize(restrictedAgent, "run_cmd", nil, false)
	require.Equal(t, OutcomeDenied, d.Outcome)
	assert.Contains(t, buf.String(), "authorization denied")
	assert.Contains(t, buf.String(), string(domain.CodeDeniedToolBlocklist))
}

func TestEngineAllowedForAgentMatchesAuthorize(t *testing.T) {
	e := newTestEngine(t, "deny_tools: [run_cmd]\n",
		stubSchemas{"echo": nil, "tasks": nil, "run_cmd": nil, "current_time": nil})
	names := []string{"echo", "tasks", "run_cmd", "current_time"}

	assert.ElementsMatch(t, []string{"echo", "tasks", "current_time"},
		e.AllowedForAgent(systemAgent, names))
	assert.ElementsMatch(t, []string{"echo", "tasks"},
		e.AllowedForAgent(restrictedAgent, names))
	assert.ElementsMatch(t, []string{"echo", "current_time"},
		e.AllowedForAgent(nil, names))
}
