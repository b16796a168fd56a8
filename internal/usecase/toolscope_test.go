package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/domain"
)

func restrictedFor(name string, tools ...string) *domain.Agent {
	return &domain.Agent{Name: name, Kind: domain.AgentKindRestricted, AllowedTools: tools}
}

func TestToolScopeCachesPerIdentity(t *testing.T) {
	registry, engine, _ := newFixture(t, "version: 1\n")
	require.NoError(t, registry.Register(&stubTool{name: "echo"}))
	require.NoError(t, registry.Register(&stubTool{name: "tasks"}))
	scope := newToolScope(registry, engine, 4)

	agent := restrictedFor("helper", "echo")
	first := scope.SchemasFor(agent)
	require.Len(t, first, 1)
	assert.Equal(t, "echo", first[0].Name)

	// Same identity hits the cache.
	assert.Len(t, scope.entries, 1)
	second := scope.SchemasFor(agent)
	assert.Equal(t, first, second)
	assert.Len(t, scope.entries, 1)
}

func TestToolScopeNilAgentHasOwnEntry(t *testing.T) {
	registry, engine, _ := newFixture(t, "version: 1\n")
	require.NoError(t, registry.Register(&stubTool{name: "echo"}))
	require.NoError(t, registry.Register(&stubTool{name: "tasks"}))
	scope := newToolScope(registry, engine, 4)

	schemas := scope.SchemasFor(nil)
	require.Len(t, schemas, 1, "no-agent context sees only the safe set")
	assert.Equal(t, "echo", schemas[0].Name)
	assert.Contains(t, scope.entries, "")
}

func TestToolScopeEvictsOldestInsertion(t *testing.T) {
	registry, engine, _ := newFixture(t, "version: 1\n")
	require.NoError(t, registry.Register(&stubTool{name: "echo"}))
	scope := newToolScope(registry, engine, 2)

	a := restrictedFor("a", "echo")
	b := restrictedFor("b", "echo")
	c := restrictedFor("c", "echo")

	scope.SchemasFor(a)
	scope.SchemasFor(b)
	scope.SchemasFor(c)

	assert.Len(t, scope.entries, 2)
	assert.NotContains(t, scope.entries, a.Identity(), "oldest insertion evicted")
	assert.Contains(t, scope.entries, b.Identity())
	assert.Contains(t, scope.entries, c.Identity())
}

func TestToolScopeInvalidateDropsEverything(t *testing.T) {
	registry, engine, _ := newFixture(t, "version: 1\n")
	require.NoError(t, registry.Register(&stubTool{name: "echo"}))
	scope := newToolScope(registry, engine, 4)

	agent := restrictedFor("helper", "echo", "tasks")
	require.Len(t, scope.SchemasFor(agent), 1)

	// A new registration must become visible after invalidation.
	require.NoError(t, registry.Register(&stubTool{name: "tasks"}))
	assert.Len(t, scope.SchemasFor(agent), 1, "stale before invalidation")

	scope.Invalidate()
	assert.Len(t, scope.SchemasFor(agent), 2)
}

func TestRouterInvalidateWiredToRegistry(t *testing.T) {
	registry, engine, _ := newFixture(t, "version: 1\n")
	require.NoError(t, registry.Register(&stubTool{name: "echo"}))

	r := NewRouter(registry, engine, 4, discard())
	registry.OnChange(r.InvalidateScope)

	agent := restrictedFor("helper", "echo", "late")
	require.Len(t, r.scope.SchemasFor(agent), 1)

	require.NoError(t, registry.Register(&stubTool{name: "late"}))
	assert.Len(t, r.scope.SchemasFor(agent), 2,
		"registry change must bust the scope cache through OnChange")
}
