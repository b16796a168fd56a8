package tool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/domain"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(NewEchoTool(discard())))
	require.NoError(t, r.Register(NewCurrentTimeTool(discard())))

	got, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", got.Name())

	assert.Equal(t, []string{"current_time", "echo"}, r.Names(), "names are sorted")
	assert.Len(t, r.Schemas(), 2)
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(discard())

	_, err := r.Get("ghost")
	assert.True(t, errors.Is(err, domain.ErrToolNotFound))
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(NewEchoTool(discard())))

	err := r.Register(NewEchoTool(discard()))
	require.Error(t, err)
}

type badSchemaTool struct{ domain.Tool }

func (badSchemaTool) Name() string { return "broken" }
func (badSchemaTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: "broken", Parameters: []byte(`{"type": 42}`)}
}
func (badSchemaTool) Capabilities() []domain.Capability { return nil }

func TestRegistryUncompilableSchemaFailsClosed(t *testing.T) {
	r := NewRegistry(discard())

	err := r.Register(badSchemaTool{})
	require.Error(t, err, "a tool whose arguments cannot be validated never enters the catalog")

	_, ok := r.CompiledSchema("broken")
	assert.False(t, ok)
}

func TestRegistryCompiledSchemaSemantics(t *testing.T) {
	r := NewRegistry(discard())
	require.NoError(t, r.Register(NewEchoTool(discard())))

	schema, ok := r.CompiledSchema("echo")
	assert.True(t, ok)
	assert.NotNil(t, schema)

	_, ok = r.CompiledSchema("missing")
	assert.False(t, ok, "unregistered tool reports not-found, never nil-schema-allowed")
}

func TestRegistryNotifiesObserversOnRegister(t *testing.T) {
	r := NewRegistry(discard())

	notified := 0
	r.OnChange(func() { notified++ })

	require.NoError(t, r.Register(NewEchoTool(discard())))
	require.NoError(t, r.Register(NewCurrentTimeTool(discard())))
	assert.Equal(t, 2, notified)
}
