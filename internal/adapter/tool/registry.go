package tool

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"warden/internal/domain"
)

// Registry holds named tools together with their compiled argument
// schemas. Registering through it is the only way a tool enters the
// catalog, so nothing can dodge the schema or permission steps. Catalog
// changes notify observers (the router busts its per-agent filter cache
// on that signal).
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]domain.Tool
	compiled map[string]*jsonschema.Schema
	order    []string
	onChange []func()
	logger   *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:    make(map[string]domain.Tool),
		compiled: make(map[string]*jsonschema.Schema),
		logger:   logger,
	}
}

// Register adds a tool. A duplicate name or an uncompilable parameter
// schema is an error: a tool whose arguments cannot be validated never
// enters the catalog.
func (r *Registry) Register(t domain.Tool) error {
	name := t.Name()

	schema, err := compileSchema(name, t.Schema().Parameters)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	r.mu.Lock()
	if _, exists := r.tools[name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.compiled[name] = schema
	r.order = append(r.order, name)
	observers := append([]func(){}, r.onChange...)
	r.mu.Unlock()

	r.logger.Debug("tool registered", "tool", name, "capabilities", t.Capabilities())
	for _, fn := range observers {
		fn()
	}
	return nil
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil // tool declares no parameters
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}

// OnChange registers a callback invoked after every catalog mutation.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Schemas returns all tool schemas, sorted by name.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.order...)
	sort.Strings(names)
	schemas := make([]domain.ToolSchema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, r.tools[name].Schema())
	}
	return schemas
}

// CompiledSchema returns the compiled argument schema for the named tool.
// The second return is false when the tool is not registered; a nil schema
// with true means the tool declares no parameters. Implements the
// permission engine's SchemaIndex.
func (r *Registry) CompiledSchema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tools[name]; !ok {
		return nil, false
	}
	return r.compiled[name], true
}
