package usecase

import (
	"sync"

	"warden/internal/domain"
	"warden/internal/policy"
)

// toolScope caches the permission-filtered tool schemas per agent identity
// so the planner fallback does not re-filter the catalog on every request.
// The cache is bounded; when full, the oldest insertion is evicted. Any
// catalog or policy change invalidates everything.
type toolScope struct {
	mu      sync.Mutex
	catalog domain.ToolCatalog
	engine  *policy.Engine
	max     int
	entries map[string][]domain.ToolSchema
	order   []string
}

func newToolScope(catalog domain.ToolCatalog, engine *policy.Engine, max int) *toolScope {
	if max <= 0 {
		max = 16
	}
	return &toolScope{
		catalog: catalog,
		engine:  engine,
		max:     max,
		entries: make(map[string][]domain.ToolSchema),
	}
}

// SchemasFor returns the schemas of the tools the agent could be authorized
// to run. The filter is the permission engine's own identity check, so the
// set handed to the planner can never exceed what execution would allow.
func (s *toolScope) SchemasFor(agent *domain.Agent) []domain.ToolSchema {
	key := agent.Identity()

	s.mu.Lock()
	if cached, ok := s.entries[key]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	allowed := s.engine.AllowedForAgent(agent, s.catalog.Names())
	allowedSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowedSet[name] = true
	}

	var schemas []domain.ToolSchema
	for _, schema := range s.catalog.Schemas() {
		if allowedSet[schema.Name] {
			schemas = append(schemas, schema)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		if len(s.order) >= s.max {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.entries, oldest)
		}
		s.entries[key] = schemas
		s.order = append(s.order, key)
	}
	return schemas
}

// Invalidate drops every cached entry. Wired to registry catalog changes
// and policy reloads.
func (s *toolScope) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]domain.ToolSchema)
	s.order = s.order[:0]
}
