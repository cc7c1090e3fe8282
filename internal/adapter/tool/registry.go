package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"webscout/internal/domain"
)

// Registry holds named tools. Every tool with a parameter schema is wrapped
// with schema validation on Register.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

var _ domain.ToolCatalog = (*Registry)(nil)

// NewRegistry creates an empty tool registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Returns error if the name is already registered or
// the tool's schema does not compile.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		return err
	}

	r.tools[name] = wrapped
	r.logger.Debug("tool registered", "tool", name)
	return nil
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

// List returns all registered tools ordered by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Schemas returns all tool schemas ordered by name.
func (r *Registry) Schemas() []domain.ToolSchema {
	tools := r.List()
	schemas := make([]domain.ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// NewWebRegistry registers the web_search, code_search and web_fetch tools
// backed by researcher.
func NewWebRegistry(researcher domain.WebResearcher, fetchCallsPerMinute int, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(logger)
	for _, t := range []domain.Tool{
		NewWebSearchTool(researcher, logger),
		NewCodeSearchTool(researcher, logger),
		NewWebFetchTool(researcher, fetchCallsPerMinute, logger),
	} {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
