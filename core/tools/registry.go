package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/koscakluka/ema-chat/core/llms"
)

// Registry holds the tools offered to the model. Built-in tools are
// registered once; external tools (MCP servers) are grouped by source and
// can be replaced at runtime.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	external map[string][]string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	registry := &Registry{
		tools:    map[string]Tool{},
		external: map[string][]string{},
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a built-in tool. Returns ErrToolAlreadyRegistered if the name
// is taken.
func (r *Registry) Register(tool Tool) error {
	name := tool.Schema().Name
	if name == "" {
		return ErrToolNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, name)
	}
	r.tools[name] = tool
	logger.Debug("registered tool", "tool", name)
	return nil
}

// RegisterExternal replaces every tool previously registered for source with
// tools. Names clashing with another source or a built-in tool are skipped.
func (r *Registry) RegisterExternal(source string, tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExternalLocked(source)
	var (
		names   []string
		skipped []string
	)
	for _, tool := range tools {
		name := tool.Schema().Name
		if name == "" {
			continue
		}
		if _, exists := r.tools[name]; exists {
			skipped = append(skipped, name)
			continue
		}
		r.tools[name] = tool
		names = append(names, name)
	}
	r.external[source] = names
	logger.Info("registered external tools", "source", source, "count", len(names))

	if len(skipped) > 0 {
		return fmt.Errorf("%w: %v", ErrToolAlreadyRegistered, skipped)
	}
	return nil
}

func (r *Registry) RemoveExternal(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeExternalLocked(source)
}

func (r *Registry) removeExternalLocked(source string) {
	for _, name := range r.external[source] {
		delete(r.tools, name)
	}
	delete(r.external, source)
}

// Resolve returns the tool registered under name, or nil.
func (r *Registry) Resolve(name string) Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Schemas returns the schemas of every registered tool sorted by name.
func (r *Registry) Schemas() []llms.ToolSchema {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llms.ToolSchema, 0, len(r.tools))
	for _, tool := range r.tools {
		schemas = append(schemas, tool.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Sources returns the names of external tool sources.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sources := make([]string, 0, len(r.external))
	for source := range r.external {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}
