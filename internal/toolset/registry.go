package toolset

import (
	"context"
	"encoding/json"

	"github.com/user/salesagent/pkg/agents"
)

// Tool defines the interface for a locally-callable function exposed to the
// agent through the function tool.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds registered tools and provides lookup.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Descriptors converts registered tools to service tool descriptors.
func (r *Registry) Descriptors() []agents.ToolDescriptor {
	out := make([]agents.ToolDescriptor, 0, len(r.order))
	for _, t := range r.All() {
		out = append(out, agents.ToolDescriptor{
			Type: agents.ToolTypeFunction,
			Function: &agents.FunctionDef{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}
