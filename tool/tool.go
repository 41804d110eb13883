// Package tool implements the registry that lets actions invoke structured
// capabilities (APIs, computations, side effects) by name. The registry is
// an external collaborator from the core's point of view: lookup of an
// unregistered name fails synchronously with core.ToolNotFoundError, and
// registering a tool without a declared parameter shape warns but succeeds.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/internal/util"
	"github.com/hupe1980/rolemesh/logging"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Tool defines the contract for an invocable capability.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Declare a parameter shape so callers and models know what to pass
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Parameters returns a JSON-Schema-like map describing expected
	// arguments. A nil map means the shape is undeclared.
	Parameters() map[string]any

	// Call executes the tool with structured arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// Registry maps tool names to implementations. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger logging.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds a tool, replacing any previous registration under the same
// name. A tool with an undeclared parameter shape is accepted with a
// warning.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Parameters() == nil {
		r.logger.Warn("tool.register.undeclared_parameters", "tool", t.Name())
	}
	if _, exists := r.tools[t.Name()]; exists {
		r.logger.Warn("tool.register.replaced", "tool", t.Name())
	}
	r.tools[t.Name()] = t
}

// Lookup returns the tool registered under name, or core.ToolNotFoundError.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &core.ToolNotFoundError{Name: name}
	}
	return t, nil
}

// Call looks up and invokes a tool in one step.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return t.Call(ctx, args)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
