package action

import (
	"context"
	"fmt"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/tool"
)

// ToolCall is an action that invokes a named tool from a registry. The tool
// arguments come from the step params under "args" (a map[string]any);
// absent args invoke the tool with nil. The stringified tool result becomes
// the published message content.
type ToolCall struct {
	name     string
	toolName string
	registry *tool.Registry
}

// NewToolCall constructs a ToolCall action published under name.
func NewToolCall(name, toolName string, registry *tool.Registry) *ToolCall {
	return &ToolCall{name: name, toolName: toolName, registry: registry}
}

// Name implements core.Action.
func (a *ToolCall) Name() string { return a.name }

// Execute implements core.Action. An unregistered tool surfaces
// core.ToolNotFoundError, which the executing role's retry cannot fix but
// which still ends up as a visible error message rather than a crash.
func (a *ToolCall) Execute(ctx context.Context, actx *core.ActionContext) (string, error) {
	var args map[string]any
	if raw, ok := actx.Params["args"]; ok {
		if m, ok := raw.(map[string]any); ok {
			args = m
		}
	}

	result, err := a.registry.Call(ctx, a.toolName, args)
	if err != nil {
		return "", err
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", result), nil
}
