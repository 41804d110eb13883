// Package action provides ready-made core.Action implementations: Generate
// delegates content production to a model.Generator, ToolCall invokes a
// named tool from a registry. Both are building blocks; role-specific
// behavior is composed from them (or from custom Action implementations)
// at role construction time.
package action
