package action

import (
	"context"
	"strings"
	"time"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/internal/util"
	"github.com/hupe1980/rolemesh/model"
)

// GenerateOptions configure a Generate action.
type GenerateOptions struct {
	// System frames the backend call; when empty it is assembled from the
	// executing role's profile and goal params.
	System string
	// PromptFunc builds the prompt from the action context. The default
	// concatenates the fresh messages' content.
	PromptFunc func(actx *core.ActionContext) string
	// PromptTemplate, when set, renders the prompt with text/template from
	// the action params (profile, goal, trigger, step params) plus a
	// "fresh" key holding the fresh messages' joined content. PromptFunc
	// wins when both are set.
	PromptTemplate string
	// Timeout bounds a single backend call. Zero means no extra deadline.
	Timeout time.Duration
	// Fallback, when non-empty, is published instead of an error message
	// once the executing role's retry budget is exhausted.
	Fallback string
}

// Generate is an action that produces its result by calling the generation
// backend. Retry/backoff around it is owned by the executing role; Generate
// itself performs exactly one backend call per Execute.
type Generate struct {
	name      string
	generator model.Generator
	opts      GenerateOptions
}

// NewGenerate constructs a Generate action published under name.
func NewGenerate(name string, generator model.Generator, optFns ...func(o *GenerateOptions)) *Generate {
	opts := GenerateOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generate{name: name, generator: generator, opts: opts}
}

// Name implements core.Action.
func (a *Generate) Name() string { return a.name }

// Execute implements core.Action.
func (a *Generate) Execute(ctx context.Context, actx *core.ActionContext) (string, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	prompt, err := a.prompt(actx)
	if err != nil {
		return "", err
	}
	req := model.Request{
		System: a.system(actx),
		Prompt: prompt,
	}
	return a.generator.Generate(ctx, req)
}

// Fallback implements role.Fallbacker when a fallback was configured.
func (a *Generate) Fallback() string { return a.opts.Fallback }

func (a *Generate) system(actx *core.ActionContext) string {
	if a.opts.System != "" {
		return a.opts.System
	}
	var sb strings.Builder
	if profile, ok := actx.Params["profile"].(string); ok && profile != "" {
		sb.WriteString("You are ")
		sb.WriteString(profile)
		sb.WriteString(". ")
	}
	if goal, ok := actx.Params["goal"].(string); ok && goal != "" {
		sb.WriteString("Your goal: ")
		sb.WriteString(goal)
	}
	return sb.String()
}

func (a *Generate) prompt(actx *core.ActionContext) (string, error) {
	parts := make([]string, 0, len(actx.Fresh))
	for _, msg := range actx.Fresh {
		parts = append(parts, msg.Content)
	}
	joined := strings.Join(parts, "\n")

	switch {
	case a.opts.PromptFunc != nil:
		return a.opts.PromptFunc(actx), nil
	case a.opts.PromptTemplate != "":
		data := make(map[string]any, len(actx.Params)+1)
		for k, v := range actx.Params {
			data[k] = v
		}
		data["fresh"] = joined
		return util.RenderTemplate(a.opts.PromptTemplate, data)
	default:
		return joined, nil
	}
}
