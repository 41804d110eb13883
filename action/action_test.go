package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rolemesh/core"
	"github.com/hupe1980/rolemesh/logging"
	"github.com/hupe1980/rolemesh/model"
	"github.com/hupe1980/rolemesh/tool"
)

// -------------------- Generate Tests --------------------

func TestGenerateDefaultPromptJoinsFresh(t *testing.T) {
	gen := model.NewMockGenerator()
	gen.AddResponse("first\nsecond", "combined")

	a := NewGenerate("draft", gen)
	actx := &core.ActionContext{
		Role: "writer",
		Fresh: []core.Message{
			core.NewMessage("first", "tester", "kickoff"),
			core.NewMessage("second", "tester", "kickoff"),
		},
		Params: map[string]any{},
	}

	out, err := a.Execute(context.Background(), actx)
	require.NoError(t, err)
	assert.Equal(t, "combined", out)
	assert.Equal(t, "draft", a.Name())
}

func TestGenerateSystemFromProfileAndGoal(t *testing.T) {
	captured := &capturingGenerator{}
	a := NewGenerate("draft", captured)

	actx := &core.ActionContext{
		Fresh:  []core.Message{core.NewMessage("topic", "tester", "kickoff")},
		Params: map[string]any{"profile": "a product manager", "goal": "write a PRD"},
	}
	_, err := a.Execute(context.Background(), actx)
	require.NoError(t, err)
	assert.Equal(t, "You are a product manager. Your goal: write a PRD", captured.lastReq.System)
	assert.Equal(t, "topic", captured.lastReq.Prompt)
}

func TestGenerateExplicitSystemWins(t *testing.T) {
	captured := &capturingGenerator{}
	a := NewGenerate("draft", captured, func(o *GenerateOptions) {
		o.System = "fixed framing"
	})

	_, err := a.Execute(context.Background(), &core.ActionContext{
		Params: map[string]any{"profile": "ignored"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed framing", captured.lastReq.System)
}

func TestGeneratePromptTemplate(t *testing.T) {
	captured := &capturingGenerator{}
	a := NewGenerate("review", captured, func(o *GenerateOptions) {
		o.PromptTemplate = "As {{.profile}}, review this:\n{{.fresh}}"
	})

	actx := &core.ActionContext{
		Fresh:  []core.Message{core.NewMessage("the draft", "writer", "draft")},
		Params: map[string]any{"profile": "an editor"},
	}
	_, err := a.Execute(context.Background(), actx)
	require.NoError(t, err)
	assert.Equal(t, "As an editor, review this:\nthe draft", captured.lastReq.Prompt)
}

func TestGeneratePromptFuncWinsOverTemplate(t *testing.T) {
	captured := &capturingGenerator{}
	a := NewGenerate("draft", captured, func(o *GenerateOptions) {
		o.PromptTemplate = "unused"
		o.PromptFunc = func(*core.ActionContext) string { return "custom" }
	})

	_, err := a.Execute(context.Background(), &core.ActionContext{Params: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "custom", captured.lastReq.Prompt)
}

func TestGenerateFallback(t *testing.T) {
	a := NewGenerate("draft", model.NewMockGenerator(), func(o *GenerateOptions) {
		o.Fallback = "best effort"
	})
	assert.Equal(t, "best effort", a.Fallback())

	bare := NewGenerate("draft", model.NewMockGenerator())
	assert.Empty(t, bare.Fallback())
}

// capturingGenerator records the last request, answering with a constant.
type capturingGenerator struct {
	lastReq model.Request
}

func (g *capturingGenerator) Generate(_ context.Context, req model.Request) (string, error) {
	g.lastReq = req
	return "ok", nil
}

func (g *capturingGenerator) Info() model.Info {
	return model.Info{Name: "capturing", Provider: "mock"}
}

// -------------------- ToolCall Tests --------------------

func TestToolCallInvokesRegisteredTool(t *testing.T) {
	reg := tool.NewRegistry(logging.NoOpLogger{})
	reg.Register(tool.NewFunctionTool("shout", "upper-cases text",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"text"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return "LOUD:" + args["text"].(string), nil
		}))

	a := NewToolCall("announce", "shout", reg)
	out, err := a.Execute(context.Background(), &core.ActionContext{
		Params: map[string]any{"args": map[string]any{"text": "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "LOUD:hello", out)
	assert.Equal(t, "announce", a.Name())
}

func TestToolCallStringifiesNonStringResults(t *testing.T) {
	reg := tool.NewRegistry(logging.NoOpLogger{})
	reg.Register(tool.NewFunctionTool("answer", "returns a number",
		map[string]any{"type": "object"},
		func(context.Context, map[string]any) (any, error) { return 42, nil }))

	a := NewToolCall("compute", "answer", reg)
	out, err := a.Execute(context.Background(), &core.ActionContext{Params: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestToolCallUnknownTool(t *testing.T) {
	reg := tool.NewRegistry(logging.NoOpLogger{})
	a := NewToolCall("x", "missing", reg)

	_, err := a.Execute(context.Background(), &core.ActionContext{Params: map[string]any{}})
	var notFound *core.ToolNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
