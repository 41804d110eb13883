// Package model abstracts the external content-generation backend. The core
// treats it as an opaque, possibly slow, possibly failing text-in/text-out
// dependency; actions wrap it with bounded retry, backoff and fallbacks so a
// backend outage never kills the bus loop.
package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Reason categorizes generation failures.
type Reason string

const (
	// ReasonTimeout means the backend did not answer within the deadline.
	ReasonTimeout Reason = "timeout"
	// ReasonMalformedOutput means the backend answered with unusable output.
	ReasonMalformedOutput Reason = "malformed_output"
	// ReasonRateLimited means the backend rejected the call due to quota.
	ReasonRateLimited Reason = "rate_limited"
)

// GenerationError wraps a backend failure with a machine-readable reason.
type GenerationError struct {
	Reason Reason
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NewGenerationError constructs a GenerationError.
func NewGenerationError(reason Reason, err error) *GenerationError {
	return &GenerationError{Reason: reason, Err: err}
}

// Request is the normalized generation input.
type Request struct {
	// System carries role framing (profile, goal, constraints).
	System string
	// Prompt is the user-level instruction plus accumulated context.
	Prompt string
}

// Info contains metadata about a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Generator is the minimal contract actions use to produce text. Failures
// should be *GenerationError so callers can branch on the reason.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)

	// Info returns information about the generator implementation.
	Info() Info
}

// MockGenerator is a deterministic in-memory Generator for tests and
// examples. Canned responses are matched by exact prompt; unmatched prompts
// get an echo response. FailTimes injects failures consumed before any
// success, which is how retry paths are exercised. Safe for concurrent use.
type MockGenerator struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	failTimes int
	failWith  error
	calls     int
}

// NewMockGenerator constructs a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		info:      Info{Name: "mock", Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an exact prompt.
func (m *MockGenerator) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailTimes makes the next n Generate calls fail with err (a generic
// GenerationError when err is nil).
func (m *MockGenerator) FailTimes(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTimes = n
	if err == nil {
		err = NewGenerationError(ReasonTimeout, errors.New("injected failure"))
	}
	m.failWith = err
}

// Calls returns the number of Generate invocations so far.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return "", NewGenerationError(ReasonTimeout, err)
	}
	if m.failTimes > 0 {
		m.failTimes--
		return "", m.failWith
	}
	if resp, ok := m.responses[req.Prompt]; ok {
		return resp, nil
	}
	return fmt.Sprintf("Mock response to: %s", req.Prompt), nil
}

// Info implements Generator.
func (m *MockGenerator) Info() Info { return m.info }
