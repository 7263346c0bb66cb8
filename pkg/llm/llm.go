// Package llm provides the reasoning engine clients consulted by the secondary
// assessment. Engines turn a system and user prompt into raw completion text; they
// never interpret it.
package llm

import (
	"context"
	"fmt"

	"github.com/polisai/gatekeeper/pkg/domain"
)

// Prompt is a rendered chat prompt.
type Prompt struct {
	System string
	User   string
}

// Engine produces a raw completion for a prompt.
type Engine interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, prompt Prompt) (string, error)

// Complete calls f.
func (f EngineFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// Disabled is an engine that is not configured. Every call fails with
// domain.ErrEngineDisabled so callers take their fallback path.
type Disabled struct{}

// Complete always fails.
func (Disabled) Complete(context.Context, Prompt) (string, error) {
	return "", domain.ErrEngineDisabled
}

// Unconfigured is an engine whose setup is incomplete, such as a missing API key.
// Every call fails with an error wrapping both domain.ErrEngineDisabled and Err.
type Unconfigured struct {
	Err error
}

// Complete always fails.
func (u Unconfigured) Complete(context.Context, Prompt) (string, error) {
	if u.Err == nil {
		return "", domain.ErrEngineDisabled
	}
	return "", fmt.Errorf("%w: %w", domain.ErrEngineDisabled, u.Err)
}
