// Package llm provides structured LLM completion with a primary provider, a
// free-text fallback provider, and defensive JSON recovery in between.
package llm

import (
	"context"
	"encoding/json"
)

// Request describes one completion. When Schema is non-nil the parsed result
// is validated against it before being returned, so downstream stages fail
// fast on shape drift instead of propagating missing fields into prompts.
type Request struct {
	System      string
	Prompt      string
	Schema      map[string]any
	Temperature *float64
	MaxTokens   int64
}

// Completer produces a JSON document for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	return f(ctx, req)
}
