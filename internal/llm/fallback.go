package llm

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/prospexs-ab/prospexs-api/pkg/perplexity"
)

// PerplexityCompleter adapts the fallback chat provider to the Completer
// interface. Output is free text: fences are stripped and the remainder
// parsed as JSON with best-effort repair.
type PerplexityCompleter struct {
	client perplexity.Client
	model  string
}

// NewPerplexityCompleter wraps a perplexity client.
func NewPerplexityCompleter(client perplexity.Client, model string) *PerplexityCompleter {
	return &PerplexityCompleter{client: client, model: model}
}

// Complete implements Completer.
func (p *PerplexityCompleter) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	system := jsonOnlyInstruction
	if req.System != "" {
		system = req.System + "\n\n" + jsonOnlyInstruction
	}

	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:       p.model,
		Temperature: req.Temperature,
		Messages: []perplexity.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return nil, err
	}

	out, err := ParseLoose(resp.Text())
	if err != nil {
		return nil, err
	}

	if req.Schema != nil {
		if err := ValidateSchema(req.Schema, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Fallback tries the primary completer and, on any error, the secondary.
// Both failing returns the secondary's error; the primary's error is logged,
// not joined, since the caller can only act on one failure anyway.
type Fallback struct {
	primary   Completer
	secondary Completer
}

// NewFallback composes the primary/secondary pair used by every handler.
func NewFallback(primary, secondary Completer) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Complete implements Completer.
func (f *Fallback) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	out, err := f.primary.Complete(ctx, req)
	if err == nil {
		return out, nil
	}

	zap.L().Warn("llm: primary provider failed, falling back",
		zap.Error(err),
	)

	return f.secondary.Complete(ctx, req)
}
