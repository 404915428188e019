package llm

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Anthropic is the primary structured-completion provider. Every request
// instructs the model to emit a single JSON document; when the request
// carries a schema the parsed output is validated before being returned.
type Anthropic struct {
	client    sdk.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// AnthropicOption configures the provider.
type AnthropicOption func(*Anthropic)

// WithRateLimit caps outbound requests per second with the given burst.
func WithRateLimit(rps float64, burst int) AnthropicOption {
	return func(a *Anthropic) {
		if rps > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewAnthropic creates the primary provider.
func NewAnthropic(apiKey, model string, maxTokens int64, opts ...AnthropicOption) *Anthropic {
	a := &Anthropic{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

const jsonOnlyInstruction = "Respond with a single JSON document and nothing else. No markdown fences, no prose."

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "anthropic: rate limit wait")
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = a.maxTokens
	}

	system := jsonOnlyInstruction
	if req.System != "" {
		system = req.System + "\n\n" + jsonOnlyInstruction
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}

	zap.L().Debug("anthropic completion",
		zap.String("model", a.model),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	out, err := ParseLoose(text)
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
