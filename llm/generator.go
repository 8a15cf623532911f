package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/tmrisk/analysis"
)

// DefaultSeed is sent with every analysis request for reproducible output.
const DefaultSeed = 42

// Generator adapts a chat Provider to the analysis generation contract.
type Generator struct {
	provider Provider
	model    string
	seed     int
}

// NewGenerator wraps provider. model may be empty to use the provider's
// configured model.
func NewGenerator(provider Provider, model string) *Generator {
	return &Generator{provider: provider, model: model, seed: DefaultSeed}
}

// Generate sends prompt as a single user turn, with opts.System as the
// system message, and returns the response text.
func (g *Generator) Generate(ctx context.Context, prompt string, opts analysis.GenerateOptions) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var msgs []Message
	if opts.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: opts.System})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	seed := g.seed
	start := time.Now()
	resp, err := g.provider.Chat(ctx, ChatRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: opts.Temperature,
		Seed:        &seed,
	})
	if err != nil {
		return "", err
	}
	if resp.Content == "" {
		return "", fmt.Errorf("empty completion (finish reason %q)", resp.FinishReason)
	}

	slog.Debug("llm: generation complete",
		"model", resp.Model,
		"tokens", resp.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return resp.Content, nil
}
