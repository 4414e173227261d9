package aiextract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
	"github.com/sells-group/bill-advisor/pkg/anthropic"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-haiku-4-5"

// Anthropic extracts through the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	model  string
	s      settings
}

// NewAnthropic creates an Anthropic extractor.
func NewAnthropic(client anthropic.Client, modelName string, opts ...Option) *Anthropic {
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}
	return &Anthropic{client: client, model: modelName, s: apply(opts)}
}

// Name implements Extractor.
func (a *Anthropic) Name() string { return "anthropic" }

// ExtractViaAI implements Extractor.
func (a *Anthropic) ExtractViaAI(ctx context.Context, text string) (model.Candidates, error) {
	temp := a.s.temperature
	return run(ctx, a.Name(), a.s, func(ctx context.Context) (string, error) {
		resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       a.model,
			MaxTokens:   a.s.maxTokens,
			System:      SystemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: UserPrompt(text)}},
			Temperature: &temp,
		})
		if err != nil {
			if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
				return "", resilience.NewTransientError(err, code)
			}
			return "", err
		}
		resp.Usage.LogCost(a.model, "bill_extract")
		if resp.StopReason == "max_tokens" {
			return "", eris.New("aiextract: anthropic reply truncated")
		}
		return resp.Text(), nil
	})
}
