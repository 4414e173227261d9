package aiextract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
)

// Defaults for the OpenAI extractor.
const (
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// APIError is a non-2xx reply from an HTTP vendor.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aiextract: api error %d: %s", e.StatusCode, e.Body)
}

// OpenAI extracts through the chat completions endpoint in JSON mode.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	s       settings
}

// NewOpenAI creates an OpenAI extractor. An empty baseURL uses the public
// endpoint.
func NewOpenAI(apiKey, modelName, baseURL string, opts ...Option) *OpenAI {
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		apiKey:  apiKey,
		model:   modelName,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		s:       apply(opts),
	}
}

// Name implements Extractor.
func (o *OpenAI) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int64             `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// ExtractViaAI implements Extractor.
func (o *OpenAI) ExtractViaAI(ctx context.Context, text string) (model.Candidates, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: UserPrompt(text)},
		},
		Temperature:    o.s.temperature,
		MaxTokens:      o.s.maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, eris.Wrap(err, "aiextract: marshal openai request")
	}
	return run(ctx, o.Name(), o.s, func(ctx context.Context) (string, error) {
		return o.complete(ctx, body)
	})
}

func (o *OpenAI) complete(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "aiextract: create openai request")
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "aiextract: openai request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", eris.Wrap(err, "aiextract: read openai response")
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return "", apiErr
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", eris.Wrap(err, "aiextract: decode openai response")
	}
	if len(out.Choices) == 0 {
		return "", eris.New("aiextract: openai returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
