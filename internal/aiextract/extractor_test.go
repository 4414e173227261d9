package aiextract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/sells-group/bill-advisor/internal/model"
	"github.com/sells-group/bill-advisor/internal/resilience"
	"github.com/sells-group/bill-advisor/pkg/anthropic"
)

const reply = `{"supplier_name":"Edison","total_annual_cost_eur":900,"confidence":{"total_annual_cost_eur":0.92}}`

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	var s Static
	c, err := s.ExtractViaAI(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, c)

	s = Static{Candidates: model.Candidates{
		model.FieldSupplierName: {Field: model.FieldSupplierName, Value: "Edison", Confidence: 0.7},
	}}
	c, err = s.ExtractViaAI(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, model.SourceAI, c[model.FieldSupplierName].Source)

	_, err = Static{Err: errors.New("down")}.ExtractViaAI(context.Background(), "x")
	assert.Error(t, err)
}

func TestAnthropic_ExtractViaAI(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.Model == DefaultAnthropicModel && r.System == SystemPrompt && len(r.Messages) == 1
	})).Return(&anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: reply}},
		StopReason: "end_turn",
	}, nil)

	c, err := NewAnthropic(client, "").ExtractViaAI(context.Background(), "bolletta")
	require.NoError(t, err)
	assert.InDelta(t, 900, c[model.FieldTotalAnnualCostEUR].Value, 1e-9)
	assert.InDelta(t, 0.92, c[model.FieldTotalAnnualCostEUR].Confidence, 1e-9)
	client.AssertExpectations(t)
}

func TestAnthropic_TruncatedReply(t *testing.T) {
	t.Parallel()

	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: `{"supplier_name":`}},
		StopReason: "max_tokens",
	}, nil).Once()

	_, err := NewAnthropic(client, "m", fastRetry()).ExtractViaAI(context.Background(), "x")
	assert.ErrorContains(t, err, "truncated")
	client.AssertExpectations(t)
}

type fakeGenerator struct {
	calls atomic.Int32
	fail  int32
	err   error
	resp  *genai.GenerateContentResponse
}

func (f *fakeGenerator) GenerateContent(context.Context, ...genai.Part) (*genai.GenerateContentResponse, error) {
	if f.calls.Add(1) <= f.fail {
		return nil, f.err
	}
	return f.resp, nil
}

func geminiResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}}}},
	}
}

func TestGemini_RetriesTransient(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fail: 1, err: &googleapi.Error{Code: http.StatusServiceUnavailable}, resp: geminiResponse(reply)}
	g := &Gemini{model: gen, s: apply([]Option{fastRetry()})}

	c, err := g.ExtractViaAI(context.Background(), "bolletta")
	require.NoError(t, err)
	assert.Equal(t, "Edison", c[model.FieldSupplierName].Value)
	assert.Equal(t, int32(2), gen.calls.Load())
	assert.NoError(t, g.Close())
}

func TestGemini_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fail: 5, err: &googleapi.Error{Code: http.StatusBadRequest}}
	g := &Gemini{model: gen, s: apply([]Option{fastRetry()})}

	_, err := g.ExtractViaAI(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, int32(1), gen.calls.Load())
}

func TestGemini_EmptyResponse(t *testing.T) {
	t.Parallel()

	g := &Gemini{model: &fakeGenerator{resp: &genai.GenerateContentResponse{}}, s: apply([]Option{fastRetry()})}
	_, err := g.ExtractViaAI(context.Background(), "x")
	assert.ErrorContains(t, err, "no candidates")
}

func TestGeminiSchema(t *testing.T) {
	t.Parallel()

	s := geminiSchema()
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Len(t, s.Properties, len(model.Fields())+1)
	assert.Equal(t, genai.TypeNumber, s.Properties[string(model.FieldTotalAnnualCostEUR)].Type)
	assert.Len(t, s.Properties[string(model.FieldBillKind)].Enum, 3)
}

func TestOpenAI_ExtractViaAI(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json_object", req.ResponseFormat["type"])
		assert.Len(t, req.Messages, 2)

		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": reply}}},
		})
	}))
	defer ts.Close()

	c, err := NewOpenAI("sk-test", "", ts.URL+"/", fastRetry()).ExtractViaAI(context.Background(), "bolletta")
	require.NoError(t, err)
	assert.InDelta(t, 900, c[model.FieldTotalAnnualCostEUR].Value, 1e-9)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAI_PermanentError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewOpenAI("bad", "", ts.URL, fastRetry()).ExtractViaAI(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
