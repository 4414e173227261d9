package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageServer(t *testing.T, status int, body map[string]any, seen *map[string]any) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestCreateMessage(t *testing.T) {
	t.Parallel()

	var seen map[string]any
	ts := messageServer(t, http.StatusOK, map[string]any{
		"id":   "msg_1",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": `{"supplier_name":`},
			{"type": "text", "text": `"Edison"}`},
		},
		"model":       "claude-haiku-4-5",
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 120, "output_tokens": 30},
	}, &seen)

	temp := 0.0
	c := NewClient("test-key", WithBaseURL(ts.URL))
	resp, err := c.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5",
		MaxTokens:   512,
		System:      "extract bill fields",
		Messages:    []Message{{Role: "user", Content: "bolletta"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, `{"supplier_name":"Edison"}`, resp.Text())
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, "claude-haiku-4-5", seen["model"])
	assert.NotNil(t, seen["system"])
}

func TestCreateMessage_APIError(t *testing.T) {
	t.Parallel()

	ts := messageServer(t, http.StatusTooManyRequests, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "rate_limit_error", "message": "slow down"},
	}, nil)

	c := NewClient("test-key", WithBaseURL(ts.URL))
	_, err := c.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, 0, StatusCode(assert.AnError))
}

func TestTokenUsage_EstimateCost(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 6.0, u.EstimateCost("claude-haiku-4-5"), 1e-9)
	assert.Zero(t, u.EstimateCost("unknown-model"))
}

func TestMessageResponse_TextSkipsOtherBlocks(t *testing.T) {
	t.Parallel()

	r := &MessageResponse{Content: []ContentBlock{{Type: "thinking", Text: "hmm"}, {Type: "text", Text: "ok"}}}
	assert.Equal(t, "ok", r.Text())
}
