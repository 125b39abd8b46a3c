package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanviriss/MockMate/pkg/retry"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 123,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(NewOpenAIProvider("test-key", "gpt-4o-mini", server.URL+"/v1"), Options{
		Timeout: 5 * time.Second,
		Retry: &retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	})
}

func TestClient_Complete(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "user", req.Messages[1].Role)
		}

		_ = json.NewEncoder(w).Encode(chatResponse("  hello  "))
	})

	resp, err := client.Complete(context.Background(), CompletionRequest{SystemPrompt: "sys", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestClient_CompleteJSON_RetriesMalformedOutput(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(chatResponse("not json at all"))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse("```json\n{\"needs_followup\": true, \"reason\": \"vague\"}\n```"))
	})

	var out answerQuality
	require.NoError(t, client.CompleteJSON(context.Background(), CompletionRequest{UserPrompt: "x"}, &out))
	assert.True(t, out.NeedsFollowup)
	assert.Equal(t, "vague", out.Reason)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_CompleteJSON_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(chatResponse("{broken"))
	})

	var out answerQuality
	err := client.CompleteJSON(context.Background(), CompletionRequest{UserPrompt: "x"}, &out)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse("ok"))
	})

	resp, err := client.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`  {"a":1}  `))
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(context.Background(), ProviderConfig{Provider: "llama"})
	assert.Error(t, err)
}
