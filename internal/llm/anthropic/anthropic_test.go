package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperqa/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, Temperature: 0.3})
	require.NoError(t, err)
	return c
}

func TestComplete(t *testing.T) {
	var got struct {
		Model         string   `json:"model"`
		StopSequences []string `json:"stop_sequences"`
		System        []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "Chemokines guide leukocytes."}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	})

	reply, err := c.Complete(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "grounding"},
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "q2"},
	}, domain.CompletionOptions{Stop: []string{"END"}})
	require.NoError(t, err)
	assert.Equal(t, domain.ChatMessage{Role: domain.RoleAssistant, Content: "Chemokines guide leukocytes."}, reply)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, []string{"END"}, got.StopSequences)
	require.Len(t, got.System, 1)
	assert.Equal(t, "grounding", got.System[0].Text)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestCompleteClassifiesFailures(t *testing.T) {
	cases := map[int]error{
		http.StatusTooManyRequests:    domain.ErrTransient,
		http.StatusServiceUnavailable: domain.ErrTransient,
		http.StatusUnauthorized:       domain.ErrPermanent,
	}
	for status, want := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"test_error","message":"nope"}}`))
		})
		_, err := c.Complete(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "q"}}, domain.CompletionOptions{})
		assert.ErrorIs(t, err, want, status)
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
