package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, status int, content string, seen *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if seen != nil {
			seen.Store(body)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIBackend_Complete(t *testing.T) {
	var seen atomic.Value
	srv := chatServer(t, http.StatusOK, `{"orders": ["A PAR H"]}`, &seen)

	b, err := NewOpenAIBackend(context.Background(), OpenAIConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	text, err := b.Complete(context.Background(), "you are FRANCE", "orders?")
	require.NoError(t, err)
	require.Equal(t, `{"orders": ["A PAR H"]}`, text)

	body := seen.Load().(map[string]any)
	require.Equal(t, "test-model", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAIBackend_RateLimitIsTransient(t *testing.T) {
	srv := chatServer(t, http.StatusTooManyRequests, "", nil)

	b, err := NewOpenAIBackend(context.Background(), OpenAIConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = b.Complete(context.Background(), "", "hi")
	require.ErrorIs(t, err, ErrTransient)
	require.True(t, isRecoverable(err))
}

func TestOpenAIBackend_RequiresModel(t *testing.T) {
	_, err := NewOpenAIBackend(context.Background(), OpenAIConfig{})
	require.Error(t, err)
}
