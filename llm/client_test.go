package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "Update greeting prompt"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "phi3.5", 5*time.Second)
	out, err := client.Complete(context.Background(), "you write commit messages", "Files: a.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "Update greeting prompt", out)

	assert.Equal(t, "phi3.5", gotReq.Model)
	assert.False(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "phi3.5", 5*time.Second)
	_, err := client.Complete(context.Background(), "", "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "phi3.5", 5*time.Second)
	_, err := client.Complete(context.Background(), "", "hello", nil)
	require.Error(t, err)
}

func TestCompleteUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "phi3.5", 200*time.Millisecond)
	_, err := client.Complete(context.Background(), "", "hello", nil)
	require.Error(t, err)
}
