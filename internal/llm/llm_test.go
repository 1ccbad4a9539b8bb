package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	req := Request{
		History: []Turn{{RoleUser, "hi"}, {RoleAssistant, "hello"}, {RoleUser, "fix it"}},
		Context: "--- a.go\npackage a\n",
		Input:   "fix it",
	}
	want := "User: hi\nAssistant: hello\nUser: fix it\n\n" +
		"Context of the current directory:\n--- a.go\npackage a\n\n\n" +
		"User request: fix it"
	assert.Equal(t, want, BuildPrompt(req))
}

func TestOllamaComplete(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{Model: got.Model, Response: "done"})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", 0, nil)
	text, err := o.Complete(context.Background(), Request{Model: "m", System: "sys", Input: "q"})
	require.NoError(t, err)

	assert.Equal(t, "done", text)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, "sys", got.System)
	assert.False(t, got.Stream)
	assert.Contains(t, got.Prompt, "User request: q")
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
		{"error field", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"out of memory"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewOllama(srv.URL, 0, nil).Complete(context.Background(), Request{})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewOllama(url, 0, nil).Complete(context.Background(), Request{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
