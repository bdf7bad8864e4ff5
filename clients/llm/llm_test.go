package llm

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"hello there"},"done":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3", time.Second, nil)
	out, err := c.Chat(t.Context(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestHTTPClientNon2xxIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3", time.Second, nil)
	_, err := c.Chat(t.Context(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
}

func TestHTTPClientEmptyContentIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":""},"done":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "llama3", time.Second, nil)
	_, err := c.Chat(t.Context(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
}
