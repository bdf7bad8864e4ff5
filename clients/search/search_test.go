package search

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crdt", r.URL.Query().Get("q"))
		w.Write([]byte(`{"results":[{"url":"https://a.example/1","title":"A","snippet":"s"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	hits, err := c.Search(t.Context(), "crdt", "en", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "https://a.example/1", hits[0].URL)
}

func TestHTTPClientSearchRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Search(t.Context(), "crdt", "en", 5)
	require.Error(t, err)
}
