package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	robots := NewRobotsChecker("HermesResearchBot", time.Second)
	f := New(time.Second, robots)

	content, err := f.Fetch(t.Context(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Contains(t, string(content.Body), "hi")
}

func TestHTTPFetcherRespectsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		w.Write([]byte("should not be fetched"))
	}))
	defer srv.Close()

	robots := NewRobotsChecker("HermesResearchBot", time.Second)
	f := New(time.Second, robots)

	_, err := f.Fetch(t.Context(), srv.URL+"/private/page")
	require.ErrorIs(t, err, ErrRobotsDisallowed)
}

func TestRobotsCheckerPermissiveWithoutRobotsTxt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	robots := NewRobotsChecker("HermesResearchBot", time.Second)
	assert.True(t, robots.Allowed(t.Context(), srv.URL+"/anything"))
}
