// Package fetch implements the PageFetcher contract: fetch(url) ->
// PageContent, honoring robots.txt per host.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hermesagent/hermes/core"
	"github.com/temoto/robotstxt"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// PageContent is the raw body plus the content type, handed to the
// normalize package for extraction.
type PageContent struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher is the narrow interface the searcher stage depends on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*PageContent, error)
}

// RobotsChecker decides whether a given path is disallowed for the
// configured user agent. One instance caches a robots.txt decision per
// host for the lifetime of the run (spec §4.4 step 5).
type RobotsChecker struct {
	UserAgent string
	HTTP      *http.Client

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

func NewRobotsChecker(userAgent string, timeout time.Duration) *RobotsChecker {
	return &RobotsChecker{
		UserAgent: userAgent,
		HTTP: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		cache: make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched. Failures to retrieve
// robots.txt are treated as permissive (allowed), matching the common
// crawler convention that a missing robots.txt imposes no restriction.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := u.Scheme + "://" + u.Host

	r.mu.Lock()
	data, cached := r.cache[host]
	r.mu.Unlock()

	if !cached {
		data = r.fetchRobots(ctx, host)
		r.mu.Lock()
		r.cache[host] = data
		r.mu.Unlock()
	}
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, r.UserAgent)
}

func (r *RobotsChecker) fetchRobots(ctx context.Context, host string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}

// HTTPFetcher retrieves a page body over HTTP, consulting a RobotsChecker
// first.
type HTTPFetcher struct {
	HTTP   *http.Client
	Robots *RobotsChecker
}

func New(timeout time.Duration, robots *RobotsChecker) *HTTPFetcher {
	return &HTTPFetcher{
		HTTP: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		Robots: robots,
	}
}

// ErrRobotsDisallowed signals the caller should skip this hit rather than
// treat the fetch as a failed attempt.
var ErrRobotsDisallowed = fmt.Errorf("robots.txt disallows this path")

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*PageContent, error) {
	if f.Robots != nil && !f.Robots.Allowed(ctx, rawURL) {
		return nil, ErrRobotsDisallowed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.NewError("fetch.Fetch", core.KindFatal, err)
	}
	req.Header.Set("User-Agent", "HermesResearchBot/1.0")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, core.NewError("fetch.Fetch", core.KindUpstreamUnavailable,
			fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewError("fetch.Fetch", core.KindUpstreamUnavailable,
			fmt.Errorf("%w: status %d", core.ErrUpstreamUnavailable, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, core.NewError("fetch.Fetch", core.KindUpstreamUnavailable, err)
	}

	return &PageContent{
		URL:         rawURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
