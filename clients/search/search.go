// Package search implements the SearchClient contract: search(query,
// language, limit) -> []Hit.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hermesagent/hermes/core"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client is the narrow interface stages depend on.
type Client interface {
	Search(ctx context.Context, query, language string, limit int) ([]core.Hit, error)
}

type searchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// HTTPClient calls an external search backend over a minimal JSON contract:
// GET {endpoint}?q=...&lang=...&limit=... -> {"results":[{url,title,snippet}]}.
type HTTPClient struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Endpoint: endpoint,
		HTTP: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

func (c *HTTPClient) Search(ctx context.Context, query, language string, limit int) ([]core.Hit, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, core.NewError("search.Search", core.KindFatal, err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("lang", language)
	q.Set("limit", fmt.Sprintf("%d", limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, core.NewError("search.Search", core.KindFatal, err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, core.NewError("search.Search", core.KindUpstreamUnavailable,
			fmt.Errorf("%w: %v", core.ErrUpstreamUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, core.NewError("search.Search", core.KindUpstreamUnavailable,
			fmt.Errorf("%w: status %d", core.ErrUpstreamUnavailable, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewError("search.Search", core.KindUpstreamUnavailable,
			fmt.Errorf("%w: status %d", core.ErrUpstreamUnavailable, resp.StatusCode))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, core.NewError("search.Search", core.KindFatal, err)
	}

	hits := make([]core.Hit, 0, len(decoded.Results))
	now := time.Now()
	for _, r := range decoded.Results {
		hits = append(hits, core.Hit{
			URL:         r.URL,
			Title:       r.Title,
			Snippet:     r.Snippet,
			RetrievedAt: now,
		})
	}
	return hits, nil
}
