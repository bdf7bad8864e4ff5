package stages

import (
	"context"
	"errors"
	"time"

	"github.com/hermesagent/hermes/cache"
	"github.com/hermesagent/hermes/clients/fetch"
	"github.com/hermesagent/hermes/clients/search"
	"github.com/hermesagent/hermes/core"
	"golang.org/x/sync/errgroup"
)

// SearcherDeps bundles the Searcher stage's external collaborators.
type SearcherDeps struct {
	Search        search.Client
	Fetcher       fetch.Fetcher
	Cache         cache.Cache
	Memory        core.Memory
	Logger        core.Logger
	Workers       int
	RetryAttempts int
	TopFetch      int
	CacheTTL      time.Duration
}

// Searcher fans out queries with a bounded degree of parallelism (spec
// §4.4). It selects FollowUpQueries when present, else Queries.
func Searcher(ctx context.Context, state *core.AgentState, deps SearcherDeps) core.StateDelta {
	queries := state.FollowUpQueries
	if len(queries) == 0 {
		queries = state.Queries
	}

	workers := deps.Workers
	if workers <= 0 {
		workers = 4
	}
	if len(queries) < workers {
		workers = len(queries)
	}
	if workers < 1 {
		workers = 1
	}

	type result struct {
		query string
		hits  []core.Hit
	}
	results := make([]result, len(queries))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, q := range queries {
		i, q := i, q
		group.Go(func() error {
			hits := runOneQuery(groupCtx, q, state.Language, state.MinSources, state.MaxSources, state.LoopCount, deps)
			results[i] = result{query: q, hits: hits}
			return nil
		})
	}
	_ = group.Wait()

	delta := core.StateDelta{
		QueryResults:    make(map[string][]core.Hit, len(queries)),
		AppendResults:   state.LoopCount > 0,
		ExecutedQueries: queries,
		ClearFollowUps:  true,
	}
	for _, r := range results {
		delta.QueryResults[r.query] = r.hits
	}
	return delta
}

func runOneQuery(ctx context.Context, query, language string, minSources, maxSources, loop int, deps SearcherDeps) []core.Hit {
	key := cache.Key(query, language)

	if deps.Cache != nil {
		if data, ok, err := deps.Cache.Get(ctx, key); err == nil && ok {
			if hits, err := cache.UnmarshalHits(data); err == nil {
				return hits
			}
		}
	}

	hits, err := searchWithRetry(ctx, deps.Search, query, language, maxSources, deps.RetryAttempts)
	if err != nil {
		return nil
	}

	hits = dedupeByURL(hits)
	hits = fetchTopHits(ctx, hits, deps)
	for i := range hits {
		hits[i].Loop = loop
	}

	if deps.Cache != nil {
		if data, err := cache.MarshalHits(hits); err == nil {
			ttl := deps.CacheTTL
			if ttl <= 0 {
				ttl = time.Hour
			}
			_ = deps.Cache.Put(ctx, key, data, ttl)
		}
	}
	return hits
}

// searchWithRetry calls SearchClient with exponential backoff starting at
// 0.5s, doubling each retry, honoring 429/503 (spec §4.4 step 3).
func searchWithRetry(ctx context.Context, client search.Client, query, language string, limit, attempts int) ([]core.Hit, error) {
	if attempts < 1 {
		attempts = 1
	}
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		hits, err := client.Search(ctx, query, language, limit)
		if err == nil {
			return hits, nil
		}
		lastErr = err
		if !core.IsRetryable(err) {
			return nil, err
		}
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, lastErr
}

func dedupeByURL(hits []core.Hit) []core.Hit {
	seen := make(map[string]bool, len(hits))
	out := make([]core.Hit, 0, len(hits))
	for _, h := range hits {
		if seen[h.URL] {
			continue
		}
		seen[h.URL] = true
		out = append(out, h)
	}
	return out
}

// fetchTopHits attempts PageFetcher for the top k hits missing content
// (spec §4.4 step 5), skipping disallowed or failed fetches. When Memory is
// configured, a page already fetched by a concurrent query this run is
// reused instead of fetched again.
func fetchTopHits(ctx context.Context, hits []core.Hit, deps SearcherDeps) []core.Hit {
	if deps.Fetcher == nil {
		return hits
	}
	k := deps.TopFetch
	if k <= 0 {
		k = 3
	}
	fetched := 0
	for i := range hits {
		if fetched >= k {
			break
		}
		if hits[i].Content != "" {
			continue
		}

		memKey := "fetched:" + hits[i].URL
		if deps.Memory != nil {
			if body, err := deps.Memory.Get(ctx, memKey); err == nil && body != "" {
				hits[i].Content = body
				hits[i].FetchedContent = true
				continue
			}
		}

		page, err := deps.Fetcher.Fetch(ctx, hits[i].URL)
		fetched++
		if err != nil {
			if errors.Is(err, fetch.ErrRobotsDisallowed) {
				hits[i].RobotsDisallowed = true
			}
			continue
		}
		hits[i].Content = string(page.Body)
		hits[i].FetchedContent = true
		if deps.Memory != nil {
			_ = deps.Memory.Set(ctx, memKey, hits[i].Content, 10*time.Minute)
		}
	}
	return hits
}
