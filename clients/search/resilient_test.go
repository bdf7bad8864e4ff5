package search

import (
	"context"
	"errors"
	"testing"

	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSearchClient struct {
	calls int
	failN int
	hits  []core.Hit
}

func (c *scriptedSearchClient) Search(ctx context.Context, query, language string, limit int) ([]core.Hit, error) {
	c.calls++
	if c.calls <= c.failN {
		return nil, errors.New("backend down")
	}
	return c.hits, nil
}

func TestResilientSearchClientPassesThroughOnSuccess(t *testing.T) {
	delegate := &scriptedSearchClient{hits: []core.Hit{{URL: "https://a.example"}}}
	rc, err := NewResilient(delegate, nil)
	require.NoError(t, err)

	hits, err := rc.Search(t.Context(), "q", "en", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestResilientSearchClientTripsOpenAfterRepeatedFailures(t *testing.T) {
	delegate := &scriptedSearchClient{failN: 100}
	rc, err := NewResilient(delegate, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, _ = rc.Search(t.Context(), "q", "en", 5)
	}
	callsBeforeOpen := delegate.calls

	_, err = rc.Search(t.Context(), "q", "en", 5)
	require.Error(t, err)
	assert.Equal(t, callsBeforeOpen, delegate.calls)
}
