package search

import (
	"context"
	"time"

	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/resilience"
)

// ResilientClient wraps a Client with a circuit breaker shared across the
// concurrent per-query workers in stages.Searcher. A single failing search
// backend trips the breaker once, so the rest of the in-flight queries fail
// fast instead of each worker independently retrying into a dead endpoint.
type ResilientClient struct {
	Delegate Client
	Breaker  *resilience.CircuitBreaker
}

func NewResilient(delegate Client, logger core.Logger) (*ResilientClient, error) {
	cb, err := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:             "search",
		ErrorThreshold:   0.5,
		VolumeThreshold:  8,
		SleepWindow:      20 * time.Second,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       60 * time.Second,
		BucketCount:      10,
		ErrorClassifier:  resilience.DefaultErrorClassifier,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	return &ResilientClient{Delegate: delegate, Breaker: cb}, nil
}

func (r *ResilientClient) Search(ctx context.Context, query, language string, limit int) ([]core.Hit, error) {
	var hits []core.Hit
	err := r.Breaker.Execute(ctx, func() error {
		h, err := r.Delegate.Search(ctx, query, language, limit)
		if err != nil {
			return err
		}
		hits = h
		return nil
	})
	return hits, err
}
