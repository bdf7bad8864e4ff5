package llm

import (
	"context"
	"time"

	"github.com/hermesagent/hermes/core"
	"github.com/hermesagent/hermes/resilience"
)

// ResilientClient wraps a Client with a circuit breaker so a failing local
// LLM server stops accepting new calls for a cooldown window instead of
// letting every stage invocation pay the full request timeout.
type ResilientClient struct {
	Delegate Client
	Breaker  *resilience.CircuitBreaker
}

// NewResilient builds a ResilientClient around delegate, tripping open
// after errorThreshold of calls fail once volumeThreshold calls have been
// observed, and retrying after sleepWindow.
func NewResilient(delegate Client, logger core.Logger) (*ResilientClient, error) {
	cb, err := resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
		Name:             "llm",
		ErrorThreshold:   0.5,
		VolumeThreshold:  5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 1,
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

func (r *ResilientClient) Chat(ctx context.Context, messages []Message) (string, error) {
	var out string
	err := r.Breaker.Execute(ctx, func() error {
		text, err := r.Delegate.Chat(ctx, messages)
		if err != nil {
			return err
		}
		out = text
		return nil
	})
	return out, err
}
