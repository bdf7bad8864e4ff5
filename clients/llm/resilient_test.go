package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	calls   int
	failN   int
	failErr error
}

func (c *scriptedClient) Chat(ctx context.Context, messages []Message) (string, error) {
	c.calls++
	if c.calls <= c.failN {
		return "", c.failErr
	}
	return "ok", nil
}

func TestResilientClientPassesThroughOnSuccess(t *testing.T) {
	delegate := &scriptedClient{}
	rc, err := NewResilient(delegate, nil)
	require.NoError(t, err)

	out, err := rc.Chat(t.Context(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, delegate.calls)
}

func TestResilientClientTripsOpenAfterRepeatedFailures(t *testing.T) {
	delegate := &scriptedClient{failN: 100, failErr: errors.New("llm down")}
	rc, err := NewResilient(delegate, nil)
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = rc.Chat(t.Context(), []Message{{Role: "user", Content: "hi"}})
	}
	require.Error(t, lastErr)

	callsBeforeOpen := delegate.calls
	_, err = rc.Chat(t.Context(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, callsBeforeOpen, delegate.calls, "circuit should be open and skip the delegate call")
}
