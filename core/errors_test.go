package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrapping(t *testing.T) {
	wrapped := NewError("stages.Search", KindUpstreamUnavailable, ErrUpstreamUnavailable)

	assert.True(t, errors.Is(wrapped, ErrUpstreamUnavailable))
	assert.Equal(t, KindUpstreamUnavailable, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "stages.Search")
}

func TestErrorWithID(t *testing.T) {
	wrapped := &Error{Op: "persistence.Load", Kind: KindNotFound, ID: "2026-0001", Err: ErrTaskNotFound}
	assert.Contains(t, wrapped.Error(), "2026-0001")
	assert.True(t, errors.Is(wrapped, ErrTaskNotFound))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(ErrHistoryNotFound))
	assert.Equal(t, KindUpstreamUnavailable, KindOf(ErrCircuitOpen))
	assert.Equal(t, KindFatal, KindOf(errors.New("unclassified")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrUpstreamUnavailable))
	assert.True(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(ErrTaskNotFound))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrTaskNotFound))
	assert.True(t, IsNotFound(ErrHistoryNotFound))
	assert.False(t, IsNotFound(ErrUpstreamUnavailable))
}
