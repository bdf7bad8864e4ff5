package stages

import (
	"errors"
	"testing"

	"github.com/hermesagent/hermes/core"
	"github.com/stretchr/testify/assert"
)

type fakeNormalizer struct {
	err error
}

func (f fakeNormalizer) Normalize(contentType, url string, raw []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "clean:" + string(raw), nil
}

func TestProcessorJoinsHitsPerQuery(t *testing.T) {
	state := &core.AgentState{
		ExecutedQueries: []string{"q1"},
		QueryResults: map[string][]core.Hit{
			"q1": {{URL: "https://a.example", Content: "a"}, {URL: "https://b.example", Content: "b"}},
		},
	}

	delta := Processor(t.Context(), state, fakeNormalizer{})
	assert.Equal(t, "clean:a\n\nclean:b", delta.ProcessedNotes["q1"])
}

func TestProcessorSkipsHitsWithoutContent(t *testing.T) {
	state := &core.AgentState{
		ExecutedQueries: []string{"q1"},
		QueryResults: map[string][]core.Hit{
			"q1": {{URL: "https://a.example"}, {URL: "https://b.example", Content: "b"}},
		},
	}

	delta := Processor(t.Context(), state, fakeNormalizer{})
	assert.Equal(t, "clean:b", delta.ProcessedNotes["q1"])
}

func TestProcessorAppendsLoopSeparatorAndPreservesHistory(t *testing.T) {
	state := &core.AgentState{
		ExecutedQueries: []string{"q1"},
		LoopCount:       1,
		ProcessedNotes:  map[string]string{"q1": "earlier notes"},
		QueryResults: map[string][]core.Hit{
			"q1": {{URL: "https://a.example", Content: "a"}},
		},
	}

	delta := Processor(t.Context(), state, fakeNormalizer{})
	assert.Equal(t, "earlier notes\n\n[Loop 1]\nclean:a", delta.ProcessedNotes["q1"])
}

func TestProcessorRecordsNormalizeFailureAsDiagnostic(t *testing.T) {
	state := &core.AgentState{
		ExecutedQueries: []string{"q1"},
		QueryResults: map[string][]core.Hit{
			"q1": {{URL: "https://a.example", Content: "a"}},
		},
	}

	delta := Processor(t.Context(), state, fakeNormalizer{err: errors.New("boom")})
	assert.Empty(t, delta.ProcessedNotes["q1"])
	assert.Len(t, delta.ErrorLog, 1)
}
