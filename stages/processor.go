package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/hermesagent/hermes/clients/normalize"
	"github.com/hermesagent/hermes/core"
)

// Processor turns each Hit's raw content into clean, compact notes and
// joins them per query (spec §4.5). On loop iterations the new block is
// appended under a "[Loop N]" separator rather than replacing history.
func Processor(ctx context.Context, state *core.AgentState, normalizer normalize.Normalizer) core.StateDelta {
	queries := state.ExecutedQueries
	if len(queries) == 0 {
		for q := range state.QueryResults {
			queries = append(queries, q)
		}
	}

	notes := make(map[string]string, len(queries))
	var diagnostics []string
	for _, query := range queries {
		hits := state.QueryResults[query]
		block := processHits(query, hits, normalizer, &diagnostics)
		if block == "" {
			continue
		}
		if state.LoopCount > 0 {
			block = fmt.Sprintf("[Loop %d]\n%s", state.LoopCount, block)
			if existing := state.ProcessedNotes[query]; existing != "" {
				block = existing + "\n\n" + block
			}
		}
		notes[query] = block
	}

	return core.StateDelta{
		ProcessedNotes: notes,
		ErrorLog:       diagnostics,
	}
}

func processHits(query string, hits []core.Hit, normalizer normalize.Normalizer, diagnostics *[]string) string {
	var parts []string
	for _, h := range hits {
		if h.Content == "" {
			continue
		}
		text, err := normalizer.Normalize("", h.URL, []byte(h.Content))
		if err != nil {
			*diagnostics = append(*diagnostics, fmt.Sprintf("Processor: normalize failed for %s: %s", h.URL, err.Error()))
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}
