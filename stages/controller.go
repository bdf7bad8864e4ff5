package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/core"
)

// Controller deterministically decides whether another validation pass
// is needed (spec §4.7.1).
func Controller(state *core.AgentState) core.StateDelta {
	score := qualityScore(state)
	complete := decideComplete(state, score)
	return core.StateDelta{
		QualityScore:       &score,
		ValidationComplete: &complete,
	}
}

func qualityScore(state *core.AgentState) float64 {
	draftScore := min1(float64(len(state.DraftReport))/1200) * 0.35

	totalQueries := len(state.Queries)
	coverage := 0.0
	if totalQueries > 0 {
		nonEmpty := 0
		for _, q := range state.Queries {
			if strings.TrimSpace(state.ProcessedNotes[q]) != "" {
				nonEmpty++
			}
		}
		coverage = float64(nonEmpty) / float64(totalQueries)
	}
	coverage *= 0.25

	executed := len(state.ExecutedQueries)
	if executed == 0 {
		executed = totalQueries
	}
	sources := 0.0
	if executed > 0 && state.MaxSources > 0 {
		totalHits := 0
		for _, hits := range state.QueryResults {
			totalHits += len(hits)
		}
		sources = float64(totalHits) / float64(executed*state.MaxSources)
	}
	sources = min1(sources) * 0.25

	loopBonus := 0.0
	if state.MaxValidation > 0 {
		loopBonus = float64(state.LoopCount) / float64(state.MaxValidation)
	}
	loopBonus = min1(loopBonus) * 0.15

	return draftScore + coverage + sources + loopBonus
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func decideComplete(state *core.AgentState, score float64) bool {
	if state.LoopCount < state.MinValidation {
		return false
	}
	if state.LoopCount >= state.MaxValidation {
		return true
	}
	return score >= state.QualityThreshold
}

const validatorSystemPrompt = "You are a research editor. Revise the draft report below, " +
	"preserving citations, and append a \"Follow-up Queries\" section listing up to 3 short " +
	"search queries that would improve the report."

var followUpHeading = regexp.MustCompile(`(?i)##?\s*Follow-up Queries\s*\n`)

// Validator revises draft_report via the LLM and derives follow-up
// queries for the next search loop (spec §4.7.2). It runs only when
// Controller reports validation incomplete.
func Validator(ctx context.Context, state *core.AgentState, client llm.Client) core.StateDelta {
	messages := []llm.Message{
		{Role: "system", Content: validatorSystemPrompt},
		{Role: "user", Content: state.DraftReport},
	}

	revised, err := client.Chat(ctx, messages)
	var followUps []string
	var diagnostics []string
	if err != nil {
		diagnostics = append(diagnostics, "Validator: LLM failure, reusing prior draft: "+err.Error())
		revised = state.DraftReport
	} else {
		followUps = parseFollowUps(revised)
	}

	if len(followUps) == 0 {
		followUps = synthesizeFollowUps(state)
	}

	return core.StateDelta{
		DraftReport:     &revised,
		FollowUpQueries: followUps,
		IncrementLoop:   true,
		ErrorLog:        diagnostics,
	}
}

func parseFollowUps(markdown string) []string {
	loc := followUpHeading.FindStringIndex(markdown)
	if loc == nil {
		return nil
	}
	section := markdown[loc[1]:]
	if next := strings.Index(section, "\n#"); next >= 0 {
		section = section[:next]
	}

	var queries []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = stripEnumerator(line)
		line = strings.TrimSpace(line)
		if line != "" {
			queries = append(queries, line)
		}
	}
	return dedupeCaseInsensitiveCap(queries, 3)
}

// synthesizeFollowUps is the deterministic fallback when the LLM
// response carries no parseable Follow-up Queries section.
func synthesizeFollowUps(state *core.AgentState) []string {
	var queries []string
	for _, q := range state.Queries {
		if len(state.QueryResults[q]) < state.MinSources {
			queries = append(queries, fmt.Sprintf("%s primary sources and statistics", q))
		}
	}
	if len(queries) == 0 {
		queries = []string{
			state.UserPrompt + " recent developments",
			state.UserPrompt + " case studies",
			state.UserPrompt + " expert interviews",
		}
	}
	return dedupeCaseInsensitiveCap(queries, 3)
}

func dedupeCaseInsensitiveCap(queries []string, limit int) []string {
	seen := make(map[string]bool, len(queries))
	var out []string
	for _, q := range queries {
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Finalizer prepends a metadata block to draft_report and assigns the
// result to validated_report (spec §4.7.3). An empty draft is fatal:
// the run has nothing worth persisting as a report.
func Finalizer(state *core.AgentState) (core.StateDelta, error) {
	if strings.TrimSpace(state.DraftReport) == "" {
		return core.StateDelta{}, core.NewError("finalizer", core.KindFatal, core.ErrEmptyDraftReport)
	}

	metadata := fmt.Sprintf(
		"---\nquery: %q\nlanguage: %s\nqueries_generated: %d\nsources_collected: %d\nvalidation_loops: %d\n---\n\n",
		state.UserPrompt, state.Language, len(state.Queries), totalHits(state), state.LoopCount,
	)
	report := metadata + state.DraftReport
	return core.StateDelta{ValidatedReport: &report}, nil
}

func totalHits(state *core.AgentState) int {
	total := 0
	for _, hits := range state.QueryResults {
		total += len(hits)
	}
	return total
}
