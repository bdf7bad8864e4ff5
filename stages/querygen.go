package stages

import (
	"context"
	"strings"
	"unicode"

	"github.com/hermesagent/hermes/clients/llm"
	"github.com/hermesagent/hermes/core"
)

const queryGenSystemPrompt = "You are a research query generator. Given a research prompt, " +
	"respond with exactly one search query per line. No numbering, no bullets, no explanations."

// QueryGenerator derives QueryCount distinct search queries from the user
// prompt (spec §4.3).
func QueryGenerator(ctx context.Context, state *core.AgentState, client llm.Client) core.StateDelta {
	messages := []llm.Message{
		{Role: "system", Content: queryGenSystemPrompt},
		{Role: "user", Content: state.UserPrompt},
	}

	text, err := client.Chat(ctx, messages)
	if err != nil {
		return core.StateDelta{
			Queries: []string{state.UserPrompt},
			ErrorLog: []string{"QueryGenerator: LLM failure, falling back to raw prompt: " + err.Error()},
		}
	}

	queries := parseQueries(text)
	queries = dedupeCaseInsensitive(queries)
	queries = gateQueries(queries, state.Language)
	if len(queries) == 0 {
		return core.StateDelta{
			Queries:  []string{state.UserPrompt},
			ErrorLog: []string{"QueryGenerator: empty parse, falling back to raw prompt"},
		}
	}
	if len(queries) > state.QueryCount {
		queries = queries[:state.QueryCount]
	}
	return core.StateDelta{Queries: queries}
}

var bulletPrefixes = []string{"- ", "* ", "• "}

func parseQueries(text string) []string {
	lines := strings.Split(text, "\n")
	var queries []string
	for _, line := range lines {
		q := strings.TrimSpace(line)
		q = stripEnumerator(q)
		q = strings.TrimSpace(q)
		if q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}

func stripEnumerator(s string) string {
	for _, prefix := range bulletPrefixes {
		if strings.HasPrefix(s, prefix) {
			return s[len(prefix):]
		}
	}
	// "1.", "1)", "12.", etc.
	i := 0
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return s[i+1:]
	}
	return s
}

func dedupeCaseInsensitive(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// gateQueries applies the optional quality gate from spec §4.3: reject
// CJK-less queries for ja, reject out-of-range length for other languages.
// If the gate removes everything, the pre-gate list is returned unchanged.
func gateQueries(queries []string, language string) []string {
	var kept []string
	for _, q := range queries {
		if language == "ja" {
			if containsCJK(q) {
				kept = append(kept, q)
			}
			continue
		}
		if len(q) >= 5 && len(q) <= 150 {
			kept = append(kept, q)
		}
	}
	if len(kept) == 0 {
		return queries
	}
	return kept
}

func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}
