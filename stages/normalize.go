// Package stages implements the research stages of spec.md §4.2-§4.7 as
// functions from *core.AgentState to core.StateDelta. Stages that call a
// client also take a context and that client; only Normalize and Finalizer
// also return an error.
package stages

import (
	"strings"
	"unicode"

	"github.com/hermesagent/hermes/core"
)

// Normalize trims whitespace and strips control characters from the user
// prompt, preserving Unicode (spec §4.2). An empty trimmed prompt is fatal.
func Normalize(state *core.AgentState) (core.StateDelta, error) {
	trimmed := strings.TrimSpace(stripControl(state.UserPrompt))
	if trimmed == "" {
		return core.StateDelta{}, core.NewError("stages.Normalize", core.KindFatal, core.ErrEmptyPrompt)
	}
	return core.StateDelta{UserPrompt: &trimmed}, nil
}

func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
