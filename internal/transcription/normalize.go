package transcription

import (
	"regexp"
	"strings"
)

// Normalizer cleans up text segments before display: whitespace collapsing
// always, plus best-effort verbal-to-symbolic substitution when a segment
// reads like a spoken equation. It never touches math segments; the pipeline
// only feeds it text-typed content.
type Normalizer struct {
	substitute bool
}

func NewNormalizer() *Normalizer {
	return &Normalizer{substitute: true}
}

// NewPlainNormalizer collapses whitespace only.
func NewPlainNormalizer() *Normalizer {
	return &Normalizer{}
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	spokenMathCue = regexp.MustCompile(`(?i)\b(squared|cubed|plus|minus|times|divided by|equals|over)\b`)
)

// spokenSubs are ordered; multi-word phrases go first so "divided by" is not
// half-replaced by a later rule.
var spokenSubs = []struct{ from, to string }{
	{"divided by", "/"},
	{"squared", "^2"},
	{"cubed", "^3"},
	{"equals", "="},
	{"plus", "+"},
	{"minus", "-"},
	{"times", "*"},
}

func (n *Normalizer) Normalize(s string) string {
	out := strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	if !n.substitute {
		return out
	}

	// Substitute only when at least two cues appear: one "plus" in ordinary
	// prose should stay prose.
	if len(spokenMathCue.FindAllStringIndex(out, -1)) < 2 {
		return out
	}
	for _, sub := range spokenSubs {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(sub.from) + `\b`)
		out = re.ReplaceAllString(out, sub.to)
	}
	return out
}
