package transcription

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/yoockh/vtutor/internal/models"
)

// Segmenter splits a raw utterance into typed segments. Implementations must
// preserve original character offsets exactly: concatenating segment texts in
// order reproduces the input verbatim, with no gaps and no overlaps.
type Segmenter interface {
	Segment(raw string) []models.TextSegment
}

// MathSegmenter recognizes inline-math delimiters ($...$ and \( ... \)) plus a
// conservative heuristic for undelimited symbolic runs like "x^2 + 5x = 0".
// Input it cannot classify degrades to a single text segment, never an error.
type MathSegmenter struct{}

var delimitedMath = regexp.MustCompile(`\$[^$\n]+\$|\\\(.+?\\\)`)

func (MathSegmenter) Segment(raw string) []models.TextSegment {
	if raw == "" {
		return nil
	}

	spans := delimitedMath.FindAllStringIndex(raw, -1)

	// heuristic pass over the regions the delimiters did not claim
	var all [][2]int
	for _, s := range spans {
		all = append(all, [2]int{s[0], s[1]})
	}
	prev := 0
	for _, s := range spans {
		all = append(all, symbolRuns(raw, prev, s[0])...)
		prev = s[1]
	}
	all = append(all, symbolRuns(raw, prev, len(raw))...)

	sort.Slice(all, func(i, j int) bool { return all[i][0] < all[j][0] })

	var out []models.TextSegment
	pos := 0
	for _, span := range all {
		if span[0] > pos {
			out = append(out, models.TextSegment{
				Text:       raw[pos:span[0]],
				Type:       models.SegmentText,
				StartIndex: pos,
				EndIndex:   span[0],
			})
		}
		out = append(out, models.TextSegment{
			Text:       raw[span[0]:span[1]],
			Type:       models.SegmentMath,
			StartIndex: span[0],
			EndIndex:   span[1],
		})
		pos = span[1]
	}
	if pos < len(raw) {
		out = append(out, models.TextSegment{
			Text:       raw[pos:],
			Type:       models.SegmentText,
			StartIndex: pos,
			EndIndex:   len(raw),
		})
	}
	return out
}

// symbolRuns finds maximal whitespace-separated token runs inside raw[lo:hi]
// where every token looks symbolic and the run carries an "=" or "^". Three
// tokens minimum keeps prose like "chapter 5" out.
func symbolRuns(raw string, lo, hi int) [][2]int {
	region := raw[lo:hi]
	type token struct{ start, end int }
	var toks []token

	i := 0
	for i < len(region) {
		for i < len(region) && unicode.IsSpace(rune(region[i])) {
			i++
		}
		if i >= len(region) {
			break
		}
		j := i
		for j < len(region) && !unicode.IsSpace(rune(region[j])) {
			j++
		}
		toks = append(toks, token{start: i, end: j})
		i = j
	}

	var runs [][2]int
	r := 0
	for r < len(toks) {
		if !symbolToken(region[toks[r].start:toks[r].end]) {
			r++
			continue
		}
		s := r
		anchored := false
		for r < len(toks) && symbolToken(region[toks[r].start:toks[r].end]) {
			if strings.ContainsAny(region[toks[r].start:toks[r].end], "=^") {
				anchored = true
			}
			r++
		}
		if r-s >= 3 && anchored {
			runs = append(runs, [2]int{lo + toks[s].start, lo + toks[r-1].end})
		}
	}
	return runs
}

// symbolToken reports whether a single token plausibly belongs to a formula:
// operators, digits, short variable blobs like "5x" or "x^2".
func symbolToken(tok string) bool {
	if tok == "" {
		return false
	}
	if strings.ContainsAny(tok, "=^+*/<>") {
		return true
	}

	letters, digits := 0, 0
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		case r == '(' || r == ')' || r == '.' || r == ',' || r == '-':
			// formula punctuation
		default:
			return false
		}
	}
	if digits > 0 && letters <= 2 {
		return true
	}
	return letters == 1 && digits == 0 // lone variable
}
