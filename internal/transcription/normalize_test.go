package transcription

import "testing"

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	n := NewNormalizer()
	if got := n.Normalize("  so   much \t space \n here "); got != "so much space here" {
		t.Fatalf("Normalize = %q", got)
	}
}

func TestNormalizeSpokenEquation(t *testing.T) {
	n := NewNormalizer()
	got := n.Normalize("x squared plus five x plus six equals zero")
	want := "x ^2 + five x + six = zero"
	if got != want {
		t.Fatalf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeSingleCueStaysProse(t *testing.T) {
	n := NewNormalizer()
	in := "one plus one makes a pair"
	if got := n.Normalize(in); got != in {
		t.Fatalf("Normalize = %q, want unchanged %q", got, in)
	}
}

func TestNormalizeDividedByBeforeShorterRules(t *testing.T) {
	n := NewNormalizer()
	got := n.Normalize("ten divided by two equals five")
	want := "ten / two = five"
	if got != want {
		t.Fatalf("Normalize = %q, want %q", got, want)
	}
}

func TestPlainNormalizerNeverSubstitutes(t *testing.T) {
	n := NewPlainNormalizer()
	in := "two plus two equals four"
	if got := n.Normalize(in); got != in {
		t.Fatalf("Normalize = %q, want unchanged %q", got, in)
	}
}
