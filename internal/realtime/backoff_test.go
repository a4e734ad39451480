package realtime

import (
	"testing"
	"time"
)

func TestBackoffDelayTable(t *testing.T) {
	b := Backoff{Base: 1 * time.Second, Max: 30 * time.Second, Multiplier: 2, MaxAttempts: 8}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // 32s capped
		30 * time.Second,
	}
	for attempt, w := range want {
		if got := b.Delay(attempt); got != w {
			t.Fatalf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffDelayNegativeAttempt(t *testing.T) {
	b := DefaultBackoff()
	if got := b.Delay(-5); got != b.Base {
		t.Fatalf("Delay(-5) = %v, want base %v", got, b.Base)
	}
}

func TestBackoffDelayOverflowCapped(t *testing.T) {
	b := Backoff{Base: 1 * time.Second, Max: 30 * time.Second, Multiplier: 10, MaxAttempts: 8}
	if got := b.Delay(1000); got != b.Max {
		t.Fatalf("Delay(1000) = %v, want max %v", got, b.Max)
	}
}

func TestBackoffJitteredStaysWithinBand(t *testing.T) {
	b := Backoff{Base: 1 * time.Second, Max: 30 * time.Second, Multiplier: 2, MaxAttempts: 8}

	for attempt := 0; attempt < 7; attempt++ {
		base := b.Delay(attempt)
		lo := time.Duration(float64(base) * (1 - jitterFraction))
		hi := time.Duration(float64(base) * (1 + jitterFraction))
		for i := 0; i < 200; i++ {
			d := b.Jittered(attempt)
			if d < lo || d > hi {
				t.Fatalf("Jittered(%d) = %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestBackoffJitteredNeverNegative(t *testing.T) {
	b := Backoff{Base: 1 * time.Nanosecond, Max: 2 * time.Nanosecond, Multiplier: 1, MaxAttempts: 3}
	for i := 0; i < 1000; i++ {
		if d := b.Jittered(0); d < 0 {
			t.Fatalf("Jittered produced negative delay %v", d)
		}
	}
}
