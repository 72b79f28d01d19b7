package telemetry

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowsLinearly(t *testing.T) {
	b := Backoff{Base: 3 * time.Second, MaxAttempts: 5}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 6 * time.Second},
		{3, 9 * time.Second},
		{4, 12 * time.Second},
		{5, 15 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffDelayNonDecreasing(t *testing.T) {
	b := Backoff{Base: 250 * time.Millisecond, MaxAttempts: 10}
	prev := time.Duration(0)
	for attempt := 1; !b.Exhausted(attempt); attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Errorf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestBackoffExhaustedBound(t *testing.T) {
	b := Backoff{Base: time.Second, MaxAttempts: 5}

	attempts := 0
	for attempt := 1; !b.Exhausted(attempt); attempt++ {
		attempts++
	}
	if attempts != 5 {
		t.Errorf("attempt count = %d, want 5", attempts)
	}
}

func TestBackoffClampsBadAttempt(t *testing.T) {
	b := Backoff{Base: time.Second, MaxAttempts: 5}
	if got := b.Delay(0); got != time.Second {
		t.Errorf("Delay(0) = %v, want %v", got, time.Second)
	}
}
