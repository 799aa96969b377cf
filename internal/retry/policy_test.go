package retry

import (
	"testing"
	"time"
)

func TestDelayForAttemptOneIsZero(t *testing.T) {
	p := New(5, time.Second, 2.0, 0, 0)
	if d := p.DelayForAttempt(1); d != 0 {
		t.Fatalf("expected zero delay for attempt 1, got %v", d)
	}
}

func TestDelayGrowsExponentiallyWithoutJitter(t *testing.T) {
	p := New(5, time.Second, 2.0, 0, time.Hour)

	d2 := p.DelayForAttempt(2)
	d3 := p.DelayForAttempt(3)
	d4 := p.DelayForAttempt(4)

	if d2 != time.Second {
		t.Fatalf("attempt 2: expected 1s, got %v", d2)
	}
	if d3 != 2*time.Second {
		t.Fatalf("attempt 3: expected 2s, got %v", d3)
	}
	if d4 != 4*time.Second {
		t.Fatalf("attempt 4: expected 4s, got %v", d4)
	}
}

func TestDelayRespectsCeiling(t *testing.T) {
	p := New(10, time.Second, 2.0, 0, 3*time.Second)
	d := p.DelayForAttempt(6) // uncapped would be 16s
	if d != 3*time.Second {
		t.Fatalf("expected capped delay of 3s, got %v", d)
	}
}

func TestDelayJitterStaysWithinBounds(t *testing.T) {
	p := New(5, time.Second, 2.0, 0.5, time.Hour)
	p.rand = func() float64 { return 0 } // minimum jitter factor: 1 - 0.5 = 0.5
	d := p.DelayForAttempt(2)
	if d != 500*time.Millisecond {
		t.Fatalf("expected 500ms at minimum jitter, got %v", d)
	}

	p.rand = func() float64 { return 1 } // maximum jitter factor: 1 + 0.5 = 1.5
	d = p.DelayForAttempt(2)
	if d != 1500*time.Millisecond {
		t.Fatalf("expected 1500ms at maximum jitter, got %v", d)
	}
}

func TestHasRemainingAttempts(t *testing.T) {
	p := New(2, time.Second, 2.0, 0, 0) // retries=2 => MaxAttempts=3
	if !p.HasRemainingAttempts(2) {
		t.Fatalf("2 attempts used out of 3 should have remaining attempts")
	}
	if p.HasRemainingAttempts(3) {
		t.Fatalf("3 attempts used out of 3 should have no remaining attempts")
	}
}
