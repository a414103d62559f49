package worker

import (
	"testing"
	"time"
)

// --- Backoff Tests ---

func TestBackoff_ExponentialSequence(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
	}

	for i, expected := range want {
		attempt := i + 1
		got := Backoff(attempt, DefaultBackoffBase, DefaultBackoffCap)
		if got != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestBackoff_CappedAtMax(t *testing.T) {
	// 2^6 = 64s > 60s — с седьмой попытки задержка упирается в cap
	for attempt := 7; attempt <= 20; attempt++ {
		got := Backoff(attempt, DefaultBackoffBase, DefaultBackoffCap)
		if got != DefaultBackoffCap {
			t.Errorf("attempt %d: expected cap %v, got %v", attempt, DefaultBackoffCap, got)
		}
	}
}

func TestBackoff_Monotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 30; attempt++ {
		got := Backoff(attempt, DefaultBackoffBase, DefaultBackoffCap)
		if got < prev {
			t.Fatalf("attempt %d: delay %v decreased from %v", attempt, got, prev)
		}
		prev = got
	}
}

func TestBackoff_Deterministic(t *testing.T) {
	// Без jitter одинаковые входы дают одинаковые задержки
	for attempt := 1; attempt <= 10; attempt++ {
		a := Backoff(attempt, DefaultBackoffBase, DefaultBackoffCap)
		b := Backoff(attempt, DefaultBackoffBase, DefaultBackoffCap)
		if a != b {
			t.Fatalf("attempt %d: non-deterministic delay %v vs %v", attempt, a, b)
		}
	}
}

func TestBackoff_CustomBase(t *testing.T) {
	got := Backoff(3, 100*time.Millisecond, time.Second)
	if got != 400*time.Millisecond {
		t.Errorf("expected 400ms, got %v", got)
	}

	// cap меньше рассчитанной задержки
	got = Backoff(10, 100*time.Millisecond, time.Second)
	if got != time.Second {
		t.Errorf("expected cap 1s, got %v", got)
	}
}

func TestBackoff_InvalidInputsFallBackToDefaults(t *testing.T) {
	if got := Backoff(0, 0, 0); got != DefaultBackoffBase {
		t.Errorf("expected default base for attempt 0, got %v", got)
	}
	if got := Backoff(-5, -time.Second, -time.Second); got != DefaultBackoffBase {
		t.Errorf("expected default base for negative inputs, got %v", got)
	}
}
