package roulette

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastSpinner returns a spinner that completes in a few milliseconds.
func fastSpinner() *Spinner {
	return New(time.Microsecond, 5, 3)
}

func TestSpinReturnsMemberOfCandidates(t *testing.T) {
	candidates := []string{"Write report", "Read book", "Go running"}
	members := map[string]bool{}
	for _, c := range candidates {
		members[c] = true
	}

	s := fastSpinner()
	for i := 0; i < 50; i++ {
		ticks, err := s.Spin(context.Background(), candidates)
		if err != nil {
			t.Fatalf("Spin %d failed: %v", i, err)
		}
		got, ok := Result(ticks)
		if !ok {
			t.Fatalf("Spin %d did not produce a result", i)
		}
		if !members[got] {
			t.Fatalf("Spin %d returned %q, not a member of %v", i, got, candidates)
		}
	}
}

func TestSpinEmitsExactlyOneFinalTick(t *testing.T) {
	s := fastSpinner()
	ticks, err := s.Spin(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Spin failed: %v", err)
	}

	finals, total := 0, 0
	var last Tick
	for tick := range ticks {
		total++
		last = tick
		if tick.Final {
			finals++
		}
	}
	if finals != 1 {
		t.Errorf("final ticks = %d, want 1", finals)
	}
	if !last.Final {
		t.Error("the final tick must be the last one emitted")
	}
	if total < 5 || total > 8 {
		t.Errorf("total ticks = %d, want between 5 and 8", total)
	}
}

func TestSpinSingleCandidate(t *testing.T) {
	s := fastSpinner()
	ticks, err := s.Spin(context.Background(), []string{"only"})
	if err != nil {
		t.Fatalf("Spin failed: %v", err)
	}
	got, ok := Result(ticks)
	if !ok || got != "only" {
		t.Errorf("Result = (%q, %v), want (only, true)", got, ok)
	}
}

func TestSpinRejectsEmptyCandidates(t *testing.T) {
	s := fastSpinner()
	if _, err := s.Spin(context.Background(), nil); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("expected ErrNoCandidates, got %v", err)
	}
}

func TestSpinNotReentrant(t *testing.T) {
	s := New(50*time.Millisecond, 20, 0)
	ticks, err := s.Spin(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("first Spin failed: %v", err)
	}

	if _, err := s.Spin(context.Background(), []string{"c"}); !errors.Is(err, ErrSpinInProgress) {
		t.Errorf("expected ErrSpinInProgress, got %v", err)
	}

	// Drain; a new spin must be accepted afterwards.
	if _, ok := Result(ticks); !ok {
		t.Fatal("first spin did not complete")
	}
	ticks2, err := s.Spin(context.Background(), []string{"c"})
	if err != nil {
		t.Fatalf("Spin after completion failed: %v", err)
	}
	Result(ticks2)
}

func TestSpinCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(10*time.Millisecond, 1000, 0)
	ticks, err := s.Spin(ctx, []string{"a", "b"})
	if err != nil {
		t.Fatalf("Spin failed: %v", err)
	}
	cancel()

	if _, ok := Result(ticks); ok {
		t.Error("cancelled spin must not produce a final result")
	}

	// The spinner must become available again after cancellation.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ticks2, err := s.Spin(context.Background(), []string{"c"})
		if err == nil {
			go Result(ticks2)
			return
		}
		if !errors.Is(err, ErrSpinInProgress) {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("spinner stayed busy after cancellation")
}
