// Package roulette implements the randomized single-choice resolver used
// whenever a wizard step offers multiple candidates.
package roulette

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

var (
	// ErrNoCandidates is returned when a spin is requested over an empty
	// candidate list. The wizard's split/filter rule makes this a
	// programming error rather than a user input error.
	ErrNoCandidates = errors.New("roulette: no candidates")

	// ErrSpinInProgress is returned when a spin is requested while a
	// previous one has not finished. The spinner is not reentrant.
	ErrSpinInProgress = errors.New("roulette: spin already in progress")
)

// Tick is one highlight step of the shuffle animation. The tick with
// Final set carries the selected candidate; every spin emits exactly one.
type Tick struct {
	Index int    `json:"index"`
	Value string `json:"value"`
	Final bool   `json:"final"`
}

// Spinner performs time-bounded, uniformly-random selections. Each spin
// highlights minTicks plus a random extra up to maxExtra candidates, one
// per interval; the last highlight is the result, so the terminal
// distribution is uniform over the candidate list regardless of length.
type Spinner struct {
	mu   sync.Mutex
	busy bool

	interval time.Duration
	minTicks int
	maxExtra int
	intn     func(n int) int
}

// New creates a spinner. A non-positive interval or minTicks falls back
// to the defaults (100ms, 20); a negative maxExtra falls back to 10,
// while zero disables the random extra entirely.
func New(interval time.Duration, minTicks, maxExtra int) *Spinner {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if minTicks <= 0 {
		minTicks = 20
	}
	if maxExtra < 0 {
		maxExtra = 10
	}
	return &Spinner{
		interval: interval,
		minTicks: minTicks,
		maxExtra: maxExtra,
		intn:     rand.Intn,
	}
}

// Spin starts an asynchronous selection over candidates and returns the
// tick stream. The channel is closed after the final tick, or early
// without a final tick if ctx is cancelled. While a spin is running,
// further calls fail with ErrSpinInProgress.
func (s *Spinner) Spin(ctx context.Context, candidates []string) (<-chan Tick, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSpinInProgress
	}
	s.busy = true
	s.mu.Unlock()

	list := make([]string, len(candidates))
	copy(list, candidates)

	total := s.minTicks
	if s.maxExtra > 0 {
		total += s.intn(s.maxExtra + 1)
	}

	out := make(chan Tick)
	go func() {
		defer func() {
			close(out)
			s.mu.Lock()
			s.busy = false
			s.mu.Unlock()
		}()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for i := 1; i <= total; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			idx := s.intn(len(list))
			tick := Tick{Index: idx, Value: list[idx], Final: i == total}
			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Result drains a tick stream and returns the final selection. The second
// return value is false when the spin was cancelled before completing.
func Result(ticks <-chan Tick) (string, bool) {
	value, ok := "", false
	for t := range ticks {
		if t.Final {
			value, ok = t.Value, true
		}
	}
	return value, ok
}
