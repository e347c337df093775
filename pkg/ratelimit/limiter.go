package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer blocks between consecutive requests against the platform
type Pacer interface {
	// Wait blocks for the next pacing interval or until ctx is done
	Wait(ctx context.Context) error
}

// JitterDelay pauses for a uniformly random duration in [Min, Max]
type JitterDelay struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitterDelay creates a pacer with the given bounds; Max below Min is raised to Min
func NewJitterDelay(min, max time.Duration) *JitterDelay {
	if max < min {
		max = min
	}
	return &JitterDelay{
		Min: min,
		Max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay without sleeping
func (j *JitterDelay) Next() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.rng == nil {
		j.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return j.Min + time.Duration(j.rng.Int63n(int64(j.Max-j.Min)+1))
}

// Wait sleeps for Next() or until ctx is done
func (j *JitterDelay) Wait(ctx context.Context) error {
	return sleep(ctx, j.Next())
}

// Escalation counts consecutive throttling replies within one discovery run.
// Each hit waits Step times the hit count; reaching Limit means give up.
// It is loop-local state and must not be shared between runs.
type Escalation struct {
	Step  time.Duration
	Limit int

	hits int
}

// NewEscalation creates a counter with the given step and limit
func NewEscalation(step time.Duration, limit int) *Escalation {
	return &Escalation{Step: step, Limit: limit}
}

// Hit records a throttling reply. It returns the wait before retrying the
// same request, or exhausted=true once Limit consecutive hits have occurred.
func (e *Escalation) Hit() (wait time.Duration, exhausted bool) {
	e.hits++
	if e.Limit > 0 && e.hits >= e.Limit {
		return 0, true
	}
	return e.Step * time.Duration(e.hits), false
}

// Reset clears the counter after any non-throttled reply
func (e *Escalation) Reset() {
	e.hits = 0
}

// Hits returns the current consecutive hit count
func (e *Escalation) Hits() int {
	return e.hits
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
