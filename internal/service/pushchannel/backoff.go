package pushchannel

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FullJitter is an exponential backoff.BackOff where each delay is drawn
// uniformly from [0, min(Cap, Base*2^n)].
type FullJitter struct {
	Base time.Duration
	Cap  time.Duration

	// Rand returns a value in [0, n). Defaults to math/rand/v2.
	Rand func(n int64) int64

	attempt int
}

var _ backoff.BackOff = (*FullJitter)(nil)

// NewFullJitter returns a policy with the given base and cap.
func NewFullJitter(base, cap time.Duration) *FullJitter {
	return &FullJitter{Base: base, Cap: cap}
}

// NextBackOff returns the next delay. It never returns backoff.Stop.
func (j *FullJitter) NextBackOff() time.Duration {
	ceil := j.ceiling(j.attempt)
	j.attempt++
	r := j.Rand
	if r == nil {
		r = rand.Int64N
	}
	return time.Duration(r(int64(ceil) + 1))
}

// Reset starts the sequence over after a successful connect.
func (j *FullJitter) Reset() { j.attempt = 0 }

func (j *FullJitter) ceiling(n int) time.Duration {
	if j.Base <= 0 {
		return 0
	}
	// 2^n overflows long before 62 shifts matter; the cap wins anyway
	if n > 30 {
		return j.Cap
	}
	d := j.Base << n
	if d <= 0 || d > j.Cap {
		return j.Cap
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
