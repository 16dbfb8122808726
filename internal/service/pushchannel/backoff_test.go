package pushchannel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func maxJitter(n int64) int64 { return n - 1 }

func TestFullJitterDoublesUpToCap(t *testing.T) {
	j := NewFullJitter(time.Second, 30*time.Second)
	j.Rand = maxJitter

	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, j.NextBackOff())
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, got)

	j.Reset()
	assert.Equal(t, time.Second, j.NextBackOff())
}

func TestFullJitterStaysInRange(t *testing.T) {
	j := NewFullJitter(time.Second, 30*time.Second)
	for i := 0; i < 200; i++ {
		d := j.NextBackOff()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 30*time.Second)
	}
}

func TestFullJitterLargeAttemptUsesCap(t *testing.T) {
	j := NewFullJitter(time.Second, 30*time.Second)
	assert.Equal(t, 30*time.Second, j.ceiling(100))
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
