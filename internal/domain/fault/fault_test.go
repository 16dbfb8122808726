package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("generate signal: %w", Timeout("generateSignal", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.True(t, Retryable(err))
}

func TestAmbiguousKeepsCause(t *testing.T) {
	err := Ambiguous("executeTrade", Timeout("executeTrade", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrAmbiguousOutcome)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "reconcile")
}

func TestRejectedIsNotRetryable(t *testing.T) {
	err := Rejected("executeTrade", 400, "insufficient cash")

	assert.ErrorIs(t, err, ErrRejected)
	assert.False(t, Retryable(err))
	assert.Equal(t, "insufficient cash", Reason(err))
	assert.Equal(t, "", Reason(errors.New("plain")))
	assert.Equal(t, 400, Status(fmt.Errorf("wrapped: %w", err)))
	assert.Zero(t, Status(errors.New("plain")))
}
