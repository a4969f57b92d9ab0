package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 1 * time.Minute
	multiplier = 2.0
)

func TestBackoffInitial(t *testing.T) {
	b := New(minBackoff, maxBackoff, multiplier)
	duration := b.Next()

	assert.GreaterOrEqual(t, duration, minBackoff-100*time.Millisecond)
	assert.LessOrEqual(t, duration, minBackoff+100*time.Millisecond)
}

func TestBackoffProgression(t *testing.T) {
	b := New(minBackoff, maxBackoff, multiplier)

	expectations := []struct {
		minExpected time.Duration
		maxExpected time.Duration
	}{
		{900 * time.Millisecond, 1100 * time.Millisecond},
		{1800 * time.Millisecond, 2200 * time.Millisecond},
		{3600 * time.Millisecond, 4400 * time.Millisecond},
		{7200 * time.Millisecond, 8800 * time.Millisecond},
	}

	for i, exp := range expectations {
		duration := b.Next()
		assert.GreaterOrEqual(t, duration, exp.minExpected, "attempt %d", i)
		assert.LessOrEqual(t, duration, exp.maxExpected, "attempt %d", i)
	}
}

func TestBackoffCapsAtMaximum(t *testing.T) {
	b := New(minBackoff, maxBackoff, multiplier)

	var duration time.Duration
	for i := 0; i < 20; i++ {
		duration = b.Next()
	}

	assert.LessOrEqual(t, duration, maxBackoff+maxBackoff/10)
	assert.Equal(t, maxBackoff, b.currentInterval)
}

func TestBackoffReset(t *testing.T) {
	b := New(minBackoff, maxBackoff, multiplier)
	for i := 0; i < 5; i++ {
		b.Next()
	}

	b.Reset()

	duration := b.Next()
	assert.LessOrEqual(t, duration, minBackoff+100*time.Millisecond)
}

func TestBackoffWait(t *testing.T) {
	b := New(5*time.Millisecond, 20*time.Millisecond, multiplier)

	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 4*time.Millisecond)
}

func TestBackoffWaitCancelled(t *testing.T) {
	b := New(time.Hour, time.Hour, multiplier)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
