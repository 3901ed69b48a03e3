package broker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLinearBackoff(t *testing.T) {
	delay := LinearBackoff(5*time.Second, 30*time.Second)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: 0},
		{attempt: 1, expected: 5 * time.Second},
		{attempt: 2, expected: 10 * time.Second},
		{attempt: 3, expected: 15 * time.Second},
		{attempt: 5, expected: 25 * time.Second},
		{attempt: 6, expected: 30 * time.Second},
		{attempt: 7, expected: 30 * time.Second},
		{attempt: 1000, expected: 30 * time.Second},
		{attempt: math.MaxInt, expected: 30 * time.Second},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestLinearBackoffNeverExceedsCap(t *testing.T) {
	delay := LinearBackoff(5*time.Second, 30*time.Second)

	for attempt := 1; attempt <= 10_000; attempt++ {
		got := delay(attempt)
		want := min(time.Duration(attempt)*5*time.Second, 30*time.Second)

		if got != want {
			t.Fatalf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestLinearBackoffZeroStep(t *testing.T) {
	assert.Zero(t, LinearBackoff(0, time.Minute)(3))
}

func TestSleep(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		assert.NoError(t, Sleep(context.Background(), time.Millisecond))
	})

	t.Run("interrupted by cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := Sleep(ctx, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("zero duration reports cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
	})
}
