package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedDelayPacer_FirstCallImmediate(t *testing.T) {
	p := NewFixedDelayPacer(time.Second)
	p.sleep = func(context.Context, time.Duration) error {
		t.Fatal("First call must not sleep")
		return nil
	}

	require.NoError(t, p.Wait(context.Background()))
}

func TestFixedDelayPacer_WaitsRemainingDelay(t *testing.T) {
	current := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var slept time.Duration

	p := NewFixedDelayPacer(1500 * time.Millisecond)
	p.now = func() time.Time { return current }
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept += d
		current = current.Add(d)
		return nil
	}

	require.NoError(t, p.Wait(context.Background()))
	assert.Zero(t, slept)

	// 400ms of work happened; the pacer owes the remaining 1100ms
	current = current.Add(400 * time.Millisecond)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 1100*time.Millisecond, slept)

	// A slow iteration beyond the delay needs no extra wait
	current = current.Add(2 * time.Second)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, 1100*time.Millisecond, slept)
}

func TestFixedDelayPacer_ZeroDelayNeverSleeps(t *testing.T) {
	p := NewFixedDelayPacer(0)
	p.sleep = func(context.Context, time.Duration) error {
		t.Fatal("Zero delay must not sleep")
		return nil
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
}

func TestFixedDelayPacer_CancelledContext(t *testing.T) {
	p := NewFixedDelayPacer(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Wait(ctx))

	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
}
