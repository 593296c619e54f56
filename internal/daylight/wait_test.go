package daylight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/duskd/internal/clock"
)

func newTestWaiter(start time.Time) (*Waiter, *clock.MockClock, *int) {
	mock := clock.NewMockClock(start)
	sleeps := 0
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps++
		return mock.Sleep(ctx, d)
	}
	return NewWaiter(mock, time.UTC, time.Minute, sleep), mock, &sleeps
}

func TestWaiter_WaitUntilSunrise(t *testing.T) {
	w, mock, sleeps := newTestWaiter(time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC))

	require.NoError(t, w.WaitUntilSunrise(context.Background(), Window{6, 15, 17, 45}))

	// Loop runs while now <= sunrise, so it returns at the first minute past it.
	assert.Equal(t, time.Date(2025, 3, 1, 6, 16, 0, 0, time.UTC), mock.Now())
	assert.Equal(t, 76, *sleeps)
}

func TestWaiter_WaitUntilSunrise_AlwaysSleepsOnce(t *testing.T) {
	w, mock, sleeps := newTestWaiter(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	require.NoError(t, w.WaitUntilSunrise(context.Background(), Window{6, 15, 17, 45}))

	assert.Equal(t, 1, *sleeps)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 1, 0, 0, time.UTC), mock.Now())
}

func TestWaiter_WaitUntilNextSunrise(t *testing.T) {
	w, mock, _ := newTestWaiter(time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC))

	today := Window{6, 15, 17, 45}
	tomorrow := Window{6, 13, 17, 47}
	require.NoError(t, w.WaitUntilNextSunrise(context.Background(), today, tomorrow))

	assert.Equal(t, time.Date(2025, 3, 2, 6, 14, 0, 0, time.UTC), mock.Now())
	assert.Equal(t, Daytime, Evaluate(w.Now(), tomorrow))
}

func TestWaiter_Cancelled(t *testing.T) {
	w, _, _ := newTestWaiter(time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.WaitUntilSunrise(ctx, Window{6, 15, 17, 45}), context.Canceled)
	assert.ErrorIs(t, w.WaitUntilNextSunrise(ctx, Window{6, 15, 17, 45}, Window{6, 15, 17, 45}), context.Canceled)
}
