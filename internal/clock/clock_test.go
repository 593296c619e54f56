package clock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/duskd/internal/kv"
)

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(start)

	mock.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), mock.Now())

	next := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mock.Set(next))
	assert.Equal(t, next, mock.Now())

	require.NoError(t, mock.Sleep(context.Background(), time.Minute))
	assert.Equal(t, next.Add(time.Minute), mock.Now())
}

func TestMockClock_SleepCancelled(t *testing.T) {
	mock := NewMockClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, mock.Sleep(ctx, time.Minute), context.Canceled)
	assert.Equal(t, time.Unix(0, 0), mock.Now())
}

func TestSoftClock_Set(t *testing.T) {
	c := NewSoftClock()
	target := time.Date(2030, 1, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, c.Set(target))

	assert.WithinDuration(t, target, c.Now(), time.Second)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestStore_LoadMissing(t *testing.T) {
	start := time.Date(1970, 1, 1, 0, 0, 10, 0, time.UTC)
	mock := NewMockClock(start)
	s := NewStore(mock, kv.NewMemoryStore())

	_, err := s.Load()
	assert.ErrorIs(t, err, kv.ErrNotFound)
	assert.Equal(t, start, mock.Now(), "clock must stay untouched")
}

func TestStore_RoundTripAcrossPowerCycle(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Date(2025, 3, 10, 6, 30, 0, 0, time.UTC)
	before := NewMockClock(now)

	require.NoError(t, NewStore(before, store).Store(3600))
	require.NoError(t, store.Commit())
	require.NoError(t, store.Close())
	store.Reopen()

	// Volatile clock restarts from zero after sleep.
	after := NewMockClock(time.Unix(0, 0))
	epoch, err := NewStore(after, store).Load()
	require.NoError(t, err)

	assert.Equal(t, now.Add(time.Hour).Unix(), epoch)
	assert.Equal(t, now.Add(time.Hour).Unix(), after.Now().Unix())
}

type failingClock struct{ MockClock }

func (c *failingClock) Set(time.Time) error { return errors.New("permission denied") }

func TestStore_LoadSetFailure(t *testing.T) {
	store := kv.NewMemoryStore()
	require.NoError(t, store.SetInt64(KeyEpoch, 42))

	_, err := NewStore(&failingClock{}, store).Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, kv.ErrNotFound)
}
