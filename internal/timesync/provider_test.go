package timesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/duskd/internal/clock"
)

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func validResponse(offset time.Duration) *ntp.Response {
	now := time.Now()
	return &ntp.Response{
		Time:          now,
		ReferenceTime: now,
		ClockOffset:   offset,
		Stratum:       2,
	}
}

type scriptedQuery struct {
	mu      sync.Mutex
	results []error
	servers []string
	offset  time.Duration
}

func (q *scriptedQuery) query(server string, _ ntp.QueryOptions) (*ntp.Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := len(q.servers)
	q.servers = append(q.servers, server)
	if i < len(q.results) && q.results[i] != nil {
		return nil, q.results[i]
	}
	return validResponse(q.offset), nil
}

func TestNewNTPProvider_NoServers(t *testing.T) {
	_, err := NewNTPProvider(nil, clock.NewMockClock(time.Now()), time.Second)
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestWaitForSync_RetriesUntilComplete(t *testing.T) {
	start := time.Date(1970, 1, 1, 0, 0, 10, 0, time.UTC)
	c := clock.NewMockClock(start)

	q := &scriptedQuery{
		results: []error{errors.New("timeout"), errors.New("refused")},
		offset:  time.Hour,
	}

	p, err := NewNTPProvider([]string{"a.example", "b.example"}, c, time.Second,
		WithQuery(q.query), WithSleep(noSleep), WithReference(c.Now))
	require.NoError(t, err)

	_, ok := p.Result()
	assert.False(t, ok)

	require.NoError(t, WaitForSync(context.Background(), p, 50*time.Millisecond))

	res, ok := p.Result()
	require.True(t, ok)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "a.example", res.Server)
	assert.Equal(t, time.Hour, res.Offset)
	assert.Equal(t, []string{"a.example", "b.example", "a.example"}, q.servers)
	assert.Equal(t, start.Add(time.Hour), c.Now())
}

func TestNTPProvider_InvalidResponseIsRetried(t *testing.T) {
	c := clock.NewMockClock(time.Unix(0, 0))

	calls := 0
	query := func(string, ntp.QueryOptions) (*ntp.Response, error) {
		calls++
		if calls == 1 {
			// Stratum 0 is a kiss-of-death packet.
			return &ntp.Response{}, nil
		}
		return validResponse(time.Minute), nil
	}

	p, err := NewNTPProvider([]string{"pool.example"}, c, time.Second,
		WithQuery(query), WithSleep(noSleep), WithReference(c.Now))
	require.NoError(t, err)

	require.NoError(t, WaitForSync(context.Background(), p, 50*time.Millisecond))
	res, _ := p.Result()
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, time.Unix(60, 0), c.Now())
}

func TestNTPProvider_SoftClockWithRestoredTime(t *testing.T) {
	// A restored stored epoch leaves the soft clock hours away from the host.
	soft := clock.NewSoftClock()
	require.NoError(t, soft.Set(time.Now().Add(3*time.Hour)))

	// The host clock is 2s behind true time, as seen by the server.
	q := &scriptedQuery{offset: 2 * time.Second}

	p, err := NewNTPProvider([]string{"pool.example"}, soft, time.Second,
		WithQuery(q.query), WithSleep(noSleep))
	require.NoError(t, err)
	require.NoError(t, WaitForSync(context.Background(), p, 50*time.Millisecond))

	assert.WithinDuration(t, time.Now().Add(2*time.Second), soft.Now(), time.Second)
}

func TestNTPProvider_PollPendingWhileBlocked(t *testing.T) {
	release := make(chan struct{})
	query := func(string, ntp.QueryOptions) (*ntp.Response, error) {
		<-release
		return validResponse(0), nil
	}

	p, err := NewNTPProvider([]string{"slow.example"}, clock.NewMockClock(time.Now()), time.Second,
		WithQuery(query))
	require.NoError(t, err)

	ctx := context.Background()
	p.StartSync(ctx)
	p.StartSync(ctx)

	status, err := p.PollSyncStatus(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, Pending, status)

	close(release)
	status, err = p.PollSyncStatus(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, Complete, status)
}

type pendingProvider struct {
	polls int
}

func (p *pendingProvider) StartSync(context.Context) {}

func (p *pendingProvider) PollSyncStatus(ctx context.Context, _ time.Duration) (Status, error) {
	p.polls++
	if p.polls == 3 {
		return Pending, context.Canceled
	}
	return Pending, nil
}

func TestWaitForSync_StopsOnError(t *testing.T) {
	p := &pendingProvider{}
	err := WaitForSync(context.Background(), p, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, p.polls)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "unknown", Status(7).String())
}
