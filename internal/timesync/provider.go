// Package timesync acquires network time and applies it to a clock.Clock.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/daylight"
)

// Status is the synchronisation state reported by a Provider.
type Status int

const (
	Pending Status = iota
	Complete
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// ErrNoServers is returned by NewNTPProvider when no server is configured.
var ErrNoServers = errors.New("no ntp servers configured")

// Provider is a network time source.
type Provider interface {
	// StartSync begins synchronisation in the background. Repeated calls are no-ops.
	StartSync(ctx context.Context)
	// PollSyncStatus blocks for at most timeout and reports the current status.
	PollSyncStatus(ctx context.Context, timeout time.Duration) (Status, error)
}

// QueryFunc performs one NTP query. ntp.QueryWithOptions satisfies it.
type QueryFunc func(server string, opt ntp.QueryOptions) (*ntp.Response, error)

// Sync describes a completed synchronisation.
type Sync struct {
	Server   string
	Offset   time.Duration
	Stratum  uint8
	Attempts int
}

// NTPProvider queries servers round-robin until one answers with a valid
// response, then steps the clock by the measured offset.
type NTPProvider struct {
	servers    []string
	clock      clock.Clock
	retryDelay time.Duration
	timeout    time.Duration
	query      QueryFunc
	sleep      daylight.SleepFunc
	reference  func() time.Time // clock the query measured its offset against

	mu     sync.Mutex
	once   sync.Once
	done   chan struct{}
	result Sync
}

// Option configures an NTPProvider.
type Option func(*NTPProvider)

// WithQuery replaces the NTP query function.
func WithQuery(q QueryFunc) Option {
	return func(p *NTPProvider) { p.query = q }
}

// WithSleep replaces the retry delay function.
func WithSleep(s daylight.SleepFunc) Option {
	return func(p *NTPProvider) { p.sleep = s }
}

// WithReference sets the clock the query function measures ClockOffset
// against. beevik/ntp uses the host clock, which is the default.
func WithReference(now func() time.Time) Option {
	return func(p *NTPProvider) { p.reference = now }
}

// WithQueryTimeout sets the per-query network timeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(p *NTPProvider) { p.timeout = d }
}

// NewNTPProvider creates a provider that sets c once synchronised.
func NewNTPProvider(servers []string, c clock.Clock, retryDelay time.Duration, opts ...Option) (*NTPProvider, error) {
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	p := &NTPProvider{
		servers:    servers,
		clock:      c,
		retryDelay: retryDelay,
		timeout:    5 * time.Second,
		query:      ntp.QueryWithOptions,
		sleep:      clock.Sleep,
		reference:  time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// StartSync launches the query loop.
func (p *NTPProvider) StartSync(ctx context.Context) {
	p.once.Do(func() {
		go p.run(ctx)
	})
}

// PollSyncStatus waits up to timeout for the query loop to finish.
func (p *NTPProvider) PollSyncStatus(ctx context.Context, timeout time.Duration) (Status, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return Complete, nil
	case <-timer.C:
		return Pending, nil
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}

// Result returns the completed sync. ok is false while still pending.
func (p *NTPProvider) Result() (Sync, bool) {
	select {
	case <-p.done:
	default:
		return Sync{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, true
}

func (p *NTPProvider) run(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		server := p.servers[(attempt-1)%len(p.servers)]

		resp, err := p.syncOnce(server)
		if err == nil {
			p.mu.Lock()
			p.result = Sync{
				Server:   server,
				Offset:   resp.ClockOffset,
				Stratum:  resp.Stratum,
				Attempts: attempt,
			}
			p.mu.Unlock()
			close(p.done)

			log.Info().
				Str("server", server).
				Dur("offset", resp.ClockOffset).
				Uint8("stratum", resp.Stratum).
				Int("attempt", attempt).
				Msg("Time synced")
			return
		}

		log.Warn().
			Err(err).
			Str("server", server).
			Int("attempt", attempt).
			Dur("retry_in", p.retryDelay).
			Msg("Time sync failed, retrying")

		if err := p.sleep(ctx, p.retryDelay); err != nil {
			return
		}
	}
}

func (p *NTPProvider) syncOnce(server string) (*ntp.Response, error) {
	resp, err := p.query(server, ntp.QueryOptions{Timeout: p.timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", server, err)
	}
	// The offset is relative to the reference clock, not to p.clock, which
	// may carry a stale stored time.
	if err := p.clock.Set(p.reference().Add(resp.ClockOffset)); err != nil {
		return nil, fmt.Errorf("failed to set clock: %w", err)
	}
	return resp, nil
}

// WaitForSync starts p and polls it with the given timeout until it reports
// Complete. There is no attempt limit; only ctx cancellation returns early.
func WaitForSync(ctx context.Context, p Provider, timeout time.Duration) error {
	p.StartSync(ctx)

	for poll := 1; ; poll++ {
		status, err := p.PollSyncStatus(ctx, timeout)
		if err != nil {
			return err
		}
		if status == Complete {
			return nil
		}
		log.Debug().Int("poll", poll).Msg("Waiting for time sync")
	}
}
