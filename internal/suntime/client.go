// Package suntime fetches one day's sunrise and sunset from the
// sunrise-sunset.org JSON API over TLS.
//
// The response is not parsed as HTTP. The client skips everything before the
// first '{', captures into a fixed-size buffer until the stream ends, and drops
// whatever follows the last '}'. This relies on the API returning headers
// followed by a single JSON object. Responses larger than the buffer fail with
// ErrResponseTruncated and are retried; memory use never grows past the buffer.
package suntime

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/daylight"
)

// Day selects which day the API reports on.
type Day string

const (
	Today    Day = "today"
	Tomorrow Day = "tomorrow"
)

// Dialer opens the encrypted stream. *tls.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Observer is notified after every attempt. err is nil on success.
type Observer interface {
	ObserveFetch(day string, err error)
}

// Config contains client settings.
type Config struct {
	Host       string        // API host, used for the Host header
	Addr       string        // Dial address; defaults to Host:443
	Lat        string        // Latitude, passed verbatim
	Lon        string        // Longitude, passed verbatim
	Timezone   string        // IANA zone id the API converts times into
	UserAgent  string        // User-Agent header
	RetryDelay time.Duration // Fixed delay after a failed attempt
	IOTimeout  time.Duration // Deadline for one attempt
	BufferSize int           // Capture buffer capacity
	Hysteresis time.Duration // Margin applied to the parsed window
}

// Result is a successfully fetched day.
type Result struct {
	Day      Day
	Raw      daylight.Window // As reported by the API
	Window   daylight.Window // Hysteresis applied
	Attempts int
}

// Client fetches sun times with unbounded retry.
type Client struct {
	cfg      Config
	dialer   Dialer
	sleep    daylight.SleepFunc
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the TLS dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithSleep replaces the retry delay function.
func WithSleep(s daylight.SleepFunc) Option {
	return func(c *Client) { c.sleep = s }
}

// WithObserver registers an attempt observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client. Zero config values fall back to defaults,
// except Hysteresis where zero means the raw window is used.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Host == "" {
		cfg.Host = "api.sunrise-sunset.org"
	}
	if cfg.Addr == "" {
		cfg.Addr = net.JoinHostPort(cfg.Host, "443")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "duskd/1.0"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = 10 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}

	c := &Client{
		cfg: cfg,
		dialer: &tls.Dialer{
			Config: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		},
		sleep: clock.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the hysteresis-adjusted window for day. Every failure discards
// the attempt and retries after the fixed delay, without an attempt limit.
// Only ctx cancellation ends the loop without a result.
func (c *Client) Fetch(ctx context.Context, day Day) (*Result, error) {
	for attempt := 1; ; attempt++ {
		raw, err := c.attempt(ctx, day)
		if c.observer != nil {
			c.observer.ObserveFetch(string(day), err)
		}

		if err == nil {
			res := &Result{
				Day:      day,
				Raw:      raw,
				Window:   daylight.ApplyHysteresis(raw, c.cfg.Hysteresis),
				Attempts: attempt,
			}
			log.Info().
				Str("day", string(day)).
				Str("raw", raw.String()).
				Str("window", res.Window.String()).
				Int("attempt", attempt).
				Msg("Sun times fetched")
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Warn().
			Err(err).
			Str("day", string(day)).
			Int("attempt", attempt).
			Dur("retry_in", c.cfg.RetryDelay).
			Msg("Sun time fetch failed, retrying")

		if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
}

// attempt runs connect, send, receive, validate and parse once.
func (c *Client) attempt(ctx context.Context, day Day) (daylight.Window, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.IOTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return daylight.Window{}, fmt.Errorf("failed to connect to %s: %w", c.cfg.Addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return daylight.Window{}, fmt.Errorf("failed to set deadline: %w", err)
		}
	}

	if _, err := conn.Write([]byte(c.request(day))); err != nil {
		return daylight.Window{}, fmt.Errorf("failed to send request: %w", err)
	}

	payload, err := captureJSON(conn, c.cfg.BufferSize)
	if err != nil {
		return daylight.Window{}, err
	}

	return parseResponse(payload)
}

// request builds the raw GET request. Connection: close makes the server end
// the stream after the body, which is what terminates the read loop.
func (c *Client) request(day Day) string {
	q := url.Values{}
	q.Set("lat", c.cfg.Lat)
	q.Set("lng", c.cfg.Lon)
	q.Set("date", string(day))
	q.Set("formatted", "0")
	q.Set("tzid", c.cfg.Timezone)

	return fmt.Sprintf("GET /json?%s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"User-Agent: %s\r\n"+
		"Connection: close\r\n"+
		"\r\n", q.Encode(), c.cfg.Host, c.cfg.UserAgent)
}
