// Package report publishes a summary of each wake cycle.
package report

import (
	"context"
	"time"
)

// Report summarises one wake cycle.
type Report struct {
	CycleID       string    `json:"cycle_id"`
	Boots         int64     `json:"boots"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Phase         string    `json:"phase"`
	Today         string    `json:"today"`
	Tomorrow      string    `json:"tomorrow"`
	Active        string    `json:"active"`
	SleepSeconds  int64     `json:"sleep_seconds"`
	SleepValid    bool      `json:"sleep_valid"`
	WakeAt        time.Time `json:"wake_at"`
	SyncServer    string    `json:"sync_server,omitempty"`
	FetchAttempts int       `json:"fetch_attempts"`
	DrainTimedOut bool      `json:"drain_timed_out"`
}

// Publisher delivers cycle reports. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, r *Report) error
	Close() error
}

// NopPublisher discards reports.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Report) error { return nil }

func (NopPublisher) Close() error { return nil }
