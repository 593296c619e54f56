// Package ledger provides an append-only history of wake cycles.
// Every cycle records what it did so a device that is asleep most of the day
// can be diagnosed afterwards.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventCycleStarted   EventType = "cycle_started"
	EventTimeSynced     EventType = "time_synced"
	EventSunDataFetched EventType = "sun_data_fetched"
	EventFetchFailed    EventType = "fetch_failed"
	EventDrained        EventType = "drained"
	EventSleepScheduled EventType = "sleep_scheduled"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64
	CycleID   string
	EventType EventType
	Timestamp time.Time
	Payload   map[string]any
}

// Ledger provides append-only cycle event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection.
// now stamps entries; nil uses time.Now.
func New(db *sql.DB, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{db: db, now: now}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(cycleID string, eventType EventType, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.Exec(`
		INSERT INTO cycle_ledger (cycle_id, event_type, timestamp, payload)
		VALUES (?, ?, ?, ?)
	`, cycleID, string(eventType), l.now().UTC().Unix(), string(payloadJSON))

	return err
}

// Recent returns the newest entries, newest first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, cycle_id, event_type, timestamp, payload
		FROM cycle_ledger
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByCycle returns the entries of one cycle in insertion order
func (l *Ledger) GetByCycle(cycleID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, cycle_id, event_type, timestamp, payload
		FROM cycle_ledger
		WHERE cycle_id = ?
		ORDER BY id ASC
	`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, cycle_id, event_type, timestamp, payload
		FROM cycle_ledger
		WHERE event_type = ?
		ORDER BY id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM cycle_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr sql.NullString
		var timestamp int64

		if err := rows.Scan(&entry.ID, &entry.CycleID, &entry.EventType, &timestamp, &payloadStr); err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
