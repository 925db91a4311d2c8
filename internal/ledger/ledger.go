// Package ledger provides an append-only history of switch transitions and
// target write outcomes, for auditing why a light ended up in a given state.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventSwitchOn             EventType = "switch_on"
	EventSwitchOff            EventType = "switch_off"
	EventTargetWriteOK        EventType = "target_write_ok"
	EventTargetWriteExhausted EventType = "target_write_exhausted"
)

// Entry represents a single event in the ledger
type Entry struct {
	EventID    string         `json:"event_id"`
	EventType  EventType      `json:"event_type"`
	SwitchName string         `json:"switch_name"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, switchName string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	now := time.Now().UTC().Unix()

	_, err = l.db.Exec(
		`INSERT INTO switch_ledger (event_id, event_type, switch_name, timestamp, payload) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), string(eventType), switchName, now, string(payloadJSON),
	)

	return err
}

// Recent returns the most recent entries for a switch, newest first.
func (l *Ledger) Recent(switchName string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT event_id, event_type, switch_name, timestamp, payload
		FROM switch_ledger
		WHERE switch_name = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, switchName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM switch_ledger WHERE timestamp < ?
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

		err := rows.Scan(&entry.EventID, &entry.EventType, &entry.SwitchName, &timestamp, &payloadStr)
		if err != nil {
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
