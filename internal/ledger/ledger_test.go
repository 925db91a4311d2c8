package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/switchd/internal/db"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

func TestAppendAndRecent(t *testing.T) {
	l := testLedger(t)

	if err := l.Append(EventSwitchOn, "hallway", map[string]any{"targets": []int{5, 6}}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := l.Append(EventTargetWriteOK, "hallway", map[string]any{"light": 5, "on": true, "attempts": 1}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := l.Append(EventSwitchOff, "porch", nil); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	entries, err := l.Recent("hallway", 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}

	// Newest first.
	if entries[0].EventType != EventTargetWriteOK {
		t.Errorf("entries[0].EventType = %v, want %v", entries[0].EventType, EventTargetWriteOK)
	}
	if entries[1].EventType != EventSwitchOn {
		t.Errorf("entries[1].EventType = %v, want %v", entries[1].EventType, EventSwitchOn)
	}

	if entries[0].SwitchName != "hallway" {
		t.Errorf("SwitchName = %q, want hallway", entries[0].SwitchName)
	}
	if entries[0].EventID == "" {
		t.Error("EventID is empty")
	}
	if got := entries[0].Payload["light"]; got != float64(5) {
		t.Errorf("Payload[light] = %v (%T), want 5", got, got)
	}
	if entries[1].Payload == nil {
		t.Error("entries[1].Payload is nil, want targets payload")
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := testLedger(t)

	l.Append(EventSwitchOn, "hallway", nil)

	// Everything is newer than the cutoff.
	deleted, err := l.DeleteOlderThan(time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted %d entries, want 0", deleted)
	}

	// Negative retention pushes the cutoff into the future and drops everything.
	deleted, err = l.DeleteOlderThan(-time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan() error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d entries, want 1", deleted)
	}
}
