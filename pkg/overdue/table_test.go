package overdue

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSweep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overdue.json")
	table, err := NewTable(path)
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	table.Update("evt-1", "Call plumber", day)
	table.Update("evt-2", "Pay rent", day.AddDate(0, 0, 5))
	table.Update("evt-3", "Undated", time.Time{})
	if err := table.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	table, err = NewTable(path)
	if err != nil {
		t.Fatal(err)
	}
	swept := table.Sweep(day.Add(time.Hour))
	if len(swept) != 1 || swept["evt-1"].Summary != "Call plumber" {
		t.Fatalf("Expected evt-1 swept, got %v", swept)
	}
	if len(table.Entries) != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", len(table.Entries))
	}
	if again := table.Sweep(day.Add(time.Hour)); len(again) != 0 {
		t.Errorf("Expected an entry to be swept once, got %v", again)
	}
}
