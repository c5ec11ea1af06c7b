// Package overdue tracks pushed calendar events whose task is still open so
// they can be flagged once their date passes.
package overdue

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

type Entry struct {
	Summary   string    `json:"summary"`
	Scheduled time.Time `json:"scheduled"`
}

// Table maps remote event ids to the open tasks they show.
type Table struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	mu      sync.Mutex
	dirty   bool
}

// NewTable loads the table at path. An empty path keeps it in memory.
func NewTable(path string) (*Table, error) {
	t := &Table{Path: path, Entries: make(map[string]Entry)}
	if path == "" {
		return t, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.NewDecoder(f).Decode(t)
}

func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty || t.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(t.Path, bytes.NewReader(data)); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Update records an open event due at scheduled. A zero time removes it.
func (t *Table) Update(eventID, summary string, scheduled time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if scheduled.IsZero() {
		t.remove(eventID)
		return
	}
	old, exists := t.Entries[eventID]
	if !exists || !old.Scheduled.Equal(scheduled) || old.Summary != summary {
		t.Entries[eventID] = Entry{Summary: summary, Scheduled: scheduled}
		t.dirty = true
	}
}

func (t *Table) Remove(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(eventID)
}

func (t *Table) remove(eventID string) {
	if _, exists := t.Entries[eventID]; exists {
		delete(t.Entries, eventID)
		t.dirty = true
	}
}

// Sweep removes and returns the entries that became overdue, keyed by event
// id.
func (t *Table) Sweep(now time.Time) map[string]Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	swept := make(map[string]Entry)
	for id, entry := range t.Entries {
		if entry.Scheduled.Before(now) {
			swept[id] = entry
			delete(t.Entries, id)
			t.dirty = true
		}
	}
	return swept
}
