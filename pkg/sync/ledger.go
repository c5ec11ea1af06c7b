package sync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/merge"
	"github.com/harrisonrobin/lamp/pkg/model"
)

// Entry is a conflict waiting for a decision.
type Entry struct {
	merge.Conflict
	Detected time.Time `json:"detected"`
}

// Ledger holds unresolved conflicts. Only sync commits add entries and only
// resolutions remove them.
type Ledger struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	mu      sync.Mutex
	dirty   bool
}

func ledgerKey(source string, id model.ID) string {
	return source + "/" + string(id)
}

// OpenLedger loads the ledger at path. An empty path keeps it in memory.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{Path: path, Entries: make(map[string]Entry)}
	if path == "" {
		return l, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := l.Load(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) Load() error {
	f, err := os.Open(l.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewDecoder(f).Decode(l); err != nil {
		return fmt.Errorf("could not decode conflict ledger %s: %w", l.Path, err)
	}
	if l.Entries == nil {
		l.Entries = make(map[string]Entry)
	}
	return nil
}

func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty || l.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(l.Path, bytes.NewReader(data)); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

// Add records a conflict, replacing an older one for the same entity.
func (l *Ledger) Add(c merge.Conflict, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(c.Source, c.EntityID)
	if old, ok := l.Entries[key]; ok {
		at = old.Detected
	}
	l.Entries[key] = Entry{Conflict: c, Detected: at}
	l.dirty = true
}

// Has reports whether the entity has an open conflict with source.
func (l *Ledger) Has(source string, id model.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.Entries[ledgerKey(source, id)]
	return ok
}

// Take removes and returns a conflict. A conflict can be taken once.
func (l *Ledger) Take(source string, id model.ID) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(source, id)
	e, ok := l.Entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%s %s: %w", source, id, ErrConflictNotFound)
	}
	delete(l.Entries, key)
	l.dirty = true
	return e, nil
}

// Refresh replaces the remote side of a pending conflict. It does nothing
// when the conflict was resolved meanwhile.
func (l *Ledger) Refresh(source string, id model.ID, remote *adapter.RemoteItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey(source, id)
	e, ok := l.Entries[key]
	if !ok {
		return
	}
	e.Remote = remote
	l.Entries[key] = e
	l.dirty = true
}

// restore puts back an entry whose resolution failed.
func (l *Ledger) restore(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries[ledgerKey(e.Source, e.EntityID)] = e
	l.dirty = true
}

// List returns the open conflicts ordered by source and entity.
func (l *Ledger) List() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.Entries))
	for _, e := range l.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// ErrConflictNotFound is returned when resolving a conflict that is not in
// the ledger.
var ErrConflictNotFound = errors.New("conflict not found")
