package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/harrisonrobin/lamp/pkg/model"
)

type sourceIndex struct {
	Cursor  string                `json:"cursor,omitempty"`
	Entries map[model.ID]Snapshot `json:"entries"`
}

// JSONStore keeps all snapshots in one JSON file that is rewritten on every
// Apply.
type JSONStore struct {
	Sources map[string]*sourceIndex `json:"sources"`
	Path    string                  `json:"-"`
	mu      sync.RWMutex
}

// OpenJSON loads the index at path, starting empty when it does not exist.
func OpenJSON(path string) (*JSONStore, error) {
	s := &JSONStore{Sources: make(map[string]*sourceIndex), Path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &s.Sources); err != nil {
		return nil, fmt.Errorf("could not decode snapshot index %s: %w", path, err)
	}
	for _, idx := range s.Sources {
		if idx.Entries == nil {
			idx.Entries = make(map[model.ID]Snapshot)
		}
	}
	return s, nil
}

func (s *JSONStore) Get(_ context.Context, source string, id model.ID) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.Sources[source]
	if !ok {
		return Snapshot{}, false, nil
	}
	snap, ok := idx.Entries[id]
	return snap, ok, nil
}

func (s *JSONStore) List(_ context.Context, source string) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.Sources[source]
	if !ok {
		return nil, nil
	}
	out := make([]Snapshot, 0, len(idx.Entries))
	for _, snap := range idx.Entries {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, nil
}

func (s *JSONStore) Cursor(_ context.Context, source string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.Sources[source]; ok {
		return idx.Cursor, nil
	}
	return "", nil
}

// Apply writes the updated index to disk before making it visible, so a
// failed write leaves both the file and the store unchanged.
func (s *JSONStore) Apply(ctx context.Context, source string, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*sourceIndex, len(s.Sources)+1)
	for name, idx := range s.Sources {
		next[name] = idx
	}
	idx := &sourceIndex{Entries: make(map[model.ID]Snapshot)}
	if cur, ok := s.Sources[source]; ok {
		idx.Cursor = cur.Cursor
		for id, snap := range cur.Entries {
			idx.Entries[id] = snap
		}
	}
	for _, id := range b.Delete {
		delete(idx.Entries, id)
	}
	for _, snap := range b.Put {
		idx.Entries[snap.EntityID] = snap
	}
	if b.Cursor != nil {
		idx.Cursor = *b.Cursor
	}
	next[source] = idx

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	if err := atomic.WriteFile(s.Path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("could not write snapshot index: %w", err)
	}
	s.Sources = next
	return nil
}

func (s *JSONStore) Close() error { return nil }
