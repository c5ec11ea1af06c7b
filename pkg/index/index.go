// Package index tracks the entity tags of a remote collection, so a full
// listing can be reduced to the entries that changed since the last one.
package index

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type Index struct {
	Entries map[string]string `json:"entries"`
	mu      sync.RWMutex
}

func New() *Index {
	return &Index{Entries: make(map[string]string)}
}

// Decode reads an index produced by Encode. The empty string is an empty
// index.
func Decode(s string) (*Index, error) {
	idx := New()
	if s == "" {
		return idx, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid listing cursor: %w", err)
	}
	if err := json.Unmarshal(data, &idx.Entries); err != nil {
		return nil, fmt.Errorf("invalid listing cursor: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]string)
	}
	return idx, nil
}

// Encode returns a compact, deterministic form of the index.
func (idx *Index) Encode() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	data, _ := json.Marshal(idx.Entries)
	return base64.RawURLEncoding.EncodeToString(data)
}

func (idx *Index) Get(path string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Entries[path]
}

func (idx *Index) Set(path, tag string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Entries[path] = tag
}

func (idx *Index) Remove(path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.Entries, path)
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Entries)
}

// Diff compares idx with a newer listing. It returns the sorted paths that
// are new or carry a different tag in next, and those missing from next.
func (idx *Index) Diff(next *Index) (changed, removed []string) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	next.mu.RLock()
	defer next.mu.RUnlock()
	for path, tag := range next.Entries {
		if old, ok := idx.Entries[path]; !ok || old != tag {
			changed = append(changed, path)
		}
	}
	for path := range idx.Entries {
		if _, ok := next.Entries[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed
}
