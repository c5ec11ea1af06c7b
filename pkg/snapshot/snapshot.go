// Package snapshot records the last state each remote source and the local
// collection agreed on. Entries are the merge base of the next sync.
package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harrisonrobin/lamp/pkg/model"
)

// Snapshot is the agreed state of one entity with one source.
type Snapshot struct {
	EntityID model.ID   `json:"entity_id"`
	Kind     model.Kind `json:"kind"`
	RemoteID string     `json:"remote_id"`
	// Revision is the remote revision of the item when it was agreed.
	Revision    string `json:"revision,omitempty"`
	Fingerprint string `json:"fingerprint"`
	// Fields maps field names to value hashes, see model.FieldHashes.
	Fields  map[string]string `json:"fields"`
	Updated time.Time         `json:"updated"`
}

// New builds the snapshot of e as agreed with the remote item remoteID.
func New(e model.Entity, remoteID, revision string, at time.Time) Snapshot {
	return Snapshot{
		EntityID:    e.EntityID(),
		Kind:        e.Kind(),
		RemoteID:    remoteID,
		Revision:    revision,
		Fingerprint: model.Fingerprint(e),
		Fields:      model.FieldHashes(e.Fields()),
		Updated:     at,
	}
}

// Batch is applied to one source in a single step.
type Batch struct {
	Put    []Snapshot
	Delete []model.ID
	// Cursor replaces the source cursor when set.
	Cursor *string
}

// Empty reports whether the batch changes nothing.
func (b Batch) Empty() bool {
	return len(b.Put) == 0 && len(b.Delete) == 0 && b.Cursor == nil
}

// Store persists snapshots per source.
type Store interface {
	Get(ctx context.Context, source string, id model.ID) (Snapshot, bool, error)
	List(ctx context.Context, source string) ([]Snapshot, error)
	// Cursor returns the revision token of the last completed pull.
	Cursor(ctx context.Context, source string) (string, error)
	// Apply installs b atomically: either all of it is visible or none.
	Apply(ctx context.Context, source string, b Batch) error
	Close() error
}

// Open opens the store of the given backend, "json" or "sqlite", in dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "", "json":
		return OpenJSON(filepath.Join(dir, "snapshots.json"))
	case "sqlite":
		return OpenSQLite(filepath.Join(dir, "snapshots.db"))
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", backend)
}
