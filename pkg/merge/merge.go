// Package merge decides how a local entity and its remote counterpart are
// reconciled against their last agreed snapshot.
//
// Merge is a pure function: the same local, remote and base always give the
// same Outcome.
package merge

import (
	"fmt"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/snapshot"
)

// Kind is the kind of an Outcome.
type Kind int

const (
	Unchanged Kind = iota
	TookLocal
	TookRemote
	Conflicted
)

func (k Kind) String() string {
	switch k {
	case TookLocal:
		return "took-local"
	case TookRemote:
		return "took-remote"
	case Conflicted:
		return "conflict"
	}
	return "unchanged"
}

// ConflictKind names the combination of edits behind a Conflict.
type ConflictKind string

const (
	BothChanged   ConflictKind = "both_changed"
	RemoteDeleted ConflictKind = "remote_deleted_locally_changed"
	LocalDeleted  ConflictKind = "locally_deleted_remote_changed"
)

// Conflict is a pair of edits that cannot be merged automatically.
type Conflict struct {
	Source          string              `json:"source"`
	EntityID        model.ID            `json:"entity_id"`
	Kind            ConflictKind        `json:"kind"`
	EntityKind      model.Kind          `json:"entity_kind"`
	Local           model.Fields        `json:"local,omitempty"`
	Remote          *adapter.RemoteItem `json:"remote,omitempty"`
	BaseFingerprint string              `json:"base_fingerprint"`
	// Fields lists the fields both sides changed to different values.
	Fields []string `json:"fields,omitempty"`
}

// Outcome is the result of a merge.
type Outcome struct {
	Kind Kind
	// Entity is the value both sides should hold afterwards. It is nil when
	// the entity is deleted.
	Entity model.Entity
	// Push is set when Entity must be written to the remote.
	Push bool
	// DeleteRemote and DeleteLocal request a deletion on that side.
	DeleteRemote bool
	DeleteLocal  bool
	Conflict     *Conflict
}

// Merge reconciles local and remote against base. A nil local means the
// entity does not exist locally; a nil remote means the pull did not report
// it; a nil base means the pair was never synced.
func Merge(local model.Entity, remote *adapter.RemoteItem, base *snapshot.Snapshot) (Outcome, error) {
	if base == nil {
		return firstSync(local, remote)
	}

	localDeleted := local == nil
	remoteDeleted := remote != nil && remote.Deleted
	localChanged := localDeleted || model.Fingerprint(local) != base.Fingerprint
	remoteChanged := remote != nil && (remoteDeleted || string(remote.Revision) != base.Revision)

	switch {
	case localDeleted && remoteDeleted:
		return Outcome{Kind: Unchanged}, nil
	case !localChanged && !remoteChanged:
		return Outcome{Kind: Unchanged, Entity: local}, nil
	case localChanged && !remoteChanged:
		if localDeleted {
			return Outcome{Kind: TookLocal, DeleteRemote: true}, nil
		}
		return Outcome{Kind: TookLocal, Entity: local, Push: true}, nil
	case !localChanged && remoteChanged:
		if remoteDeleted {
			return Outcome{Kind: TookRemote, DeleteLocal: true}, nil
		}
		merged, err := overlay(local, remote, remote.Fields.Names(nil))
		if err != nil {
			return Outcome{}, err
		}
		if model.Fingerprint(merged) == model.Fingerprint(local) {
			return Outcome{Kind: Unchanged, Entity: local}, nil
		}
		return Outcome{Kind: TookRemote, Entity: merged}, nil
	}

	// Both sides changed.
	conflict := &Conflict{
		EntityID:        base.EntityID,
		EntityKind:      base.Kind,
		Remote:          copyRemote(remote),
		BaseFingerprint: base.Fingerprint,
	}
	if !localDeleted {
		conflict.Local = local.Fields()
	}
	switch {
	case localDeleted:
		conflict.Kind = LocalDeleted
		return Outcome{Kind: Conflicted, Conflict: conflict}, nil
	case remoteDeleted:
		conflict.Kind = RemoteDeleted
		return Outcome{Kind: Conflicted, Conflict: conflict}, nil
	}

	localFields := local.Fields()
	var remoteTouched, overlap []string
	for _, name := range remote.Fields.Names(nil) {
		if model.HashValue(remote.Fields[name]) == base.Fields[name] {
			continue
		}
		remoteTouched = append(remoteTouched, name)
		if model.HashValue(localFields[name]) != base.Fields[name] && localFields[name] != remote.Fields[name] {
			overlap = append(overlap, name)
		}
	}
	if len(overlap) > 0 {
		conflict.Kind = BothChanged
		conflict.Fields = overlap
		return Outcome{Kind: Conflicted, Conflict: conflict}, nil
	}
	merged, err := overlay(local, remote, remoteTouched)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: TookLocal, Entity: merged, Push: true}, nil
}

// firstSync handles a pair without a snapshot.
func firstSync(local model.Entity, remote *adapter.RemoteItem) (Outcome, error) {
	switch {
	case remote == nil || remote.Deleted:
		if local == nil {
			return Outcome{Kind: Unchanged}, nil
		}
		return Outcome{Kind: TookLocal, Entity: local, Push: true}, nil
	case local == nil:
		e, err := FromRemote(remote)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: TookRemote, Entity: e}, nil
	}

	// Both sides hold the item: union, remote wins where both set a value.
	localFields := local.Fields()
	var take []string
	push := false
	for _, name := range remote.Fields.Names(nil) {
		lv, rv := localFields[name], remote.Fields[name]
		switch {
		case rv != "" && rv != lv:
			take = append(take, name)
		case rv == "" && lv != "":
			push = true
		}
	}
	if len(take) == 0 && !push {
		return Outcome{Kind: Unchanged, Entity: local}, nil
	}
	merged, err := overlay(local, remote, take)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: TookRemote, Entity: merged, Push: push}, nil
}

// FromRemote builds a new local entity from a remote item.
func FromRemote(remote *adapter.RemoteItem) (model.Entity, error) {
	id := remote.EntityID
	if id == "" {
		id = model.NewID()
	}
	kind := remote.Kind
	if kind == "" {
		kind = model.KindTask
	}
	e, err := model.New(kind, id)
	if err != nil {
		return nil, err
	}
	if err := model.Apply(e, nonEmpty(remote.Fields), nil); err != nil {
		return nil, fmt.Errorf("remote item %s: %w", remote.RemoteID, err)
	}
	return e, nil
}

// Apply returns a copy of local carrying every field remote models, or a new
// entity when local is nil.
func Apply(local model.Entity, remote *adapter.RemoteItem) (model.Entity, error) {
	if local == nil {
		return FromRemote(remote)
	}
	return overlay(local, remote, remote.Fields.Names(nil))
}

// overlay copies the named remote fields onto a clone of local.
func overlay(local model.Entity, remote *adapter.RemoteItem, names []string) (model.Entity, error) {
	merged := local.Clone()
	for _, name := range names {
		if err := merged.SetField(name, remote.Fields[name]); err != nil {
			return nil, fmt.Errorf("remote item %s: %w", remote.RemoteID, err)
		}
	}
	return merged, nil
}

func nonEmpty(f model.Fields) model.Fields {
	out := model.Fields{}
	for k, v := range f {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func copyRemote(r *adapter.RemoteItem) *adapter.RemoteItem {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = model.Fields{}
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	return &c
}
