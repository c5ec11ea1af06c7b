// Package adapter defines the contract between the sync engine and remote
// protocols.
package adapter

import (
	"context"
	"errors"

	"github.com/harrisonrobin/lamp/pkg/model"
)

// ErrNotFound is returned by Delete when the remote item does not exist.
var ErrNotFound = errors.New("remote item not found")

// Revision is an opaque marker of remote state. Pulling since a revision
// returns only the changes made after it; the empty revision pulls all.
type Revision string

// RemoteItem is one entity as seen by a remote source.
type RemoteItem struct {
	RemoteID string
	// EntityID is set when the remote carries the local identity.
	EntityID model.ID
	Kind     model.Kind
	// Fields holds every field the protocol models, empty values included.
	// Fields it does not model are absent and never touched by a merge.
	Fields   model.Fields
	Revision Revision
	Deleted  bool
}

// Modeled reports whether the protocol carries field name.
func (r RemoteItem) Modeled(name string) bool {
	_, ok := r.Fields[name]
	return ok
}

// PushItem is a local entity to create or update remotely.
type PushItem struct {
	Entity model.Entity
	// RemoteID is empty when the item does not exist remotely yet.
	RemoteID string
	// Revision is the remote revision the push is based on.
	Revision Revision
}

// RemoteRef identifies the remote item written by a push.
type RemoteRef struct {
	RemoteID string
	Revision Revision
}

// Adapter talks to one remote source.
type Adapter interface {
	Source() string
	Pull(ctx context.Context, since Revision) (Stream, error)
	Push(ctx context.Context, item PushItem) (RemoteRef, error)
	// Delete removes a remote item, returning ErrNotFound when it is absent.
	Delete(ctx context.Context, remoteID string) error
}

// Stream yields pulled items one at a time. Revision is valid once Next has
// returned false without an error.
type Stream interface {
	Next() bool
	Item() RemoteItem
	Err() error
	Revision() Revision
	Close() error
}

// Matcher is implemented by adapters whose items carry no local identity. It
// decides whether two items describe the same real-world thing.
type Matcher interface {
	Same(local model.Entity, remote RemoteItem) bool
}

// Committer is implemented by adapters with remote housekeeping that must
// wait until a run has committed. Errors are logged, never fatal.
type Committer interface {
	Committed(ctx context.Context) error
}

// Scope is implemented by adapters that only sync some entities.
type Scope interface {
	Handles(e model.Entity) bool
}

// Handles reports whether a syncs e. Adapters without a Scope handle tasks
// only.
func Handles(a Adapter, e model.Entity) bool {
	if s, ok := a.(Scope); ok {
		return s.Handles(e)
	}
	return e.Kind() == model.KindTask
}

type sliceStream struct {
	items []RemoteItem
	pos   int
	rev   Revision
	err   error
}

// NewSliceStream returns a Stream over items that ends with rev, or with err
// when err is not nil.
func NewSliceStream(items []RemoteItem, rev Revision, err error) Stream {
	return &sliceStream{items: items, pos: -1, rev: rev, err: err}
}

func (s *sliceStream) Next() bool {
	if s.pos+1 >= len(s.items) {
		s.pos = len(s.items)
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Item() RemoteItem { return s.items[s.pos] }

func (s *sliceStream) Err() error {
	if s.pos >= len(s.items) {
		return s.err
	}
	return nil
}

func (s *sliceStream) Revision() Revision { return s.rev }
func (s *sliceStream) Close() error       { return nil }
