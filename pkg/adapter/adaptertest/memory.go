// Package adaptertest provides an in-memory adapter for tests.
package adaptertest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/model"
)

// DefaultFields are the task fields the memory adapter models.
var DefaultFields = []string{"title", "state", "scheduled", "deadline", "notes"}

type entry struct {
	item adapter.RemoteItem
	seq  int
}

// Adapter keeps remote items in memory. The zero value is not usable; use New.
type Adapter struct {
	name   string
	fields []string

	// PullHook runs at the start of every Pull.
	PullHook func(ctx context.Context) error
	// PushErr is returned by every Push when set.
	PushErr error
	// MatchFunc enables adapter.Matcher when set.
	MatchFunc func(local model.Entity, remote adapter.RemoteItem) bool

	mu      sync.Mutex
	items   map[string]*entry
	seq     int
	next    int
	pulls   atomic.Int32
	pushes  atomic.Int32
	deletes atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
}

// New returns an empty adapter for source name modeling fields, or
// DefaultFields when none are given.
func New(name string, fields ...string) *Adapter {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Adapter{name: name, fields: fields, items: make(map[string]*entry)}
}

func (a *Adapter) Source() string { return a.name }

// Pull returns the items changed after since.
func (a *Adapter) Pull(ctx context.Context, since adapter.Revision) (adapter.Stream, error) {
	a.pulls.Add(1)
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if a.PullHook != nil {
		if err := a.PullHook(ctx); err != nil {
			return nil, err
		}
	}
	after := 0
	if since != "" {
		var err error
		if after, err = strconv.Atoi(string(since)); err != nil {
			return nil, fmt.Errorf("invalid revision %q", since)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []adapter.RemoteItem
	var seqs []int
	for _, e := range a.items {
		if e.seq > after {
			out = append(out, e.item)
			seqs = append(seqs, e.seq)
		}
	}
	sort.Sort(bySeq{out, seqs})
	return adapter.NewSliceStream(out, adapter.Revision(strconv.Itoa(a.seq)), nil), nil
}

// Push stores the modeled fields of the entity.
func (a *Adapter) Push(ctx context.Context, item adapter.PushItem) (adapter.RemoteRef, error) {
	a.pushes.Add(1)
	if a.PushErr != nil {
		return adapter.RemoteRef{}, a.PushErr
	}
	if err := ctx.Err(); err != nil {
		return adapter.RemoteRef{}, err
	}
	all := item.Entity.Fields()
	fields := model.Fields{}
	for _, name := range a.fields {
		fields[name] = all.Get(name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := item.RemoteID
	if id == "" {
		a.next++
		id = fmt.Sprintf("%s-%d", a.name, a.next)
	}
	rev := a.store(adapter.RemoteItem{
		RemoteID: id,
		EntityID: item.Entity.EntityID(),
		Kind:     item.Entity.Kind(),
		Fields:   fields,
	})
	return adapter.RemoteRef{RemoteID: id, Revision: rev}, nil
}

// Delete tombstones a remote item.
func (a *Adapter) Delete(ctx context.Context, remoteID string) error {
	a.deletes.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.items[remoteID]
	if !ok || e.item.Deleted {
		return adapter.ErrNotFound
	}
	item := e.item
	item.Deleted = true
	a.store(item)
	return nil
}

func (a *Adapter) store(item adapter.RemoteItem) adapter.Revision {
	a.seq++
	item.Revision = adapter.Revision(strconv.Itoa(a.seq))
	a.items[item.RemoteID] = &entry{item: item, seq: a.seq}
	return item.Revision
}

// Set simulates a remote edit. A missing RemoteID is assigned.
func (a *Adapter) Set(item adapter.RemoteItem) adapter.RemoteItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	if item.RemoteID == "" {
		a.next++
		item.RemoteID = fmt.Sprintf("%s-%d", a.name, a.next)
	}
	if item.Kind == "" {
		item.Kind = model.KindTask
	}
	if item.Fields == nil {
		item.Fields = model.Fields{}
	}
	for _, name := range a.fields {
		if _, ok := item.Fields[name]; !ok {
			item.Fields[name] = ""
		}
	}
	item.Revision = a.store(item)
	return item
}

// Remove simulates a remote deletion.
func (a *Adapter) Remove(remoteID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.items[remoteID]; ok {
		item := e.item
		item.Deleted = true
		a.store(item)
	}
}

// Item returns the current state of a remote item.
func (a *Adapter) Item(remoteID string) (adapter.RemoteItem, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.items[remoteID]
	if !ok {
		return adapter.RemoteItem{}, false
	}
	return e.item, true
}

// Live returns the items that are not deleted, ordered by remote id.
func (a *Adapter) Live() []adapter.RemoteItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []adapter.RemoteItem
	for _, e := range a.items {
		if !e.item.Deleted {
			out = append(out, e.item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

func (a *Adapter) Pulls() int   { return int(a.pulls.Load()) }
func (a *Adapter) Pushes() int  { return int(a.pushes.Load()) }
func (a *Adapter) Deletes() int { return int(a.deletes.Load()) }

// PeakPulls is the largest number of pulls that ran at the same time.
func (a *Adapter) PeakPulls() int { return int(a.peak.Load()) }

// Matching wraps the adapter so it implements adapter.Matcher.
func (a *Adapter) Matching() adapter.Adapter {
	return matching{a}
}

type matching struct{ *Adapter }

func (m matching) Same(local model.Entity, remote adapter.RemoteItem) bool {
	if m.MatchFunc == nil {
		return false
	}
	return m.MatchFunc(local, remote)
}

type bySeq struct {
	items []adapter.RemoteItem
	seqs  []int
}

func (b bySeq) Len() int           { return len(b.items) }
func (b bySeq) Less(i, j int) bool { return b.seqs[i] < b.seqs[j] }
func (b bySeq) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.seqs[i], b.seqs[j] = b.seqs[j], b.seqs[i]
}
