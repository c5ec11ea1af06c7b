// Package sync reconciles the local workspace with remote sources.
//
// A run pulls the changes of one source, merges every affected entity
// against its snapshot, pushes local winners and then commits the workspace
// changes, the new snapshots and the pull cursor in one step. A run that
// fails or is cancelled before that step leaves local state untouched.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/merge"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/snapshot"
	"github.com/harrisonrobin/lamp/pkg/store"
)

// ErrSyncInProgress is returned when another process holds the source lock.
var ErrSyncInProgress = errors.New("sync already in progress")

// TransportError reports a failed exchange with a remote source.
type TransportError struct {
	Source string
	Op     string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Result summarizes one run.
type Result struct {
	Source     string
	Pulled     int
	Pushed     int
	Deleted    int
	TookLocal  int
	TookRemote int
	Unchanged  int
	Conflicts  int
	// Skipped counts entities left alone because a conflict is pending or
	// because they were edited while the run was in flight.
	Skipped int
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: pulled %d, pushed %d, deleted %d, local %d, remote %d, conflicts %d, skipped %d",
		r.Source, r.Pulled, r.Pushed, r.Deleted, r.TookLocal, r.TookRemote, r.Conflicts, r.Skipped)
}

// Options configures an Engine.
type Options struct {
	// StateDir holds the per-source lock files.
	StateDir string
	// Parallel bounds how many sources RunAll syncs at once.
	Parallel int
	Logger   *log.Logger
	Now      func() time.Time
}

// Engine runs syncs against a workspace.
type Engine struct {
	ws       *store.Workspace
	snaps    snapshot.Store
	ledger   *Ledger
	adapters *adapter.Set
	stateDir string
	parallel int
	logger   *log.Logger
	now      func() time.Time
	group    singleflight.Group
}

func New(ws *store.Workspace, snaps snapshot.Store, ledger *Ledger, adapters *adapter.Set, opts Options) *Engine {
	e := &Engine{
		ws:       ws,
		snaps:    snaps,
		ledger:   ledger,
		adapters: adapters,
		stateDir: opts.StateDir,
		parallel: opts.Parallel,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.parallel <= 0 {
		e.parallel = 4
	}
	return e
}

// Ledger returns the conflict ledger of the engine.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Run syncs one source. Concurrent calls for the same source share a single
// run and its result.
func (e *Engine) Run(ctx context.Context, source string) (*Result, error) {
	v, err, _ := e.group.Do(source, func() (interface{}, error) {
		return e.run(ctx, source)
	})
	if v == nil {
		return nil, err
	}
	return v.(*Result), err
}

// RunAll syncs every source. A failing source does not stop the others; the
// errors of all failed sources are joined.
func (e *Engine) RunAll(ctx context.Context) ([]*Result, error) {
	names := e.adapters.Names()
	results := make([]*Result, len(names))
	errs := make([]error, len(names))
	var g errgroup.Group
	g.SetLimit(e.parallel)
	for i, name := range names {
		g.Go(func() error {
			results[i], errs[i] = e.Run(ctx, name)
			return nil
		})
	}
	g.Wait()
	var out []*Result
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, errors.Join(errs...)
}

func (e *Engine) lock(source string) (*flock.Flock, error) {
	if e.stateDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(e.stateDir, 0o700); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(e.stateDir, source+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", source, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", source, ErrSyncInProgress)
	}
	return fl, nil
}

func unlock(fl *flock.Flock) {
	if fl != nil {
		fl.Unlock()
	}
}

// pair is one entity as seen locally, remotely and at the last sync.
type pair struct {
	id     model.ID
	local  model.Entity
	remote *adapter.RemoteItem
	base   *snapshot.Snapshot
}

func (p *pair) localRev() uint64 {
	if p.local == nil {
		return 0
	}
	return p.local.Rev()
}

// remoteID is the id the entity has on the remote, if any.
func (p *pair) remoteID() string {
	switch {
	case p.remote != nil && !p.remote.Deleted:
		return p.remote.RemoteID
	case p.base != nil:
		return p.base.RemoteID
	}
	return ""
}

func (p *pair) remoteRevision() adapter.Revision {
	switch {
	case p.remote != nil:
		return p.remote.Revision
	case p.base != nil:
		return adapter.Revision(p.base.Revision)
	}
	return ""
}

// plan collects what a run will commit.
type plan struct {
	batch     store.Batch
	puts      []snapshot.Snapshot
	deletes   []model.ID
	conflicts []merge.Conflict
	// refresh holds newer remote sides of pending conflicts.
	refresh []merge.Conflict
}

func (e *Engine) run(ctx context.Context, source string) (*Result, error) {
	a, ok := e.adapters.Get(source)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}
	fl, err := e.lock(source)
	if err != nil {
		return nil, err
	}
	defer unlock(fl)

	res := &Result{Source: source}
	view := e.ws.Snapshot()
	cursor, err := e.snaps.Cursor(ctx, source)
	if err != nil {
		return nil, err
	}
	snaps, err := e.snaps.List(ctx, source)
	if err != nil {
		return nil, err
	}

	items, rev, err := pull(ctx, a, adapter.Revision(cursor))
	if err != nil {
		return nil, err
	}
	res.Pulled = len(items)

	p := &plan{}
	pairs := e.pairs(source, a, view, snaps, items, p, res)
	for _, pr := range pairs {
		if err := e.reconcile(ctx, a, source, pr, p, res); err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next := string(rev)
	if err := e.commit(ctx, source, p, &next, res); err != nil {
		return nil, err
	}
	for _, c := range p.conflicts {
		e.ledger.Add(c, e.now())
	}
	for _, c := range p.refresh {
		e.ledger.Refresh(c.Source, c.EntityID, c.Remote)
	}
	if err := e.ledger.Save(); err != nil {
		return res, fmt.Errorf("save conflict ledger: %w", err)
	}
	if err := e.ws.Save(); err != nil {
		return res, err
	}
	if c, ok := a.(adapter.Committer); ok {
		if err := c.Committed(ctx); err != nil {
			e.logger.Printf("WARNING: %s: %v", source, err)
		}
	}
	e.logger.Printf("%s", res)
	return res, nil
}

// pull drains the stream of changes since rev.
func pull(ctx context.Context, a adapter.Adapter, since adapter.Revision) ([]adapter.RemoteItem, adapter.Revision, error) {
	stream, err := a.Pull(ctx, since)
	if err != nil {
		return nil, "", transportError(a.Source(), "pull", err)
	}
	defer stream.Close()
	var items []adapter.RemoteItem
	for stream.Next() {
		items = append(items, stream.Item())
	}
	if err := stream.Err(); err != nil {
		return nil, "", transportError(a.Source(), "pull", err)
	}
	return items, stream.Revision(), nil
}

// transportError wraps err unless it is a cancellation, which is returned
// as is.
func transportError(source, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Source: source, Op: op, Err: err}
}

// pairs matches pulled items with local entities and snapshots. The result is
// ordered by entity id, with new remote items last in remote id order.
func (e *Engine) pairs(source string, a adapter.Adapter, view *store.View, snaps []snapshot.Snapshot, items []adapter.RemoteItem, p *plan, res *Result) []*pair {
	byEntity := make(map[model.ID]*snapshot.Snapshot, len(snaps))
	byRemote := make(map[string]*snapshot.Snapshot, len(snaps))
	for i := range snaps {
		s := &snaps[i]
		byEntity[s.EntityID] = s
		byRemote[s.RemoteID] = s
	}

	// Local entities the source should know about but never saw.
	var unsynced []model.Entity
	for _, l := range view.Entities() {
		if _, ok := byEntity[l.EntityID()]; !ok && adapter.Handles(a, l) {
			unsynced = append(unsynced, l)
		}
	}
	sort.Slice(unsynced, func(i, j int) bool { return unsynced[i].EntityID() < unsynced[j].EntityID() })
	matcher, _ := a.(adapter.Matcher)
	claimed := make(map[model.ID]bool)

	paired := make(map[model.ID]*pair)
	var fresh []*pair
	for i := range items {
		item := &items[i]
		var id model.ID
		switch s, ok := byRemote[item.RemoteID]; {
		case ok:
			id = s.EntityID
		case item.EntityID != "":
			id = item.EntityID
		case matcher != nil && !item.Deleted:
			for _, l := range unsynced {
				if !claimed[l.EntityID()] && l.Kind() == kindOf(item) && matcher.Same(l, *item) {
					id = l.EntityID()
					break
				}
			}
		}
		if id == "" {
			if !item.Deleted {
				fresh = append(fresh, &pair{remote: item})
			}
			continue
		}
		claimed[id] = true
		local, _ := view.Get(id)
		if local != nil && local.Kind() != kindOf(item) {
			e.logger.Printf("WARNING: %s: remote item %s is a %s, local %s is a %s", source, item.RemoteID, kindOf(item), id, local.Kind())
			continue
		}
		paired[id] = &pair{id: id, local: local, remote: item, base: byEntity[id]}
	}
	for id, s := range byEntity {
		if _, ok := paired[id]; !ok {
			local, _ := view.Get(id)
			paired[id] = &pair{id: id, local: local, base: s}
		}
	}
	for _, l := range unsynced {
		if _, ok := paired[l.EntityID()]; !ok {
			paired[l.EntityID()] = &pair{id: l.EntityID(), local: l}
		}
	}

	out := make([]*pair, 0, len(paired)+len(fresh))
	for id, pr := range paired {
		if e.ledger.Has(source, id) {
			res.Skipped++
			if pr.remote != nil {
				c := *pr.remote
				p.refresh = append(p.refresh, merge.Conflict{Source: source, EntityID: id, Remote: &c})
			}
			continue
		}
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].remote.RemoteID < fresh[j].remote.RemoteID })
	return append(out, fresh...)
}

func kindOf(item *adapter.RemoteItem) model.Kind {
	if item.Kind == "" {
		return model.KindTask
	}
	return item.Kind
}

// reconcile merges one pair and performs the remote side of the outcome.
func (e *Engine) reconcile(ctx context.Context, a adapter.Adapter, source string, pr *pair, p *plan, res *Result) error {
	out, err := merge.Merge(pr.local, pr.remote, pr.base)
	if err != nil {
		e.logger.Printf("WARNING: %s: %s: %v", source, pr.id, err)
		res.Skipped++
		return nil
	}
	now := e.now()

	switch out.Kind {
	case merge.Unchanged:
		res.Unchanged++
		switch {
		case out.Entity == nil && pr.base != nil:
			p.deletes = append(p.deletes, pr.id)
		case out.Entity != nil && pr.remote != nil && !pr.remote.Deleted:
			p.puts = append(p.puts, snapshot.New(out.Entity, pr.remote.RemoteID, string(pr.remote.Revision), now))
		}

	case merge.TookLocal:
		res.TookLocal++
		if out.DeleteRemote {
			if err := e.deleteRemote(ctx, a, pr.remoteID()); err != nil {
				return err
			}
			res.Deleted++
			p.deletes = append(p.deletes, pr.id)
			break
		}
		ref, err := e.push(ctx, a, out.Entity, pr)
		if err != nil {
			return err
		}
		res.Pushed++
		if model.Fingerprint(out.Entity) != model.Fingerprint(pr.local) {
			p.batch.Put(out.Entity, pr.localRev())
		}
		p.puts = append(p.puts, snapshot.New(out.Entity, ref.RemoteID, string(ref.Revision), now))

	case merge.TookRemote:
		res.TookRemote++
		if out.DeleteLocal {
			p.batch.Delete(pr.id, pr.localRev())
			p.deletes = append(p.deletes, pr.id)
			break
		}
		p.batch.Put(out.Entity, pr.localRev())
		ref := adapter.RemoteRef{RemoteID: pr.remote.RemoteID, Revision: pr.remote.Revision}
		if out.Push {
			if ref, err = e.push(ctx, a, out.Entity, pr); err != nil {
				return err
			}
			res.Pushed++
		}
		p.puts = append(p.puts, snapshot.New(out.Entity, ref.RemoteID, string(ref.Revision), now))

	case merge.Conflicted:
		res.Conflicts++
		c := *out.Conflict
		c.Source = source
		if c.EntityID == "" {
			c.EntityID = pr.id
		}
		p.conflicts = append(p.conflicts, c)
	}
	return nil
}

func (e *Engine) push(ctx context.Context, a adapter.Adapter, ent model.Entity, pr *pair) (adapter.RemoteRef, error) {
	ref, err := a.Push(ctx, adapter.PushItem{Entity: ent, RemoteID: pr.remoteID(), Revision: pr.remoteRevision()})
	if err != nil {
		return ref, transportError(a.Source(), "push "+string(ent.EntityID()), err)
	}
	return ref, nil
}

func (e *Engine) deleteRemote(ctx context.Context, a adapter.Adapter, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	err := a.Delete(ctx, remoteID)
	if err == nil || errors.Is(err, adapter.ErrNotFound) {
		return nil
	}
	return transportError(a.Source(), "delete "+remoteID, err)
}

// commit applies the workspace batch and, under the same lock, the snapshot
// batch. Entities edited during the run keep their old snapshot so the next
// run sees the edit.
func (e *Engine) commit(ctx context.Context, source string, p *plan, cursor *string, res *Result) error {
	_, err := e.ws.CommitWith(p.batch, func(skipped []model.ID) error {
		skip := make(map[model.ID]bool, len(skipped))
		for _, id := range skipped {
			skip[id] = true
		}
		res.Skipped += len(skipped)
		sb := snapshot.Batch{Cursor: cursor}
		for _, s := range p.puts {
			if !skip[s.EntityID] {
				sb.Put = append(sb.Put, s)
			}
		}
		for _, id := range p.deletes {
			if !skip[id] {
				sb.Delete = append(sb.Delete, id)
			}
		}
		if len(skipped) > 0 {
			e.logger.Printf("WARNING: %s: %d entities changed during sync, retried next run", source, len(skipped))
		}
		return e.snaps.Apply(ctx, source, sb)
	})
	return err
}

// Resolution is the decision taken on a conflict.
type Resolution int

const (
	AcceptLocal Resolution = iota
	AcceptRemote
	DiscardBoth
)

func (r Resolution) String() string {
	switch r {
	case AcceptRemote:
		return "remote"
	case DiscardBoth:
		return "discard"
	}
	return "local"
}

// ParseResolution parses "local", "remote" or "discard".
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "local":
		return AcceptLocal, nil
	case "remote":
		return AcceptRemote, nil
	case "discard":
		return DiscardBoth, nil
	}
	return 0, fmt.Errorf("unknown resolution %q", s)
}

var errChangedDuringResolve = errors.New("entity changed while resolving, try again")

// Resolve settles a pending conflict. Each conflict is resolved at most once;
// a second call returns ErrConflictNotFound. A failed resolution leaves the
// conflict pending.
func (e *Engine) Resolve(ctx context.Context, source string, id model.ID, r Resolution) error {
	entry, err := e.ledger.Take(source, id)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			e.ledger.restore(entry)
		}
	}()

	a, ok := e.adapters.Get(source)
	if !ok {
		return fmt.Errorf("unknown source %q", source)
	}
	fl, err := e.lock(source)
	if err != nil {
		return err
	}
	defer unlock(fl)

	pr := &pair{id: id, remote: entry.Remote}
	pr.local, _ = e.ws.Snapshot().Get(id)
	remoteLive := entry.Remote != nil && !entry.Remote.Deleted
	now := e.now()
	p := &plan{}

	switch r {
	case AcceptLocal:
		if pr.local == nil {
			if remoteLive {
				if err := e.deleteRemote(ctx, a, entry.Remote.RemoteID); err != nil {
					return err
				}
			}
			p.deletes = append(p.deletes, id)
			break
		}
		ref, err := e.push(ctx, a, pr.local, pr)
		if err != nil {
			return err
		}
		p.puts = append(p.puts, snapshot.New(pr.local, ref.RemoteID, string(ref.Revision), now))

	case AcceptRemote:
		if !remoteLive {
			if pr.local != nil {
				p.batch.Delete(id, pr.localRev())
			}
			p.deletes = append(p.deletes, id)
			break
		}
		remote := *entry.Remote
		remote.EntityID = id
		remote.Kind = entry.EntityKind
		ent, err := merge.Apply(pr.local, &remote)
		if err != nil {
			return err
		}
		p.batch.Put(ent, pr.localRev())
		p.puts = append(p.puts, snapshot.New(ent, remote.RemoteID, string(remote.Revision), now))

	case DiscardBoth:
		if remoteLive {
			if err := e.deleteRemote(ctx, a, entry.Remote.RemoteID); err != nil {
				return err
			}
		}
		if pr.local != nil {
			p.batch.Delete(id, pr.localRev())
		}
		p.deletes = append(p.deletes, id)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = e.ws.CommitWith(p.batch, func(skipped []model.ID) error {
		if len(skipped) > 0 {
			return fmt.Errorf("%s: %w", id, errChangedDuringResolve)
		}
		return e.snaps.Apply(ctx, source, snapshot.Batch{Put: p.puts, Delete: p.deletes})
	})
	if err != nil {
		return err
	}
	committed = true
	if err := e.ledger.Save(); err != nil {
		return fmt.Errorf("save conflict ledger: %w", err)
	}
	e.logger.Printf("%s: resolved %s with %s", source, id, r)
	return e.ws.Save()
}
