package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/harrisonrobin/lamp/pkg/convert"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

// ErrNotFound is returned for operations on an unknown entity.
var ErrNotFound = errors.New("entity not found")

// PersistenceError reports a failed read or write of an org file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Diagnostic is a parse or conversion problem found while loading.
type Diagnostic struct {
	File    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
	}
	return d.File + ": " + d.Message
}

// Options configures loading and saving.
type Options struct {
	// Today is the reference date for day plan staleness.
	Today      time.Time
	Vocabulary orgmode.Vocabulary
	Logger     *log.Logger
}

// Workspace is the live entity collection. It is safe for concurrent use.
//
// Every stored entity has a revision of at least 1. Any change made through
// the workspace raises the revision, which lets Commit detect edits made
// after a View was taken.
type Workspace struct {
	layout Layout
	opts   Options
	logger *log.Logger

	mu       sync.RWMutex
	entities map[model.ID]model.Entity
	origin   map[model.ID]string
	order    map[string][]model.ID
	docs     map[string]*orgmode.Document
	texts    map[string]string
	exists   map[string]bool
}

type loaded struct {
	doc      *orgmode.Document
	text     string
	exists   bool
	entities []model.Entity
	diags    []Diagnostic
}

// Load reads every file of the layout. Missing files are not an error; they
// are created on the next Save.
func Load(layout Layout, opts Options) (*Workspace, []Diagnostic, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	ws := &Workspace{
		layout:   layout,
		opts:     opts,
		logger:   logger,
		entities: make(map[model.ID]model.Entity),
		origin:   make(map[model.ID]string),
		order:    make(map[string][]model.ID),
		docs:     make(map[string]*orgmode.Document),
		texts:    make(map[string]string),
		exists:   make(map[string]bool),
	}
	var diags []Diagnostic
	for _, f := range layout.Files() {
		l, err := ws.loadFile(f)
		if err != nil {
			return nil, diags, err
		}
		diags = append(diags, l.diags...)
		ws.install(f, l)
		for _, e := range l.entities {
			e.Base().Revision = 1
			ws.entities[e.EntityID()] = e
			ws.origin[e.EntityID()] = f.Name
			ws.order[f.Name] = append(ws.order[f.Name], e.EntityID())
		}
	}
	return ws, diags, nil
}

func (ws *Workspace) loadFile(f File) (*loaded, error) {
	path := ws.layout.Path(f)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &loaded{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: path, Err: err}
	}
	l := &loaded{text: string(data), exists: true}
	doc, parsed := orgmode.Parse(l.text, orgmode.Options{Vocabulary: ws.opts.Vocabulary})
	for _, d := range parsed {
		l.diags = append(l.diags, Diagnostic{File: f.Name, Line: d.Line, Message: d.Message})
	}
	entities, anomalies := convert.ToDomain(f.Kind, doc, ws.convertOptions(f))
	for _, a := range anomalies {
		l.diags = append(l.diags, Diagnostic{File: f.Name, Message: a.String()})
	}
	for _, e := range entities {
		if other, dup := ws.origin[e.EntityID()]; dup && other != f.Name {
			old := e.EntityID()
			e.Base().ID = model.NewID()
			if i := doc.Lookup(string(old)); i >= 0 {
				doc.Headings[i].Properties.Set("ID", string(e.EntityID()))
			}
			ws.logger.Printf("WARNING: %s: id %s already used in %s, minted %s", f.Name, old, other, e.EntityID())
		}
	}
	l.doc = doc
	l.entities = entities
	return l, nil
}

func (ws *Workspace) install(f File, l *loaded) {
	ws.docs[f.Name] = l.doc
	ws.texts[f.Name] = l.text
	ws.exists[f.Name] = l.exists
}

func (ws *Workspace) convertOptions(f File) convert.Options {
	return convert.Options{Today: ws.opts.Today, Vocabulary: ws.opts.Vocabulary, List: f.List}
}

// Layout returns the layout the workspace was loaded from.
func (ws *Workspace) Layout() Layout { return ws.layout }

// Get returns a copy of the entity with the given id.
func (ws *Workspace) Get(id model.ID) (model.Entity, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	e, ok := ws.entities[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// All returns copies of every entity in file order.
func (ws *Workspace) All() []model.Entity {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	var out []model.Entity
	for _, f := range ws.layout.Files() {
		for _, id := range ws.order[f.Name] {
			out = append(out, ws.entities[id].Clone())
		}
	}
	return out
}

// Put inserts or replaces an entity. New entities go to the file picked by
// Layout.Home.
func (ws *Workspace) Put(e model.Entity) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.put(e.Clone())
}

func (ws *Workspace) put(e model.Entity) {
	id := e.EntityID()
	if cur, ok := ws.entities[id]; ok {
		e.Base().Revision = cur.Rev() + 1
	} else {
		e.Base().Revision = 1
		name := ws.layout.Home(e)
		ws.origin[id] = name
		ws.order[name] = append(ws.order[name], id)
	}
	ws.entities[id] = e
}

// Delete removes an entity.
func (ws *Workspace) Delete(id model.ID) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.entities[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	ws.remove(id)
	return nil
}

func (ws *Workspace) remove(id model.ID) {
	name := ws.origin[id]
	ids := ws.order[name]
	for i, x := range ids {
		if x == id {
			ws.order[name] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	delete(ws.entities, id)
	delete(ws.origin, id)
}

// Move reassigns an entity to another file, for example to archive it.
func (ws *Workspace) Move(id model.ID, name string) error {
	if _, ok := ws.layout.File(name); !ok {
		return fmt.Errorf("unknown file %q", name)
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	e, ok := ws.entities[id]
	if !ok {
		return fmt.Errorf("move %s: %w", id, ErrNotFound)
	}
	if ws.origin[id] == name {
		return nil
	}
	ws.remove(id)
	e.Touch()
	ws.entities[id] = e
	ws.origin[id] = name
	ws.order[name] = append(ws.order[name], id)
	return nil
}

// Transition changes the state of a task. A recurring task completed this
// way gets its next instance added next to it.
func (ws *Workspace) Transition(id model.ID, to model.State, at time.Time) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	e, ok := ws.entities[id]
	if !ok {
		return fmt.Errorf("transition %s: %w", id, ErrNotFound)
	}
	var task *model.Task
	switch v := e.Clone().(type) {
	case *model.Task:
		task = v
		e = v
	case *model.Habit:
		if to == model.StateDone {
			v.Complete(at)
			ws.put(v)
			return nil
		}
		task = &v.Task
		e = v
	default:
		return fmt.Errorf("transition %s: %s has no state", id, e.Kind())
	}
	next, err := task.Transition(to, at)
	if err != nil {
		return err
	}
	ws.put(e)
	if next != nil {
		name := ws.origin[id]
		next.Base().Revision = 1
		ws.entities[next.ID] = next
		ws.origin[next.ID] = name
		ws.order[name] = append(ws.order[name], next.ID)
	}
	return nil
}

// View is a consistent copy of the workspace taken at one point in time.
type View struct {
	entities map[model.ID]model.Entity
	origin   map[model.ID]string
}

// Snapshot returns a View. Later changes to the workspace do not affect it.
func (ws *Workspace) Snapshot() *View {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	v := &View{
		entities: make(map[model.ID]model.Entity, len(ws.entities)),
		origin:   make(map[model.ID]string, len(ws.origin)),
	}
	for id, e := range ws.entities {
		v.entities[id] = e.Clone()
		v.origin[id] = ws.origin[id]
	}
	return v
}

// Get returns the entity with the given id.
func (v *View) Get(id model.ID) (model.Entity, bool) {
	e, ok := v.entities[id]
	return e, ok
}

// File returns the file holding the entity.
func (v *View) File(id model.ID) string { return v.origin[id] }

// Entities returns the entities of the view, unordered.
func (v *View) Entities() []model.Entity {
	out := make([]model.Entity, 0, len(v.entities))
	for _, e := range v.entities {
		out = append(out, e)
	}
	return out
}

// Change is one entry of a Batch. A nil Entity deletes ID.
type Change struct {
	ID     model.ID
	Entity model.Entity
	// Base is the revision the change was computed from, 0 for an entity
	// that did not exist.
	Base uint64
}

// Batch is a set of changes committed together.
type Batch struct {
	Changes []Change
}

// Put adds an insert or update computed from revision base.
func (b *Batch) Put(e model.Entity, base uint64) {
	b.Changes = append(b.Changes, Change{ID: e.EntityID(), Entity: e, Base: base})
}

// Delete adds a deletion computed from revision base.
func (b *Batch) Delete(id model.ID, base uint64) {
	b.Changes = append(b.Changes, Change{ID: id, Base: base})
}

// Len returns the number of changes.
func (b *Batch) Len() int { return len(b.Changes) }

// Commit applies the batch in one step. Changes whose entity was edited
// since its base revision are not applied; their ids are returned.
func (ws *Workspace) Commit(b Batch) []model.ID {
	skipped, _ := ws.CommitWith(b, nil)
	return skipped
}

// CommitWith is Commit with a hook that runs under the workspace lock once
// the skipped changes are known. When the hook fails nothing is applied.
func (ws *Workspace) CommitWith(b Batch, hook func(skipped []model.ID) error) ([]model.ID, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	var skipped []model.ID
	var apply []Change
	for _, c := range b.Changes {
		var rev uint64
		if cur, ok := ws.entities[c.ID]; ok {
			rev = cur.Rev()
		}
		if rev != c.Base {
			skipped = append(skipped, c.ID)
			continue
		}
		apply = append(apply, c)
	}
	if hook != nil {
		if err := hook(skipped); err != nil {
			return skipped, err
		}
	}
	for _, c := range apply {
		if c.Entity == nil {
			if _, ok := ws.entities[c.ID]; ok {
				ws.remove(c.ID)
			}
			continue
		}
		ws.put(c.Entity.Clone())
	}
	return skipped, nil
}

// Save writes every file whose rendered text changed. Each file is staged and
// renamed into place, so a failed save never leaves a partial file.
func (ws *Workspace) Save() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, f := range ws.layout.Files() {
		entities := make([]model.Entity, 0, len(ws.order[f.Name]))
		for _, id := range ws.order[f.Name] {
			entities = append(entities, ws.entities[id])
		}
		doc := convert.FromDomain(f.Kind, entities, ws.docs[f.Name], ws.convertOptions(f))
		if doc == nil {
			continue
		}
		text := orgmode.Write(doc)
		if ws.exists[f.Name] && text == ws.texts[f.Name] {
			continue
		}
		path := ws.layout.Path(f)
		if err := os.MkdirAll(ws.layout.Dir, 0o755); err != nil {
			return &PersistenceError{Op: "mkdir", Path: ws.layout.Dir, Err: err}
		}
		if err := atomic.WriteFile(path, strings.NewReader(text)); err != nil {
			return &PersistenceError{Op: "write", Path: path, Err: err}
		}
		reparsed, _ := orgmode.Parse(text, orgmode.Options{Vocabulary: ws.opts.Vocabulary})
		ws.install(f, &loaded{doc: reparsed, text: text, exists: true})
	}
	return nil
}

// Reload rereads one file after an outside edit, judging day plan staleness
// against today. It reports whether any entity of the file changed; edits to
// unowned text alone do not count. Entities whose content did not change keep
// their revision.
func (ws *Workspace) Reload(name string, today time.Time) (bool, []Diagnostic, error) {
	f, ok := ws.layout.File(name)
	if !ok {
		return false, nil, fmt.Errorf("unknown file %q", name)
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	newDay := !sameDay(ws.opts.Today, today)
	ws.opts.Today = today
	l, err := ws.loadFile(f)
	if err != nil {
		return false, nil, err
	}
	if l.exists == ws.exists[name] && l.text == ws.texts[name] && !(newDay && f.Kind == convert.DayPlan) {
		return false, nil, nil
	}
	changed := false
	keep := make(map[model.ID]bool, len(l.entities))
	for _, e := range l.entities {
		keep[e.EntityID()] = true
	}
	for _, id := range append([]model.ID(nil), ws.order[name]...) {
		if !keep[id] {
			ws.remove(id)
			changed = true
		}
	}
	ws.order[name] = nil
	for _, e := range l.entities {
		id := e.EntityID()
		cur, ok := ws.entities[id]
		switch {
		case !ok:
			e.Base().Revision = 1
			changed = true
		case model.Fingerprint(cur) == model.Fingerprint(e):
			e.Base().Revision = cur.Rev()
		default:
			e.Base().Revision = cur.Rev() + 1
			changed = true
		}
		if other := ws.origin[id]; ok && other != name {
			ws.remove(id)
		}
		ws.entities[id] = e
		ws.origin[id] = name
		ws.order[name] = append(ws.order[name], id)
	}
	ws.install(f, l)
	return changed, l.diags, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
