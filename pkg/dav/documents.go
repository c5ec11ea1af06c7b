package dav

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"

	"github.com/emersion/go-webdav"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/convert"
	"github.com/harrisonrobin/lamp/pkg/index"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

// DefaultFolder holds the documents when a source names no folder.
const DefaultFolder = "lamp"

const (
	keywordKind = "LAMP_KIND"
	keywordList = "LIST"
)

func init() {
	adapter.Register("webdav", func(ctx context.Context, cfg adapter.Config, env adapter.Env) (adapter.Adapter, error) {
		httpClient, err := HTTPClient(cfg, env.Secrets)
		if err != nil {
			return nil, err
		}
		client, err := webdav.NewClient(httpClient, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		folder := cfg.Calendar
		if folder == "" {
			folder = DefaultFolder
		}
		var kinds []model.Kind
		for _, k := range cfg.Kinds {
			kinds = append(kinds, model.Kind(k))
		}
		return NewDocuments(cfg.Name, client, folder, DocumentOptions{Kinds: kinds, Logger: env.Logger}), nil
	})
}

type DocumentOptions struct {
	// Kinds limits the entity kinds kept in the folder. Day plans are never
	// kept.
	Kinds      []model.Kind
	Vocabulary orgmode.Vocabulary
	Logger     *log.Logger
}

// Documents keeps one org document per entity in a WebDAV folder. The cursor
// is the encoded tag listing of the folder; a pull reads only the documents
// whose tag changed.
type Documents struct {
	name   string
	client *webdav.Client
	folder string
	kinds  map[model.Kind]bool
	vocab  orgmode.Vocabulary
	logger *log.Logger
}

func NewDocuments(name string, client *webdav.Client, folder string, opts DocumentOptions) *Documents {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []model.Kind{model.KindTask, model.KindProject, model.KindHabit, model.KindListItem, model.KindNote}
	}
	d := &Documents{
		name:   name,
		client: client,
		folder: folder,
		kinds:  make(map[model.Kind]bool),
		vocab:  opts.Vocabulary,
		logger: opts.Logger,
	}
	for _, k := range kinds {
		if k != model.KindDayPlan {
			d.kinds[k] = true
		}
	}
	if d.logger == nil {
		d.logger = log.New(os.Stderr, "[webdav] ", log.LstdFlags)
	}
	return d
}

func (d *Documents) Source() string { return d.name }

func (d *Documents) Handles(e model.Entity) bool { return d.kinds[e.Kind()] }

// fileKind picks the collection role an entity is written with.
func fileKind(e model.Entity) (convert.FileKind, string) {
	switch v := e.(type) {
	case *model.Habit:
		return convert.Habits, ""
	case *model.Project:
		return convert.Projects, ""
	case *model.ListItem:
		return convert.List, v.List
	case *model.Note:
		return convert.Notes, ""
	}
	return convert.Inbox, ""
}

func kindFile(kind model.Kind) (convert.FileKind, bool) {
	switch kind {
	case model.KindTask:
		return convert.Inbox, true
	case model.KindHabit:
		return convert.Habits, true
	case model.KindProject:
		return convert.Projects, true
	case model.KindListItem:
		return convert.List, true
	case model.KindNote:
		return convert.Notes, true
	}
	return "", false
}

func (d *Documents) Pull(ctx context.Context, since adapter.Revision) (adapter.Stream, error) {
	old, err := index.Decode(string(since))
	if err != nil {
		return nil, err
	}
	if err := ensureDir(ctx, d.client, d.folder); err != nil {
		return nil, err
	}
	files, err := d.client.ReadDir(ctx, d.folder, false)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.folder, err)
	}
	next := index.New()
	for _, fi := range files {
		if fi.IsDir || !strings.HasSuffix(fi.Path, ".org") {
			continue
		}
		next.Set(cleanPath(fi.Path), tagOf(fi))
	}
	changed, removed := old.Diff(next)
	return &documentStream{
		ctx:     ctx,
		docs:    d,
		changed: changed,
		removed: removed,
		next:    next,
	}, nil
}

// documentStream fetches changed documents one at a time, then reports the
// removed ones as tombstones.
type documentStream struct {
	ctx     context.Context
	docs    *Documents
	changed []string
	removed []string
	next    *index.Index
	item    adapter.RemoteItem
	err     error
}

func (s *documentStream) Next() bool {
	if s.err != nil {
		return false
	}
	for len(s.changed) > 0 {
		p := s.changed[0]
		s.changed = s.changed[1:]
		item, ok, err := s.docs.read(s.ctx, p)
		if err != nil {
			s.err = err
			return false
		}
		if ok {
			item.Revision = adapter.Revision(s.next.Get(p))
			s.item = item
			return true
		}
	}
	if len(s.removed) > 0 {
		s.item = adapter.RemoteItem{RemoteID: s.removed[0], Deleted: true}
		s.removed = s.removed[1:]
		return true
	}
	return false
}

func (s *documentStream) Item() adapter.RemoteItem { return s.item }
func (s *documentStream) Err() error               { return s.err }
func (s *documentStream) Close() error             { return nil }

func (s *documentStream) Revision() adapter.Revision {
	return adapter.Revision(s.next.Encode())
}

func (d *Documents) fetch(ctx context.Context, p string) (*orgmode.Document, error) {
	r, err := d.client.Open(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	doc, _ := orgmode.Parse(string(data), orgmode.Options{Vocabulary: d.vocab})
	return doc, nil
}

// read converts the document at p. Documents that hold no entity, or one of
// a kind the source does not keep, are skipped.
func (d *Documents) read(ctx context.Context, p string) (adapter.RemoteItem, bool, error) {
	doc, err := d.fetch(ctx, p)
	if err != nil {
		return adapter.RemoteItem{}, false, err
	}
	kw, _ := doc.Keyword(keywordKind)
	kind := model.Kind(strings.TrimSpace(kw))
	fk, ok := kindFile(kind)
	if !ok || !d.kinds[kind] {
		d.logger.Printf("WARNING: skipping %s: no entity kind this source keeps", p)
		return adapter.RemoteItem{}, false, nil
	}
	list, _ := doc.Keyword(keywordList)
	entities, anomalies := convert.ToDomain(fk, doc, convert.Options{Vocabulary: d.vocab, List: list})
	for _, a := range anomalies {
		d.logger.Printf("WARNING: %s: %s", p, a)
	}
	if len(entities) == 0 {
		d.logger.Printf("WARNING: skipping %s: no entity found", p)
		return adapter.RemoteItem{}, false, nil
	}
	if len(entities) > 1 {
		d.logger.Printf("WARNING: %s holds %d entities, using the first", p, len(entities))
	}
	e := entities[0]
	fields := e.Fields()
	all := model.Fields{}
	for _, name := range model.FieldNames(e.Kind()) {
		all[name] = fields.Get(name)
	}
	return adapter.RemoteItem{
		RemoteID: p,
		EntityID: e.EntityID(),
		Kind:     e.Kind(),
		Fields:   all,
	}, true, nil
}

func (d *Documents) Push(ctx context.Context, item adapter.PushItem) (adapter.RemoteRef, error) {
	e := item.Entity
	if !d.Handles(e) {
		return adapter.RemoteRef{}, fmt.Errorf("source %s does not keep %s entities", d.name, e.Kind())
	}
	fk, list := fileKind(e)
	p := item.RemoteID
	var prev *orgmode.Document
	if p != "" {
		doc, err := d.fetch(ctx, p)
		if err != nil {
			return adapter.RemoteRef{}, err
		}
		prev = doc
	} else {
		if err := ensureDir(ctx, d.client, d.folder); err != nil {
			return adapter.RemoteRef{}, err
		}
		p = path.Join(d.folder, string(e.EntityID())+".org")
	}

	fields := e.Fields()
	title := fields.Get("title")
	if title == "" {
		title = fields.Get("name")
	}
	doc := convert.FromDomain(fk, []model.Entity{e}, prev, convert.Options{Vocabulary: d.vocab, List: list, Title: title})
	doc.SetKeyword(keywordKind, string(e.Kind()))
	if list != "" {
		doc.SetKeyword(keywordList, list)
	}

	w, err := d.client.Create(ctx, p)
	if err != nil {
		return adapter.RemoteRef{}, fmt.Errorf("create %s: %w", p, err)
	}
	if _, err := io.WriteString(w, orgmode.Write(doc)); err != nil {
		w.Close()
		return adapter.RemoteRef{}, fmt.Errorf("write %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return adapter.RemoteRef{}, fmt.Errorf("write %s: %w", p, err)
	}
	fi, err := d.client.Stat(ctx, p)
	if err != nil {
		return adapter.RemoteRef{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return adapter.RemoteRef{RemoteID: cleanPath(fi.Path), Revision: adapter.Revision(tagOf(*fi))}, nil
}

func (d *Documents) Delete(ctx context.Context, remoteID string) error {
	ok, err := exists(ctx, d.client, d.folder, remoteID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", remoteID, adapter.ErrNotFound)
	}
	return d.client.RemoveAll(ctx, remoteID)
}
