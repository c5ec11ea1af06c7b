// Package convert maps org documents to domain entities and back.
//
// Writing is merge-on-write: FromDomain starts from the previously parsed
// document and overwrites only the fields the domain model owns, so unknown
// properties, lines and sub-headings survive a save untouched.
package convert

import (
	"fmt"
	"time"

	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

// FileKind names the role of an org file in the collection.
type FileKind string

const (
	Inbox    FileKind = "inbox"
	Next     FileKind = "next"
	Waiting  FileKind = "waiting"
	Someday  FileKind = "someday"
	Archive  FileKind = "archive"
	Projects FileKind = "projects"
	Habits   FileKind = "habits"
	List     FileKind = "list"
	DayPlan  FileKind = "dayplan"
	Notes    FileKind = "notes"
)

// IsTaskFile reports whether kind holds plain task headings.
func (k FileKind) IsTaskFile() bool {
	switch k {
	case Inbox, Next, Waiting, Someday, Archive:
		return true
	}
	return false
}

// Options configures a conversion.
type Options struct {
	// Today is the reference date for day plan staleness.
	Today time.Time
	// Vocabulary is declared in new documents.
	Vocabulary orgmode.Vocabulary
	// List names the list a list file holds.
	List string
	// Title is used for the #+TITLE line of new documents.
	Title string
}

// Anomaly records a property whose value did not fit its field. The field
// falls back to its default and the raw text stays in the document.
type Anomaly struct {
	Entity  model.ID
	Field   string
	Value   string
	Message string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %s %q: %s", a.Entity, a.Field, a.Value, a.Message)
}

// ToDomain converts doc into entities. Headings that lack an identity get a
// freshly minted ID property in place, so the same document can be handed
// back to FromDomain as the previous tree.
func ToDomain(kind FileKind, doc *orgmode.Document, opts Options) ([]model.Entity, []Anomaly) {
	if kind == DayPlan {
		plan, anomalies := readDayPlan(doc, opts)
		if plan == nil {
			return nil, anomalies
		}
		return []model.Entity{plan}, anomalies
	}

	var out []model.Entity
	var anomalies []Anomaly
	seen := make(map[model.ID]bool)
	doc.Walk(func(i int, h *orgmode.Heading) bool {
		role, project := classify(kind, doc, i)
		if role == "" {
			return true
		}
		id := model.ID(h.ID())
		if seen[id] {
			anomalies = append(anomalies, Anomaly{Entity: id, Field: "ID", Value: string(id), Message: "duplicate identity, minted a new one"})
			id = ""
		}
		if id == "" {
			id = model.NewID()
			h.Properties.Set("ID", string(id))
		}
		seen[id] = true
		var e model.Entity
		var found []Anomaly
		switch role {
		case model.KindTask, model.KindHabit:
			var t *model.Task
			t, found = readTask(id, h, doc.Vocabulary)
			if project >= 0 {
				t.Project = projectName(doc.Headings[project].Title)
			}
			if role == model.KindHabit {
				e = &model.Habit{Task: *t}
			} else {
				e = t
			}
		case model.KindProject:
			e, found = readProject(id, h)
		case model.KindListItem:
			e, found = readListItem(id, h, doc.Vocabulary, opts.List)
		case model.KindNote:
			e, found = readNote(id, h)
		}
		out = append(out, e)
		anomalies = append(anomalies, found...)
		return true
	})
	return out, anomalies
}

// FromDomain renders entities into a document. prev is the document the
// entities were read from, or nil for a new file; it is not modified.
func FromDomain(kind FileKind, entities []model.Entity, prev *orgmode.Document, opts Options) *orgmode.Document {
	if kind == DayPlan {
		var plan *model.DayPlan
		for _, e := range entities {
			if p, ok := e.(*model.DayPlan); ok {
				plan = p
			}
		}
		return writeDayPlan(plan, prev)
	}

	var doc *orgmode.Document
	if prev != nil {
		doc = prev.Clone()
	} else {
		doc = newDocument(kind, opts)
	}

	byID := make(map[model.ID]model.Entity, len(entities))
	for _, e := range entities {
		byID[e.EntityID()] = e
	}
	written := make(map[model.ID]int)
	var stale, moves []int

	doc.Walk(func(i int, h *orgmode.Heading) bool {
		role, project := classify(kind, doc, i)
		if role == "" {
			return true
		}
		e, ok := byID[model.ID(h.ID())]
		if !ok || written[e.EntityID()] != 0 {
			stale = append(stale, i)
			return false
		}
		written[e.EntityID()] = i + 1
		switch v := e.(type) {
		case *model.Task:
			writeTask(h, v, doc.Vocabulary, kind)
			if kind == Projects && project >= 0 && projectName(doc.Headings[project].Title) != v.Project {
				moves = append(moves, i)
			}
		case *model.Habit:
			writeTask(h, &v.Task, doc.Vocabulary, kind)
		case *model.Project:
			writeProject(h, v)
		case *model.ListItem:
			writeListItem(h, v, doc.Vocabulary)
		case *model.Note:
			writeNote(h, v)
		}
		return true
	})

	for _, i := range stale {
		doc.Remove(i)
	}

	projectIdx := func(name string) int {
		found := -1
		for _, r := range doc.Roots {
			if role, _ := classify(kind, doc, r); role == model.KindProject && projectName(doc.Headings[r].Title) == name {
				found = r
				break
			}
		}
		return found
	}
	for _, i := range moves {
		t := byID[model.ID(doc.Headings[i].ID())].(*model.Task)
		doc.Move(i, projectIdx(t.Project))
	}

	for _, e := range entities {
		if written[e.EntityID()] != 0 {
			continue
		}
		h := orgmode.Heading{Depth: 1}
		for _, p := range e.Base().Extra {
			h.Properties.Set(p.Key, p.Value)
		}
		parent := -1
		switch v := e.(type) {
		case *model.Task:
			if kind == Projects && v.Project != "" {
				parent = projectIdx(v.Project)
			}
			writeTask(&h, v, doc.Vocabulary, kind)
		case *model.Habit:
			if !v.HasTag("habit") {
				h.Properties.Set("STYLE", "habit")
			}
			writeTask(&h, &v.Task, doc.Vocabulary, kind)
		case *model.Project:
			writeProject(&h, v)
		case *model.ListItem:
			writeListItem(&h, v, doc.Vocabulary)
		case *model.Note:
			writeNote(&h, v)
		}
		written[e.EntityID()] = doc.Append(parent, h) + 1
	}
	return doc
}

func newDocument(kind FileKind, opts Options) *orgmode.Document {
	vocab := opts.Vocabulary
	if len(vocab.Open)+len(vocab.Closed) == 0 {
		vocab = orgmode.DefaultVocabulary
	}
	title := opts.Title
	if title == "" {
		title = defaultTitle(kind, opts.List)
	}
	doc := &orgmode.Document{Vocabulary: vocab}
	doc.Preamble = []string{"#+TITLE: " + title}
	if kind != List && kind != Notes {
		doc.Preamble = append(doc.Preamble, "#+TODO: "+vocab.String())
	}
	doc.Preamble = append(doc.Preamble, "")
	return doc
}

func defaultTitle(kind FileKind, list string) string {
	switch kind {
	case Next:
		return "Next Actions"
	case Waiting:
		return "Waiting For"
	case Someday:
		return "Someday/Maybe"
	case List:
		if list != "" {
			return list
		}
		return "List"
	case DayPlan:
		return "Day Plan"
	}
	b := []byte(kind)
	if len(b) > 0 && b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// classify decides which entity kind heading i holds in a file of the given
// kind. For project tasks it also returns the index of the project heading.
func classify(kind FileKind, doc *orgmode.Document, i int) (model.Kind, int) {
	h := &doc.Headings[i]
	switch {
	case kind == List:
		if h.Depth == 1 && h.Parent < 0 {
			return model.KindListItem, -1
		}
	case kind == Notes:
		if h.Parent < 0 {
			return model.KindNote, -1
		}
	case kind == Projects:
		if h.Parent < 0 && h.Keyword == "" {
			return model.KindProject, -1
		}
		if h.Keyword != "" {
			root := i
			for doc.Headings[root].Parent >= 0 {
				root = doc.Headings[root].Parent
			}
			if root != i && doc.Headings[root].Keyword == "" {
				return taskOrHabit(kind, h), root
			}
			return taskOrHabit(kind, h), -1
		}
	case kind == Habits:
		if h.Keyword != "" {
			return model.KindHabit, -1
		}
	case kind.IsTaskFile():
		if h.Keyword != "" {
			return taskOrHabit(kind, h), -1
		}
	}
	return "", -1
}

func taskOrHabit(kind FileKind, h *orgmode.Heading) model.Kind {
	style, _ := h.Properties.Get("STYLE")
	if kind == Habits || h.HasTag("habit") || style == "habit" {
		return model.KindHabit
	}
	return model.KindTask
}
