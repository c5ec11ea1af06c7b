package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LinkType names what a note link points at.
type LinkType string

const (
	LinkNote     LinkType = "note"
	LinkTask     LinkType = "task"
	LinkProject  LinkType = "project"
	LinkContact  LinkType = "contact"
	LinkAccount  LinkType = "account"
	LinkMedia    LinkType = "media"
	LinkShopping LinkType = "shopping"
)

func (t LinkType) valid() bool {
	switch t {
	case LinkNote, LinkTask, LinkProject, LinkContact, LinkAccount, LinkMedia, LinkShopping:
		return true
	}
	return false
}

// Link is a typed reference from a note to another entity, written as
// "type:id".
type Link struct {
	Type LinkType
	ID   ID
}

func (l Link) String() string { return string(l.Type) + ":" + string(l.ID) }

// ParseLink parses the "type:id" form. Unknown types and empty ids are
// rejected.
func ParseLink(s string) (Link, bool) {
	typ, id, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || id == "" || strings.ContainsAny(id, " \t") || !LinkType(typ).valid() {
		return Link{}, false
	}
	return Link{Type: LinkType(typ), ID: ID(id)}, true
}

// ParseLinks parses a whitespace separated link list. Entries that do not
// parse are returned in bad.
func ParseLinks(v string) (links []Link, bad []string) {
	for _, s := range strings.Fields(v) {
		if l, ok := ParseLink(s); ok {
			links = append(links, l)
		} else {
			bad = append(bad, s)
		}
	}
	return links, bad
}

// FormatLinks renders links in canonical order, space separated.
func FormatLinks(links []Link) string {
	out := make([]string, 0, len(links))
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		s := l.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// Note is a free-form page of text with tags and links to other entities.
type Note struct {
	Meta
	Title    string
	Body     string
	Tags     []string
	Links    []Link
	Source   string
	Created  time.Time
	Modified time.Time
}

func NewNote(title string, created time.Time) *Note {
	return &Note{Meta: Meta{ID: NewID()}, Title: title, Created: created, Modified: created}
}

func (n *Note) Kind() Kind { return KindNote }

func (n *Note) Fields() Fields {
	f := Fields{}
	f.set("title", n.Title)
	f.set("body", n.Body)
	f.set("tags", joinSorted(n.Tags))
	f.set("links", FormatLinks(n.Links))
	f.set("source", n.Source)
	return f
}

func (n *Note) SetField(name, value string) error {
	switch name {
	case "title":
		n.Title = value
	case "body":
		n.Body = value
	case "tags":
		n.Tags = splitList(value)
	case "links":
		links, bad := ParseLinks(value)
		if len(bad) > 0 {
			return fmt.Errorf("invalid link %q", bad[0])
		}
		n.Links = links
	case "source":
		n.Source = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	n.Touch()
	return nil
}

func (n *Note) Clone() Entity {
	c := *n
	c.Meta = n.Meta.clone()
	c.Tags = append([]string(nil), n.Tags...)
	c.Links = append([]Link(nil), n.Links...)
	return &c
}
