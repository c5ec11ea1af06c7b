package orgmode

import (
	"strings"
	"time"
)

// Vocabulary is the set of state keywords a document recognizes.
type Vocabulary struct {
	Open   []string
	Closed []string
}

// DefaultVocabulary is used when a document declares no #+TODO line.
var DefaultVocabulary = Vocabulary{
	Open:   []string{"TODO", "NEXT", "WAITING", "SOMEDAY"},
	Closed: []string{"DONE", "CANCELLED"},
}

// Contains reports whether kw is a state keyword.
func (v Vocabulary) Contains(kw string) bool {
	return v.IsOpen(kw) || v.IsClosed(kw)
}

func (v Vocabulary) IsOpen(kw string) bool   { return contains(v.Open, kw) }
func (v Vocabulary) IsClosed(kw string) bool { return contains(v.Closed, kw) }

// String renders the vocabulary the way a #+TODO line declares it.
func (v Vocabulary) String() string {
	return strings.Join(v.Open, " ") + " | " + strings.Join(v.Closed, " ")
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ParseVocabulary reads the value of a #+TODO line. Fast-access keys such
// as "TODO(t)" are stripped.
func ParseVocabulary(value string) Vocabulary {
	var v Vocabulary
	words := strings.Fields(value)
	bar := -1
	for i, w := range words {
		if w == "|" {
			bar = i
			break
		}
	}
	clean := func(ws []string) []string {
		var out []string
		for _, w := range ws {
			if i := strings.IndexByte(w, '('); i > 0 {
				w = w[:i]
			}
			if w != "" && w != "|" {
				out = append(out, w)
			}
		}
		return out
	}
	if bar >= 0 {
		v.Open = clean(words[:bar])
		v.Closed = clean(words[bar+1:])
	} else if len(words) > 0 {
		all := clean(words)
		if len(all) > 0 {
			v.Open = all[:len(all)-1]
			v.Closed = all[len(all)-1:]
		}
	}
	return v
}

// Property is one key/value pair of a properties drawer.
type Property struct {
	Key   string
	Value string
}

// Properties is an ordered property map with case-insensitive keys.
type Properties []Property

func (p Properties) index(key string) int {
	for i, kv := range p {
		if strings.EqualFold(kv.Key, key) {
			return i
		}
	}
	return -1
}

// Get returns the value for key.
func (p Properties) Get(key string) (string, bool) {
	if i := p.index(key); i >= 0 {
		return p[i].Value, true
	}
	return "", false
}

// Set replaces the value of key in place or appends a new pair.
func (p *Properties) Set(key, value string) {
	if i := p.index(key); i >= 0 {
		(*p)[i].Value = value
		return
	}
	*p = append(*p, Property{Key: key, Value: value})
}

// Delete removes key if present.
func (p *Properties) Delete(key string) {
	if i := p.index(key); i >= 0 {
		*p = append((*p)[:i], (*p)[i+1:]...)
	}
}

// LogEntry is one logbook item. Line is the entry text without indentation;
// More holds continuation lines verbatim.
type LogEntry struct {
	At   time.Time
	Line string
	More []string
}

// Heading is one node of the document arena.
type Heading struct {
	Parent     int
	Children   []int
	Depth      int
	Keyword    string
	Priority   string
	Title      string
	Tags       []string
	Timestamps []Timestamp
	Properties Properties
	Logbook    []LogEntry
	Body       []string

	raw   []string
	canon string
}

// Timestamp returns the first timestamp of the given kind.
func (h *Heading) Timestamp(kind TimestampKind) (Timestamp, bool) {
	for _, ts := range h.Timestamps {
		if ts.Kind == kind {
			return ts, true
		}
	}
	return Timestamp{}, false
}

// SetTimestamp replaces the timestamp of ts.Kind, or removes it when ts is nil.
func (h *Heading) SetTimestamp(kind TimestampKind, ts *Timestamp) {
	out := h.Timestamps[:0:0]
	replaced := false
	for _, cur := range h.Timestamps {
		if cur.Kind == kind {
			if ts != nil && !replaced {
				t := *ts
				t.Kind = kind
				out = append(out, t)
				replaced = true
			}
			continue
		}
		out = append(out, cur)
	}
	if ts != nil && !replaced {
		t := *ts
		t.Kind = kind
		out = append(out, t)
	}
	h.Timestamps = out
}

// HasTag reports whether the heading carries tag.
func (h *Heading) HasTag(tag string) bool {
	return contains(h.Tags, tag)
}

// ID returns the identity property of the heading.
func (h *Heading) ID() string {
	v, _ := h.Properties.Get("ID")
	return strings.TrimSpace(v)
}

func (h *Heading) clone() Heading {
	c := *h
	c.Children = append([]int(nil), h.Children...)
	c.Tags = append([]string(nil), h.Tags...)
	c.Timestamps = make([]Timestamp, len(h.Timestamps))
	for i, ts := range h.Timestamps {
		c.Timestamps[i] = ts.clone()
	}
	c.Properties = append(Properties(nil), h.Properties...)
	c.Logbook = make([]LogEntry, len(h.Logbook))
	for i, e := range h.Logbook {
		e.More = append([]string(nil), e.More...)
		c.Logbook[i] = e
	}
	c.Body = append([]string(nil), h.Body...)
	c.raw = append([]string(nil), h.raw...)
	return c
}

func (ts Timestamp) clone() Timestamp {
	if ts.Repeater != nil {
		r := *ts.Repeater
		ts.Repeater = &r
	}
	if ts.RangeEnd != nil {
		e := ts.RangeEnd.clone()
		ts.RangeEnd = &e
	}
	return ts
}

// Document is a parsed org file: preamble lines plus an arena of headings.
type Document struct {
	Preamble       []string
	Headings       []Heading
	Roots          []int
	Vocabulary     Vocabulary
	NoFinalNewline bool
}

// Clone returns a deep copy so callers can edit without touching d.
func (d *Document) Clone() *Document {
	c := &Document{
		Preamble:       append([]string(nil), d.Preamble...),
		Headings:       make([]Heading, len(d.Headings)),
		Roots:          append([]int(nil), d.Roots...),
		Vocabulary:     d.Vocabulary,
		NoFinalNewline: d.NoFinalNewline,
	}
	for i := range d.Headings {
		c.Headings[i] = d.Headings[i].clone()
	}
	return c
}

// Walk visits reachable headings in document order. Returning false from fn
// skips the children of that heading.
func (d *Document) Walk(fn func(i int, h *Heading) bool) {
	var visit func(ids []int)
	visit = func(ids []int) {
		for _, i := range ids {
			if fn(i, &d.Headings[i]) {
				visit(d.Headings[i].Children)
			}
		}
	}
	visit(d.Roots)
}

// Lookup returns the arena index of the reachable heading with the given ID
// property, or -1.
func (d *Document) Lookup(id string) int {
	found := -1
	if id == "" {
		return found
	}
	d.Walk(func(i int, h *Heading) bool {
		if found >= 0 {
			return false
		}
		if h.ID() == id {
			found = i
			return false
		}
		return true
	})
	return found
}

// Append adds h as the last child of parent, or as a root when parent is -1,
// and returns its index.
func (d *Document) Append(parent int, h Heading) int {
	h.Parent = parent
	h.Children = nil
	h.raw, h.canon = nil, ""
	if parent >= 0 {
		if floor := d.Headings[parent].Depth + 1; h.Depth < floor {
			h.Depth = floor
		}
	} else if h.Depth < 1 {
		h.Depth = 1
	}
	i := len(d.Headings)
	d.Headings = append(d.Headings, h)
	if parent >= 0 {
		d.Headings[parent].Children = append(d.Headings[parent].Children, i)
	} else {
		d.Roots = append(d.Roots, i)
	}
	return i
}

// Remove detaches heading i and its subtree. Arena slots are not reused.
func (d *Document) Remove(i int) {
	drop := func(ids []int) []int {
		out := ids[:0:0]
		for _, x := range ids {
			if x != i {
				out = append(out, x)
			}
		}
		return out
	}
	if p := d.Headings[i].Parent; p >= 0 {
		d.Headings[p].Children = drop(d.Headings[p].Children)
	} else {
		d.Roots = drop(d.Roots)
	}
	d.Headings[i].Parent = -1
}

// Keyword returns the value of the first preamble line "#+KEY: value".
func (d *Document) Keyword(key string) (string, bool) {
	for _, line := range d.Preamble {
		l := classify(0, line)
		if l.Kind == LineKeyword && l.Key == strings.ToUpper(key) {
			return l.Value, true
		}
	}
	return "", false
}

// SetKeyword rewrites the first "#+KEY:" preamble line or appends one after
// the last keyword line.
func (d *Document) SetKeyword(key, value string) {
	key = strings.ToUpper(key)
	line := "#+" + key + ": " + value
	last := -1
	for i, raw := range d.Preamble {
		l := classify(0, raw)
		if l.Kind != LineKeyword {
			continue
		}
		last = i
		if l.Key == key {
			if l.Value != value {
				d.Preamble[i] = line
			}
			return
		}
	}
	d.Preamble = append(d.Preamble, "")
	copy(d.Preamble[last+2:], d.Preamble[last+1:])
	d.Preamble[last+1] = line
}

// Move detaches heading i and reattaches it as the last child of parent (or
// as a root), shifting the depth of its whole subtree to fit.
func (d *Document) Move(i, parent int) {
	d.Remove(i)
	depth := 1
	if parent >= 0 {
		depth = d.Headings[parent].Depth + 1
	}
	d.shift(i, depth-d.Headings[i].Depth)
	d.Headings[i].Parent = parent
	if parent >= 0 {
		d.Headings[parent].Children = append(d.Headings[parent].Children, i)
	} else {
		d.Roots = append(d.Roots, i)
	}
}

func (d *Document) shift(i, delta int) {
	if delta == 0 {
		return
	}
	d.Headings[i].Depth += delta
	for _, c := range d.Headings[i].Children {
		d.shift(c, delta)
	}
}
