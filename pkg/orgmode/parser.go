package orgmode

import (
	"fmt"
	"regexp"
	"strings"
)

// DiagnosticKind classifies a construct the parser could not interpret.
type DiagnosticKind int

const (
	BadTimestamp DiagnosticKind = iota
	BadPlanning
	BadProperty
	DuplicateProperty
	UnterminatedDrawer
	BadLogEntry
)

func (k DiagnosticKind) String() string {
	switch k {
	case BadTimestamp:
		return "bad-timestamp"
	case BadPlanning:
		return "bad-planning"
	case BadProperty:
		return "bad-property"
	case DuplicateProperty:
		return "duplicate-property"
	case UnterminatedDrawer:
		return "unterminated-drawer"
	case BadLogEntry:
		return "bad-log-entry"
	default:
		return "unknown"
	}
}

// Diagnostic records one malformed construct. The offending text is kept in
// the document as body text.
type Diagnostic struct {
	Line    int
	Kind    DiagnosticKind
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Kind, d.Message)
}

// Diagnostics is the list of anomalies found during one parse.
type Diagnostics []Diagnostic

// Count returns the number of diagnostics of kind k.
func (ds Diagnostics) Count(k DiagnosticKind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// Options configures Parse.
type Options struct {
	// Vocabulary applies when the document has no #+TODO line.
	Vocabulary Vocabulary
}

var (
	tagsRe     = regexp.MustCompile(`(?:^|[ \t]+)(:(?:[\p{L}\p{N}_@#%]+:)+)$`)
	priorityRe = regexp.MustCompile(`^\[#([A-Z0-9])\](?:[ \t]+|$)`)
	logStampRe = regexp.MustCompile(`\[\d{4}-\d{2}-\d{2}[^\]]*\]`)
)

// Parse builds a document from text. It never fails: malformed constructs
// are kept as body text of the nearest heading and reported as diagnostics.
func Parse(text string, opts Options) (*Document, Diagnostics) {
	lines, finalNewline := Tokenize(text)
	doc := &Document{NoFinalNewline: len(lines) > 0 && !finalNewline}
	var diags Diagnostics

	i := 0
	var declared []Vocabulary
	for ; i < len(lines) && lines[i].Kind != LineHeading; i++ {
		l := lines[i]
		doc.Preamble = append(doc.Preamble, l.Text)
		if l.Kind == LineKeyword && (l.Key == "TODO" || l.Key == "SEQ_TODO" || l.Key == "TYP_TODO") {
			declared = append(declared, ParseVocabulary(l.Value))
		}
	}
	doc.Vocabulary = opts.Vocabulary
	if len(declared) > 0 {
		doc.Vocabulary = Vocabulary{}
		for _, v := range declared {
			doc.Vocabulary.Open = append(doc.Vocabulary.Open, v.Open...)
			doc.Vocabulary.Closed = append(doc.Vocabulary.Closed, v.Closed...)
		}
	} else if len(doc.Vocabulary.Open)+len(doc.Vocabulary.Closed) == 0 {
		doc.Vocabulary = DefaultVocabulary
	}

	var stack []int
	for i < len(lines) {
		end := i + 1
		for end < len(lines) && lines[end].Kind != LineHeading {
			end++
		}
		h := parseSection(lines[i:end], doc.Vocabulary, &diags)
		for len(stack) > 0 && doc.Headings[stack[len(stack)-1]].Depth >= h.Depth {
			stack = stack[:len(stack)-1]
		}
		h.Parent = -1
		if len(stack) > 0 {
			h.Parent = stack[len(stack)-1]
		}
		idx := len(doc.Headings)
		doc.Headings = append(doc.Headings, h)
		if h.Parent >= 0 {
			doc.Headings[h.Parent].Children = append(doc.Headings[h.Parent].Children, idx)
		} else {
			doc.Roots = append(doc.Roots, idx)
		}
		stack = append(stack, idx)
		i = end
	}
	return doc, diags
}

func parseSection(lines []Line, vocab Vocabulary, diags *Diagnostics) Heading {
	head := lines[0]
	h := Heading{Depth: head.Stars}
	h.Keyword, h.Priority, h.Title, h.Tags = parseHeadline(head.Value, vocab)

	demote := func(l Line, kind DiagnosticKind, msg string) {
		*diags = append(*diags, Diagnostic{Line: l.Num, Kind: kind, Message: msg})
		h.Body = append(h.Body, l.Text)
	}

	meta := true
	for i := 1; i < len(lines); i++ {
		l := lines[i]
		if !meta {
			h.Body = append(h.Body, l.Text)
			continue
		}
		switch {
		case l.Kind == LinePlanning:
			ts, err := parsePlanning(l.Text)
			if err != nil {
				demote(l, BadPlanning, err.Error())
				continue
			}
			h.Timestamps = append(h.Timestamps, ts...)
		case l.Kind == LineTimestamp:
			ts, err := parseTimestampLine(l.Text)
			if err != nil {
				demote(l, BadTimestamp, err.Error())
				continue
			}
			h.Timestamps = append(h.Timestamps, ts)
		case l.Kind == LineDrawerBegin && (strings.EqualFold(l.Key, "PROPERTIES") || strings.EqualFold(l.Key, "LOGBOOK")):
			end := i + 1
			for end < len(lines) && lines[end].Kind != LineDrawerEnd {
				end++
			}
			if end == len(lines) {
				*diags = append(*diags, Diagnostic{Line: l.Num, Kind: UnterminatedDrawer, Message: fmt.Sprintf(":%s: drawer has no :END:", l.Key)})
				for _, rest := range lines[i:] {
					h.Body = append(h.Body, rest.Text)
				}
				return finishSection(h, lines)
			}
			if strings.EqualFold(l.Key, "PROPERTIES") {
				parseProperties(&h, lines[i+1:end], demote, diags)
			} else {
				parseLogbook(&h, lines[i+1:end], demote)
			}
			i = end
		default:
			meta = false
			h.Body = append(h.Body, l.Text)
		}
	}
	return finishSection(h, lines)
}

func finishSection(h Heading, lines []Line) Heading {
	h.raw = make([]string, len(lines))
	for i, l := range lines {
		h.raw[i] = l.Text
	}
	h.canon = strings.Join(renderSection(&h), "\n")
	return h
}

func parseProperties(h *Heading, lines []Line, demote func(Line, DiagnosticKind, string), diags *Diagnostics) {
	for _, l := range lines {
		var key, value string
		switch l.Kind {
		case LineProperty:
			key, value = l.Key, l.Value
		case LineDrawerBegin:
			key = l.Key
		default:
			demote(l, BadProperty, fmt.Sprintf("not a property line: %q", strings.TrimSpace(l.Text)))
			continue
		}
		if _, dup := h.Properties.Get(key); dup {
			*diags = append(*diags, Diagnostic{Line: l.Num, Kind: DuplicateProperty, Message: fmt.Sprintf("property %s set more than once, last value wins", key)})
		}
		h.Properties.Set(key, value)
	}
}

func parseLogbook(h *Heading, lines []Line, demote func(Line, DiagnosticKind, string)) {
	for _, l := range lines {
		text := strings.TrimSpace(l.Text)
		if loc := logStampRe.FindStringIndex(text); loc != nil {
			if ts, _, err := ParseTimestamp(text[loc[0]:]); err == nil {
				h.Logbook = append(h.Logbook, LogEntry{At: ts.Time(), Line: text})
				continue
			}
		}
		if n := len(h.Logbook); n > 0 {
			h.Logbook[n-1].More = append(h.Logbook[n-1].More, l.Text)
			continue
		}
		demote(l, BadLogEntry, fmt.Sprintf("logbook line without timestamp: %q", text))
	}
}

// parseHeadline splits the text after the stars into its parts.
func parseHeadline(s string, vocab Vocabulary) (keyword, priority, title string, tags []string) {
	s = strings.TrimSpace(s)
	if m := tagsRe.FindStringSubmatchIndex(s); m != nil {
		raw := s[m[2]:m[3]]
		tags = strings.Split(strings.Trim(raw, ":"), ":")
		s = strings.TrimSpace(s[:m[0]])
	}
	if first, rest, _ := strings.Cut(s, " "); vocab.Contains(first) {
		keyword = first
		s = strings.TrimSpace(rest)
	}
	if m := priorityRe.FindStringSubmatch(s); m != nil {
		priority = m[1]
		s = strings.TrimSpace(s[len(m[0]):])
	}
	return keyword, priority, s, tags
}
