package orgmode

import (
	"strings"
)

// PropertyOrder lists drawer keys written first, in this order. Other keys
// follow in the order they were found.
var PropertyOrder = []string{
	"ID", "CREATED", "STYLE", "ESC", "EFFORT", "PROJECT", "PURPOSE", "OUTCOME",
	"WAITING_FOR", "DELEGATED", "FOLLOW_UP", "LIST", "REMOTE_ID",
}

// Write renders a document. Headings whose content is unchanged since parsing
// are emitted from their original lines.
func Write(d *Document) string {
	lines := append([]string(nil), d.Preamble...)
	d.Walk(func(_ int, h *Heading) bool {
		lines = append(lines, sectionLines(h)...)
		return true
	})
	if len(lines) == 0 {
		return ""
	}
	out := strings.Join(lines, "\n")
	if !d.NoFinalNewline {
		out += "\n"
	}
	return out
}

func sectionLines(h *Heading) []string {
	rendered := renderSection(h)
	if h.raw != nil && strings.Join(rendered, "\n") == h.canon {
		return h.raw
	}
	return rendered
}

// Modified reports whether h differs from what was parsed.
func (h *Heading) Modified() bool {
	return h.raw == nil || strings.Join(renderSection(h), "\n") != h.canon
}

func renderSection(h *Heading) []string {
	indent := strings.Repeat(" ", h.Depth+1)
	out := []string{renderHeadline(h)}

	var planning []string
	for _, kind := range []TimestampKind{KindScheduled, KindDeadline, KindClosed} {
		for _, ts := range h.Timestamps {
			if ts.Kind == kind {
				planning = append(planning, planningWord(kind)+" "+ts.String())
			}
		}
	}
	if len(planning) > 0 {
		out = append(out, indent+strings.Join(planning, " "))
	}
	for _, ts := range h.Timestamps {
		if ts.Kind == KindPlain || ts.Kind == KindRange {
			out = append(out, indent+ts.String())
		}
	}

	if len(h.Properties) > 0 {
		out = append(out, indent+":PROPERTIES:")
		for _, p := range orderedProperties(h.Properties) {
			if p.Value == "" {
				out = append(out, indent+":"+p.Key+":")
			} else {
				out = append(out, indent+":"+p.Key+": "+p.Value)
			}
		}
		out = append(out, indent+":END:")
	}

	if len(h.Logbook) > 0 {
		out = append(out, indent+":LOGBOOK:")
		for _, e := range h.Logbook {
			out = append(out, indent+e.Line)
			out = append(out, e.More...)
		}
		out = append(out, indent+":END:")
	}

	return append(out, h.Body...)
}

func renderHeadline(h *Heading) string {
	var parts []string
	if h.Keyword != "" {
		parts = append(parts, h.Keyword)
	}
	if h.Priority != "" {
		parts = append(parts, "[#"+h.Priority+"]")
	}
	if h.Title != "" {
		parts = append(parts, h.Title)
	}
	if len(h.Tags) > 0 {
		parts = append(parts, ":"+strings.Join(h.Tags, ":")+":")
	}
	return strings.Repeat("*", h.Depth) + " " + strings.Join(parts, " ")
}

func planningWord(k TimestampKind) string {
	switch k {
	case KindDeadline:
		return "DEADLINE:"
	case KindClosed:
		return "CLOSED:"
	default:
		return "SCHEDULED:"
	}
}

func orderedProperties(props Properties) Properties {
	out := make(Properties, 0, len(props))
	for _, key := range PropertyOrder {
		if i := props.index(key); i >= 0 {
			out = append(out, props[i])
		}
	}
	for _, p := range props {
		if !isKnownProperty(p.Key) {
			out = append(out, p)
		}
	}
	return out
}

func isKnownProperty(key string) bool {
	for _, k := range PropertyOrder {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
