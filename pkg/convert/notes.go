package convert

import (
	"strings"
)

// notesOf returns the body text of a heading with its common indentation
// and surrounding blank lines removed.
func notesOf(body []string) string {
	lo, hi := blankEdges(body)
	if lo >= hi {
		return ""
	}
	lines := make([]string, 0, hi-lo)
	for _, l := range body[lo:hi] {
		lines = append(lines, strings.TrimRight(l, "\r"))
	}
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lead := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = lead, false
			continue
		}
		for !strings.HasPrefix(lead, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(l, prefix)
	}
	return strings.Join(lines, "\n")
}

// writeNotes returns body unchanged when it already holds notes. Otherwise
// the notes replace the text between the leading and trailing blank lines.
func writeNotes(body []string, notes string, depth int) []string {
	if notesOf(body) == notes {
		return body
	}
	lo, hi := blankEdges(body)
	if lo > hi {
		lo = hi
	}
	out := append([]string(nil), body[:lo]...)
	if notes != "" {
		indent := strings.Repeat(" ", depth+1)
		for _, l := range strings.Split(notes, "\n") {
			if l == "" {
				out = append(out, "")
				continue
			}
			out = append(out, indent+l)
		}
	}
	out = append(out, body[hi:]...)
	if len(out) == 0 {
		return nil
	}
	return out
}

// blankEdges returns the bounds of body without leading and trailing blank
// lines. For an all-blank body lo == len(body) and hi == 0.
func blankEdges(body []string) (lo, hi int) {
	lo, hi = 0, len(body)
	for lo < len(body) && strings.TrimSpace(body[lo]) == "" {
		lo++
	}
	for hi > 0 && strings.TrimSpace(body[hi-1]) == "" {
		hi--
	}
	return lo, hi
}
