package orgmode

import (
	"regexp"
	"strings"
)

// LineKind classifies one physical line of an org file.
type LineKind int

const (
	LineText LineKind = iota
	LineBlank
	LineHeading
	LineKeyword
	LineDrawerBegin
	LineDrawerEnd
	LineProperty
	LinePlanning
	LineTimestamp
)

// Line is one classified line. Text is the raw line without its newline.
type Line struct {
	Num   int
	Kind  LineKind
	Text  string
	Stars int
	Key   string
	Value string
}

var (
	headingRe  = regexp.MustCompile(`^(\*+)[ \t]`)
	keywordRe  = regexp.MustCompile(`^#\+([A-Za-z_][A-Za-z0-9_-]*):[ \t]*(.*?)[ \t]*$`)
	drawerRe   = regexp.MustCompile(`^[ \t]*:([A-Za-z0-9_-]+):[ \t]*$`)
	propertyRe = regexp.MustCompile(`^[ \t]*:([^:\s]+):[ \t]+(.*?)[ \t]*$`)
	dateLikeRe = regexp.MustCompile(`^[ \t]*<\d{4}-`)
)

// Tokenize splits text into classified lines. It interprets nothing beyond
// the shape of each line and always succeeds. The second result reports
// whether text ended with a newline.
func Tokenize(text string) ([]Line, bool) {
	if text == "" {
		return nil, true
	}
	finalNewline := strings.HasSuffix(text, "\n")
	raw := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	lines := make([]Line, len(raw))
	for i, r := range raw {
		lines[i] = classify(i+1, r)
	}
	return lines, finalNewline
}

func classify(num int, text string) Line {
	l := Line{Num: num, Text: text}
	s := strings.TrimSuffix(text, "\r")
	switch {
	case strings.TrimSpace(s) == "":
		l.Kind = LineBlank
	case headingRe.MatchString(s):
		l.Kind = LineHeading
		l.Stars = len(headingRe.FindStringSubmatch(s)[1])
		l.Value = strings.TrimSpace(s[l.Stars:])
	case keywordRe.MatchString(s):
		m := keywordRe.FindStringSubmatch(s)
		l.Kind, l.Key, l.Value = LineKeyword, strings.ToUpper(m[1]), m[2]
	case drawerRe.MatchString(s):
		m := drawerRe.FindStringSubmatch(s)
		l.Key = m[1]
		if strings.EqualFold(m[1], "END") {
			l.Kind = LineDrawerEnd
		} else {
			l.Kind = LineDrawerBegin
		}
	case propertyRe.MatchString(s):
		m := propertyRe.FindStringSubmatch(s)
		l.Kind, l.Key, l.Value = LineProperty, m[1], m[2]
	case isPlanningLine(s):
		l.Kind = LinePlanning
	case dateLikeRe.MatchString(s):
		l.Kind = LineTimestamp
	default:
		l.Kind = LineText
	}
	return l
}
