package orgmode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampKind says where a timestamp was found on a heading.
type TimestampKind int

const (
	KindPlain TimestampKind = iota
	KindScheduled
	KindDeadline
	KindClosed
	KindRange
)

func (k TimestampKind) String() string {
	switch k {
	case KindScheduled:
		return "scheduled"
	case KindDeadline:
		return "deadline"
	case KindClosed:
		return "closed"
	case KindRange:
		return "range"
	default:
		return "plain"
	}
}

// RepeatPolicy is the flavour of a repeater cookie.
type RepeatPolicy int

const (
	// RepeatStandard is "+Nu": shift from the original date.
	RepeatStandard RepeatPolicy = iota
	// RepeatRelative is ".+Nu": shift from the completion date.
	RepeatRelative
	// RepeatStrict is "++Nu": shift from the original date until in the future.
	RepeatStrict
)

func (p RepeatPolicy) prefix() string {
	switch p {
	case RepeatRelative:
		return ".+"
	case RepeatStrict:
		return "++"
	default:
		return "+"
	}
}

// Repeater is a parsed repeater cookie such as "+1w" or ".+3d".
type Repeater struct {
	Policy RepeatPolicy
	Count  int
	Unit   byte // one of d, w, m, y
}

func (r Repeater) String() string {
	return fmt.Sprintf("%s%d%c", r.Policy.prefix(), r.Count, r.Unit)
}

var repeaterRe = regexp.MustCompile(`^(\.\+|\+\+|\+)(\d+)([dwmy])$`)

// ParseRepeater parses a bare repeater cookie.
func ParseRepeater(s string) (Repeater, error) {
	m := repeaterRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Repeater{}, fmt.Errorf("invalid repeater %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return Repeater{}, fmt.Errorf("invalid repeater count %q", s)
	}
	r := Repeater{Count: n, Unit: m[3][0]}
	switch m[1] {
	case ".+":
		r.Policy = RepeatRelative
	case "++":
		r.Policy = RepeatStrict
	default:
		r.Policy = RepeatStandard
	}
	return r, nil
}

// Timestamp is one org timestamp. Date holds the calendar day at midnight UTC;
// clock values are kept separately so floating times survive untouched.
type Timestamp struct {
	Kind      TimestampKind
	Active    bool
	Date      time.Time
	HasTime   bool
	Hour      int
	Minute    int
	HasEnd    bool
	EndHour   int
	EndMinute int
	Repeater  *Repeater
	RangeEnd  *Timestamp
}

// NewDate returns an active date-only timestamp for the calendar day of t.
func NewDate(kind TimestampKind, t time.Time) Timestamp {
	return Timestamp{Kind: kind, Active: true, Date: civil(t)}
}

// NewDateTime returns an active timestamp carrying the clock of t.
func NewDateTime(kind TimestampKind, t time.Time) Timestamp {
	ts := NewDate(kind, t)
	ts.HasTime = true
	ts.Hour, ts.Minute = t.Hour(), t.Minute()
	return ts
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Time returns the start of the timestamp as a UTC time value.
func (ts Timestamp) Time() time.Time {
	if !ts.HasTime {
		return ts.Date
	}
	return ts.Date.Add(time.Duration(ts.Hour)*time.Hour + time.Duration(ts.Minute)*time.Minute)
}

// String renders the timestamp without any planning keyword.
func (ts Timestamp) String() string {
	var b strings.Builder
	ts.render(&b)
	if ts.RangeEnd != nil {
		b.WriteString("--")
		ts.RangeEnd.render(&b)
	}
	return b.String()
}

func (ts Timestamp) render(b *strings.Builder) {
	open, closeCh := byte('<'), byte('>')
	if !ts.Active {
		open, closeCh = '[', ']'
	}
	b.WriteByte(open)
	b.WriteString(ts.Date.Format("2006-01-02 Mon"))
	if ts.HasTime {
		fmt.Fprintf(b, " %02d:%02d", ts.Hour, ts.Minute)
		if ts.HasEnd {
			fmt.Fprintf(b, "-%02d:%02d", ts.EndHour, ts.EndMinute)
		}
	}
	if ts.Repeater != nil {
		b.WriteByte(' ')
		b.WriteString(ts.Repeater.String())
	}
	b.WriteByte(closeCh)
}

// Equal reports whether two timestamps render identically and share a kind.
func (ts Timestamp) Equal(o Timestamp) bool {
	return ts.Kind == o.Kind && ts.String() == o.String()
}

var timestampRe = regexp.MustCompile(`^([<\[])(\d{4})-(\d{2})-(\d{2})(?:\s+([A-Za-z]{2,9}\.?))?(?:\s+(\d{1,2}):(\d{2})(?:-(\d{1,2}):(\d{2}))?)?(?:\s+(\.\+|\+\+|\+)(\d+)([dwmy]))?\s*([>\]])`)

// ParseTimestamp parses a single timestamp, or a range "<a>--<b>", at the
// start of s. It returns the timestamp and the number of bytes consumed.
func ParseTimestamp(s string) (Timestamp, int, error) {
	ts, n, err := parseOne(s)
	if err != nil {
		return Timestamp{}, 0, err
	}
	if strings.HasPrefix(s[n:], "--") {
		end, m, err := parseOne(s[n+2:])
		if err != nil {
			return Timestamp{}, 0, fmt.Errorf("range end: %w", err)
		}
		if end.Active != ts.Active {
			return Timestamp{}, 0, fmt.Errorf("range mixes active and inactive timestamps")
		}
		ts.Kind = KindRange
		ts.RangeEnd = &end
		n += 2 + m
	}
	return ts, n, nil
}

func parseOne(s string) (Timestamp, int, error) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return Timestamp{}, 0, fmt.Errorf("malformed timestamp %q", s)
	}
	if (m[1] == "<") != (m[13] == ">") {
		return Timestamp{}, 0, fmt.Errorf("mismatched timestamp brackets in %q", m[0])
	}
	year, _ := strconv.Atoi(m[2])
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || int(date.Month()) != month || date.Day() != day {
		return Timestamp{}, 0, fmt.Errorf("invalid date in %q", m[0])
	}
	ts := Timestamp{Active: m[1] == "<", Date: date}
	if m[6] != "" {
		h, _ := strconv.Atoi(m[6])
		mm, _ := strconv.Atoi(m[7])
		if h > 23 || mm > 59 {
			return Timestamp{}, 0, fmt.Errorf("invalid time in %q", m[0])
		}
		ts.HasTime, ts.Hour, ts.Minute = true, h, mm
		if m[8] != "" {
			eh, _ := strconv.Atoi(m[8])
			em, _ := strconv.Atoi(m[9])
			if eh > 23 || em > 59 {
				return Timestamp{}, 0, fmt.Errorf("invalid end time in %q", m[0])
			}
			ts.HasEnd, ts.EndHour, ts.EndMinute = true, eh, em
		}
	}
	if m[10] != "" {
		r, err := ParseRepeater(m[10] + m[11] + m[12])
		if err != nil {
			return Timestamp{}, 0, err
		}
		ts.Repeater = &r
	}
	return ts, len(m[0]), nil
}

// parseTimestampLine parses a line holding nothing but one active timestamp
// or range.
func parseTimestampLine(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	ts, n, err := ParseTimestamp(s)
	if err != nil {
		return Timestamp{}, err
	}
	if strings.TrimSpace(s[n:]) != "" {
		return Timestamp{}, fmt.Errorf("trailing text after timestamp: %q", s[n:])
	}
	if !ts.Active {
		return Timestamp{}, fmt.Errorf("inactive timestamp on its own line")
	}
	if ts.Kind != KindRange {
		ts.Kind = KindPlain
	}
	return ts, nil
}

var planningKeywords = []struct {
	word string
	kind TimestampKind
}{
	{"SCHEDULED:", KindScheduled},
	{"DEADLINE:", KindDeadline},
	{"CLOSED:", KindClosed},
}

// parsePlanning parses a planning line such as
// "SCHEDULED: <2026-02-01 Sun +1w> DEADLINE: <2026-02-03 Tue>".
func parsePlanning(s string) ([]Timestamp, error) {
	rest := strings.TrimSpace(s)
	var out []Timestamp
	for rest != "" {
		var kind TimestampKind
		matched := false
		for _, k := range planningKeywords {
			if strings.HasPrefix(rest, k.word) {
				kind, matched = k.kind, true
				rest = strings.TrimLeft(rest[len(k.word):], " \t")
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("unexpected planning text %q", rest)
		}
		ts, n, err := ParseTimestamp(rest)
		if err != nil {
			return nil, err
		}
		if ts.RangeEnd != nil {
			return nil, fmt.Errorf("range not allowed in planning line")
		}
		ts.Kind = kind
		out = append(out, ts)
		rest = strings.TrimLeft(rest[n:], " \t")
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty planning line")
	}
	return out, nil
}

func isPlanningLine(s string) bool {
	s = strings.TrimSpace(s)
	for _, k := range planningKeywords {
		if strings.HasPrefix(s, k.word) {
			return true
		}
	}
	return false
}
