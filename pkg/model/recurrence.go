package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Policy selects how a recurring item's next date is computed.
type Policy int

const (
	// Standard advances from the original date by one interval, even when
	// that date is already past.
	Standard Policy = iota
	// Relative advances from the completion date.
	Relative
	// Strict advances from the original date until the result falls after
	// the completion date. Steps are always taken from the original anchor.
	Strict
)

// Recurrence is a repeat rule such as "+1w".
type Recurrence struct {
	Policy Policy
	Count  int
	Unit   byte // d, w, m or y
}

var recurrenceRe = regexp.MustCompile(`^(\.\+|\+\+|\+)(\d+)([dwmy])$`)

// ParseRecurrence parses a repeater token.
func ParseRecurrence(s string) (Recurrence, error) {
	m := recurrenceRe.FindStringSubmatch(s)
	if m == nil {
		return Recurrence{}, fmt.Errorf("invalid recurrence %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return Recurrence{}, fmt.Errorf("invalid recurrence count in %q", s)
	}
	r := Recurrence{Count: n, Unit: m[3][0]}
	switch m[1] {
	case ".+":
		r.Policy = Relative
	case "++":
		r.Policy = Strict
	}
	return r, nil
}

func (r Recurrence) String() string {
	prefix := "+"
	switch r.Policy {
	case Relative:
		prefix = ".+"
	case Strict:
		prefix = "++"
	}
	return fmt.Sprintf("%s%d%c", prefix, r.Count, r.Unit)
}

// Add shifts t by k intervals. Month and year steps clamp to the last day of
// the target month.
func (r Recurrence) Add(t time.Time, k int) time.Time {
	n := r.Count * k
	switch r.Unit {
	case 'd':
		return t.AddDate(0, 0, n)
	case 'w':
		return t.AddDate(0, 0, 7*n)
	case 'm':
		return addMonths(t, n)
	case 'y':
		return addMonths(t, 12*n)
	}
	return t
}

func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, n, 0)
	last := target.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

// Next returns the next occurrence for an item originally due at original
// and completed at completed.
func (r Recurrence) Next(original, completed time.Time) time.Time {
	if r.Count <= 0 || strings.IndexByte("dwmy", r.Unit) < 0 {
		return original
	}
	switch r.Policy {
	case Relative:
		day := time.Date(completed.Year(), completed.Month(), completed.Day(),
			original.Hour(), original.Minute(), 0, 0, original.Location())
		return r.Add(day, 1)
	case Strict:
		dayAfter := time.Date(completed.Year(), completed.Month(), completed.Day()+1, 0, 0, 0, 0, original.Location())
		for k := 1; ; k++ {
			if next := r.Add(original, k); !next.Before(dayAfter) {
				return next
			}
		}
	default:
		return r.Add(original, 1)
	}
}
