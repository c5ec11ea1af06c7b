package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CostMax is the upper bound of a task's energy cost estimate. It is set
// from configuration at startup.
var CostMax = 100

// ClampCost bounds n to [0, CostMax] and reports whether it had to.
func ClampCost(n int) (int, bool) {
	switch {
	case n < 0:
		return 0, true
	case n > CostMax:
		return CostMax, true
	}
	return n, false
}

// When is a calendar date with an optional clock time. Values are floating:
// they carry no zone and are stored as UTC.
type When struct {
	T     time.Time
	Clock bool
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// Date returns a date-only When.
func Date(year int, month time.Month, day int) When {
	return When{T: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (w When) IsZero() bool { return w.T.IsZero() }

func (w When) String() string {
	switch {
	case w.T.IsZero():
		return ""
	case w.Clock:
		return w.T.Format(dateTimeLayout)
	default:
		return w.T.Format(dateLayout)
	}
}

// ParseWhen parses "2006-01-02" or "2006-01-02 15:04". The empty string is
// the zero When.
func ParseWhen(s string) (When, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return When{}, nil
	}
	if t, err := time.Parse(dateTimeLayout, s); err == nil {
		return When{T: t, Clock: true}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return When{}, fmt.Errorf("invalid date %q", s)
	}
	return When{T: t}, nil
}

// State is the workflow state of a task. The open states are TODO
// (unstarted), NEXT (active), WAITING (delegated) and SOMEDAY (deferred);
// DONE and CANCELLED are closed.
type State string

const (
	StateTodo      State = "TODO"
	StateNext      State = "NEXT"
	StateWaiting   State = "WAITING"
	StateSomeday   State = "SOMEDAY"
	StateDone      State = "DONE"
	StateCancelled State = "CANCELLED"
)

// States lists every state in keyword declaration order.
var States = []State{StateTodo, StateNext, StateWaiting, StateSomeday, StateDone, StateCancelled}

// ParseState maps a keyword to a State.
func ParseState(s string) (State, bool) {
	for _, st := range States {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s State) IsOpen() bool   { return s == StateTodo || s == StateNext || s == StateWaiting || s == StateSomeday }
func (s State) IsClosed() bool { return s == StateDone || s == StateCancelled }

// LogEntry is one logbook line kept with a task.
type LogEntry struct {
	At   time.Time
	Text string
}

// Task is an actionable item.
type Task struct {
	Meta
	Title      string
	State      State
	Priority   string
	Tags       []string
	Scheduled  When
	Deadline   When
	Recurrence *Recurrence
	Notes      string
	Project    string
	WaitingFor string
	Cost       *int
	Delegated  string
	FollowUp   When
	Created    time.Time
	Completed  time.Time
	Logbook    []LogEntry
}

// NewTask returns an open task with a fresh identity.
func NewTask(title string, created time.Time) *Task {
	return &Task{Meta: Meta{ID: NewID()}, Title: title, State: StateTodo, Created: created}
}

func (t *Task) Kind() Kind { return KindTask }

// SetCost clamps and stores a cost estimate.
func (t *Task) SetCost(n int) {
	n, _ = ClampCost(n)
	t.Cost = &n
}

func (t *Task) HasTag(tag string) bool {
	for _, x := range t.Tags {
		if x == tag {
			return true
		}
	}
	return false
}

func (t *Task) Fields() Fields {
	f := Fields{}
	t.fieldsInto(f)
	return f
}

func (t *Task) fieldsInto(f Fields) {
	f.set("title", t.Title)
	f.set("state", string(t.State))
	f.set("priority", t.Priority)
	f.set("tags", joinSorted(t.Tags))
	f.set("scheduled", t.Scheduled.String())
	f.set("deadline", t.Deadline.String())
	if t.Recurrence != nil {
		f.set("recurrence", t.Recurrence.String())
	}
	f.set("notes", t.Notes)
	f.set("project", t.Project)
	f.set("waiting_for", t.WaitingFor)
	if t.Cost != nil {
		f.set("esc", strconv.Itoa(*t.Cost))
	}
	f.set("delegated", t.Delegated)
	f.set("follow_up", t.FollowUp.String())
}

func (t *Task) SetField(name, value string) error {
	switch name {
	case "title":
		t.Title = value
	case "state":
		if value == "" {
			value = string(StateTodo)
		}
		st, ok := ParseState(value)
		if !ok {
			return fmt.Errorf("invalid state %q", value)
		}
		t.State = st
	case "priority":
		t.Priority = value
	case "tags":
		t.Tags = splitList(value)
	case "scheduled", "deadline", "follow_up":
		w, err := ParseWhen(value)
		if err != nil {
			return err
		}
		switch name {
		case "scheduled":
			t.Scheduled = w
		case "deadline":
			t.Deadline = w
		default:
			t.FollowUp = w
		}
	case "recurrence":
		if value == "" {
			t.Recurrence = nil
			break
		}
		r, err := ParseRecurrence(value)
		if err != nil {
			return err
		}
		t.Recurrence = &r
	case "notes":
		t.Notes = value
	case "project":
		t.Project = value
	case "waiting_for":
		t.WaitingFor = value
	case "esc":
		if value == "" {
			t.Cost = nil
			break
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid cost %q", value)
		}
		t.SetCost(n)
	case "delegated":
		t.Delegated = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	t.Touch()
	return nil
}

func (t *Task) Clone() Entity { return t.clone() }

func (t *Task) clone() *Task {
	c := *t
	c.Meta = t.Meta.clone()
	c.Tags = append([]string(nil), t.Tags...)
	if t.Recurrence != nil {
		r := *t.Recurrence
		c.Recurrence = &r
	}
	if t.Cost != nil {
		n := *t.Cost
		c.Cost = &n
	}
	c.Logbook = append([]LogEntry(nil), t.Logbook...)
	return &c
}

// Transition moves the task to state to. Only open tasks may change state.
// Closing a recurring task as done returns the next open instance, with a new
// identity; the receiver stays closed.
func (t *Task) Transition(to State, at time.Time) (*Task, error) {
	if _, ok := ParseState(string(to)); !ok {
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, to)
	}
	if t.State.IsClosed() {
		return nil, fmt.Errorf("%w: %s is closed", ErrInvalidTransition, t.State)
	}
	if to == t.State {
		return nil, nil
	}
	from := t.State
	t.State = to
	t.Logbook = append(t.Logbook, stateLog(to, from, at))
	if to.IsClosed() {
		t.Completed = at
	}
	t.Touch()

	if to != StateDone || t.Recurrence == nil || (t.Scheduled.IsZero() && t.Deadline.IsZero()) {
		return nil, nil
	}
	next := t.clone()
	next.Meta = Meta{ID: NewID(), Extra: append([]Property(nil), t.Extra...)}
	next.State = StateTodo
	next.Created = at
	next.Completed = time.Time{}
	next.Logbook = nil
	if !t.Scheduled.IsZero() {
		next.Scheduled.T = t.Recurrence.Next(t.Scheduled.T, at)
	}
	if !t.Deadline.IsZero() {
		next.Deadline.T = t.Recurrence.Next(t.Deadline.T, at)
	}
	next.Touch()
	return next, nil
}

func stateLog(to, from State, at time.Time) LogEntry {
	return LogEntry{
		At:   at,
		Text: fmt.Sprintf("- State %q from %q [%s]", string(to), string(from), at.Format("2006-01-02 Mon 15:04")),
	}
}
