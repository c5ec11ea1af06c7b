package dav

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

const (
	propLampID  = "X-LAMP-ID"
	propState   = "X-LAMP-STATE"
	propProject = "X-LAMP-PROJECT"
	productID   = "-//lamp//lamp//EN"

	icalDate     = "20060102"
	icalDateTime = "20060102T150405"
)

// TodoFields lists the task fields a VTODO carries.
var TodoFields = []string{"title", "state", "priority", "tags", "scheduled", "deadline", "notes", "project"}

var (
	priorityToICal = map[string]string{"A": "1", "B": "5", "C": "9"}
	statusToState  = map[string]model.State{
		"COMPLETED":  model.StateDone,
		"CANCELLED":  model.StateCancelled,
		"IN-PROCESS": model.StateNext,
	}
)

func statusOf(s model.State) string {
	switch s {
	case model.StateDone:
		return "COMPLETED"
	case model.StateCancelled:
		return "CANCELLED"
	case model.StateNext:
		return "IN-PROCESS"
	}
	return "NEEDS-ACTION"
}

// FindTodo returns the first VTODO of cal, or nil.
func FindTodo(cal *ical.Calendar) *ical.Component {
	if cal == nil {
		return nil
	}
	for _, child := range cal.Children {
		if child.Name == ical.CompToDo {
			return child
		}
	}
	return nil
}

// TodoCalendar writes t into the VTODO of cal, creating both when cal is nil
// or holds no VTODO. Properties the task does not model are left alone.
func TodoCalendar(t *model.Task, cal *ical.Calendar, now time.Time) *ical.Calendar {
	if cal == nil {
		cal = ical.NewCalendar()
	}
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, productID)
	}
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}
	todo := FindTodo(cal)
	if todo == nil {
		todo = ical.NewComponent(ical.CompToDo)
		todo.Props.SetText(ical.PropUID, string(t.ID))
		cal.Children = append(cal.Children, todo)
	}

	props := todo.Props
	props.SetText(propLampID, string(t.ID))
	props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	props.SetDateTime(ical.PropLastModified, now.UTC())
	setText(props, ical.PropSummary, t.Title)
	setText(props, ical.PropDescription, t.Notes)
	setText(props, propProject, t.Project)
	props.SetText(ical.PropStatus, statusOf(t.State))
	props.SetText(propState, string(t.State))

	if p, ok := priorityToICal[t.Priority]; ok {
		props.SetText(ical.PropPriority, p)
	} else {
		props.Del(ical.PropPriority)
	}

	props.Del(ical.PropCategories)
	if len(t.Tags) > 0 {
		tags := append([]string(nil), t.Tags...)
		sort.Strings(tags)
		cat := ical.NewProp(ical.PropCategories)
		cat.Value = strings.Join(tags, ",")
		props.Set(cat)
	}

	setWhen(props, ical.PropDateTimeStart, t.Scheduled)
	setWhen(props, ical.PropDue, t.Deadline)

	switch {
	case !t.State.IsClosed():
		props.Del(ical.PropCompleted)
	case !t.Completed.IsZero():
		props.SetDateTime(ical.PropCompleted, t.Completed.UTC())
	case props.Get(ical.PropCompleted) == nil:
		props.SetDateTime(ical.PropCompleted, now.UTC())
	}
	return cal
}

func setText(props ical.Props, name, value string) {
	if value == "" {
		props.Del(name)
		return
	}
	props.SetText(name, value)
}

// setWhen writes w as a date or as a floating local date-time.
func setWhen(props ical.Props, name string, w model.When) {
	switch {
	case w.IsZero():
		props.Del(name)
	case w.Clock:
		p := ical.NewProp(name)
		p.Value = w.T.Format(icalDateTime)
		props.Set(p)
	default:
		props.SetDate(name, w.T)
	}
}

func whenOf(props ical.Props, name string, loc *time.Location) (string, error) {
	p := props.Get(name)
	if p == nil || p.Value == "" {
		return "", nil
	}
	if len(p.Value) == len(icalDate) {
		t, err := time.ParseInLocation(icalDate, p.Value, time.UTC)
		if err != nil {
			return "", fmt.Errorf("invalid %s %q", name, p.Value)
		}
		return model.Date(t.Year(), t.Month(), t.Day()).String(), nil
	}
	t, err := p.DateTime(loc)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", name, p.Value, err)
	}
	t = t.In(loc)
	return model.When{T: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), Clock: true}.String(), nil
}

// ReadTodo returns the identity and task fields of a VTODO. The identity is
// empty for items created by other clients.
func ReadTodo(todo *ical.Component, loc *time.Location) (model.ID, model.Fields, error) {
	props := todo.Props
	text := func(name string) string {
		s, _ := props.Text(name)
		return s
	}

	status := strings.ToUpper(text(ical.PropStatus))
	state, ok := statusToState[status]
	if !ok {
		state = model.StateTodo
		if st, valid := model.ParseState(text(propState)); valid && statusOf(st) == "NEEDS-ACTION" {
			state = st
		}
	}

	var priority string
	if p := props.Get(ical.PropPriority); p != nil {
		n, _ := strconv.Atoi(strings.TrimSpace(p.Value))
		switch {
		case n >= 1 && n <= 4:
			priority = "A"
		case n == 5:
			priority = "B"
		case n >= 6 && n <= 9:
			priority = "C"
		}
	}

	var tags []string
	for _, p := range props[ical.PropCategories] {
		for _, tag := range strings.Split(p.Value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	tags = orgmode.CleanTags(tags)
	sort.Strings(tags)

	scheduled, err := whenOf(props, ical.PropDateTimeStart, loc)
	if err != nil {
		return "", nil, err
	}
	deadline, err := whenOf(props, ical.PropDue, loc)
	if err != nil {
		return "", nil, err
	}

	fields := model.Fields{
		"title":     text(ical.PropSummary),
		"state":     string(state),
		"priority":  priority,
		"tags":      strings.Join(tags, ","),
		"scheduled": scheduled,
		"deadline":  deadline,
		"notes":     text(ical.PropDescription),
		"project":   text(propProject),
	}
	return model.ID(text(propLampID)), fields, nil
}
