package google

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/model"
)

// Private extended properties carried by every event the adapter writes.
const (
	propID        = "lamp_id"
	propKind      = "lamp_kind"
	propState     = "lamp_state"
	propAnchor    = "lamp_anchor"
	propScheduled = "lamp_scheduled"
	propDeadline  = "lamp_deadline"
)

// Summary prefixes. Overdue is only ever added by the sweep.
const (
	prefixDone      = "✓"
	prefixCancelled = "✗"
	prefixNext      = "‣"
	prefixOverdue   = "!"
)

const (
	defaultDuration = 30 * time.Minute
	footer          = "\n\n--\n"
	dateLayout      = "2006-01-02"
	clockLayout     = "2006-01-02 15:04"
)

// Fields lists the task fields an event carries.
var Fields = []string{"title", "state", "scheduled", "deadline", "notes"}

var idLine = regexp.MustCompile(`(?m)^ID: (\S+)$`)

func taskOf(e model.Entity) (*model.Task, error) {
	switch v := e.(type) {
	case *model.Task:
		return v, nil
	case *model.Habit:
		return &v.Task, nil
	}
	return nil, fmt.Errorf("calendar events cannot hold a %s", e.Kind())
}

// anchor picks the date the event is placed on.
func anchor(t *model.Task) (string, model.When) {
	switch {
	case !t.Scheduled.IsZero():
		return "scheduled", t.Scheduled
	case !t.Deadline.IsZero():
		return "deadline", t.Deadline
	}
	return "", model.When{}
}

// ConvertTaskToEvent renders a task as a calendar event. Undated tasks are
// placed on the day of now.
func ConvertTaskToEvent(e model.Entity, colorID string, loc *time.Location, now time.Time) (*calendar.Event, error) {
	t, err := taskOf(e)
	if err != nil {
		return nil, err
	}
	field, when := anchor(t)
	if field == "" {
		y, m, d := now.In(loc).Date()
		when = model.Date(y, m, d)
	}

	start, end := &calendar.EventDateTime{}, &calendar.EventDateTime{}
	if when.Clock {
		at := time.Date(when.T.Year(), when.T.Month(), when.T.Day(), when.T.Hour(), when.T.Minute(), 0, 0, loc)
		start.DateTime = at.Format(time.RFC3339)
		end.DateTime = at.Add(defaultDuration).Format(time.RFC3339)
		start.NullFields = []string{"Date"}
		end.NullFields = []string{"Date"}
	} else {
		start.Date = when.T.Format(dateLayout)
		end.Date = when.T.AddDate(0, 0, 1).Format(dateLayout)
		start.NullFields = []string{"DateTime"}
		end.NullFields = []string{"DateTime"}
	}

	summary := t.Title
	switch t.State {
	case model.StateDone:
		summary = prefixDone + " " + summary
	case model.StateCancelled:
		summary = prefixCancelled + " " + summary
	case model.StateNext:
		summary = prefixNext + " " + summary
	}

	var desc strings.Builder
	desc.WriteString(t.Notes)
	desc.WriteString(footer)
	if t.Project != "" {
		fmt.Fprintf(&desc, "Project: %s\n", t.Project)
	}
	fmt.Fprintf(&desc, "ID: %s\n", t.ID)

	ev := &calendar.Event{
		Summary:     summary,
		Description: desc.String(),
		ColorId:     colorID,
		Start:       start,
		End:         end,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				propID:        string(t.ID),
				propKind:      string(e.Kind()),
				propState:     string(t.State),
				propAnchor:    field,
				propScheduled: t.Scheduled.String(),
				propDeadline:  t.Deadline.String(),
			},
		},
		ForceSendFields: []string{"Summary", "Description", "ColorId"},
	}
	return ev, nil
}

// ConvertEventToItem reads a pulled event. Events the adapter did not write
// are reported as not ok.
func ConvertEventToItem(ev *calendar.Event, loc *time.Location) (adapter.RemoteItem, bool) {
	item := adapter.RemoteItem{RemoteID: ev.Id, Revision: adapter.Revision(ev.Etag)}
	if ev.Status == "cancelled" {
		item.Deleted = true
		return item, true
	}

	var private map[string]string
	if ev.ExtendedProperties != nil {
		private = ev.ExtendedProperties.Private
	}
	id := private[propID]
	if id == "" {
		id, _ = GetTaskIDFromEventDescription(ev.Description)
	}
	if id == "" {
		return item, false
	}
	item.EntityID = model.ID(id)
	item.Kind = model.Kind(private[propKind])
	if item.Kind == "" {
		item.Kind = model.KindTask
	}

	title, prefix := stripPrefix(ev.Summary)
	state := private[propState]
	if state == "" {
		state = string(model.StateTodo)
	}
	switch st := model.State(state); {
	case prefix == prefixDone:
		state = string(model.StateDone)
	case prefix == prefixCancelled:
		state = string(model.StateCancelled)
	case st.IsClosed():
		// The check mark was removed in the calendar.
		state = string(model.StateTodo)
	}

	f := model.Fields{
		"title":     title,
		"state":     state,
		"scheduled": private[propScheduled],
		"deadline":  private[propDeadline],
		"notes":     notesOf(ev.Description),
	}
	if field := private[propAnchor]; field != "" {
		if when, ok := eventDate(ev.Start, loc); ok {
			f[field] = when
		}
	}
	item.Fields = f
	return item, true
}

func stripPrefix(summary string) (string, string) {
	for _, p := range []string{prefixOverdue, prefixDone, prefixCancelled, prefixNext} {
		if rest, ok := strings.CutPrefix(summary, p+" "); ok {
			if p == prefixOverdue {
				return stripPrefix(rest)
			}
			return rest, p
		}
	}
	return summary, ""
}

func notesOf(desc string) string {
	if i := strings.LastIndex(desc, footer); i >= 0 {
		return desc[:i]
	}
	if strings.HasPrefix(desc, footer[2:]) {
		return ""
	}
	return desc
}

func eventDate(dt *calendar.EventDateTime, loc *time.Location) (string, bool) {
	switch {
	case dt == nil:
		return "", false
	case dt.DateTime != "":
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return "", false
		}
		return t.In(loc).Format(clockLayout), true
	case dt.Date != "":
		return dt.Date, true
	}
	return "", false
}

// GetTaskIDFromEventDescription finds the entity id in the footer of an event
// description.
func GetTaskIDFromEventDescription(description string) (string, bool) {
	matches := idLine.FindStringSubmatch(description)
	if len(matches) > 1 {
		return matches[1], true
	}
	return "", false
}
