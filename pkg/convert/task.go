package convert

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

// Property keys owned by task fields.
const (
	propID         = "ID"
	propCreated    = "CREATED"
	propCost       = "ESC"
	propProject    = "PROJECT"
	propWaitingFor = "WAITING_FOR"
	propDelegated  = "DELEGATED"
	propFollowUp   = "FOLLOW_UP"
)

func readTask(id model.ID, h *orgmode.Heading, vocab orgmode.Vocabulary) (*model.Task, []Anomaly) {
	t := &model.Task{Meta: model.Meta{ID: id}}
	var anomalies []Anomaly
	bad := func(field, value, msg string) {
		anomalies = append(anomalies, Anomaly{Entity: id, Field: field, Value: value, Message: msg})
	}

	t.State = stateFor(h.Keyword, vocab)
	t.Priority = h.Priority
	t.Title = h.Title
	t.Tags = append([]string(nil), h.Tags...)

	if ts, ok := h.Timestamp(orgmode.KindScheduled); ok {
		t.Scheduled = whenOf(ts)
		t.Recurrence = recurrenceOf(ts)
	}
	if ts, ok := h.Timestamp(orgmode.KindDeadline); ok {
		t.Deadline = whenOf(ts)
		if t.Recurrence == nil {
			t.Recurrence = recurrenceOf(ts)
		}
	}
	if ts, ok := h.Timestamp(orgmode.KindClosed); ok {
		t.Completed = ts.Time()
	}

	for _, p := range h.Properties {
		key := strings.ToUpper(p.Key)
		switch key {
		case propID:
		case propCreated:
			if ts, ok := parseStamp(p.Value); ok {
				t.Created = ts
			} else if p.Value != "" {
				bad(key, p.Value, "not a timestamp")
			}
		case propCost:
			n, err := strconv.Atoi(strings.TrimSpace(p.Value))
			if err != nil {
				bad(key, p.Value, "not a number")
				continue
			}
			if c, clamped := model.ClampCost(n); clamped {
				bad(key, p.Value, "clamped to "+strconv.Itoa(c))
			}
			t.SetCost(n)
		case propProject:
			t.Project = p.Value
		case propWaitingFor:
			t.WaitingFor = p.Value
		case propDelegated:
			t.Delegated = p.Value
		case propFollowUp:
			if w, ok := parseWhenValue(p.Value); ok {
				t.FollowUp = w
			} else {
				bad(key, p.Value, "not a date")
			}
		default:
			t.Extra = append(t.Extra, model.Property{Key: p.Key, Value: p.Value})
		}
	}

	for _, e := range h.Logbook {
		t.Logbook = append(t.Logbook, model.LogEntry{At: e.At, Text: e.Line})
	}
	t.Notes = notesOf(h.Body)
	return t, anomalies
}

func writeTask(h *orgmode.Heading, t *model.Task, vocab orgmode.Vocabulary, kind FileKind) {
	h.Keyword = keywordFor(t.State, h.Keyword, vocab)
	h.Priority = t.Priority
	h.Title = t.Title
	h.Tags = mergeTags(h.Tags, t.Tags)

	writeWhen(h, orgmode.KindScheduled, t.Scheduled, t.Recurrence, true)
	writeWhen(h, orgmode.KindDeadline, t.Deadline, t.Recurrence, t.Scheduled.IsZero())
	if t.State.IsClosed() && !t.Completed.IsZero() {
		closed := orgmode.NewDateTime(orgmode.KindClosed, t.Completed)
		closed.Active = false
		if cur, ok := h.Timestamp(orgmode.KindClosed); !ok || !cur.Time().Equal(closed.Time()) {
			h.SetTimestamp(orgmode.KindClosed, &closed)
		}
	} else {
		h.SetTimestamp(orgmode.KindClosed, nil)
	}

	setOwned(&h.Properties, propID, string(t.ID), nil)
	writeCreated(h, t.Created)
	cost := ""
	if t.Cost != nil {
		cost = strconv.Itoa(*t.Cost)
	}
	setOwned(&h.Properties, propCost, cost, func(v string) bool { _, err := strconv.Atoi(strings.TrimSpace(v)); return err == nil })
	if kind != Projects {
		setOwned(&h.Properties, propProject, t.Project, nil)
	}
	setOwned(&h.Properties, propWaitingFor, t.WaitingFor, nil)
	setOwned(&h.Properties, propDelegated, t.Delegated, nil)
	followUp := t.FollowUp.String()
	if cur, ok := h.Properties.Get(propFollowUp); ok {
		if w, ok := parseWhenValue(cur); ok && w == t.FollowUp {
			followUp = cur
		}
	}
	setOwned(&h.Properties, propFollowUp, followUp, func(v string) bool { _, ok := parseWhenValue(v); return ok })

	h.Logbook = mergeLogbook(h.Logbook, t.Logbook)
	h.Body = writeNotes(h.Body, t.Notes, h.Depth)
}

// writeCreated keeps the written CREATED text when it denotes the same minute.
func writeCreated(h *orgmode.Heading, created time.Time) {
	v := ""
	if !created.IsZero() {
		v = stamp(created)
		if cur, ok := h.Properties.Get(propCreated); ok {
			if at, ok := parseStamp(cur); ok && at.Equal(created.Truncate(time.Minute)) {
				v = cur
			}
		}
	}
	setOwned(&h.Properties, propCreated, v, func(s string) bool { _, ok := parseStamp(s); return ok })
}

// setOwned writes an owned property. An empty value removes the key unless
// the current value is one valid rejects, which is kept for the user.
func setOwned(props *orgmode.Properties, key, value string, valid func(string) bool) {
	cur, ok := props.Get(key)
	if value == "" {
		if ok && (valid == nil || valid(cur)) {
			props.Delete(key)
		}
		return
	}
	if !ok || cur != value {
		props.Set(key, value)
	}
}

func stateFor(keyword string, vocab orgmode.Vocabulary) model.State {
	if st, ok := model.ParseState(keyword); ok {
		return st
	}
	if vocab.IsClosed(keyword) {
		return model.StateDone
	}
	return model.StateTodo
}

// keywordFor keeps a custom keyword when it still maps to the same state.
func keywordFor(st model.State, cur string, vocab orgmode.Vocabulary) string {
	if cur != "" && stateFor(cur, vocab) == st {
		return cur
	}
	return string(st)
}

func whenOf(ts orgmode.Timestamp) model.When {
	return model.When{T: ts.Time(), Clock: ts.HasTime}
}

func recurrenceOf(ts orgmode.Timestamp) *model.Recurrence {
	if ts.Repeater == nil {
		return nil
	}
	r := model.Recurrence{Count: ts.Repeater.Count, Unit: ts.Repeater.Unit}
	switch ts.Repeater.Policy {
	case orgmode.RepeatRelative:
		r.Policy = model.Relative
	case orgmode.RepeatStrict:
		r.Policy = model.Strict
	}
	return &r
}

func repeaterOf(r *model.Recurrence) *orgmode.Repeater {
	if r == nil {
		return nil
	}
	rep := orgmode.Repeater{Count: r.Count, Unit: r.Unit}
	switch r.Policy {
	case model.Relative:
		rep.Policy = orgmode.RepeatRelative
	case model.Strict:
		rep.Policy = orgmode.RepeatStrict
	}
	return &rep
}

// writeWhen updates a planning timestamp, leaving it alone when the owned
// parts are unchanged so extra syntax such as end times survives. The
// repeater is only written when ownRepeater is set.
func writeWhen(h *orgmode.Heading, kind orgmode.TimestampKind, w model.When, r *model.Recurrence, ownRepeater bool) {
	if w.IsZero() {
		h.SetTimestamp(kind, nil)
		return
	}
	var ts orgmode.Timestamp
	if w.Clock {
		ts = orgmode.NewDateTime(kind, w.T)
	} else {
		ts = orgmode.NewDate(kind, w.T)
	}
	cur, hasCur := h.Timestamp(kind)
	if ownRepeater {
		ts.Repeater = repeaterOf(r)
	} else if hasCur {
		ts.Repeater = cur.Repeater
	}
	if hasCur {
		if cur.HasTime == ts.HasTime && cur.Time().Equal(ts.Time()) && repeaterString(cur.Repeater) == repeaterString(ts.Repeater) {
			return
		}
		if cur.HasEnd && ts.HasTime && cur.HasTime {
			ts.HasEnd, ts.EndHour, ts.EndMinute = true, cur.EndHour, cur.EndMinute
		}
	}
	h.SetTimestamp(kind, &ts)
}

func repeaterString(r *orgmode.Repeater) string {
	if r == nil {
		return ""
	}
	return r.String()
}

func stamp(t time.Time) string {
	return "[" + t.Format("2006-01-02 Mon 15:04") + "]"
}

func parseStamp(v string) (time.Time, bool) {
	ts, n, err := orgmode.ParseTimestamp(strings.TrimSpace(v))
	if err != nil || n != len(strings.TrimSpace(v)) {
		return time.Time{}, false
	}
	return ts.Time(), true
}

func parseWhenValue(v string) (model.When, bool) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "<") || strings.HasPrefix(v, "[") {
		ts, _, err := orgmode.ParseTimestamp(v)
		if err != nil {
			return model.When{}, false
		}
		return whenOf(ts), true
	}
	w, err := model.ParseWhen(v)
	return w, err == nil
}

// mergeTags keeps the current tag order when the set is unchanged.
// Tags are cleaned to the characters a headline tag can hold.
func mergeTags(cur, want []string) []string {
	want = orgmode.CleanTags(want)
	a := append([]string(nil), cur...)
	b := append([]string(nil), want...)
	sort.Strings(a)
	sort.Strings(b)
	if strings.Join(a, ":") == strings.Join(b, ":") {
		return cur
	}
	return append([]string(nil), want...)
}

// mergeLogbook keeps continuation lines of entries that are still present.
func mergeLogbook(cur []orgmode.LogEntry, want []model.LogEntry) []orgmode.LogEntry {
	more := make(map[string][]string, len(cur))
	for _, e := range cur {
		more[e.Line] = e.More
	}
	out := make([]orgmode.LogEntry, 0, len(want))
	for _, e := range want {
		out = append(out, orgmode.LogEntry{At: e.At, Line: e.Text, More: more[e.Text]})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
