package dav

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/model"
)

func encodeDecode(t *testing.T, cal *ical.Calendar) *ical.Calendar {
	t.Helper()
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := ical.NewDecoder(&buf).Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return out
}

func TestTodoRoundTrip(t *testing.T) {
	task := plumber()
	task.Deadline = model.When{T: time.Date(2026, 2, 27, 16, 45, 0, 0, time.UTC), Clock: true}
	task.Notes = "Kitchen sink.\nAsk about the boiler, too."
	task.Tags = []string{"phone", "house"}

	cal := encodeDecode(t, TodoCalendar(task, nil, now))
	todo := FindTodo(cal)
	if todo == nil {
		t.Fatal("Expected a VTODO")
	}
	if uid, _ := todo.Props.Text(ical.PropUID); uid != string(task.ID) {
		t.Errorf("Expected UID %s, got %s", task.ID, uid)
	}
	id, fields, err := ReadTodo(todo, time.UTC)
	if err != nil {
		t.Fatalf("ReadTodo failed: %v", err)
	}
	if id != task.ID {
		t.Errorf("Expected id %s, got %s", task.ID, id)
	}
	want := task.Fields()
	for _, name := range TodoFields {
		if fields[name] != want.Get(name) {
			t.Errorf("Expected %s %q, got %q", name, want.Get(name), fields[name])
		}
	}
}

func TestTodoStates(t *testing.T) {
	for _, state := range model.States {
		t.Run(string(state), func(t *testing.T) {
			task := plumber()
			task.State = state
			_, fields, err := ReadTodo(FindTodo(encodeDecode(t, TodoCalendar(task, nil, now))), time.UTC)
			if err != nil {
				t.Fatalf("ReadTodo failed: %v", err)
			}
			if fields["state"] != string(state) {
				t.Errorf("Expected %s, got %s", state, fields["state"])
			}
		})
	}
}

func TestForeignTodo(t *testing.T) {
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, "abc@phone")
	todo.Props.SetText(ical.PropSummary, "Renew passport")
	todo.Props.SetText(ical.PropStatus, "NEEDS-ACTION")
	todo.Props.SetText(propState, "NEXT")
	todo.Props.SetText(ical.PropPriority, "2")
	todo.Props.SetText(ical.PropCategories, "Home Office,travel")
	due := ical.NewProp(ical.PropDue)
	due.Value = "20260301T100000Z"
	todo.Props.Set(due)

	loc := time.FixedZone("CET", 3600)
	id, fields, err := ReadTodo(todo, loc)
	if err != nil {
		t.Fatalf("ReadTodo failed: %v", err)
	}
	if id != "" {
		t.Errorf("Expected no identity, got %s", id)
	}
	if fields["state"] != "TODO" {
		t.Errorf("Expected a stale marker ignored, got %s", fields["state"])
	}
	if fields["tags"] != "Home_Office,travel" {
		t.Errorf("Expected categories cleaned into tags, got %q", fields["tags"])
	}
	if fields["priority"] != "A" || fields["deadline"] != "2026-03-01 11:00" {
		t.Errorf("Unexpected fields %v", fields)
	}

	tasks := NewTasks("cal", nil, "/cal/", TaskOptions{Location: loc})
	local := model.NewTask("renew passport ", now)
	if !tasks.Same(local, adapter.RemoteItem{Fields: fields}) {
		t.Error("Expected the tasks matched by title")
	}
	if tasks.Same(local, adapter.RemoteItem{EntityID: "x", Fields: fields}) {
		t.Error("Expected items with an identity never matched")
	}
}

func TestTodoKeepsUnknownProperties(t *testing.T) {
	task := plumber()
	cal := TodoCalendar(task, nil, now)
	FindTodo(cal).Props.SetText("X-APPLE-SORT-ORDER", "42")
	cal = encodeDecode(t, cal)

	task.State = model.StateDone
	task.Completed = now
	task.Tags = nil
	cal = encodeDecode(t, TodoCalendar(task, cal, now.Add(time.Hour)))
	todo := FindTodo(cal)
	if v, _ := todo.Props.Text("X-APPLE-SORT-ORDER"); v != "42" {
		t.Errorf("Expected unknown property kept, got %q", v)
	}
	if todo.Props.Get(ical.PropCategories) != nil {
		t.Error("Expected categories cleared")
	}
	if todo.Props.Get(ical.PropCompleted) == nil {
		t.Error("Expected a completion time")
	}
	if len(cal.Children) != 1 {
		t.Errorf("Expected one VTODO, got %d components", len(cal.Children))
	}
}
