package taskwarrior

import (
	"strings"
	"testing"
	"time"
)

func TestParseOnAddPayload(t *testing.T) {
	input := `{"uuid":"5e1d0c9a-7f3b-4d2e-9a41-0b6c2f7e8d13","description":"Call plumber","status":"pending","entry":"20260223T090000Z","scheduled":"20260225T000000Z","project":"House","tags":["home","phone"],"lampid":"plumber"}
`
	tasks, err := NewClient().ParseTasks(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.LampID != "plumber" {
		t.Errorf("Expected lampid plumber, got %q", task.LampID)
	}
	if task.Description != "Call plumber" || task.Project != "House" {
		t.Errorf("Expected Call plumber in House, got %q in %q", task.Description, task.Project)
	}
	if !task.HasTag("phone") || task.HasTag("errand") {
		t.Errorf("Expected tags [home phone], got %v", task.Tags)
	}
	want := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	if task.Scheduled == nil || !task.Scheduled.Time.Equal(want) {
		t.Errorf("Expected scheduled %v, got %v", want, task.Scheduled)
	}
	if task.Due != nil {
		t.Errorf("Expected no due date, got %v", task.Due)
	}
}

func TestParseOnModifyPayload(t *testing.T) {
	input := `{"uuid":"5e1d0c9a-7f3b-4d2e-9a41-0b6c2f7e8d13","description":"Call plumber","status":"pending","lampid":"plumber"}
{"uuid":"5e1d0c9a-7f3b-4d2e-9a41-0b6c2f7e8d13","description":"Call plumber","status":"completed","end":"20260224T171500Z","lampid":"plumber","annotations":[{"entry":"20260224T171400Z","description":"Booked for Friday"}]}
`
	tasks, err := NewClient().ParseTasks(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseTasks failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected old and new task, got %d", len(tasks))
	}
	if tasks[0].Status != "pending" || tasks[0].End != nil {
		t.Errorf("Expected the old task first, got %+v", tasks[0])
	}
	modified := tasks[1]
	if modified.Status != "completed" || modified.End == nil {
		t.Errorf("Expected a completed task with an end, got %+v", modified)
	}
	if len(modified.Annotations) != 1 || modified.Annotations[0].Description != "Booked for Friday" {
		t.Errorf("Expected one annotation, got %v", modified.Annotations)
	}
	if modified.LampID != tasks[0].LampID {
		t.Errorf("Expected lampid to survive the edit, got %q and %q", tasks[0].LampID, modified.LampID)
	}
}

func TestParseEmptyPayload(t *testing.T) {
	tasks, err := NewClient().ParseTasks(strings.NewReader(""))
	if err != nil || len(tasks) != 0 {
		t.Errorf("Expected no tasks and no error, got %v, %v", tasks, err)
	}
}

func TestParseBrokenPayload(t *testing.T) {
	if _, err := NewClient().ParseTasks(strings.NewReader(`{"uuid":"a","description":`)); err == nil {
		t.Error("Expected error for truncated json")
	}
}
