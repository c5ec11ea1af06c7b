package model

import (
	"errors"
	"testing"
	"time"
)

func TestClampCost(t *testing.T) {
	task := NewTask("Write", time.Now())
	if err := task.SetField("esc", "200"); err != nil {
		t.Fatalf("SetField failed: %v", err)
	}
	if *task.Cost != CostMax {
		t.Errorf("Expected cost clamped to %d, got %d", CostMax, *task.Cost)
	}
	if got := task.Fields().Get("esc"); got != "100" {
		t.Errorf("Expected esc field 100, got %q", got)
	}
	if n, clamped := ClampCost(-5); n != 0 || !clamped {
		t.Errorf("Expected -5 to clamp to 0, got %d", n)
	}
}

func TestTransitionRecurring(t *testing.T) {
	task := NewTask("Water plants", date(2026, 1, 1))
	task.Scheduled = When{T: date(2026, 2, 1)}
	task.Recurrence = &Recurrence{Policy: Standard, Count: 1, Unit: 'w'}

	done := time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)
	next, err := task.Transition(StateDone, done)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if task.State != StateDone || !task.Completed.Equal(done) {
		t.Errorf("Expected original task closed, got %s", task.State)
	}
	if next == nil {
		t.Fatal("Expected a new instance for a recurring task")
	}
	if next.ID == task.ID {
		t.Error("Expected the new instance to have a new identity")
	}
	if next.State != StateTodo {
		t.Errorf("Expected new instance open, got %s", next.State)
	}
	if got := next.Scheduled.String(); got != "2026-02-08" {
		t.Errorf("Expected next scheduled 2026-02-08, got %s", got)
	}
	if len(task.Logbook) != 1 || task.Logbook[0].Text != `- State "DONE" from "TODO" [2026-02-20 Fri 08:00]` {
		t.Errorf("Unexpected logbook %v", task.Logbook)
	}
}

func TestTransitionFromClosedFails(t *testing.T) {
	task := NewTask("x", time.Now())
	if _, err := task.Transition(StateCancelled, time.Now()); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if _, err := task.Transition(StateTodo, time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionBumpsRevision(t *testing.T) {
	task := NewTask("x", time.Now())
	before := task.Rev()
	if _, err := task.Transition(StateNext, time.Now()); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if task.Rev() <= before {
		t.Errorf("Expected revision to increase, got %d -> %d", before, task.Rev())
	}
}

func TestFingerprint(t *testing.T) {
	a := NewTask("Same", date(2026, 1, 1))
	a.Tags = []string{"b", "a"}
	b := a.Clone().(*Task)
	b.Tags = []string{"a", "b"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("Expected tag order not to change the fingerprint")
	}
	b.Title = "Different"
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("Expected title change to change the fingerprint")
	}
	h := &Habit{Task: *a.Clone().(*Task)}
	if Fingerprint(a) == Fingerprint(h) {
		t.Error("Expected kind to be part of the fingerprint")
	}
}

func TestSetFieldRoundTrip(t *testing.T) {
	task := NewTask("t", date(2026, 1, 1))
	task.Scheduled = When{T: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), Clock: true}
	task.Recurrence = &Recurrence{Policy: Relative, Count: 2, Unit: 'd'}
	task.SetCost(40)
	task.WaitingFor = "Sam"

	dup := NewTask("", date(2026, 1, 1))
	if err := Apply(dup, task.Fields(), []string{"title"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if Fingerprint(dup) != Fingerprint(task) {
		t.Errorf("Expected applied fields to reproduce the task.\nwant %v\ngot  %v", task.Fields(), dup.Fields())
	}
	if err := dup.SetField("bogus", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Expected ErrUnknownField, got %v", err)
	}
}
