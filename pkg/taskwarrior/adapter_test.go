package taskwarrior

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/model"
)

// fakeTask stands in for the task binary, keeping tasks in memory.
type fakeTask struct {
	mu    sync.Mutex
	tasks map[string]Task
	clock time.Time
	calls [][]string
}

func newFakeTask() *fakeTask {
	return &fakeTask{tasks: make(map[string]Task), clock: time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeTask) tick() *CustomTime {
	f.clock = f.clock.Add(time.Minute)
	return NewTime(f.clock)
}

func (f *fakeTask) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	var rest []string
	for _, a := range args {
		if !strings.HasPrefix(a, "rc.") {
			rest = append(rest, a)
		}
	}
	if len(rest) == 0 {
		return nil, errors.New("no command")
	}
	switch rest[len(rest)-1] {
	case "export":
		filter := rest[:len(rest)-1]
		var out []Task
		for id, t := range f.tasks {
			if len(filter) == 0 || filter[0] == id {
				out = append(out, t)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
		if out == nil {
			out = []Task{}
		}
		return json.Marshal(out)
	case "-":
		var in []Task
		if err := json.NewDecoder(stdin).Decode(&in); err != nil {
			return nil, err
		}
		for _, t := range in {
			t.Modified = f.tick()
			f.tasks[t.UUID] = t
		}
		return nil, nil
	case "delete":
		t, ok := f.tasks[rest[0]]
		if !ok {
			return nil, fmt.Errorf("no task %s", rest[0])
		}
		t.Status = DELETED
		t.Modified = f.tick()
		f.tasks[t.UUID] = t
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported command %v", rest)
}

func newAdapter(f *fakeTask) *Adapter {
	a := NewAdapter("tw", NewClientWithRunner(f.run, "rc.data.location=/tmp/tw"), time.UTC)
	a.now = func() time.Time { return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC) }
	return a
}

func pull(t *testing.T, a *Adapter, since adapter.Revision) ([]adapter.RemoteItem, adapter.Revision) {
	t.Helper()
	stream, err := a.Pull(context.Background(), since)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	defer stream.Close()
	var items []adapter.RemoteItem
	for stream.Next() {
		items = append(items, stream.Item())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	return items, stream.Revision()
}

func milk() *model.Task {
	task := model.NewTask("Buy milk", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	task.State = model.StateNext
	task.Priority = "A"
	task.Tags = []string{"errand", "food"}
	task.Deadline = model.Date(2026, 2, 25)
	task.Scheduled = model.When{T: time.Date(2026, 2, 24, 17, 30, 0, 0, time.UTC), Clock: true}
	task.Notes = "Two litres.\nSemi skimmed."
	task.Project = "Groceries"
	return task
}

func TestPushAndPull(t *testing.T) {
	fake := newFakeTask()
	a := newAdapter(fake)
	task := milk()

	ref, err := a.Push(context.Background(), adapter.PushItem{Entity: task})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	stored := fake.tasks[ref.RemoteID]
	if stored.LampID != string(task.ID) {
		t.Errorf("Expected lampid %s, got %s", task.ID, stored.LampID)
	}
	if stored.Priority != "H" || !stored.HasTag("next") {
		t.Errorf("Expected priority H and the next tag, got %s %v", stored.Priority, stored.Tags)
	}
	if ref.Revision != adapter.Revision(stored.Modified.String()) {
		t.Errorf("Expected revision %s, got %s", stored.Modified, ref.Revision)
	}
	if args := fake.calls[0]; args[0] != "rc.hooks=0" || args[3] != "rc.data.location=/tmp/tw" {
		t.Errorf("Unexpected command prefix %v", args)
	}

	items, rev := pull(t, a, "")
	if len(items) != 1 || rev != ref.Revision {
		t.Fatalf("Expected 1 item at %s, got %d at %s", ref.Revision, len(items), rev)
	}
	item := items[0]
	if item.EntityID != task.ID || item.RemoteID != ref.RemoteID {
		t.Errorf("Expected %s/%s, got %s/%s", task.ID, ref.RemoteID, item.EntityID, item.RemoteID)
	}
	want := task.Fields()
	for _, name := range Fields {
		if item.Fields[name] != want.Get(name) {
			t.Errorf("Expected %s %q, got %q", name, want.Get(name), item.Fields[name])
		}
	}
}

func TestPullSinceRevision(t *testing.T) {
	fake := newFakeTask()
	a := newAdapter(fake)
	first, _ := a.Push(context.Background(), adapter.PushItem{Entity: milk()})
	a.Push(context.Background(), adapter.PushItem{Entity: model.NewTask("Water plants", time.Time{})})

	items, _ := pull(t, a, first.Revision)
	if len(items) != 1 || items[0].Fields["title"] != "Water plants" {
		t.Fatalf("Expected only the later task, got %v", items)
	}
	_, rev := pull(t, a, first.Revision)
	if items, _ := pull(t, a, rev); len(items) != 0 {
		t.Errorf("Expected nothing new, got %d items", len(items))
	}
}

func TestPushKeepsUnmodeledAttributes(t *testing.T) {
	fake := newFakeTask()
	a := newAdapter(fake)
	task := milk()
	ref, _ := a.Push(context.Background(), adapter.PushItem{Entity: task})

	stored := fake.tasks[ref.RemoteID]
	stored.Wait = NewTime(time.Date(2026, 2, 24, 0, 0, 0, 0, time.UTC))
	fake.tasks[ref.RemoteID] = stored

	task.Title = "Buy oat milk"
	if _, err := a.Push(context.Background(), adapter.PushItem{Entity: task, RemoteID: ref.RemoteID}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(fake.tasks) != 1 {
		t.Fatalf("Expected the task updated in place, got %d tasks", len(fake.tasks))
	}
	got := fake.tasks[ref.RemoteID]
	if got.Description != "Buy oat milk" || got.Wait == nil {
		t.Errorf("Expected new title and kept wait, got %q %v", got.Description, got.Wait)
	}
	if got.Annotations[0].Entry.String() != stored.Annotations[0].Entry.String() {
		t.Errorf("Expected annotation entry kept, got %v", got.Annotations[0].Entry)
	}
}

func TestStates(t *testing.T) {
	a := newAdapter(newFakeTask())
	tests := []struct {
		name string
		task Task
		want model.State
	}{
		{"pending", Task{Status: PENDING}, model.StateTodo},
		{"started", Task{Status: PENDING, Start: NewTime(time.Now())}, model.StateNext},
		{"next tag", Task{Status: PENDING, Tags: []string{"next"}}, model.StateNext},
		{"waiting", Task{Status: WAITING}, model.StateWaiting},
		{"someday", Task{Status: PENDING, Tags: []string{"someday"}}, model.StateSomeday},
		{"completed", Task{Status: COMPLETED}, model.StateDone},
		{"cancelled", Task{Status: COMPLETED, Tags: []string{"cancelled"}}, model.StateCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := a.ToItem(&tt.task)
			if got := item.Fields["state"]; got != string(tt.want) {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
			if item.Fields["tags"] != "" {
				t.Errorf("Expected marker tags hidden, got %q", item.Fields["tags"])
			}
		})
	}
}

func TestPullCleansTags(t *testing.T) {
	a := newAdapter(newFakeTask())
	item := a.ToItem(&Task{Status: PENDING, Tags: []string{"home-office", "next", "errand"}})
	if got := item.Fields["tags"]; got != "errand,home_office" {
		t.Errorf("Expected errand,home_office, got %q", got)
	}
}

func TestCompletingSetsEnd(t *testing.T) {
	fake := newFakeTask()
	a := newAdapter(fake)
	task := milk()
	ref, _ := a.Push(context.Background(), adapter.PushItem{Entity: task})

	task.State = model.StateCancelled
	a.Push(context.Background(), adapter.PushItem{Entity: task, RemoteID: ref.RemoteID})
	got := fake.tasks[ref.RemoteID]
	if got.Status != COMPLETED || got.End == nil || !got.HasTag("cancelled") || got.HasTag("next") {
		t.Errorf("Expected a cancelled completion, got %s %v %v", got.Status, got.End, got.Tags)
	}
}

func TestRecurringTemplatesAreSkipped(t *testing.T) {
	fake := newFakeTask()
	fake.tasks["tmpl"] = Task{UUID: "tmpl", Status: RECURRING, Description: "Pay rent", Modified: fake.tick()}
	if items, _ := pull(t, newAdapter(fake), ""); len(items) != 0 {
		t.Errorf("Expected no items, got %v", items)
	}
}

func TestDeleteTask(t *testing.T) {
	fake := newFakeTask()
	a := newAdapter(fake)
	ref, _ := a.Push(context.Background(), adapter.PushItem{Entity: milk()})
	if err := a.Delete(context.Background(), ref.RemoteID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := a.Delete(context.Background(), ref.RemoteID); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	items, _ := pull(t, a, "")
	if len(items) != 1 || !items[0].Deleted {
		t.Errorf("Expected a tombstone, got %v", items)
	}
}

func TestPushRejectsProjects(t *testing.T) {
	a := newAdapter(newFakeTask())
	if _, err := a.Push(context.Background(), adapter.PushItem{Entity: model.NewProject("House", time.Time{})}); err == nil {
		t.Error("Expected an error pushing a project")
	}
}
