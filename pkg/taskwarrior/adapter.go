package taskwarrior

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

// Fields lists the task fields a Taskwarrior task carries.
var Fields = []string{"title", "state", "priority", "tags", "scheduled", "deadline", "notes", "project"}

var markerTags = map[string]bool{tagNext: true, tagSomeday: true, tagCancelled: true, WAITING: true}

var priorities = map[string]string{"A": "H", "B": "M", "C": "L"}

func init() {
	adapter.Register("taskwarrior", func(ctx context.Context, cfg adapter.Config, env adapter.Env) (adapter.Adapter, error) {
		var args []string
		if cfg.URL != "" {
			args = append(args, "rc.data.location="+cfg.URL)
		}
		return NewAdapter(cfg.Name, NewClient(args...), time.Local), nil
	})
}

// Adapter syncs tasks with a Taskwarrior database. The modification time of
// a task is its revision; the newest one seen is the pull cursor.
type Adapter struct {
	name   string
	client *Client
	loc    *time.Location
	now    func() time.Time
}

func NewAdapter(name string, client *Client, loc *time.Location) *Adapter {
	return &Adapter{name: name, client: client, loc: loc, now: time.Now}
}

func (a *Adapter) Source() string { return a.name }

func (a *Adapter) Pull(ctx context.Context, since adapter.Revision) (adapter.Stream, error) {
	tasks, err := a.client.GetTasks(ctx, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Modified.String() < tasks[j].Modified.String() })
	cursor := string(since)
	var items []adapter.RemoteItem
	for i := range tasks {
		t := &tasks[i]
		mod := t.Modified.String()
		if t.Status == RECURRING || (since != "" && mod <= string(since)) {
			continue
		}
		items = append(items, a.ToItem(t))
		if mod > cursor {
			cursor = mod
		}
	}
	return adapter.NewSliceStream(items, adapter.Revision(cursor), nil), nil
}

// ToItem converts a Taskwarrior task.
func (a *Adapter) ToItem(t *Task) adapter.RemoteItem {
	item := adapter.RemoteItem{
		RemoteID: t.UUID,
		EntityID: model.ID(t.LampID),
		Kind:     model.KindTask,
		Revision: adapter.Revision(t.Modified.String()),
	}
	if t.Status == DELETED {
		item.Deleted = true
		return item
	}

	var tags []string
	for _, tag := range t.Tags {
		if !markerTags[tag] {
			tags = append(tags, tag)
		}
	}
	tags = orgmode.CleanTags(tags)
	sort.Strings(tags)
	var notes []string
	for _, ann := range t.Annotations {
		notes = append(notes, ann.Description)
	}
	var priority string
	for org, tw := range priorities {
		if tw == t.Priority {
			priority = org
		}
	}
	item.Fields = model.Fields{
		"title":     t.Description,
		"state":     string(a.state(t)),
		"priority":  priority,
		"tags":      strings.Join(tags, ","),
		"scheduled": a.when(t.Scheduled),
		"deadline":  a.when(t.Due),
		"notes":     strings.Join(notes, "\n"),
		"project":   t.Project,
	}
	return item
}

func (a *Adapter) state(t *Task) model.State {
	switch {
	case t.Status == COMPLETED && t.HasTag(tagCancelled):
		return model.StateCancelled
	case t.Status == COMPLETED:
		return model.StateDone
	case t.Status == WAITING || t.HasTag(WAITING):
		return model.StateWaiting
	case t.HasTag(tagSomeday):
		return model.StateSomeday
	case t.HasTag(tagNext) || (t.Start != nil && !t.Start.IsZero()):
		return model.StateNext
	}
	return model.StateTodo
}

func (a *Adapter) when(ct *CustomTime) string {
	if ct == nil || ct.IsZero() {
		return ""
	}
	t := ct.Time.In(a.loc)
	if t.Hour() == 0 && t.Minute() == 0 {
		return model.Date(t.Year(), t.Month(), t.Day()).String()
	}
	return model.When{T: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), Clock: true}.String()
}

func (a *Adapter) timeOf(w model.When) *CustomTime {
	if w.IsZero() {
		return nil
	}
	return NewTime(time.Date(w.T.Year(), w.T.Month(), w.T.Day(), w.T.Hour(), w.T.Minute(), 0, 0, a.loc))
}

// FromEntity writes the modeled fields of e onto t, keeping everything else.
func (a *Adapter) FromEntity(t *Task, e model.Entity) error {
	task, ok := e.(*model.Task)
	if !ok {
		return fmt.Errorf("taskwarrior cannot hold a %s", e.Kind())
	}
	t.LampID = string(task.ID)
	t.Description = task.Title
	t.Project = task.Project
	t.Priority = priorities[task.Priority]
	t.Scheduled = a.timeOf(task.Scheduled)
	t.Due = a.timeOf(task.Deadline)
	t.Tags = append([]string(nil), task.Tags...)

	var kept []Annotation
	old := make(map[string]Annotation, len(t.Annotations))
	for _, ann := range t.Annotations {
		old[ann.Description] = ann
	}
	if task.Notes != "" {
		for _, line := range strings.Split(task.Notes, "\n") {
			ann, ok := old[line]
			if !ok {
				ann = Annotation{Description: line, Entry: NewTime(a.now())}
			}
			kept = append(kept, ann)
		}
	}
	t.Annotations = kept

	t.Status = PENDING
	switch task.State {
	case model.StateDone, model.StateCancelled:
		t.Status = COMPLETED
		if t.End == nil {
			t.End = NewTime(task.Completed)
		}
		if t.End == nil {
			t.End = NewTime(a.now())
		}
		if task.State == model.StateCancelled {
			t.Tags = append(t.Tags, tagCancelled)
		}
	case model.StateNext:
		t.Tags = append(t.Tags, tagNext)
	case model.StateWaiting:
		t.Tags = append(t.Tags, WAITING)
	case model.StateSomeday:
		t.Tags = append(t.Tags, tagSomeday)
	}
	if t.Status == PENDING {
		t.End = nil
	}
	if t.Entry == nil {
		t.Entry = NewTime(task.Created)
	}
	return nil
}

func (a *Adapter) find(ctx context.Context, id string) (*Task, error) {
	tasks, err := a.client.GetTasks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].UUID == id && tasks[i].Status != DELETED {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

func (a *Adapter) Push(ctx context.Context, item adapter.PushItem) (adapter.RemoteRef, error) {
	var t *Task
	if item.RemoteID != "" {
		found, err := a.find(ctx, item.RemoteID)
		if err != nil {
			return adapter.RemoteRef{}, err
		}
		t = found
	}
	if t == nil {
		t = &Task{UUID: uuid.NewString()}
	}
	if err := a.FromEntity(t, item.Entity); err != nil {
		return adapter.RemoteRef{}, err
	}
	t.Modified = nil
	if err := a.client.Import(ctx, []Task{*t}); err != nil {
		return adapter.RemoteRef{}, err
	}
	saved, err := a.find(ctx, t.UUID)
	if err != nil {
		return adapter.RemoteRef{}, err
	}
	if saved == nil {
		return adapter.RemoteRef{}, fmt.Errorf("task %s missing after import", t.UUID)
	}
	return adapter.RemoteRef{RemoteID: saved.UUID, Revision: adapter.Revision(saved.Modified.String())}, nil
}

func (a *Adapter) Delete(ctx context.Context, remoteID string) error {
	t, err := a.find(ctx, remoteID)
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("task %s: %w", remoteID, adapter.ErrNotFound)
	}
	return a.client.DeleteTask(ctx, remoteID)
}
