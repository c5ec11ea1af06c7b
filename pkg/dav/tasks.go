package dav

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/index"
	"github.com/harrisonrobin/lamp/pkg/model"
)

// DefaultCalendar is looked up when a source names no calendar.
const DefaultCalendar = "Tasks"

func init() {
	adapter.Register("caldav", func(ctx context.Context, cfg adapter.Config, env adapter.Env) (adapter.Adapter, error) {
		httpClient, err := HTTPClient(cfg, env.Secrets)
		if err != nil {
			return nil, err
		}
		client, err := caldav.NewClient(httpClient, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		calendar := cfg.Calendar
		if !strings.HasPrefix(calendar, "/") {
			if calendar, err = FindCalendar(ctx, client, calendar); err != nil {
				return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
			}
		}
		return NewTasks(cfg.Name, client, calendar, TaskOptions{Logger: env.Logger}), nil
	})
}

// FindCalendar returns the path of the current user's calendar called name.
func FindCalendar(ctx context.Context, client *caldav.Client, name string) (string, error) {
	if name == "" {
		name = DefaultCalendar
	}
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("find principal: %w", err)
	}
	home, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("find calendar home: %w", err)
	}
	calendars, err := client.FindCalendars(ctx, home)
	if err != nil {
		return "", fmt.Errorf("list calendars: %w", err)
	}
	for _, c := range calendars {
		if c.Name == name || cleanPath(c.Path) == cleanPath(name) {
			return c.Path, nil
		}
	}
	return "", fmt.Errorf("calendar '%s' not found", name)
}

type TaskOptions struct {
	Location *time.Location
	Logger   *log.Logger
	Now      func() time.Time
}

// Tasks keeps tasks as VTODO objects of a CalDAV calendar. Like Documents,
// its cursor is the encoded tag listing of the calendar.
type Tasks struct {
	name     string
	client   *caldav.Client
	calendar string
	loc      *time.Location
	logger   *log.Logger
	now      func() time.Time
}

func NewTasks(name string, client *caldav.Client, calendar string, opts TaskOptions) *Tasks {
	t := &Tasks{
		name:     name,
		client:   client,
		calendar: calendar,
		loc:      opts.Location,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.logger == nil {
		t.logger = log.New(os.Stderr, "[caldav] ", log.LstdFlags)
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

func (t *Tasks) Source() string { return t.name }

// Same pairs a task with a VTODO created elsewhere by title and schedule.
func (t *Tasks) Same(local model.Entity, remote adapter.RemoteItem) bool {
	task, ok := local.(*model.Task)
	if !ok || remote.EntityID != "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(task.Title), strings.TrimSpace(remote.Fields["title"])) &&
		task.Scheduled.String() == remote.Fields["scheduled"]
}

func objectTag(obj caldav.CalendarObject) string {
	if obj.ETag != "" {
		return obj.ETag
	}
	return fmt.Sprintf("%x-%x", obj.ModTime.UnixNano(), obj.ContentLength)
}

var todoQuery = &caldav.CalendarQuery{
	CompRequest: caldav.CalendarCompRequest{
		Name:     "VCALENDAR",
		AllProps: true,
		AllComps: true,
	},
	CompFilter: caldav.CompFilter{
		Name:  "VCALENDAR",
		Comps: []caldav.CompFilter{{Name: "VTODO"}},
	},
}

func (t *Tasks) Pull(ctx context.Context, since adapter.Revision) (adapter.Stream, error) {
	old, err := index.Decode(string(since))
	if err != nil {
		return nil, err
	}
	objects, err := t.client.QueryCalendar(ctx, t.calendar, todoQuery)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.calendar, err)
	}
	next := index.New()
	byPath := make(map[string]caldav.CalendarObject, len(objects))
	for _, obj := range objects {
		p := cleanPath(obj.Path)
		next.Set(p, objectTag(obj))
		byPath[p] = obj
	}

	changed, removed := old.Diff(next)
	var items []adapter.RemoteItem
	for _, p := range changed {
		todo := FindTodo(byPath[p].Data)
		if todo == nil {
			continue
		}
		id, fields, err := ReadTodo(todo, t.loc)
		if err != nil {
			t.logger.Printf("WARNING: skipping %s: %v", p, err)
			continue
		}
		items = append(items, adapter.RemoteItem{
			RemoteID: p,
			EntityID: id,
			Kind:     model.KindTask,
			Fields:   fields,
			Revision: adapter.Revision(next.Get(p)),
		})
	}
	for _, p := range removed {
		items = append(items, adapter.RemoteItem{RemoteID: p, Kind: model.KindTask, Deleted: true})
	}
	return adapter.NewSliceStream(items, adapter.Revision(next.Encode()), nil), nil
}

func (t *Tasks) Push(ctx context.Context, item adapter.PushItem) (adapter.RemoteRef, error) {
	task, ok := item.Entity.(*model.Task)
	if !ok {
		return adapter.RemoteRef{}, fmt.Errorf("caldav cannot hold a %s", item.Entity.Kind())
	}
	p := item.RemoteID
	var cal *ical.Calendar
	if p != "" {
		obj, err := t.client.GetCalendarObject(ctx, p)
		if err != nil {
			t.logger.Printf("WARNING: %s: %v, writing a new object", p, err)
		} else {
			cal = obj.Data
		}
	} else {
		p = path.Join(t.calendar, string(task.ID)+".ics")
	}

	obj, err := t.client.PutCalendarObject(ctx, p, TodoCalendar(task, cal, t.now()))
	if err != nil {
		return adapter.RemoteRef{}, fmt.Errorf("put %s: %w", p, err)
	}
	if obj.ETag == "" {
		if obj, err = t.client.GetCalendarObject(ctx, p); err != nil {
			return adapter.RemoteRef{}, fmt.Errorf("get %s: %w", p, err)
		}
	}
	return adapter.RemoteRef{RemoteID: cleanPath(p), Revision: adapter.Revision(objectTag(*obj))}, nil
}

func (t *Tasks) Delete(ctx context.Context, remoteID string) error {
	ok, err := exists(ctx, t.client.Client, t.calendar, remoteID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", remoteID, adapter.ErrNotFound)
	}
	return t.client.RemoveAll(ctx, remoteID)
}
