package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/colors"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/overdue"
)

// Options configures a CalendarClient.
type Options struct {
	Colors   *colors.ColorCache
	Overdue  *overdue.Table
	Location *time.Location
	Logger   *log.Logger
	Now      func() time.Time
}

// CalendarClient syncs dated tasks with the events of one Google calendar.
type CalendarClient struct {
	name       string
	srv        *calendar.Service
	calendarID string
	colors     *colors.ColorCache
	overdue    *overdue.Table
	loc        *time.Location
	logger     *log.Logger
	now        func() time.Time
}

// NewCalendarClient returns the adapter for calendarID.
func NewCalendarClient(name string, srv *calendar.Service, calendarID string, opts Options) *CalendarClient {
	c := &CalendarClient{
		name:       name,
		srv:        srv,
		calendarID: calendarID,
		colors:     opts.Colors,
		overdue:    opts.Overdue,
		loc:        opts.Location,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[google] ", log.LstdFlags)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *CalendarClient) Source() string { return c.name }

// Handles reports whether e belongs on the calendar: tasks and habits with a
// date.
func (c *CalendarClient) Handles(e model.Entity) bool {
	t, err := taskOf(e)
	if err != nil {
		return false
	}
	return !t.Scheduled.IsZero() || !t.Deadline.IsZero()
}

// Pull lists the events changed since the sync token. An expired token falls
// back to a full listing.
func (c *CalendarClient) Pull(ctx context.Context, since adapter.Revision) (adapter.Stream, error) {
	items, token, err := c.list(ctx, string(since))
	if since != "" && isStatus(err, http.StatusGone) {
		c.logger.Printf("%s: sync token expired, listing all events", c.name)
		items, token, err = c.list(ctx, "")
	}
	if err != nil {
		return nil, err
	}
	return adapter.NewSliceStream(items, adapter.Revision(token), nil), nil
}

func (c *CalendarClient) list(ctx context.Context, syncToken string) ([]adapter.RemoteItem, string, error) {
	call := c.srv.Events.List(c.calendarID).ShowDeleted(true).MaxResults(250)
	if syncToken != "" {
		call = call.SyncToken(syncToken)
	}
	var items []adapter.RemoteItem
	var next string
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, ev := range page.Items {
			if item, ok := ConvertEventToItem(ev, c.loc); ok {
				items = append(items, item)
			}
		}
		if page.NextSyncToken != "" {
			next = page.NextSyncToken
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}
	return items, next, nil
}

// Push inserts or patches the event of a task.
func (c *CalendarClient) Push(ctx context.Context, item adapter.PushItem) (adapter.RemoteRef, error) {
	var project string
	if t, err := taskOf(item.Entity); err == nil {
		project = t.Project
	}
	colorID := ""
	if c.colors != nil {
		colorID = c.colors.ColorID(project)
		if err := c.colors.Save(); err != nil {
			c.logger.Printf("WARNING: could not save color cache: %v", err)
		}
	}
	event, err := ConvertTaskToEvent(item.Entity, colorID, c.loc, c.now())
	if err != nil {
		return adapter.RemoteRef{}, err
	}

	var saved *calendar.Event
	if item.RemoteID != "" {
		saved, err = c.PatchEvent(ctx, item.RemoteID, event)
		if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusGone) {
			saved, err = nil, nil
		}
	}
	if saved == nil && err == nil {
		saved, err = c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	}
	if err != nil {
		return adapter.RemoteRef{}, err
	}
	c.track(saved, item.Entity)
	return adapter.RemoteRef{RemoteID: saved.Id, Revision: adapter.Revision(saved.Etag)}, nil
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
}

// Delete deletes an event from the calendar.
func (c *CalendarClient) Delete(ctx context.Context, eventID string) error {
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if isStatus(err, http.StatusNotFound) || isStatus(err, http.StatusGone) {
		return fmt.Errorf("event %s: %w", eventID, adapter.ErrNotFound)
	}
	if err == nil && c.overdue != nil {
		c.overdue.Remove(eventID)
		c.saveOverdue()
	}
	return err
}

// track remembers open events so Committed can flag them once their date
// passes.
func (c *CalendarClient) track(ev *calendar.Event, e model.Entity) {
	if c.overdue == nil {
		return
	}
	t, err := taskOf(e)
	if err != nil {
		return
	}
	var at time.Time
	if _, when := anchor(t); t.State.IsOpen() && !when.IsZero() {
		at = time.Date(when.T.Year(), when.T.Month(), when.T.Day(), when.T.Hour(), when.T.Minute(), 0, 0, c.loc)
		if !when.Clock {
			at = at.AddDate(0, 0, 1)
		}
	}
	if !at.After(c.now()) {
		at = time.Time{}
	}
	c.overdue.Update(ev.Id, ev.Summary, at)
	c.saveOverdue()
}

// Committed prefixes the events of open tasks whose date has passed. It runs
// after a sync committed so an aborted run leaves the calendar untouched.
func (c *CalendarClient) Committed(ctx context.Context) error {
	if c.overdue == nil {
		return nil
	}
	for id, e := range c.overdue.Sweep(c.now()) {
		patch := &calendar.Event{Summary: prefixOverdue + " " + e.Summary}
		if _, err := c.PatchEvent(ctx, id, patch); err != nil && !isStatus(err, http.StatusNotFound) && !isStatus(err, http.StatusGone) {
			c.logger.Printf("WARNING: sweep: error patching event %s: %v", id, err)
		}
	}
	c.saveOverdue()
	return nil
}

func (c *CalendarClient) saveOverdue() {
	if err := c.overdue.Save(); err != nil {
		c.logger.Printf("WARNING: could not save overdue table: %v", err)
	}
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}
