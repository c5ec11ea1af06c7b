// Package google syncs tasks with Google Calendar events.
package google

import (
	"context"
	"fmt"
	"path/filepath"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/auth"
	"github.com/harrisonrobin/lamp/pkg/colors"
	"github.com/harrisonrobin/lamp/pkg/overdue"
)

// DefaultCalendar is used when a source names no calendar.
const DefaultCalendar = "Tasks"

func init() {
	adapter.Register("google", NewClient)
}

// TokenService is the credential a source keeps its OAuth token under.
func TokenService(cfg adapter.Config) string {
	if cfg.Credential != "" {
		return cfg.Credential
	}
	return "google:" + cfg.Name
}

// NewClient creates the calendar adapter of a configured source.
func NewClient(ctx context.Context, cfg adapter.Config, env adapter.Env) (adapter.Adapter, error) {
	client, err := auth.Client(ctx, env.Secrets, TokenService(cfg), auth.CalendarScopes)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.URL != "" {
		opts = append(opts, option.WithEndpoint(cfg.URL))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Calendar client: %w", err)
	}

	name := cfg.Calendar
	if name == "" {
		name = DefaultCalendar
	}
	calendarID, err := FindCalendar(ctx, srv, name)
	if err != nil {
		return nil, err
	}

	colorCache, err := colors.NewColorCache(filepath.Join(env.StateDir, "project_colors.json"))
	if err != nil {
		return nil, err
	}
	table, err := overdue.NewTable(filepath.Join(env.StateDir, cfg.Name+"-overdue.json"))
	if err != nil {
		return nil, err
	}
	return NewCalendarClient(cfg.Name, srv, calendarID, Options{
		Colors:  colorCache,
		Overdue: table,
		Logger:  env.Logger,
	}), nil
}

// FindCalendar returns the id of the calendar whose summary is name.
func FindCalendar(ctx context.Context, srv *calendar.Service, name string) (string, error) {
	var calendarID string
	err := srv.CalendarList.List().Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			if calendarID == "" && (item.Summary == name || item.Id == name) {
				calendarID = item.Id
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	if calendarID == "" {
		return "", fmt.Errorf("calendar '%s' not found", name)
	}
	return calendarID, nil
}
