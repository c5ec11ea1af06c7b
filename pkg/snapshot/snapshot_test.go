package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrisonrobin/lamp/pkg/model"
)

func backends(t *testing.T) map[string]func(dir string) Store {
	return map[string]func(dir string) Store{
		"json": func(dir string) Store {
			s, err := Open("json", dir)
			if err != nil {
				t.Fatalf("Open json failed: %v", err)
			}
			return s
		},
		"sqlite": func(dir string) Store {
			s, err := Open("sqlite", dir)
			if err != nil {
				t.Fatalf("Open sqlite failed: %v", err)
			}
			return s
		},
	}
}

func TestStoreApplyAndReopen(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			s := open(dir)

			task := model.NewTask("Call plumber", at)
			other := model.NewTask("Pay rent", at)
			cursor := "rev-1"
			err := s.Apply(ctx, "cal", Batch{
				Put:    []Snapshot{New(task, "evt-1", "etag-1", at), New(other, "evt-2", "", at)},
				Cursor: &cursor,
			})
			if err != nil {
				t.Fatalf("Apply failed: %v", err)
			}
			if err := s.Apply(ctx, "cal", Batch{Delete: []model.ID{other.ID}}); err != nil {
				t.Fatalf("Apply delete failed: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			s = open(dir)
			defer s.Close()
			snap, ok, err := s.Get(ctx, "cal", task.ID)
			if err != nil || !ok {
				t.Fatalf("Expected snapshot, got %v %v", ok, err)
			}
			if snap.RemoteID != "evt-1" || snap.Revision != "etag-1" || snap.Fingerprint != model.Fingerprint(task) {
				t.Errorf("Unexpected snapshot %+v", snap)
			}
			if snap.Fields["title"] != model.HashValue("Call plumber") {
				t.Errorf("Expected title hash, got %q", snap.Fields["title"])
			}
			if !snap.Updated.Equal(at) {
				t.Errorf("Expected updated %v, got %v", at, snap.Updated)
			}
			list, err := s.List(ctx, "cal")
			if err != nil || len(list) != 1 {
				t.Errorf("Expected 1 snapshot after delete, got %d (%v)", len(list), err)
			}
			if got, _ := s.Cursor(ctx, "cal"); got != "rev-1" {
				t.Errorf("Expected cursor rev-1, got %q", got)
			}
			if got, _ := s.Cursor(ctx, "other"); got != "" {
				t.Errorf("Expected empty cursor for unknown source, got %q", got)
			}
			if _, ok, _ := s.Get(ctx, "other", task.ID); ok {
				t.Error("Expected sources to be separate")
			}
		})
	}
}

func TestApplyCancelled(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			task := model.NewTask("x", time.Now())
			if err := s.Apply(ctx, "cal", Batch{Put: []Snapshot{New(task, "r", "", time.Now())}}); err == nil {
				t.Fatal("Expected an error for a cancelled context")
			}
			if _, ok, _ := s.Get(context.Background(), "cal", task.ID); ok {
				t.Error("Expected nothing applied")
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
