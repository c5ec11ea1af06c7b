package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReportsLayoutFiles(t *testing.T) {
	layout := DefaultLayout(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- layout.Watch(ctx, func(f File) { changed <- f.Name })
	}()
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(layout.Dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(layout.Dir, "inbox.org"), []byte("* TODO x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case name := <-changed:
		if name != "inbox.org" {
			t.Errorf("Expected inbox.org, got %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected a change report")
	}
	select {
	case name := <-changed:
		t.Errorf("Expected one report for the burst, got another for %s", name)
	case <-time.After(2 * settle):
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
