package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrisonrobin/lamp/pkg/config"
)

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lamp.log")
	logs := New(config.Log{File: path, MaxSizeMB: 1})
	logs.Logger("sync").Printf("pulled %d items", 3)
	if err := logs.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "[sync] ") || !strings.Contains(string(data), "pulled 3 items") {
		t.Errorf("Unexpected log contents %q", data)
	}
}

func TestLoggerWithoutFile(t *testing.T) {
	logs := New(config.Log{})
	logs.Logger("store").Print("dropped")
	if err := logs.Close(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}
