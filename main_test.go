package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LAMP_ORG_DIRECTORY", filepath.Join(dir, "org"))
	t.Setenv("LAMP_STATE_DIR", filepath.Join(dir, "state"))
	t.Setenv("LAMP_KEYRING_BACKEND", "file")
	return &app{configPath: filepath.Join(dir, "config.yaml")}
}

func TestHookEchoesLastTask(t *testing.T) {
	a := testApp(t)
	cmd := hookCmd(a)
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(`{"uuid":"a","description":"Old","status":"pending"}
{"uuid":"a","description":"New","status":"pending"}
`))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("hook failed: %v", err)
	}
	if !strings.Contains(out.String(), `"description":"New"`) || strings.Contains(out.String(), "Old") {
		t.Errorf("Expected only the modified task echoed, got %q", out.String())
	}
	a.close()
}

func TestParseReportsEntities(t *testing.T) {
	a := testApp(t)
	if err := a.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer a.close()
	if err := os.MkdirAll(a.cfg.OrgDirectory, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(a.cfg.OrgDirectory, "inbox.org")
	if err := os.WriteFile(path, []byte("* TODO Buy milk\n* TODO Call Bob\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := parseCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("parse failed: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "2 task") {
		t.Errorf("Expected 2 tasks reported, got %q", out.String())
	}
	if data, _ := os.ReadFile(path); strings.Contains(string(data), ":ID:") {
		t.Error("Expected parse to leave the file untouched")
	}
}

func TestFmtAssignsIDs(t *testing.T) {
	a := testApp(t)
	if err := a.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer a.close()
	if err := os.MkdirAll(a.cfg.OrgDirectory, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(a.cfg.OrgDirectory, "inbox.org")
	if err := os.WriteFile(path, []byte("* TODO Buy milk\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := fmtCmd(a)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("fmt failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ":ID:") {
		t.Errorf("Expected an ID property, got %q", data)
	}
	if _, err := os.Stat(filepath.Join(a.cfg.OrgDirectory, "projects.org")); err != nil {
		t.Errorf("Expected projects.org created: %v", err)
	}
}

func TestResolveRejectsUnknownDecision(t *testing.T) {
	a := testApp(t)
	if err := a.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	defer a.close()
	cmd := resolveCmd(a)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"work", "x", "both"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "unknown resolution") {
		t.Errorf("Expected unknown resolution error, got %v", err)
	}
}
