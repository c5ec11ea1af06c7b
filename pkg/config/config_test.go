package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `org_directory: /data/org
todo_keywords: TODO NEXT | DONE
cost_max: 50
lists: [books, groceries]
snapshot:
  backend: sqlite
log:
  file: /tmp/lamp.log
sources:
  - name: work
    type: google
    calendar: Work Tasks
  - name: nas
    type: webdav
    url: https://nas.local/dav/
    username: me
    kinds: [task, project]
`

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.OrgDirectory != "/data/org" || cfg.CostMax != 50 || cfg.Snapshot.Backend != "sqlite" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.Lists[0] != "books" || cfg.Lists[1] != "groceries" {
		t.Errorf("Expected custom lists, got %v", cfg.Lists)
	}
	if v := cfg.Vocabulary(); len(v.Open) != 2 || v.Closed[0] != "DONE" {
		t.Errorf("Unexpected vocabulary %+v", v)
	}
	if cfg.Log.MaxBackups != 3 {
		t.Errorf("Expected default max_backups 3, got %d", cfg.Log.MaxBackups)
	}
	nas, ok := cfg.Source("nas")
	if !ok {
		t.Fatal("Expected source nas")
	}
	ac := nas.Adapter()
	if ac.Type != "webdav" || ac.Username != "me" || len(ac.Kinds) != 2 {
		t.Errorf("Unexpected adapter config %+v", ac)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Snapshot.Backend != "json" || len(cfg.Lists) != 2 || cfg.CostMax != 100 {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.SnapshotDir() != cfg.StateDir {
		t.Errorf("Expected snapshots in %s, got %s", cfg.StateDir, cfg.SnapshotDir())
	}
	if cfg.Keyring.Backend != "" || cfg.KeyringDir() != filepath.Join(cfg.StateDir, "keyring") {
		t.Errorf("Expected automatic keyring in the state dir, got %q at %s", cfg.Keyring.Backend, cfg.KeyringDir())
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LAMP_ORG_DIRECTORY", "/elsewhere")
	t.Setenv("LAMP_SNAPSHOT_BACKEND", "json")
	t.Setenv("LAMP_KEYRING_BACKEND", "file")
	cfg, err := LoadFile(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Keyring.Backend != "file" {
		t.Errorf("Expected file keyring from the environment, got %q", cfg.Keyring.Backend)
	}
	if cfg.OrgDirectory != "/elsewhere" || cfg.Snapshot.Backend != "json" {
		t.Errorf("Expected overrides applied, got %s %s", cfg.OrgDirectory, cfg.Snapshot.Backend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"backend", "snapshot:\n  backend: redis\n", "snapshot backend"},
		{"cost", "cost_max: 0\n", "cost_max"},
		{"lists", "lists: [one]\n", "lists"},
		{"keywords", "todo_keywords: \"| DONE\"\n", "todo_keywords"},
		{"duplicate", "sources:\n  - {name: a, type: google}\n  - {name: a, type: caldav}\n", "defined twice"},
		{"type", "sources:\n  - {name: a}\n", "no type"},
		{"keyring", "keyring:\n  backend: floppy\n", "keyring backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.text))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected an error about %s, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sample))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	cfg.Path = filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg.Sources = append(cfg.Sources, Source{Name: "tw", Type: "taskwarrior"})
	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(cfg.Path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
	}
	again, err := LoadFile(cfg.Path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(again.Sources) != 3 || again.Sources[2].Name != "tw" || again.CostMax != 50 {
		t.Errorf("Unexpected reloaded config %+v", again)
	}
}
