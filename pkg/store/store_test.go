package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/lamp/pkg/model"
)

const inboxText = `#+TITLE: Inbox
#+TODO: TODO NEXT WAITING SOMEDAY | DONE CANCELLED

* TODO Buy milk :@errands:
  :PROPERTIES:
  :ID:       milk
  :FOO:      bar
  :END:
  Two litres.
# a comment nobody models
* TODO Water plants
  SCHEDULED: <2026-02-01 Sun +1w>
  :PROPERTIES:
  :ID: plants
  :END:
`

func setup(t *testing.T) (Layout, *Workspace) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "inbox.org"), []byte(inboxText), 0o644); err != nil {
		t.Fatal(err)
	}
	layout := DefaultLayout(dir)
	ws, diags, err := Load(layout, Options{Today: time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Expected no diagnostics, got %v", diags)
	}
	return layout, ws
}

func read(t *testing.T, layout Layout, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(layout.Dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestSaveCreatesMissingFiles(t *testing.T) {
	layout, ws := setup(t)
	if err := ws.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := read(t, layout, "inbox.org"); got != inboxText {
		t.Errorf("Expected inbox untouched.\nwant:\n%s\ngot:\n%s", inboxText, got)
	}
	if got := read(t, layout, "next.org"); !strings.HasPrefix(got, "#+TITLE: Next Actions\n#+TODO: ") {
		t.Errorf("Expected header for new file, got %q", got)
	}
	if got := read(t, layout, "media.org"); got != "#+TITLE: media\n\n" {
		t.Errorf("Expected list header, got %q", got)
	}
	if got := read(t, layout, "notes.org"); got != "#+TITLE: Notes\n\n" {
		t.Errorf("Expected notes header, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(layout.Dir, "dayplan.org")); !os.IsNotExist(err) {
		t.Error("Expected no day plan file without a plan")
	}
}

func TestUnrelatedEditKeepsUnknownContent(t *testing.T) {
	layout, ws := setup(t)
	e, ok := ws.Get("plants")
	if !ok {
		t.Fatal("Expected entity plants")
	}
	if err := e.SetField("title", "Water the plants"); err != nil {
		t.Fatal(err)
	}
	ws.Put(e)
	if err := ws.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	want := strings.Replace(inboxText, "* TODO Water plants", "* TODO Water the plants", 1)
	if got := read(t, layout, "inbox.org"); got != want {
		t.Errorf("Expected only the title to change.\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestTransitionRecurringWritesNextInstance(t *testing.T) {
	layout, ws := setup(t)
	at := time.Date(2026, 2, 20, 8, 0, 0, 0, time.UTC)
	if err := ws.Transition("plants", model.StateDone, at); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := ws.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got := read(t, layout, "inbox.org")
	for _, want := range []string{
		"* DONE Water plants\n  SCHEDULED: <2026-02-01 Sun +1w> CLOSED: [2026-02-20 Fri 08:00]\n",
		`- State "DONE" from "TODO" [2026-02-20 Fri 08:00]`,
		"* TODO Water plants\n  SCHEDULED: <2026-02-08 Sun +1w>\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected %q in:\n%s", want, got)
		}
	}
	if err := ws.Transition("missing", model.StateDone, at); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCommitSkipsConcurrentEdits(t *testing.T) {
	_, ws := setup(t)
	view := ws.Snapshot()
	milk, _ := view.Get("milk")
	plants, _ := view.Get("plants")

	// A local edit lands while the batch is being computed.
	local, _ := ws.Get("milk")
	local.SetField("notes", "Oat milk")
	ws.Put(local)

	remoteMilk := milk.Clone()
	remoteMilk.SetField("title", "Buy bread")
	remotePlants := plants.Clone()
	remotePlants.SetField("title", "Water cactus")
	added := model.NewTask("New from remote", time.Now())

	var b Batch
	b.Put(remoteMilk, milk.Rev())
	b.Put(remotePlants, plants.Rev())
	b.Put(added, 0)
	skipped := ws.Commit(b)
	if len(skipped) != 1 || skipped[0] != "milk" {
		t.Fatalf("Expected milk to be skipped, got %v", skipped)
	}
	if got, _ := ws.Get("milk"); got.(*model.Task).Title != "Buy milk" {
		t.Errorf("Expected local edit kept, got %q", got.(*model.Task).Title)
	}
	if got, _ := ws.Get("plants"); got.(*model.Task).Title != "Water cactus" {
		t.Errorf("Expected remote title applied, got %q", got.(*model.Task).Title)
	}
	if _, ok := ws.Get(added.ID); !ok {
		t.Error("Expected new entity to be added")
	}
	if _, ok := view.Get(added.ID); ok {
		t.Error("Expected the view to be unaffected by the commit")
	}
}

func TestReloadKeepsUnchangedRevisions(t *testing.T) {
	layout, ws := setup(t)
	before, _ := ws.Get("milk")
	edited := strings.Replace(inboxText, "* TODO Water plants", "* NEXT Water plants", 1)
	if err := os.WriteFile(filepath.Join(layout.Dir, "inbox.org"), []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, _, err := ws.Reload("inbox.org", time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if !changed {
		t.Error("Expected reload to report a change")
	}
	after, _ := ws.Get("milk")
	if after.Rev() != before.Rev() {
		t.Errorf("Expected unchanged revision %d, got %d", before.Rev(), after.Rev())
	}
	plants, _ := ws.Get("plants")
	if plants.(*model.Task).State != model.StateNext || plants.Rev() != 2 {
		t.Errorf("Expected reloaded state NEXT at revision 2, got %s at %d", plants.(*model.Task).State, plants.Rev())
	}
}

func TestReloadIgnoresUnownedEdits(t *testing.T) {
	layout, ws := setup(t)
	today := time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
	changed, _, err := ws.Reload("inbox.org", today)
	if err != nil || changed {
		t.Errorf("Expected untouched file to report no change, got %v, %v", changed, err)
	}
	edited := strings.Replace(inboxText, "# a comment nobody models", "# a different comment", 1)
	if err := os.WriteFile(filepath.Join(layout.Dir, "inbox.org"), []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, _, err = ws.Reload("inbox.org", today)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if changed {
		t.Error("Expected comment edit to report no change")
	}
	if err := ws.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := read(t, layout, "inbox.org"); !strings.Contains(got, "# a different comment") {
		t.Errorf("Expected edited comment to be kept, got:\n%s", got)
	}
}

func TestReloadUsesCurrentDay(t *testing.T) {
	layout, ws := setup(t)
	plan := "#+TITLE: Day Plan\n#+DATE: 2026-02-23\n#+SPOON_BUDGET: 50\n#+ID: d1\n"
	if err := os.WriteFile(filepath.Join(layout.Dir, "dayplan.org"), []byte(plan), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, _, err := ws.Reload("dayplan.org", time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, ok := ws.Get("d1"); !ok || !changed {
		t.Fatalf("Expected today's plan to load and report a change, got %v, %v", ok, changed)
	}
	changed, _, err = ws.Reload("dayplan.org", time.Date(2026, 2, 24, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if _, ok := ws.Get("d1"); ok || !changed {
		t.Errorf("Expected plan to go stale the next day, got present=%v changed=%v", ok, changed)
	}
}

func TestNotePersists(t *testing.T) {
	layout, ws := setup(t)
	note := model.NewNote("Kitchen renovation", time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC))
	note.Body = "Measure the sink."
	note.Links = []model.Link{{Type: model.LinkTask, ID: "plants"}}
	ws.Put(note)
	if err := ws.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if got := read(t, layout, "notes.org"); !strings.Contains(got, "* Kitchen renovation") || !strings.Contains(got, "task:plants") {
		t.Errorf("Expected the note in notes.org, got:\n%s", got)
	}

	again, diags, err := Load(layout, Options{Today: time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)})
	if err != nil || len(diags) != 0 {
		t.Fatalf("Load failed: %v %v", err, diags)
	}
	e, ok := again.Get(note.ID)
	if !ok {
		t.Fatal("Expected the note after reload")
	}
	got := e.(*model.Note)
	if got.Body != "Measure the sink." || got.Fields().Get("links") != "task:plants" {
		t.Errorf("Unexpected note %+v", got)
	}
}

func TestMoveToArchive(t *testing.T) {
	layout, ws := setup(t)
	if err := ws.Move("milk", "archive.org"); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if err := ws.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if strings.Contains(read(t, layout, "inbox.org"), "Buy milk") {
		t.Error("Expected task removed from inbox")
	}
	archive := read(t, layout, "archive.org")
	if !strings.Contains(archive, "* TODO Buy milk :@errands:") || !strings.Contains(archive, ":FOO: bar") {
		t.Errorf("Expected task with its properties in archive, got:\n%s", archive)
	}
}

func TestLoadUnreadable(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "inbox.org"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, _, err := Load(DefaultLayout(dir), Options{})
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "read" {
		t.Errorf("Expected a read PersistenceError, got %v", err)
	}
}
