package dav

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-webdav"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/model"
)

var now = time.Date(2026, 2, 23, 9, 0, 0, 0, time.UTC)

func setupDocuments(t *testing.T, kinds ...model.Kind) (*Documents, string) {
	t.Helper()
	dir := t.TempDir()
	ts := httptest.NewServer(&webdav.Handler{FileSystem: webdav.LocalFileSystem(dir)})
	t.Cleanup(ts.Close)
	client, err := webdav.NewClient(ts.Client(), ts.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	d := NewDocuments("docs", client, "lamp", DocumentOptions{
		Kinds:  kinds,
		Logger: log.New(io.Discard, "", 0),
	})
	return d, filepath.Join(dir, "lamp")
}

func pullAll(t *testing.T, a adapter.Adapter, since adapter.Revision) ([]adapter.RemoteItem, adapter.Revision) {
	t.Helper()
	stream, err := a.Pull(context.Background(), since)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	defer stream.Close()
	var items []adapter.RemoteItem
	for stream.Next() {
		items = append(items, stream.Item())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	return items, stream.Revision()
}

func plumber() *model.Task {
	task := model.NewTask("Call plumber", now)
	task.Priority = "B"
	task.Scheduled = model.Date(2026, 2, 25)
	task.Tags = []string{"phone"}
	task.Project = "House"
	task.Notes = "Kitchen sink."
	return task
}

func TestDocumentPushAndPull(t *testing.T) {
	d, _ := setupDocuments(t)
	task := plumber()
	ref, err := d.Push(context.Background(), adapter.PushItem{Entity: task})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if !strings.HasSuffix(ref.RemoteID, string(task.ID)+".org") || ref.Revision == "" {
		t.Errorf("Unexpected ref %+v", ref)
	}

	items, rev := pullAll(t, d, "")
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.EntityID != task.ID || item.Kind != model.KindTask || item.RemoteID != ref.RemoteID {
		t.Errorf("Expected %s at %s, got %s at %s", task.ID, ref.RemoteID, item.EntityID, item.RemoteID)
	}
	if item.Revision != ref.Revision {
		t.Errorf("Expected revision %s, got %s", ref.Revision, item.Revision)
	}
	want := task.Fields()
	for _, name := range model.FieldNames(model.KindTask) {
		if !item.Modeled(name) {
			t.Errorf("Expected %s modeled", name)
		}
		if item.Fields[name] != want.Get(name) {
			t.Errorf("Expected %s %q, got %q", name, want.Get(name), item.Fields[name])
		}
	}

	if items, _ := pullAll(t, d, rev); len(items) != 0 {
		t.Errorf("Expected no changes, got %d items", len(items))
	}
}

func TestDocumentRemoteEdit(t *testing.T) {
	d, dir := setupDocuments(t)
	task := plumber()
	ref, _ := d.Push(context.Background(), adapter.PushItem{Entity: task})
	_, rev := pullAll(t, d, "")

	file := filepath.Join(dir, string(task.ID)+".org")
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	text := strings.Replace(string(data), "Call plumber", "Call the plumber", 1)
	text = strings.Replace(text, ":ID:", ":FOO: bar\n:ID:", 1)
	if err := os.WriteFile(file, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	items, _ := pullAll(t, d, rev)
	if len(items) != 1 || items[0].Fields["title"] != "Call the plumber" {
		t.Fatalf("Expected the edited title, got %v", items)
	}

	task.Title = "Call the plumber"
	task.State = model.StateNext
	if _, err := d.Push(context.Background(), adapter.PushItem{Entity: task, RemoteID: ref.RemoteID}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	data, _ = os.ReadFile(file)
	if !strings.Contains(string(data), ":FOO: bar") || !strings.Contains(string(data), "NEXT") {
		t.Errorf("Expected unknown property kept and state written, got:\n%s", data)
	}
}

func TestDocumentDelete(t *testing.T) {
	d, _ := setupDocuments(t)
	ref, _ := d.Push(context.Background(), adapter.PushItem{Entity: plumber()})
	_, rev := pullAll(t, d, "")

	if err := d.Delete(context.Background(), ref.RemoteID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := d.Delete(context.Background(), ref.RemoteID); !errors.Is(err, adapter.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	items, _ := pullAll(t, d, rev)
	if len(items) != 1 || !items[0].Deleted || items[0].RemoteID != ref.RemoteID {
		t.Errorf("Expected a tombstone for %s, got %v", ref.RemoteID, items)
	}
}

func TestDocumentListItem(t *testing.T) {
	d, _ := setupDocuments(t)
	item := model.NewListItem("media", "Dune", now)
	if _, err := d.Push(context.Background(), adapter.PushItem{Entity: item}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	items, _ := pullAll(t, d, "")
	if len(items) != 1 || items[0].Fields["list"] != "media" || items[0].Fields["title"] != "Dune" {
		t.Errorf("Expected the media item, got %v", items)
	}
}

func TestDocumentNote(t *testing.T) {
	d, dir := setupDocuments(t)
	note := model.NewNote("Kitchen renovation", now)
	note.Body = "Measure the sink."
	note.Tags = []string{"house"}
	note.Links = []model.Link{{Type: model.LinkTask, ID: "plumber"}, {Type: model.LinkProject, ID: "house"}}
	ref, err := d.Push(context.Background(), adapter.PushItem{Entity: note})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, string(note.ID)+".org"))
	if err != nil {
		t.Fatalf("Expected a document named after the note: %v", err)
	}
	if !strings.Contains(string(data), "#+LAMP_KIND: note") || !strings.Contains(string(data), "project:house task:plumber") {
		t.Errorf("Unexpected note document:\n%s", data)
	}

	items, _ := pullAll(t, d, "")
	if len(items) != 1 || items[0].RemoteID != ref.RemoteID || items[0].Kind != model.KindNote {
		t.Fatalf("Expected the note, got %v", items)
	}
	want := note.Fields()
	for _, name := range model.FieldNames(model.KindNote) {
		if items[0].Fields[name] != want.Get(name) {
			t.Errorf("Expected %s %q, got %q", name, want.Get(name), items[0].Fields[name])
		}
	}
}

func TestForeignDocumentsAreSkipped(t *testing.T) {
	d, dir := setupDocuments(t)
	d.Push(context.Background(), adapter.PushItem{Entity: plumber()})
	if err := os.WriteFile(filepath.Join(dir, "notes.org"), []byte("* Random notes\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if items, _ := pullAll(t, d, ""); len(items) != 1 {
		t.Errorf("Expected only the pushed task, got %d items", len(items))
	}
}

func TestDocumentKinds(t *testing.T) {
	d, _ := setupDocuments(t, model.KindProject, model.KindDayPlan)
	if d.Handles(plumber()) {
		t.Error("Expected tasks not kept")
	}
	if !d.Handles(model.NewProject("House", now)) {
		t.Error("Expected projects kept")
	}
	if d.Handles(model.NewDayPlan(now)) {
		t.Error("Expected day plans never kept")
	}
	if _, err := d.Push(context.Background(), adapter.PushItem{Entity: plumber()}); err == nil {
		t.Error("Expected an error pushing a task")
	}
}
