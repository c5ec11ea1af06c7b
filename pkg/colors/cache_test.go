package colors

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestColorAssignmentAndRecycling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.json")
	c, err := NewColorCache(path)
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	c.Now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	if got := c.ColorID(""); got != NoProject {
		t.Errorf("Expected %s for no project, got %s", NoProject, got)
	}
	for i := 0; i < slots; i++ {
		if got := c.ColorID(fmt.Sprintf("p%d", i)); got != fmt.Sprint(i+1) {
			t.Errorf("Expected color %d for p%d, got %s", i+1, i, got)
		}
	}
	// Touch p0 so p1 becomes the least recently used.
	c.ColorID("p0")
	if got := c.ColorID("fresh"); got != "2" {
		t.Errorf("Expected recycled color 2, got %s", got)
	}
	if _, ok := c.Projects["p1"]; ok {
		t.Error("Expected p1 evicted")
	}

	if err := c.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	again, err := NewColorCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := again.ColorID("fresh"); got != "2" {
		t.Errorf("Expected color kept across loads, got %s", got)
	}
}
