package orgmode

import (
	"strings"
	"testing"
)

func TestCleanTags(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"@home", "errand"}, "@home,errand"},
		{[]string{"home-office"}, "home_office"},
		{[]string{" Work Stuff "}, "Work_Stuff"},
		{[]string{"a-b", "a_b", ""}, "a_b"},
		{[]string{"café", "v2"}, "café,v2"},
	}
	for _, tt := range tests {
		if got := strings.Join(CleanTags(tt.in), ","); got != tt.want {
			t.Errorf("CleanTags(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestCleanTagsParseBack(t *testing.T) {
	h := Heading{Depth: 1, Keyword: "TODO", Title: "Call plumber", Tags: CleanTags([]string{"home-office", "x.y"})}
	doc := &Document{}
	doc.Append(-1, h)
	parsed, _ := Parse(Write(doc), Options{})
	if len(parsed.Headings) != 1 {
		t.Fatalf("Expected 1 heading, got %d", len(parsed.Headings))
	}
	got := parsed.Headings[0]
	if got.Title != "Call plumber" || strings.Join(got.Tags, ",") != "home_office,x_y" {
		t.Errorf("Expected title and tags apart, got %q %v", got.Title, got.Tags)
	}
}
