package orgmode

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in       string
		want     string
		hasTime  bool
		repeater string
	}{
		{"<2026-02-01 Sun>", "<2026-02-01 Sun>", false, ""},
		{"<2026-02-01 Sun 09:30>", "<2026-02-01 Sun 09:30>", true, ""},
		{"<2026-02-01 Sun 09:30-10:15 +1w>", "<2026-02-01 Sun 09:30-10:15 +1w>", true, "+1w"},
		{"<2026-02-01 Sun .+2d>", "<2026-02-01 Sun .+2d>", false, ".+2d"},
		{"<2026-02-01 Sun ++1m>", "<2026-02-01 Sun ++1m>", false, "++1m"},
		{"[2026-02-22 Sun 07:30]", "[2026-02-22 Sun 07:30]", true, ""},
		{"<2026-02-01>", "<2026-02-01 Sun>", false, ""},
	}
	for _, tt := range tests {
		ts, n, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) failed: %v", tt.in, err)
		}
		if n != len(tt.in) {
			t.Errorf("Expected %q to consume %d bytes, got %d", tt.in, len(tt.in), n)
		}
		if got := ts.String(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
		if ts.HasTime != tt.hasTime {
			t.Errorf("%q: expected HasTime %v", tt.in, tt.hasTime)
		}
		gotRep := ""
		if ts.Repeater != nil {
			gotRep = ts.Repeater.String()
		}
		if gotRep != tt.repeater {
			t.Errorf("%q: expected repeater %q, got %q", tt.in, tt.repeater, gotRep)
		}
	}
}

func TestParseTimestampRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"<2026-02-30 Mon>",
		"<2026-02-01 Sun 25:00>",
		"<2026-02-01 Sun]",
		"<2026-02-01 Sun +1x>",
		"2026-02-01",
	} {
		if _, _, err := ParseTimestamp(in); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}
}

func TestParseTimestampRange(t *testing.T) {
	ts, _, err := ParseTimestamp("<2026-03-01 Sun>--<2026-03-03 Tue>")
	if err != nil {
		t.Fatalf("ParseTimestamp failed: %v", err)
	}
	if ts.Kind != KindRange || ts.RangeEnd == nil {
		t.Fatalf("Expected a range, got %+v", ts)
	}
	if !ts.RangeEnd.Date.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected range end 2026-03-03, got %v", ts.RangeEnd.Date)
	}
}

func TestParsePlanning(t *testing.T) {
	got, err := parsePlanning("  SCHEDULED: <2026-02-01 Sun +1w> DEADLINE: <2026-02-03 Tue>")
	if err != nil {
		t.Fatalf("parsePlanning failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 timestamps, got %d", len(got))
	}
	if got[0].Kind != KindScheduled || got[1].Kind != KindDeadline {
		t.Errorf("Expected scheduled then deadline, got %v then %v", got[0].Kind, got[1].Kind)
	}
	if _, err := parsePlanning("SCHEDULED: someday"); err == nil {
		t.Error("Expected error for planning line without a timestamp")
	}
}

func TestTimestampTime(t *testing.T) {
	ts := NewDateTime(KindScheduled, time.Date(2026, 5, 4, 14, 45, 0, 0, time.UTC))
	if got := ts.String(); got != "<2026-05-04 Mon 14:45>" {
		t.Errorf("Expected <2026-05-04 Mon 14:45>, got %s", got)
	}
	if !ts.Time().Equal(time.Date(2026, 5, 4, 14, 45, 0, 0, time.UTC)) {
		t.Errorf("Expected time 14:45, got %v", ts.Time())
	}
}
