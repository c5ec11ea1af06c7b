package model

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRecurrenceNext(t *testing.T) {
	original := date(2026, 2, 1)
	completed := time.Date(2026, 2, 20, 18, 30, 0, 0, time.UTC)
	tests := []struct {
		token string
		want  time.Time
	}{
		{"+1w", date(2026, 2, 8)},
		{".+1w", date(2026, 2, 27)},
		{"++1w", date(2026, 2, 22)},
		{"+1m", date(2026, 3, 1)},
		{".+3d", date(2026, 2, 23)},
		{"+1y", date(2027, 2, 1)},
	}
	for _, tt := range tests {
		r, err := ParseRecurrence(tt.token)
		if err != nil {
			t.Fatalf("ParseRecurrence(%q) failed: %v", tt.token, err)
		}
		if got := r.Next(original, completed); !got.Equal(tt.want) {
			t.Errorf("%s: expected %s, got %s", tt.token, tt.want.Format("2006-01-02"), got.Format("2006-01-02"))
		}
		if r.String() != tt.token {
			t.Errorf("Expected %q to render back, got %q", tt.token, r.String())
		}
	}
}

func TestRecurrenceMonthClamp(t *testing.T) {
	r := Recurrence{Policy: Strict, Count: 1, Unit: 'm'}
	jan31 := date(2026, 1, 31)
	if got := r.Add(jan31, 1); !got.Equal(date(2026, 2, 28)) {
		t.Errorf("Expected 2026-02-28, got %s", got.Format("2006-01-02"))
	}
	// Anchored on the original date, so the day does not drift after February.
	if got := r.Next(jan31, date(2026, 3, 5)); !got.Equal(date(2026, 3, 31)) {
		t.Errorf("Expected 2026-03-31, got %s", got.Format("2006-01-02"))
	}
	leap := Recurrence{Count: 1, Unit: 'y'}
	if got := leap.Add(date(2024, 2, 29), 1); !got.Equal(date(2025, 2, 28)) {
		t.Errorf("Expected 2025-02-28, got %s", got.Format("2006-01-02"))
	}
}

func TestRecurrenceKeepsClock(t *testing.T) {
	r, _ := ParseRecurrence(".+1d")
	original := time.Date(2026, 2, 1, 9, 15, 0, 0, time.UTC)
	got := r.Next(original, time.Date(2026, 2, 10, 22, 0, 0, 0, time.UTC))
	if want := time.Date(2026, 2, 11, 9, 15, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestParseRecurrenceInvalid(t *testing.T) {
	for _, s := range []string{"", "1w", "+0d", "+1h", "..+1d"} {
		if _, err := ParseRecurrence(s); err == nil {
			t.Errorf("Expected error for %q", s)
		}
	}
}
