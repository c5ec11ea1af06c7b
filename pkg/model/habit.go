package model

import (
	"sort"
	"strings"
	"time"
)

// Habit is a recurring task whose completions are tracked in its logbook
// instead of spawning new instances.
type Habit struct {
	Task
}

// NewHabit returns a daily habit.
func NewHabit(title string, created time.Time) *Habit {
	h := &Habit{Task: *NewTask(title, created)}
	h.Recurrence = &Recurrence{Policy: Relative, Count: 1, Unit: 'd'}
	return h
}

func (h *Habit) Kind() Kind { return KindHabit }

func (h *Habit) Clone() Entity { return &Habit{Task: *h.Task.clone()} }

// Complete records a completion at the given time and moves the schedule
// forward by the habit's recurrence. The habit stays open.
func (h *Habit) Complete(at time.Time) {
	h.Logbook = append(h.Logbook, stateLog(StateDone, h.State, at))
	if h.Recurrence != nil {
		original := h.Scheduled.T
		if original.IsZero() {
			original = time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
		}
		h.Scheduled.T = h.Recurrence.Next(original, at)
	}
	h.Touch()
}

// Completions returns the distinct days the habit was marked done, oldest
// first.
func (h *Habit) Completions() []time.Time {
	seen := map[time.Time]bool{}
	var days []time.Time
	for _, e := range h.Logbook {
		if !strings.Contains(e.Text, `State "DONE"`) || e.At.IsZero() {
			continue
		}
		d := day(e.At)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// IsDue reports whether the habit still needs doing on today.
func (h *Habit) IsDue(today time.Time) bool {
	today = day(today)
	for _, d := range h.Completions() {
		if d.Equal(today) {
			return false
		}
	}
	return true
}

// Streak counts consecutive completed days ending today, or yesterday when
// today is not done yet.
func (h *Habit) Streak(today time.Time) int {
	days := h.Completions()
	check := day(today)
	done := map[time.Time]bool{}
	for _, d := range days {
		done[d] = true
	}
	if !done[check] {
		check = check.AddDate(0, 0, -1)
	}
	n := 0
	for done[check] {
		n++
		check = check.AddDate(0, 0, -1)
	}
	return n
}

// BestStreak is the longest run of consecutive completed days.
func (h *Habit) BestStreak() int {
	days := h.Completions()
	if len(days) == 0 {
		return 0
	}
	best, cur := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i].Equal(days[i-1].AddDate(0, 0, 1)) {
			cur++
		} else {
			cur = 1
		}
		if cur > best {
			best = cur
		}
	}
	return best
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
