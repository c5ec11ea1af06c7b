package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultBudget is the energy budget of a new day plan.
const DefaultBudget = 50

// CompletedTask is a task finished during the planned day.
type CompletedTask struct {
	ID    ID
	Title string
	Cost  int
}

// DayPlan is the single record of what is planned for one day.
type DayPlan struct {
	Meta
	Date           time.Time
	Budget         int
	Spent          int
	Contexts       []string
	Confirmed      []ID
	Completed      []CompletedTask
	PickedMedia    []ID
	PickedShopping []ID
}

// NewDayPlan returns an empty plan for the day of date.
func NewDayPlan(date time.Time) *DayPlan {
	return &DayPlan{Meta: Meta{ID: NewID()}, Date: day(date), Budget: DefaultBudget}
}

func (d *DayPlan) Kind() Kind { return KindDayPlan }

// IsStale reports whether the plan belongs to a day other than today.
func (d *DayPlan) IsStale(today time.Time) bool {
	return !day(d.Date).Equal(day(today))
}

// Remaining is the unspent budget, never below zero.
func (d *DayPlan) Remaining() int {
	if d.Spent >= d.Budget {
		return 0
	}
	return d.Budget - d.Spent
}

// CompleteTask moves a task from confirmed to completed and spends its cost.
func (d *DayPlan) CompleteTask(id ID, title string, cost int) {
	d.Confirmed = removeID(d.Confirmed, id)
	d.Completed = append(d.Completed, CompletedTask{ID: id, Title: title, Cost: cost})
	d.Spent += cost
	d.Touch()
}

// UncompleteTask reverses CompleteTask.
func (d *DayPlan) UncompleteTask(id ID) {
	for i, ct := range d.Completed {
		if ct.ID != id {
			continue
		}
		d.Completed = append(d.Completed[:i], d.Completed[i+1:]...)
		d.Spent -= ct.Cost
		if d.Spent < 0 {
			d.Spent = 0
		}
		d.Confirmed = append(d.Confirmed, id)
		d.Touch()
		return
	}
}

func removeID(ids []ID, id ID) []ID {
	out := ids[:0:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func (d *DayPlan) Fields() Fields {
	f := Fields{}
	if !d.Date.IsZero() {
		f.set("date", d.Date.Format(dateLayout))
	}
	f.set("budget", strconv.Itoa(d.Budget))
	f.set("spent", strconv.Itoa(d.Spent))
	f.set("contexts", strings.Join(d.Contexts, ","))
	f.set("confirmed", joinIDs(d.Confirmed))
	var done []string
	for _, ct := range d.Completed {
		done = append(done, fmt.Sprintf("%s|%s|%d", ct.ID, ct.Title, ct.Cost))
	}
	f.set("completed", strings.Join(done, "\n"))
	f.set("media", joinIDs(d.PickedMedia))
	f.set("shopping", joinIDs(d.PickedShopping))
	return f
}

func (d *DayPlan) SetField(name, value string) error {
	switch name {
	case "date":
		w, err := ParseWhen(value)
		if err != nil {
			return err
		}
		d.Date = w.T
	case "budget", "spent":
		n := 0
		if value != "" {
			var err error
			if n, err = strconv.Atoi(value); err != nil {
				return fmt.Errorf("invalid %s %q", name, value)
			}
		}
		if name == "budget" {
			d.Budget = n
		} else {
			d.Spent = n
		}
	case "contexts":
		d.Contexts = splitList(value)
	case "confirmed":
		d.Confirmed = splitIDs(value)
	case "media":
		d.PickedMedia = splitIDs(value)
	case "shopping":
		d.PickedShopping = splitIDs(value)
	case "completed":
		d.Completed = nil
		for _, line := range strings.Split(value, "\n") {
			if ct, ok := ParseCompletedTask(line); ok {
				d.Completed = append(d.Completed, ct)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	d.Touch()
	return nil
}

// ParseCompletedTask parses "id | title | cost".
func ParseCompletedTask(s string) (CompletedTask, bool) {
	parts := strings.Split(s, "|")
	if len(parts) < 2 {
		return CompletedTask{}, false
	}
	ct := CompletedTask{ID: ID(strings.TrimSpace(parts[0])), Title: strings.TrimSpace(parts[1])}
	if ct.ID == "" {
		return CompletedTask{}, false
	}
	if len(parts) > 2 {
		ct.Cost, _ = strconv.Atoi(strings.TrimSpace(parts[2]))
	}
	return ct, true
}

func (d *DayPlan) Clone() Entity {
	c := *d
	c.Meta = d.Meta.clone()
	c.Contexts = append([]string(nil), d.Contexts...)
	c.Confirmed = append([]ID(nil), d.Confirmed...)
	c.Completed = append([]CompletedTask(nil), d.Completed...)
	c.PickedMedia = append([]ID(nil), d.PickedMedia...)
	c.PickedShopping = append([]ID(nil), d.PickedShopping...)
	return &c
}

func joinIDs(ids []ID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ",")
}

func splitIDs(v string) []ID {
	var out []ID
	for _, s := range splitList(v) {
		out = append(out, ID(s))
	}
	return out
}
