package model

import (
	"fmt"
	"strconv"
	"time"
)

// Project groups tasks toward an outcome.
type Project struct {
	Meta
	Name    string
	Purpose string
	Outcome string
	Notes   string
	Tags    []string
	Created time.Time
}

func NewProject(name string, created time.Time) *Project {
	return &Project{Meta: Meta{ID: NewID()}, Name: name, Created: created}
}

func (p *Project) Kind() Kind { return KindProject }

func (p *Project) Fields() Fields {
	f := Fields{}
	f.set("name", p.Name)
	f.set("purpose", p.Purpose)
	f.set("outcome", p.Outcome)
	f.set("notes", p.Notes)
	f.set("tags", joinSorted(p.Tags))
	return f
}

func (p *Project) SetField(name, value string) error {
	switch name {
	case "name":
		p.Name = value
	case "purpose":
		p.Purpose = value
	case "outcome":
		p.Outcome = value
	case "notes":
		p.Notes = value
	case "tags":
		p.Tags = splitList(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	p.Touch()
	return nil
}

func (p *Project) Clone() Entity {
	c := *p
	c.Meta = p.Meta.clone()
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

// NextAction returns the first NEXT task of the project, else the first TODO.
func (p *Project) NextAction(tasks []*Task) *Task {
	var todo *Task
	for _, t := range tasks {
		if t.Project != p.Name {
			continue
		}
		if t.State == StateNext {
			return t
		}
		if t.State == StateTodo && todo == nil {
			todo = t
		}
	}
	return todo
}

// IsStuck reports whether the project has open work but no next action.
func (p *Project) IsStuck(tasks []*Task) bool {
	open := false
	for _, t := range tasks {
		if t.Project == p.Name && t.State.IsOpen() {
			open = true
			break
		}
	}
	return open && p.NextAction(tasks) == nil
}

// Progress returns the number of done tasks and the total.
func (p *Project) Progress(tasks []*Task) (done, total int) {
	for _, t := range tasks {
		if t.Project != p.Name {
			continue
		}
		total++
		if t.State == StateDone {
			done++
		}
	}
	return done, total
}

// ListItem is an entry of a generic list such as media or shopping.
type ListItem struct {
	Meta
	List    string
	Title   string
	Notes   string
	Done    bool
	Tags    []string
	Created time.Time
}

func NewListItem(list, title string, created time.Time) *ListItem {
	return &ListItem{Meta: Meta{ID: NewID()}, List: list, Title: title, Created: created}
}

func (l *ListItem) Kind() Kind { return KindListItem }

func (l *ListItem) Fields() Fields {
	f := Fields{}
	f.set("list", l.List)
	f.set("title", l.Title)
	f.set("notes", l.Notes)
	if l.Done {
		f.set("done", "true")
	}
	f.set("tags", joinSorted(l.Tags))
	return f
}

func (l *ListItem) SetField(name, value string) error {
	switch name {
	case "list":
		l.List = value
	case "title":
		l.Title = value
	case "notes":
		l.Notes = value
	case "done":
		if value == "" {
			l.Done = false
			break
		}
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid done flag %q", value)
		}
		l.Done = b
	case "tags":
		l.Tags = splitList(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	l.Touch()
	return nil
}

func (l *ListItem) Clone() Entity {
	c := *l
	c.Meta = l.Meta.clone()
	c.Tags = append([]string(nil), l.Tags...)
	return &c
}
