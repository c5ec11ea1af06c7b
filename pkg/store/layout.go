// Package store keeps the org file collection in memory and on disk.
package store

import (
	"path/filepath"

	"github.com/harrisonrobin/lamp/pkg/convert"
	"github.com/harrisonrobin/lamp/pkg/model"
)

// File is one org file of the collection.
type File struct {
	Name string
	Kind convert.FileKind
	// List is the list name of a list file.
	List string
}

// Layout names the files of a collection rooted at Dir.
type Layout struct {
	Dir string
	// Lists names the two generic list files.
	Lists []string
}

// DefaultLayout returns the standard layout with media and shopping lists.
func DefaultLayout(dir string) Layout {
	return Layout{Dir: dir, Lists: []string{"media", "shopping"}}
}

// Files returns every file of the layout in load order.
func (l Layout) Files() []File {
	files := []File{
		{Name: "inbox.org", Kind: convert.Inbox},
		{Name: "next.org", Kind: convert.Next},
		{Name: "waiting.org", Kind: convert.Waiting},
		{Name: "someday.org", Kind: convert.Someday},
		{Name: "projects.org", Kind: convert.Projects},
		{Name: "habits.org", Kind: convert.Habits},
	}
	for _, list := range l.Lists {
		files = append(files, File{Name: list + ".org", Kind: convert.List, List: list})
	}
	return append(files,
		File{Name: "notes.org", Kind: convert.Notes},
		File{Name: "dayplan.org", Kind: convert.DayPlan},
		File{Name: "archive.org", Kind: convert.Archive},
	)
}

// Path returns the absolute path of f.
func (l Layout) Path(f File) string {
	return filepath.Join(l.Dir, f.Name)
}

// File returns the file with the given name.
func (l Layout) File(name string) (File, bool) {
	for _, f := range l.Files() {
		if f.Name == name {
			return f, true
		}
	}
	return File{}, false
}

// Home picks the file a new entity is written to.
func (l Layout) Home(e model.Entity) string {
	switch v := e.(type) {
	case *model.Habit:
		return "habits.org"
	case *model.Project:
		return "projects.org"
	case *model.DayPlan:
		return "dayplan.org"
	case *model.Note:
		return "notes.org"
	case *model.ListItem:
		for _, list := range l.Lists {
			if list == v.List {
				return list + ".org"
			}
		}
		if len(l.Lists) > 0 {
			return l.Lists[0] + ".org"
		}
	case *model.Task:
		switch {
		case v.Project != "":
			return "projects.org"
		case v.State.IsClosed():
			return "archive.org"
		case v.State == model.StateNext:
			return "next.org"
		case v.State == model.StateWaiting:
			return "waiting.org"
		case v.State == model.StateSomeday:
			return "someday.org"
		}
	}
	return "inbox.org"
}
