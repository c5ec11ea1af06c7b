package convert

import (
	"strings"

	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

const (
	propPurpose = "PURPOSE"
	propOutcome = "OUTCOME"
	propList    = "LIST"

	projectPrefix = "Project: "
)

// projectName strips the optional display prefix of a project heading.
func projectName(title string) string {
	return strings.TrimSpace(strings.TrimPrefix(title, projectPrefix))
}

func readProject(id model.ID, h *orgmode.Heading) (*model.Project, []Anomaly) {
	p := &model.Project{Meta: model.Meta{ID: id}}
	var anomalies []Anomaly
	p.Name = projectName(h.Title)
	p.Tags = append([]string(nil), h.Tags...)
	for _, prop := range h.Properties {
		key := strings.ToUpper(prop.Key)
		switch key {
		case propID:
		case propPurpose:
			p.Purpose = prop.Value
		case propOutcome:
			p.Outcome = prop.Value
		case propCreated:
			if at, ok := parseStamp(prop.Value); ok {
				p.Created = at
			} else if prop.Value != "" {
				anomalies = append(anomalies, Anomaly{Entity: id, Field: key, Value: prop.Value, Message: "not a timestamp"})
			}
		default:
			p.Extra = append(p.Extra, model.Property{Key: prop.Key, Value: prop.Value})
		}
	}
	p.Notes = notesOf(h.Body)
	return p, anomalies
}

func writeProject(h *orgmode.Heading, p *model.Project) {
	switch {
	case h.Title == "":
		h.Title = projectPrefix + p.Name
	case projectName(h.Title) != p.Name:
		if strings.HasPrefix(h.Title, projectPrefix) {
			h.Title = projectPrefix + p.Name
		} else {
			h.Title = p.Name
		}
	}
	h.Keyword = ""
	h.Tags = mergeTags(h.Tags, p.Tags)
	setOwned(&h.Properties, propID, string(p.ID), nil)
	writeCreated(h, p.Created)
	setOwned(&h.Properties, propPurpose, p.Purpose, nil)
	setOwned(&h.Properties, propOutcome, p.Outcome, nil)
	h.Body = writeNotes(h.Body, p.Notes, h.Depth)
}

func readListItem(id model.ID, h *orgmode.Heading, vocab orgmode.Vocabulary, list string) (*model.ListItem, []Anomaly) {
	l := &model.ListItem{Meta: model.Meta{ID: id}, List: list}
	var anomalies []Anomaly
	l.Title = h.Title
	l.Done = h.Keyword != "" && (vocab.IsClosed(h.Keyword) || h.Keyword == string(model.StateDone))
	l.Tags = append([]string(nil), h.Tags...)
	for _, prop := range h.Properties {
		key := strings.ToUpper(prop.Key)
		switch key {
		case propID:
		case propList:
			if prop.Value != "" {
				l.List = prop.Value
			}
		case propCreated:
			if at, ok := parseStamp(prop.Value); ok {
				l.Created = at
			} else if prop.Value != "" {
				anomalies = append(anomalies, Anomaly{Entity: id, Field: key, Value: prop.Value, Message: "not a timestamp"})
			}
		default:
			l.Extra = append(l.Extra, model.Property{Key: prop.Key, Value: prop.Value})
		}
	}
	l.Notes = notesOf(h.Body)
	return l, anomalies
}

func writeListItem(h *orgmode.Heading, l *model.ListItem, vocab orgmode.Vocabulary) {
	h.Title = l.Title
	h.Keyword = listKeyword(h.Keyword, l.Done, vocab)
	h.Tags = mergeTags(h.Tags, l.Tags)
	setOwned(&h.Properties, propID, string(l.ID), nil)
	writeCreated(h, l.Created)
	if cur, ok := h.Properties.Get(propList); ok && cur != l.List {
		h.Properties.Set(propList, l.List)
	}
	h.Body = writeNotes(h.Body, l.Notes, h.Depth)
}

// listKeyword keeps a closed keyword for done items and any open keyword
// the user set on pending ones.
func listKeyword(cur string, done bool, vocab orgmode.Vocabulary) string {
	closed := cur != "" && (vocab.IsClosed(cur) || cur == string(model.StateDone))
	switch {
	case done && closed:
		return cur
	case done:
		return string(model.StateDone)
	case closed:
		return ""
	}
	return cur
}
