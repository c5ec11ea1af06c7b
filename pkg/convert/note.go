package convert

import (
	"strings"
	"time"

	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

const (
	propLinks    = "LINKS"
	propSource   = "SOURCE"
	propModified = "MODIFIED"
)

func readNote(id model.ID, h *orgmode.Heading) (*model.Note, []Anomaly) {
	n := &model.Note{Meta: model.Meta{ID: id}}
	var anomalies []Anomaly
	n.Title = h.Title
	n.Tags = append([]string(nil), h.Tags...)
	for _, prop := range h.Properties {
		key := strings.ToUpper(prop.Key)
		switch key {
		case propID:
		case propLinks:
			links, bad := model.ParseLinks(prop.Value)
			n.Links = links
			for _, b := range bad {
				anomalies = append(anomalies, Anomaly{Entity: id, Field: key, Value: b, Message: "not a type:id link"})
			}
		case propSource:
			n.Source = prop.Value
		case propCreated, propModified:
			at, ok := parseStamp(prop.Value)
			if !ok {
				if prop.Value != "" {
					anomalies = append(anomalies, Anomaly{Entity: id, Field: key, Value: prop.Value, Message: "not a timestamp"})
				}
				continue
			}
			if key == propCreated {
				n.Created = at
			} else {
				n.Modified = at
			}
		default:
			n.Extra = append(n.Extra, model.Property{Key: prop.Key, Value: prop.Value})
		}
	}
	if n.Modified.IsZero() {
		n.Modified = n.Created
	}
	n.Body = notesOf(h.Body)
	return n, anomalies
}

func writeNote(h *orgmode.Heading, n *model.Note) {
	h.Title = n.Title
	h.Tags = mergeTags(h.Tags, n.Tags)
	setOwned(&h.Properties, propID, string(n.ID), nil)
	writeCreated(h, n.Created)
	// MODIFIED is only added once it differs from CREATED.
	modified := ""
	if !n.Modified.IsZero() {
		modified = stamp(n.Modified)
		cur, ok := h.Properties.Get(propModified)
		switch {
		case ok:
			if at, valid := parseStamp(cur); valid && at.Equal(n.Modified.Truncate(time.Minute)) {
				modified = cur
			}
		case n.Modified.Equal(n.Created):
			modified = ""
		}
	}
	setOwned(&h.Properties, propModified, modified, func(s string) bool { _, ok := parseStamp(s); return ok })
	// The written link text is kept while it denotes the same links.
	links := model.FormatLinks(n.Links)
	if cur, ok := h.Properties.Get(propLinks); ok {
		if parsed, _ := model.ParseLinks(cur); model.FormatLinks(parsed) == links {
			links = cur
		}
	}
	setOwned(&h.Properties, propLinks, links, nil)
	setOwned(&h.Properties, propSource, n.Source, nil)
	h.Body = writeNotes(h.Body, n.Body, h.Depth)
}
