package convert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

// Day plan sections, in file order.
const (
	sectionContexts  = "Active Contexts"
	sectionConfirmed = "Confirmed Tasks"
	sectionCompleted = "Completed Tasks"
	sectionMedia     = "Picked Media"
	sectionShopping  = "Picked Shopping"
)

// readDayPlan returns nil when the file has no date or belongs to a day
// other than opts.Today.
func readDayPlan(doc *orgmode.Document, opts Options) (*model.DayPlan, []Anomaly) {
	raw, ok := doc.Keyword("DATE")
	if !ok {
		return nil, nil
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return nil, []Anomaly{{Field: "DATE", Value: raw, Message: "not a date"}}
	}
	plan := &model.DayPlan{Date: date, Budget: model.DefaultBudget}
	if !opts.Today.IsZero() && plan.IsStale(opts.Today) {
		return nil, nil
	}
	var anomalies []Anomaly
	number := func(key string, dst *int) {
		v, ok := doc.Keyword(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			anomalies = append(anomalies, Anomaly{Field: key, Value: v, Message: "not a number"})
			return
		}
		*dst = n
	}
	number("SPOON_BUDGET", &plan.Budget)
	number("SPENT_SPOONS", &plan.Spent)
	if id, ok := doc.Keyword("ID"); ok && strings.TrimSpace(id) != "" {
		plan.ID = model.ID(strings.TrimSpace(id))
	} else {
		plan.ID = model.NewID()
		doc.SetKeyword("ID", string(plan.ID))
	}
	for i := range anomalies {
		anomalies[i].Entity = plan.ID
	}

	for _, r := range doc.Roots {
		h := &doc.Headings[r]
		items := listItems(h.Body)
		switch strings.TrimSpace(h.Title) {
		case sectionContexts:
			plan.Contexts = append(plan.Contexts, items...)
		case sectionConfirmed:
			for _, it := range items {
				plan.Confirmed = append(plan.Confirmed, model.ID(it))
			}
		case sectionCompleted:
			for _, it := range items {
				parts := strings.SplitN(it, " | ", 3)
				ct := model.CompletedTask{ID: model.ID(strings.TrimSpace(parts[0]))}
				if len(parts) > 1 {
					ct.Title = strings.TrimSpace(parts[1])
				}
				if len(parts) > 2 {
					ct.Cost, _ = strconv.Atoi(strings.TrimSpace(parts[2]))
				}
				if ct.ID != "" {
					plan.Completed = append(plan.Completed, ct)
				}
			}
		case sectionMedia:
			for _, it := range items {
				plan.PickedMedia = append(plan.PickedMedia, model.ID(it))
			}
		case sectionShopping:
			for _, it := range items {
				plan.PickedShopping = append(plan.PickedShopping, model.ID(it))
			}
		}
	}
	return plan, anomalies
}

func listItems(body []string) []string {
	var out []string
	for _, l := range body {
		if item, ok := strings.CutPrefix(strings.TrimSpace(l), "- "); ok && strings.TrimSpace(item) != "" {
			out = append(out, strings.TrimSpace(item))
		}
	}
	return out
}

// writeDayPlan renders the plan from scratch. A nil plan leaves prev as it
// is; stale plans are replaced rather than deleted.
func writeDayPlan(plan *model.DayPlan, prev *orgmode.Document) *orgmode.Document {
	if plan == nil {
		if prev == nil {
			return nil
		}
		return prev.Clone()
	}
	doc := &orgmode.Document{Vocabulary: orgmode.DefaultVocabulary}
	doc.Preamble = []string{
		"#+TITLE: Day Plan",
		"#+DATE: " + plan.Date.Format("2006-01-02"),
		"#+SPOON_BUDGET: " + strconv.Itoa(plan.Budget),
		"#+SPENT_SPOONS: " + strconv.Itoa(plan.Spent),
		"#+ID: " + string(plan.ID),
		"",
	}
	ids := func(list []model.ID) []string {
		out := make([]string, len(list))
		for i, id := range list {
			out[i] = string(id)
		}
		return out
	}
	completed := make([]string, len(plan.Completed))
	for i, ct := range plan.Completed {
		completed[i] = fmt.Sprintf("%s | %s | %d", ct.ID, ct.Title, ct.Cost)
	}
	sections := []struct {
		title string
		items []string
	}{
		{sectionContexts, plan.Contexts},
		{sectionConfirmed, ids(plan.Confirmed)},
		{sectionCompleted, completed},
		{sectionMedia, ids(plan.PickedMedia)},
		{sectionShopping, ids(plan.PickedShopping)},
	}
	for n, s := range sections {
		h := orgmode.Heading{Depth: 1, Title: s.title}
		for _, it := range s.items {
			h.Body = append(h.Body, "  - "+it)
		}
		if n < len(sections)-1 {
			h.Body = append(h.Body, "")
		}
		doc.Append(-1, h)
	}
	return doc
}
