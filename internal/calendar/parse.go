package calendar

import (
	"io"
	"strings"

	ics "github.com/arran4/golang-ical"
	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/fixture"
)

// Parse reads an iCalendar document back into events, in document order.
// Events without a UID or a start time are skipped.
func Parse(r io.Reader) ([]Event, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, errors.Wrap(err, "parsing calendar")
	}

	var out []Event
	for _, ve := range cal.Events() {
		e, ok := parseEvent(ve)
		if !ok {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func parseEvent(ve *ics.VEvent) (Event, bool) {
	e := Event{UID: ve.Id()}
	if e.UID == "" {
		return e, false
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return e, false
	}
	e.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		e.End = end
	}

	e.Title = propertyValue(ve, ics.ComponentPropertySummary)
	e.Description = propertyValue(ve, ics.ComponentPropertyDescription)
	e.Location = propertyValue(ve, ics.ComponentPropertyLocation)
	e.Color = propertyValue(ve, ics.ComponentPropertyColor)

	// Other producers put every label in one comma separated property.
	for _, p := range ve.GetProperties(ics.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			if c = strings.TrimSpace(c); c != "" {
				e.Categories = append(e.Categories, c)
			}
		}
	}
	if len(e.Categories) > 1 {
		e.Competition = e.Categories[1]
	}
	if _, score, ok := strings.Cut(e.Title, "⚽"); ok {
		e.Result, _ = fixture.NormalizeResult(score)
	}
	return e, true
}

func propertyValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}
