package cli

import (
	"sort"
	"strings"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByDate        SortOrder = "date"
	SortByTitle       SortOrder = "title"
	SortByCompetition SortOrder = "competition"
)

// sortEvents sorts a slice of events based on the specified sort order
func sortEvents(events []calendar.Event, sortOrder SortOrder) {
	switch sortOrder {
	case SortByDate:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByDate(events[i], events[j])
		})
	case SortByTitle:
		sort.SliceStable(events, func(i, j int) bool {
			ti, tj := strings.ToLower(events[i].Title), strings.ToLower(events[j].Title)
			if ti != tj {
				return ti < tj
			}
			// If titles are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	case SortByCompetition:
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Competition != events[j].Competition {
				return events[i].Competition < events[j].Competition
			}
			return compareByDate(events[i], events[j])
		})
	}
}

// compareByDate returns true if event i should come before event j.
// Events without a start go last.
func compareByDate(i, j calendar.Event) bool {
	if !i.Start.IsZero() && !j.Start.IsZero() {
		if !i.Start.Equal(j.Start) {
			return i.Start.Before(j.Start)
		}
		return strings.ToLower(i.Title) < strings.ToLower(j.Title)
	}

	// If only one date is valid, put the valid one first
	if !i.Start.IsZero() {
		return true
	}
	if !j.Start.IsZero() {
		return false
	}
	return strings.ToLower(i.Title) < strings.ToLower(j.Title)
}

func parseSortOrder(s string) (SortOrder, bool) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case SortByDate, SortByTitle, SortByCompetition:
		return o, true
	}
	return "", false
}
