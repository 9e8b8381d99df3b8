package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// RunSummary describes one generate run
type RunSummary struct {
	CheckedAt  time.Time           `json:"checked_at"`
	Ran        bool                `json:"ran"`
	Reason     string              `json:"reason,omitempty"`
	Status     string              `json:"status,omitempty"`
	Output     string              `json:"output,omitempty"`
	Published  bool                `json:"published"`
	Matches    int                 `json:"matches"`
	Skipped    int                 `json:"skipped"`
	EventCount int                 `json:"event_count"`
	Events     []calendar.Event    `json:"events,omitempty"`
	Diff       *fixture.DiffResult `json:"diff,omitempty"`
	Error      string              `json:"error,omitempty"`
	Elapsed    string              `json:"elapsed,omitempty"`
}

// EventList is what inspect prints
type EventList struct {
	File       string           `json:"file"`
	Events     []calendar.Event `json:"events"`
	EventCount int              `json:"event_count"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *RunSummary, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return errors.Newf("unknown format: %s", format)
	}
}

// WriteEventList writes an inspected feed in the specified format
func WriteEventList(w io.Writer, list *EventList, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, list)
	case FormatText:
		if list.EventCount == 0 {
			fmt.Fprintln(w, "No events found.")
			return nil
		}
		for _, e := range list.Events {
			writeEvent(w, e, verbose)
		}
		fmt.Fprintf(w, "\nTotal: %d events\n", list.EventCount)
		return nil
	default:
		return errors.Newf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *RunSummary, verbose bool) error {
	if !result.Ran {
		fmt.Fprintf(w, "Feed is up to date (%s).\n", result.Reason)
		if result.Published {
			fmt.Fprintf(w, "Cached feed written to %s\n", result.Output)
		}
		return nil
	}

	switch result.Status {
	case "fetch_failed":
		fmt.Fprintf(w, "Fetching fixtures failed: %s\n", result.Error)
		fmt.Fprintln(w, "Existing output left untouched.")
		return nil
	case "no_matches":
		fmt.Fprintf(w, "No fixtures found (%d on page, %d skipped).\n", result.Matches, result.Skipped)
		fmt.Fprintln(w, "Existing output left untouched.")
		return nil
	}

	if verbose {
		for _, e := range result.Events {
			writeEvent(w, e, verbose)
		}
		fmt.Fprintln(w)
	}

	if d := result.Diff; d != nil {
		if d.Empty() {
			fmt.Fprintln(w, "No fixture changes.")
		}
		for _, e := range d.Added {
			fmt.Fprintf(w, "NEW: %s (%s)\n", e.Title, e.Start.Format("2006-01-02 15:04 MST"))
		}
		for _, e := range d.Removed {
			fmt.Fprintf(w, "REMOVED: %s (%s)\n", e.Title, e.Start.Format("2006-01-02 15:04 MST"))
		}
		for _, c := range d.Changed {
			fmt.Fprintf(w, "CHANGED %s: %s -> %s\n", c.ChangeType, orNone(c.OldValue), orNone(c.NewValue))
			if verbose {
				fmt.Fprintf(w, "     UID: %s\n", c.UID)
			}
		}
	}

	if result.Published && result.Output != "" {
		fmt.Fprintf(w, "\nWrote %d events to %s", result.EventCount, result.Output)
	} else {
		fmt.Fprintf(w, "\nBuilt %d events", result.EventCount)
	}
	if result.Skipped > 0 {
		fmt.Fprintf(w, " (%d skipped)", result.Skipped)
	}
	fmt.Fprintln(w)
	return nil
}

func writeEvent(w io.Writer, e calendar.Event, verbose bool) {
	fmt.Fprintf(w, "%s  %s\n", e.Start.Format("Mon 02 Jan 2006 15:04 MST"), e.Title)
	if verbose {
		fmt.Fprintf(w, "     UID: %s\n", e.UID)
		if e.Competition != "" {
			fmt.Fprintf(w, "     Competition: %s\n", e.Competition)
		}
		if e.Location != "" {
			fmt.Fprintf(w, "     Location: %s\n", e.Location)
		}
		if e.Result != "" {
			fmt.Fprintf(w, "     Result: %s\n", e.Result)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
