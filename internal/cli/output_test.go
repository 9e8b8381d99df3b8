package cli

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
)

func TestWriteOutput_Text(t *testing.T) {
	start := time.Date(2025, 9, 28, 19, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		result  *RunSummary
		verbose bool
		want    []string
		notWant []string
	}{
		{
			name:   "fresh cache",
			result: &RunSummary{Reason: "cache is fresh", Published: true, Output: "barcelona.ics"},
			want:   []string{"Feed is up to date (cache is fresh).", "Cached feed written to barcelona.ics"},
		},
		{
			name:   "fetch failed",
			result: &RunSummary{Ran: true, Status: "fetch_failed", Error: "status 503"},
			want:   []string{"Fetching fixtures failed: status 503", "left untouched"},
		},
		{
			name:   "no matches",
			result: &RunSummary{Ran: true, Status: "no_matches", Matches: 2, Skipped: 2},
			want:   []string{"No fixtures found (2 on page, 2 skipped)."},
		},
		{
			name: "refreshed with changes",
			result: &RunSummary{
				Ran: true, Status: "refreshed", Published: true, Output: "out.ics", EventCount: 2, Skipped: 1,
				Diff: &fixture.DiffResult{
					Added:   []*fixture.Entry{{UID: "a", Title: "🏟️ FC Barcelona vs Getafe", Start: start}},
					Removed: []*fixture.Entry{{UID: "b", Title: "⚔️ Girona vs FC Barcelona", Start: start}},
					Changed: []*fixture.Change{{UID: "c", ChangeType: "result", NewValue: "2 - 1"}},
				},
			},
			want: []string{
				"NEW: 🏟️ FC Barcelona vs Getafe (2025-09-28 19:00 UTC)",
				"REMOVED: ⚔️ Girona vs FC Barcelona",
				"CHANGED result: (none) -> 2 - 1",
				"Wrote 2 events to out.ics (1 skipped)",
			},
			notWant: []string{"UID: c"},
		},
		{
			name: "verbose lists events",
			result: &RunSummary{
				Ran: true, Status: "refreshed", EventCount: 1,
				Events: []calendar.Event{{UID: "barca_1", Title: "🏟️ FC Barcelona vs Getafe", Start: start, Competition: "LALIGA", Result: "1 - 0"}},
				Diff:   &fixture.DiffResult{},
			},
			verbose: true,
			want:    []string{"Sun 28 Sep 2025 19:00 UTC  🏟️ FC Barcelona vs Getafe", "UID: barca_1", "Result: 1 - 0", "No fixture changes.", "Built 1 events"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteOutput(&buf, tt.result, FormatText, tt.verbose))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestWriteOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	result := &RunSummary{Ran: true, Status: "refreshed", EventCount: 3}

	require.NoError(t, WriteOutput(&buf, result, FormatJSON, false))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "refreshed", decoded["status"])
	assert.Equal(t, 3.0, decoded["event_count"])
	assert.NotContains(t, decoded, "diff")
}

func TestWriteOutput_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteOutput(&buf, &RunSummary{}, "yaml", false))
	assert.Error(t, WriteEventList(&buf, &EventList{}, "yaml", false))
}

func TestWriteEventList_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEventList(&buf, &EventList{}, FormatText, false))
	assert.Equal(t, "No events found.\n", buf.String())
}
