package fixture

import (
	"sort"
	"time"
)

// Entry is the part of a published event worth remembering between runs.
type Entry struct {
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	Location    string    `json:"location"`
	Competition string    `json:"competition"`
	Result      string    `json:"result,omitempty"`
}

// Snapshot represents the events of one published feed
type Snapshot struct {
	Events    map[string]*Entry `json:"events"` // keyed by Entry.UID
	UpdatedAt string            `json:"updated_at"`
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Events: make(map[string]*Entry),
	}
}

// CreateSnapshot creates a snapshot from a list of entries
func CreateSnapshot(entries []*Entry, updatedAt string) *Snapshot {
	snap := NewSnapshot()
	snap.UpdatedAt = updatedAt
	for _, e := range entries {
		snap.Events[e.UID] = e
	}
	return snap
}

// Change is a field-level difference for one uid
type Change struct {
	UID        string `json:"uid"`
	ChangeType string `json:"change_type"` // "result", "title", "location", "competition"
	OldValue   string `json:"old_value"`
	NewValue   string `json:"new_value"`
}

// DiffResult contains the results of comparing a snapshot with the current entries
type DiffResult struct {
	Added   []*Entry  `json:"added"`
	Removed []*Entry  `json:"removed"`
	Changed []*Change `json:"changed"`
}

// Empty reports whether nothing changed.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares current entries against a previous snapshot
func Diff(previous *Snapshot, current []*Entry) *DiffResult {
	result := &DiffResult{
		Added:   make([]*Entry, 0),
		Removed: make([]*Entry, 0),
		Changed: make([]*Change, 0),
	}

	if previous == nil {
		previous = NewSnapshot()
	}

	seen := make(map[string]bool, len(current))
	for _, e := range current {
		seen[e.UID] = true
		old, exists := previous.Events[e.UID]
		if !exists {
			result.Added = append(result.Added, e)
			continue
		}
		result.Changed = append(result.Changed, DetectChanges(old, e)...)
	}

	for uid, e := range previous.Events {
		if !seen[uid] {
			result.Removed = append(result.Removed, e)
		}
	}

	byStart := func(list []*Entry) {
		sort.Slice(list, func(i, j int) bool {
			if !list[i].Start.Equal(list[j].Start) {
				return list[i].Start.Before(list[j].Start)
			}
			return list[i].UID < list[j].UID
		})
	}
	byStart(result.Added)
	byStart(result.Removed)
	sort.SliceStable(result.Changed, func(i, j int) bool {
		return result.Changed[i].UID < result.Changed[j].UID
	})

	return result
}

// DetectChanges compares two entries with the same uid
func DetectChanges(previous, current *Entry) []*Change {
	var changes []*Change

	add := func(kind, oldValue, newValue string) {
		if oldValue == newValue {
			return
		}
		changes = append(changes, &Change{
			UID:        current.UID,
			ChangeType: kind,
			OldValue:   oldValue,
			NewValue:   newValue,
		})
	}

	add("result", previous.Result, current.Result)
	add("title", previous.Title, current.Title)
	add("location", previous.Location, current.Location)
	add("competition", previous.Competition, current.Competition)

	return changes
}
