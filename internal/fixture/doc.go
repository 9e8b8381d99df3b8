// Package fixture provides the normalized match record extracted from the
// fixtures page and the helpers that operate on it.
//
// The source page lists day and month without a year, so the package also
// resolves a full calendar date against "now" in the source timezone,
// handling the season rollover across the new year. Snapshots of published
// events are diffed between runs to report added, removed and changed
// fixtures.
package fixture
