// Package storage persists the state that survives between runs: the time
// of the last successful refresh, the last good feed and the snapshot of
// published events used to report what changed.
//
// Two backends implement the same contract. FileStore keeps plain files in
// a data directory (by default ~/.local/share/barca-ics/) and writes them
// atomically. SQLiteStore keeps the same values in one SQLite table whose
// schema is managed by embedded migrations.
package storage
