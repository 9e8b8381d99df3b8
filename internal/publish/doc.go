// Package publish delivers an assembled feed to its destination.
//
// FilePublisher replaces the output file atomically, so a subscriber polling
// the file never sees a half-written calendar. DryRunPublisher prints the
// feed instead of writing it.
package publish
