// Package calendar turns resolved fixtures into calendar events and
// assembles them into an iCalendar feed.
//
// Synthesis and assembly are split: a Synthesizer maps one match to one
// Event and knows nothing about the feed, an Assembler wraps a list of
// events into a VCALENDAR using github.com/arran4/golang-ical. Parse reads
// a feed back into Events.
package calendar
