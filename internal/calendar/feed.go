package calendar

import (
	"slices"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Feed holds the calendar-level properties of the published feed.
type Feed struct {
	Name            string `yaml:"name" json:"name" env:"FEED_NAME, overwrite"`
	ProductID       string `yaml:"product_id" json:"product_id"`
	Timezone        string `yaml:"timezone" json:"timezone"`
	RefreshInterval string `yaml:"refresh_interval" json:"refresh_interval"`
	// Sort orders events by start time. When false, page order is kept.
	Sort bool `yaml:"sort" json:"sort"`
}

// DefaultFeed returns the production feed properties.
func DefaultFeed() Feed {
	return Feed{
		Name:            "FC Barcelona - Partits",
		ProductID:       "-//Calendari FC Barcelona//barcelona-calendar.netlify.app//",
		Timezone:        SourceTimezone,
		RefreshInterval: "PT6H",
		Sort:            true,
	}
}

// Normalize fills empty fields from DefaultFeed.
func (f *Feed) Normalize() {
	def := DefaultFeed()
	if f.Name == "" {
		f.Name = def.Name
	}
	if f.ProductID == "" {
		f.ProductID = def.ProductID
	}
	if f.Timezone == "" {
		f.Timezone = def.Timezone
	}
	if f.RefreshInterval == "" {
		f.RefreshInterval = def.RefreshInterval
	}
}

// Assembler wraps events into a VCALENDAR.
type Assembler struct {
	feed Feed
	now  func() time.Time
}

// NewAssembler creates an Assembler for feed.
func NewAssembler(feed Feed) *Assembler {
	feed.Normalize()
	return &Assembler{feed: feed, now: time.Now}
}

// Build returns the calendar for events. An empty slice yields a valid
// calendar with no VEVENT.
func (a *Assembler) Build(events []Event) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetProductId(a.feed.ProductID)
	cal.SetVersion("2.0")
	cal.SetName(a.feed.Name)
	cal.SetXWRTimezone(a.feed.Timezone)
	cal.SetRefreshInterval(a.feed.RefreshInterval)
	cal.SetXPublishedTTL(a.feed.RefreshInterval)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)

	if a.feed.Sort {
		events = slices.Clone(events)
		slices.SortStableFunc(events, func(x, y Event) int {
			return x.Start.Compare(y.Start)
		})
	}

	stamp := a.now().UTC()
	for _, e := range events {
		ev := cal.AddEvent(e.UID)
		ev.SetSummary(e.Title)
		ev.SetDescription(e.Description)
		ev.SetStartAt(e.Start)
		ev.SetEndAt(e.End)
		ev.SetDtStampTime(stamp)
		ev.SetLocation(e.Location)
		if e.Color != "" {
			ev.SetProperty(ics.ComponentPropertyColor, e.Color)
			ev.SetProperty(ics.ComponentProperty("X-APPLE-CALENDAR-COLOR"), e.Color)
		}
		for _, c := range e.Categories {
			ev.AddCategory(c)
		}
	}
	return cal
}

// Serialize renders events as an iCalendar document. Content lines and
// folded continuations end in CRLF whatever the host platform.
func (a *Assembler) Serialize(events []Event) []byte {
	return []byte(a.Build(events).Serialize(ics.WithNewLineWindows))
}

// EmergencyFeed is served when nothing has ever been cached: a valid
// calendar with the feed's name and no events.
func EmergencyFeed(feed Feed) []byte {
	return NewAssembler(feed).Serialize(nil)
}
