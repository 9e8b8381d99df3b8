package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/filter"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
)

// SourceTimezone is where kick-off times on the fixtures page are expressed.
const SourceTimezone = "Europe/Madrid"

// Preset holds the presentation of home or away fixtures.
type Preset struct {
	Glyph    string `yaml:"glyph" json:"glyph"`
	Color    string `yaml:"color" json:"color"`
	Location string `yaml:"location" json:"location"`
	Category string `yaml:"category" json:"category"`
}

// HomePreset and AwayPreset are the stock presets.
var (
	HomePreset = Preset{
		Glyph:    "🏟️",
		Color:    "#004D98",
		Location: "Estadi Olímpic Lluís Companys / Spotify Camp Nou",
		Category: "Partit Casa",
	}
	AwayPreset = Preset{
		Glyph:    "⚔️",
		Color:    "#A50044",
		Location: "Camp Visitant",
		Category: "Partit Fora",
	}
)

// Options configures event synthesis.
type Options struct {
	Home         Preset
	Away         Preset
	BaseDuration time.Duration
	ResultExtra  time.Duration
	UIDPrefix    string
	UIDDomain    string
	Location     *time.Location
	Competitions filter.Competitions
}

// DefaultOptions returns the production settings. If the source timezone
// cannot be loaded, times fall back to UTC.
func DefaultOptions() Options {
	loc, err := time.LoadLocation(SourceTimezone)
	if err != nil {
		loc = time.UTC
	}
	return Options{
		Home:         HomePreset,
		Away:         AwayPreset,
		BaseDuration: 2 * time.Hour,
		ResultExtra:  15 * time.Minute,
		UIDPrefix:    "barca",
		UIDDomain:    "barcelona-calendar.netlify.app",
		Location:     loc,
		Competitions: filter.DefaultCompetitions(),
	}
}

// Event is one synthesized calendar entry.
type Event struct {
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location"`
	Color       string    `json:"color"`
	Categories  []string  `json:"categories"`

	// Competition is the short display label and Result the normalized
	// score; both are already folded into the fields above.
	Competition string `json:"competition"`
	Result      string `json:"result,omitempty"`
}

// Duration returns End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Synthesizer maps resolved matches to events.
type Synthesizer struct {
	opts Options
}

// NewSynthesizer creates a Synthesizer. Zero fields in opts take the
// defaults.
func NewSynthesizer(opts Options) *Synthesizer {
	def := DefaultOptions()
	if opts.Home == (Preset{}) {
		opts.Home = def.Home
	}
	if opts.Away == (Preset{}) {
		opts.Away = def.Away
	}
	if opts.BaseDuration <= 0 {
		opts.BaseDuration = def.BaseDuration
	}
	if opts.ResultExtra < 0 {
		opts.ResultExtra = 0
	}
	if opts.UIDPrefix == "" {
		opts.UIDPrefix = def.UIDPrefix
	}
	if opts.UIDDomain == "" {
		opts.UIDDomain = def.UIDDomain
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	if len(opts.Competitions) == 0 {
		opts.Competitions = def.Competitions
	}
	return &Synthesizer{opts: opts}
}

// Location returns the timezone events are built in.
func (s *Synthesizer) Location() *time.Location {
	return s.opts.Location
}

// Event builds the calendar entry for m played on d.
func (s *Synthesizer) Event(m fixture.Match, d fixture.Date) (Event, error) {
	teams := fixture.CollapseSpace(m.Teams)
	if teams == "" {
		return Event{}, errors.Newf("match on %s has no teams", d)
	}

	preset := s.opts.Away
	if m.Home {
		preset = s.opts.Home
	}

	start := d.At(m.Kickoff, s.opts.Location)
	end := start.Add(s.opts.BaseDuration)

	competition := s.opts.Competitions.Display(fixture.CollapseSpace(m.Competition))

	title := preset.Glyph + " " + teams
	description := "Competició: " + competition
	result, played := fixture.NormalizeResult(m.Result)
	if played {
		end = end.Add(s.opts.ResultExtra)
		title += " ⚽ " + result
		description = "Resultat final: " + result + ". " + description
	}

	return Event{
		UID:         s.uid(start, teams),
		Title:       title,
		Description: description,
		Start:       start,
		End:         end,
		Location:    preset.Location,
		Color:       preset.Color,
		Categories:  []string{preset.Category, competition},
		Competition: competition,
		Result:      result,
	}, nil
}

// uid is stable across runs for the same fixture: it depends only on the
// local kick-off and the team pairing.
func (s *Synthesizer) uid(start time.Time, teams string) string {
	compact := strings.Join(strings.Fields(teams), "")
	return fmt.Sprintf("%s_%s_%s@%s", s.opts.UIDPrefix, start.In(s.opts.Location).Format("200601021504"), compact, s.opts.UIDDomain)
}
