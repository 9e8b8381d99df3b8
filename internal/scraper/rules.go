package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// Rules describes where things live on the fixtures page.
type Rules struct {
	// BlockSelector finds candidate match blocks.
	BlockSelector string `yaml:"block_selector" json:"block_selector"`
	// HeadingSelector finds the date/time heading inside a block.
	HeadingSelector string `yaml:"heading_selector" json:"heading_selector"`
	// HeadingPattern must capture DD/MM in group 2 and HH:MM in group 3;
	// group 1 is the optional weekday prefix ("D-", "S-", ...).
	HeadingPattern string `yaml:"heading_pattern" json:"heading_pattern"`
	// CompetitionSelector is looked up in the heading first, then in the block.
	CompetitionSelector string `yaml:"competition_selector" json:"competition_selector"`
	DefaultCompetition  string `yaml:"default_competition" json:"default_competition"`
	TeamSelector        string `yaml:"team_selector" json:"team_selector"`

	// Result fallback chain, tried in this order.
	ResultLinkSelector   string   `yaml:"result_link_selector" json:"result_link_selector"`
	ResultClassFragments []string `yaml:"result_class_fragments" json:"result_class_fragments"`
	ResultFreeText       bool     `yaml:"result_free_text" json:"result_free_text"`

	// TrackedTeam is looked for in the first team label to flag home games.
	TrackedTeam string `yaml:"tracked_team" json:"tracked_team"`
	// FallbackTeams is used when fewer than two team labels are found; such
	// fixtures are assumed to be home games.
	FallbackTeams string `yaml:"fallback_teams" json:"fallback_teams"`
}

// DefaultRules matches the as.com team calendar layout.
func DefaultRules() Rules {
	return Rules{
		BlockSelector:        "div[class*='modulo']",
		HeadingSelector:      "h2.tit-modulo",
		HeadingPattern:       `([SDMJLX]-)?(\d{2}/\d{2})\s+(\d{2}:\d{2})`,
		CompetitionSelector:  "span.fecha-evento",
		DefaultCompetition:   "Partido",
		TeamSelector:         "span.nombre-equipo",
		ResultLinkSelector:   "a.resultado",
		ResultClassFragments: []string{"resultado", "marcador", "score"},
		ResultFreeText:       true,
		TrackedTeam:          "Barcelona",
		FallbackTeams:        "FC Barcelona vs Rival",
	}
}

// Normalize fills empty fields from DefaultRules.
func (r *Rules) Normalize() {
	def := DefaultRules()
	if r.BlockSelector == "" {
		r.BlockSelector = def.BlockSelector
	}
	if r.HeadingSelector == "" {
		r.HeadingSelector = def.HeadingSelector
	}
	if r.HeadingPattern == "" {
		r.HeadingPattern = def.HeadingPattern
	}
	if r.CompetitionSelector == "" {
		r.CompetitionSelector = def.CompetitionSelector
	}
	if r.DefaultCompetition == "" {
		r.DefaultCompetition = def.DefaultCompetition
	}
	if r.TeamSelector == "" {
		r.TeamSelector = def.TeamSelector
	}
	if r.ResultLinkSelector == "" {
		r.ResultLinkSelector = def.ResultLinkSelector
	}
	if r.ResultClassFragments == nil {
		r.ResultClassFragments = def.ResultClassFragments
	}
	if r.TrackedTeam == "" {
		r.TrackedTeam = def.TrackedTeam
	}
	if r.FallbackTeams == "" {
		r.FallbackTeams = def.FallbackTeams
	}
}

// compileHeading compiles HeadingPattern and checks its groups.
func (r Rules) compileHeading() (*regexp.Regexp, error) {
	re, err := regexp.Compile(r.HeadingPattern)
	if err != nil {
		return nil, errors.Wrap(err, "compiling heading pattern")
	}
	if re.NumSubexp() < 3 {
		return nil, errors.Newf("heading pattern needs 3 groups, has %d", re.NumSubexp())
	}
	return re, nil
}

// classSelector builds a selector for any element whose class attribute
// contains fragment.
func classSelector(fragment string) string {
	fragment = strings.ReplaceAll(fragment, `'`, `\'`)
	return fmt.Sprintf("[class*='%s']", fragment)
}
