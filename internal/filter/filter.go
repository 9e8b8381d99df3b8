// Package filter provides the competition allow-list for barca-ics.
//
// Only fixtures whose competition label contains one of the configured
// keywords are published; everything else on the source page (cup ties,
// friendlies, other sections) is dropped silently. The same list also maps a
// long label such as "LALIGA EA SPORTS, Jornada 1" to its short display form.
//
// Example usage:
//
//	comps := filter.DefaultCompetitions()
//	if comps.Allows(label) {
//	    short := comps.Display(label) // "LALIGA"
//	}
package filter

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Competition is one allow-listed competition.
type Competition struct {
	// Keyword is matched as a case-sensitive substring of the page label,
	// the way the source page spells it.
	Keyword string `yaml:"keyword" json:"keyword"`

	// Display is the short form used in titles and categories. Empty means
	// the keyword itself.
	Display string `yaml:"display" json:"display"`
}

// Competitions is an ordered allow-list; the first matching entry wins.
type Competitions []Competition

// DefaultCompetitions returns the league and the Champions League.
func DefaultCompetitions() Competitions {
	return Competitions{
		{Keyword: "LALIGA", Display: "LALIGA"},
		{Keyword: "Champions League", Display: "Champions"},
	}
}

// Validate checks that every entry has a keyword.
func (c Competitions) Validate() error {
	if len(c) == 0 {
		return errors.New("competition allow-list is empty")
	}
	for i, comp := range c {
		if strings.TrimSpace(comp.Keyword) == "" {
			return errors.Newf("competition %d has an empty keyword", i)
		}
	}
	return nil
}

// Match returns the first entry whose keyword appears in label.
func (c Competitions) Match(label string) (Competition, bool) {
	for _, comp := range c {
		if comp.Keyword != "" && strings.Contains(label, comp.Keyword) {
			return comp, true
		}
	}
	return Competition{}, false
}

// Allows reports whether label belongs to an allow-listed competition.
func (c Competitions) Allows(label string) bool {
	_, ok := c.Match(label)
	return ok
}

// Display returns the short display form of label, or label unchanged when
// it is not recognized.
func (c Competitions) Display(label string) string {
	comp, ok := c.Match(label)
	if !ok {
		return label
	}
	if comp.Display == "" {
		return comp.Keyword
	}
	return comp.Display
}

// Keywords lists the configured keywords, for logging.
func (c Competitions) Keywords() []string {
	out := make([]string, 0, len(c))
	for _, comp := range c {
		out = append(out, comp.Keyword)
	}
	return out
}
