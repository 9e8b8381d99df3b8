package scraper

import (
	"io"
	"iter"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"

	"github.com/barcelona-calendar/barca-ics/internal/filter"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
)

// Extractor turns a fixtures page into match records.
type Extractor struct {
	rules        Rules
	heading      *regexp.Regexp
	competitions filter.Competitions
	probes       []resultProbe
}

// resultProbe looks for a score inside a block. The name is only for logs.
type resultProbe struct {
	name string
	find func(block *goquery.Selection) string
}

// NewExtractor compiles rules and keeps only the allow-listed competitions.
func NewExtractor(rules Rules, competitions filter.Competitions) (*Extractor, error) {
	rules.Normalize()
	heading, err := rules.compileHeading()
	if err != nil {
		return nil, err
	}
	if err := competitions.Validate(); err != nil {
		return nil, err
	}

	e := &Extractor{
		rules:        rules,
		heading:      heading,
		competitions: competitions,
	}
	e.probes = e.buildProbes()
	return e, nil
}

// Parse reads an HTML document and collects every match in it.
func (e *Extractor) Parse(r io.Reader) ([]fixture.Match, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "parsing HTML")
	}
	return slices.Collect(e.Matches(doc)), nil
}

// Matches yields one record per match block in doc, in page order. Blocks
// that are not matches, or belong to other competitions, are skipped.
//
// Pages wrap blocks inside other containers that also match the block
// selector, so each heading is paired with the innermost block around it.
// Teams and result are then looked up in that block only.
func (e *Extractor) Matches(doc *goquery.Document) iter.Seq[fixture.Match] {
	return func(yield func(fixture.Match) bool) {
		headings := doc.Find(e.rules.HeadingSelector)
		logger.Debug("Candidate match headings", logger.Fields{"count": headings.Length()})

		for i := range headings.Nodes {
			heading := headings.Eq(i)
			block := heading.Closest(e.rules.BlockSelector)
			if block.Length() == 0 {
				continue
			}
			m, ok := e.extract(block, heading)
			if !ok {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

// extract implements the per-block steps. ok is false when the block is
// skipped for any reason.
func (e *Extractor) extract(block, heading *goquery.Selection) (fixture.Match, bool) {
	groups := e.heading.FindStringSubmatch(heading.Text())
	if groups == nil {
		return fixture.Match{}, false
	}

	day, month, err := parseDayMonth(groups[2])
	if err != nil {
		logger.Warn("Skipping block with bad date", logger.Fields{"heading": fixture.CollapseSpace(heading.Text())})
		return fixture.Match{}, false
	}
	kickoff, err := fixture.ParseKickoff(groups[3])
	if err != nil {
		logger.Warn("Skipping block with bad kickoff", logger.Fields{"heading": fixture.CollapseSpace(heading.Text())})
		return fixture.Match{}, false
	}

	competition := e.competition(heading, block)
	if !e.competitions.Allows(competition) {
		logger.Debug("Skipping competition", logger.Fields{"competition": competition, "date": groups[2]})
		return fixture.Match{}, false
	}

	teams, home := e.teams(block)
	result := e.result(block)

	return fixture.Match{
		Day:         day,
		Month:       month,
		Kickoff:     kickoff,
		Competition: competition,
		Teams:       teams,
		Home:        home,
		Result:      result,
	}, true
}

func (e *Extractor) competition(heading, block *goquery.Selection) string {
	sel := heading.Find(e.rules.CompetitionSelector).First()
	if sel.Length() == 0 {
		sel = block.Find(e.rules.CompetitionSelector).First()
	}
	label := fixture.CollapseSpace(sel.Text())
	if label == "" {
		return e.rules.DefaultCompetition
	}
	return label
}

func (e *Extractor) teams(block *goquery.Selection) (string, bool) {
	names := block.Find(e.rules.TeamSelector)
	if names.Length() < 2 {
		return e.rules.FallbackTeams, true
	}
	first := fixture.CollapseSpace(names.Eq(0).Text())
	second := fixture.CollapseSpace(names.Eq(1).Text())
	if first == "" || second == "" {
		return e.rules.FallbackTeams, true
	}
	return first + " vs " + second, strings.Contains(first, e.rules.TrackedTeam)
}

// result walks the fallback chain; the first probe that finds a score wins.
// An empty string means the match has not been played.
func (e *Extractor) result(block *goquery.Selection) string {
	for _, p := range e.probes {
		if r := p.find(block); r != "" {
			logger.Debug("Result found", logger.Fields{"probe": p.name, "result": r})
			return r
		}
	}
	return ""
}

func (e *Extractor) buildProbes() []resultProbe {
	probes := []resultProbe{{
		name: "link",
		find: func(block *goquery.Selection) string {
			text := fixture.CollapseSpace(block.Find(e.rules.ResultLinkSelector).First().Text())
			if fixture.ContainsScore(text) {
				return text
			}
			return ""
		},
	}}

	for _, fragment := range e.rules.ResultClassFragments {
		selector := classSelector(fragment)
		probes = append(probes, resultProbe{
			name: "class:" + fragment,
			find: func(block *goquery.Selection) string {
				found := ""
				block.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
					text := fixture.CollapseSpace(s.Text())
					if fixture.ContainsScore(text) {
						found = text
						return false
					}
					return true
				})
				return found
			},
		})
	}

	if e.rules.ResultFreeText {
		probes = append(probes, resultProbe{name: "text", find: freeTextScore})
	}
	return probes
}

// freeTextScore scans the block's text nodes for anything shaped like a score.
func freeTextScore(block *goquery.Selection) string {
	for _, root := range block.Nodes {
		for text := range textNodes(root) {
			if s := scoreIn(text); s != "" {
				return s
			}
		}
	}
	return ""
}

var scoreText = regexp.MustCompile(`\d+\s*[-–]\s*\d+`)

func scoreIn(text string) string {
	return scoreText.FindString(strings.TrimSpace(text))
}

// textNodes yields the data of every text node under n, depth first.
func textNodes(n *html.Node) iter.Seq[string] {
	return func(yield func(string) bool) {
		var walk func(*html.Node) bool
		walk = func(n *html.Node) bool {
			if n.Type == html.TextNode {
				return yield(n.Data)
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(n)
	}
}

func parseDayMonth(s string) (int, int, error) {
	d, m, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, errors.Newf("invalid date %q", s)
	}
	day, err := strconv.Atoi(d)
	if err != nil {
		return 0, 0, errors.Newf("invalid day %q", s)
	}
	month, err := strconv.Atoi(m)
	if err != nil {
		return 0, 0, errors.Newf("invalid month %q", s)
	}
	return day, month, nil
}
