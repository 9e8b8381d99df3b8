package fixture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// scorePattern matches a final score such as "2-1", "2 - 1" or "2 – 1".
var scorePattern = regexp.MustCompile(`(\d+)\s*[-–]\s*(\d+)`)

// Kickoff is a local kick-off time in the source timezone.
type Kickoff struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseKickoff parses an "HH:MM" string.
func ParseKickoff(s string) (Kickoff, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Kickoff{}, errors.Newf("invalid kickoff %q", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return Kickoff{}, errors.Newf("invalid kickoff hour %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return Kickoff{}, errors.Newf("invalid kickoff minute %q", s)
	}
	return Kickoff{Hour: hour, Minute: minute}, nil
}

func (k Kickoff) String() string {
	return fmt.Sprintf("%02d:%02d", k.Hour, k.Minute)
}

// Match is one fixture of the tracked team as read from the source page.
type Match struct {
	Day         int     `json:"day"`
	Month       int     `json:"month"`
	Kickoff     Kickoff `json:"kickoff"`
	Competition string  `json:"competition"`
	Teams       string  `json:"teams"` // "Team A vs Team B"
	Home        bool    `json:"home"`
	Result      string  `json:"result,omitempty"`
}

// HasResult reports whether the match carries a final score.
func (m Match) HasResult() bool {
	_, ok := NormalizeResult(m.Result)
	return ok
}

func (m Match) String() string {
	s := fmt.Sprintf("%02d/%02d %s %s (%s)", m.Day, m.Month, m.Kickoff, m.Teams, m.Competition)
	if r, ok := NormalizeResult(m.Result); ok {
		s += " " + r
	}
	return s
}

// NormalizeResult extracts the score from raw result text and renders it as
// "<home> - <away>" with single spaces and an ASCII dash. It reports false
// when raw holds no score.
func NormalizeResult(raw string) (string, bool) {
	m := scorePattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1] + " - " + m[2], true
}

// ContainsScore reports whether s contains something shaped like a score.
func ContainsScore(s string) bool {
	return scorePattern.MatchString(s)
}

// CollapseSpace trims s and collapses runs of whitespace to a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
