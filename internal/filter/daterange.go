package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/fixture"
)

// DateRange is an inclusive span of whole days.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

var (
	monthPattern = `([a-zç]+)\.?`

	// "Sep 1-15", "setembre 1-15"
	sameMonthRe = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})\s*-\s*(\d{1,2})$`)
	// "Sep 20 - Oct 5"
	twoMonthRe = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})\s*-\s*` + monthPattern + `\s+(\d{1,2})$`)
	// "Sep", "octubre"
	wholeMonthRe = regexp.MustCompile(`(?i)^` + monthPattern + `$`)
)

// ParseDateRange parses a day range relative to now.
//
// Supported formats:
//   - "Sep 1-15": same month, different days
//   - "Sep 20 - Oct 5": different months
//   - "Sep": the entire month
//
// Month names may be English, Spanish or Catalan, full or abbreviated.
// Years are picked the way fixture dates are: a month earlier than now's
// belongs to next year, and an end month before the start month rolls over
// too. Bounds are in now's location, from 00:00:00 to 23:59:59.
func ParseDateRange(input string, now time.Time) (DateRange, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return DateRange{}, errors.New("date range cannot be empty")
	}
	loc := now.Location()

	if m := sameMonthRe.FindStringSubmatch(input); m != nil {
		month, err := monthOf(m[1])
		if err != nil {
			return DateRange{}, err
		}
		return dayRange(month, m[2], month, m[3], now)
	}

	if m := twoMonthRe.FindStringSubmatch(input); m != nil {
		from, err := monthOf(m[1])
		if err != nil {
			return DateRange{}, err
		}
		to, err := monthOf(m[3])
		if err != nil {
			return DateRange{}, err
		}
		return dayRange(from, m[2], to, m[4], now)
	}

	if m := wholeMonthRe.FindStringSubmatch(input); m != nil {
		month, err := monthOf(m[1])
		if err != nil {
			return DateRange{}, err
		}
		d, err := fixture.ResolveDate(1, int(month), now)
		if err != nil {
			return DateRange{}, err
		}
		return DateRange{
			From: time.Date(d.Year, month, 1, 0, 0, 0, 0, loc),
			// Day 0 of the next month is the last day of this one.
			To: time.Date(d.Year, month+1, 0, 23, 59, 59, 0, loc),
		}, nil
	}

	return DateRange{}, errors.New("invalid date range format. Use 'Sep 1-15', 'Sep 20 - Oct 5', or 'Sep'")
}

func dayRange(fromMonth time.Month, fromDay string, toMonth time.Month, toDay string, now time.Time) (DateRange, error) {
	d1, err := dayOf(fromDay)
	if err != nil {
		return DateRange{}, err
	}
	d2, err := dayOf(toDay)
	if err != nil {
		return DateRange{}, err
	}

	start, err := fixture.ResolveDate(d1, int(fromMonth), now)
	if err != nil {
		return DateRange{}, err
	}
	// The end follows the start, not now.
	endYear := start.Year
	if toMonth < fromMonth {
		endYear++
	}
	if t := time.Date(endYear, toMonth, d2, 0, 0, 0, 0, time.UTC); t.Day() != d2 {
		return DateRange{}, errors.Newf("invalid date %02d/%02d for %d", d2, int(toMonth), endYear)
	}

	loc := now.Location()
	r := DateRange{
		From: time.Date(start.Year, start.Month, start.Day, 0, 0, 0, 0, loc),
		To:   time.Date(endYear, toMonth, d2, 23, 59, 59, 0, loc),
	}
	if r.From.After(r.To) {
		return DateRange{}, errors.New("start date must be before end date")
	}
	return r, nil
}

func dayOf(s string) (int, error) {
	day, err := strconv.Atoi(s)
	if err != nil || day < 1 || day > 31 {
		return 0, errors.Newf("invalid day: %s", s)
	}
	return day, nil
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January, "ene": time.January, "enero": time.January, "gen": time.January, "gener": time.January,
	"feb": time.February, "february": time.February, "febrero": time.February, "febrer": time.February,
	"mar": time.March, "march": time.March, "marzo": time.March, "març": time.March,
	"apr": time.April, "april": time.April, "abr": time.April, "abril": time.April,
	"may": time.May, "mayo": time.May, "mai": time.May, "maig": time.May,
	"jun": time.June, "june": time.June, "junio": time.June, "juny": time.June,
	"jul": time.July, "july": time.July, "julio": time.July, "juliol": time.July,
	"aug": time.August, "august": time.August, "ago": time.August, "agosto": time.August, "ag": time.August, "agost": time.August,
	"sep": time.September, "sept": time.September, "september": time.September, "septiembre": time.September, "set": time.September, "setembre": time.September,
	"oct": time.October, "october": time.October, "octubre": time.October,
	"nov": time.November, "november": time.November, "noviembre": time.November, "novembre": time.November,
	"dec": time.December, "december": time.December, "dic": time.December, "diciembre": time.December, "des": time.December, "desembre": time.December,
}

func monthOf(name string) (time.Month, error) {
	if m, ok := months[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m, nil
	}
	return 0, errors.Newf("invalid month: %s", name)
}
