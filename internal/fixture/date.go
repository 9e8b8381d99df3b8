package fixture

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Date is a match day with the year resolved.
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// ResolveDate picks the year for a day/month pair taken from the fixtures
// page. now must already be expressed in the source timezone.
//
// The season runs across the new year, so a month earlier than the current
// one belongs to next year; anything else is this year.
func ResolveDate(day, month int, now time.Time) (Date, error) {
	if month < 1 || month > 12 {
		return Date{}, errors.Newf("invalid month %d", month)
	}

	year := now.Year()
	if time.Month(month) < now.Month() {
		year++
	}

	// time.Date normalizes 31/02 into March; reject instead of guessing.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if day < 1 || t.Day() != day || t.Month() != time.Month(month) {
		return Date{}, errors.Newf("invalid date %02d/%02d for %d", day, month, year)
	}

	return Date{Year: year, Month: time.Month(month), Day: day}, nil
}

// At combines the date with a kick-off time in loc.
func (d Date) At(k Kickoff, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, k.Hour, k.Minute, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}
