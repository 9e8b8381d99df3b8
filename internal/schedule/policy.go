// Package schedule decides when the feed must be rebuilt and triggers
// rebuilds on a cron schedule.
package schedule

import (
	"time"
)

// Reason explains a refresh decision. It only ends up in logs.
type Reason string

const (
	ReasonNoCache     Reason = "no cached feed"
	ReasonNoTimestamp Reason = "no refresh recorded"
	ReasonFuture      Reason = "last refresh is in the future"
	ReasonCutoff      Reason = "daily cutoff passed since last refresh"
	ReasonStale       Reason = "last refresh older than max age"
	ReasonFresh       Reason = "cache is fresh"
)

// Policy is the cache freshness rule: the source page is re-read at most
// once a day, after the cutoff, unless the cache is missing.
type Policy struct {
	CutoffHour   int
	CutoffMinute int
	// MaxAge bounds the age of the cache regardless of the cutoff. Zero
	// disables the bound.
	MaxAge   time.Duration
	Location *time.Location
}

// DefaultPolicy refreshes after 09:00 Europe/Madrid. If the zone database
// is unavailable, the cutoff is taken in UTC.
func DefaultPolicy() Policy {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		loc = time.UTC
	}
	return Policy{
		CutoffHour: 9,
		MaxAge:     24 * time.Hour,
		Location:   loc,
	}
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// LastCutoff returns the most recent cutoff at or before now.
func (p Policy) LastCutoff(now time.Time) time.Time {
	local := now.In(p.location())
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), p.CutoffHour, p.CutoffMinute, 0, 0, p.location())
	if cutoff.After(local) {
		cutoff = cutoff.AddDate(0, 0, -1)
	}
	return cutoff
}

// Check decides whether a refresh is due. A zero last means no refresh was
// ever recorded, or the record could not be read.
func (p Policy) Check(now, last time.Time, haveCache bool) (bool, Reason) {
	switch {
	case !haveCache:
		return true, ReasonNoCache
	case last.IsZero():
		return true, ReasonNoTimestamp
	case last.After(now):
		return true, ReasonFuture
	case last.Before(p.LastCutoff(now)):
		return true, ReasonCutoff
	case p.MaxAge > 0 && now.Sub(last) > p.MaxAge:
		return true, ReasonStale
	}
	return false, ReasonFresh
}

// ShouldRefresh is Check without the reason.
func (p Policy) ShouldRefresh(now, last time.Time, haveCache bool) bool {
	refresh, _ := p.Check(now, last, haveCache)
	return refresh
}
