// Package pipeline runs one refresh end to end and decides what the feed
// endpoint serves.
//
// Pipeline.Run is a pure function of the source page and the clock: fetch,
// extract, resolve dates, synthesize events and assemble the feed. Service
// adds state on top: the refresh policy, the cached feed, the fixture
// snapshot and the fallbacks used when a run produces nothing.
package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/scraper"
)

// Status is the outcome of one run.
type Status string

const (
	// StatusRefreshed means at least one event was built and Feed is set.
	StatusRefreshed Status = "refreshed"
	// StatusNoMatches means the page was read but yielded no usable fixture.
	StatusNoMatches Status = "no_matches"
	// StatusFetchFailed means the page could not be read; FetchErr says why.
	StatusFetchFailed Status = "fetch_failed"
)

// Fetcher returns the fixtures currently on the source page.
type Fetcher interface {
	FetchMatches(ctx context.Context) ([]fixture.Match, error)
}

// Result describes one run.
type Result struct {
	Status   Status
	Matches  []fixture.Match
	Events   []calendar.Event
	Feed     []byte
	Skipped  int
	FetchErr error
	Started  time.Time
	Elapsed  time.Duration
}

// Pipeline wires the stages of a refresh together.
type Pipeline struct {
	fetcher   Fetcher
	synth     *calendar.Synthesizer
	assembler *calendar.Assembler
	now       func() time.Time
}

// New creates a Pipeline.
func New(fetcher Fetcher, synth *calendar.Synthesizer, assembler *calendar.Assembler) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		synth:     synth,
		assembler: assembler,
		now:       time.Now,
	}
}

// Run performs one refresh. A failed fetch is reported through
// Result.Status, not through the error; the error is reserved for faults
// that retrying cannot fix.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	begin := time.Now()
	res := &Result{Started: p.now()}
	defer func() {
		res.Elapsed = time.Since(begin)
		logger.RecordTiming("pipeline.run", res.Elapsed)
		logger.IncrCounter("pipeline.status." + string(res.Status))
	}()

	matches, err := p.fetcher.FetchMatches(ctx)
	if err != nil {
		if !errors.Is(err, scraper.ErrFetch) {
			res.Status = StatusFetchFailed
			return res, errors.Wrap(err, "fetching fixtures")
		}
		logger.Error("Fetching fixtures failed", nil, err)
		res.Status = StatusFetchFailed
		res.FetchErr = err
		return res, nil
	}
	res.Matches = matches
	logger.Info("Fixtures extracted", logger.Fields{"matches": len(matches)})

	// Year resolution needs "today" on the source page's calendar.
	today := res.Started.In(p.synth.Location())
	for _, m := range matches {
		d, err := fixture.ResolveDate(m.Day, m.Month, today)
		if err != nil {
			res.Skipped++
			logger.Warn("Skipping fixture with impossible date", logger.Fields{"match": m.String(), "reason": err.Error()})
			continue
		}
		ev, err := p.synth.Event(m, d)
		if err != nil {
			res.Skipped++
			logger.Warn("Skipping fixture", logger.Fields{"match": m.String(), "reason": err.Error()})
			continue
		}
		res.Events = append(res.Events, ev)
	}
	logger.AddCounter("pipeline.skipped", int64(res.Skipped))

	if len(res.Events) == 0 {
		res.Status = StatusNoMatches
		logger.Warn("No fixtures to publish", logger.Fields{"matches": len(matches), "skipped": res.Skipped})
		return res, nil
	}

	res.Feed = p.assembler.Serialize(res.Events)
	res.Status = StatusRefreshed
	logger.SetGauge("feed.events", float64(len(res.Events)))
	logger.Info("Feed assembled", logger.Fields{
		"events":  len(res.Events),
		"skipped": res.Skipped,
		"bytes":   len(res.Feed),
	})
	return res, nil
}

// Entries converts events to snapshot entries.
func Entries(events []calendar.Event) []*fixture.Entry {
	out := make([]*fixture.Entry, 0, len(events))
	for _, e := range events {
		out = append(out, &fixture.Entry{
			UID:         e.UID,
			Title:       e.Title,
			Start:       e.Start.UTC(),
			Location:    e.Location,
			Competition: e.Competition,
			Result:      e.Result,
		})
	}
	return out
}
