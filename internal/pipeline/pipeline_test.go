package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/filter"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
	"github.com/barcelona-calendar/barca-ics/internal/scraper"
)

type fetchFunc func(ctx context.Context) ([]fixture.Match, error)

func (f fetchFunc) FetchMatches(ctx context.Context) ([]fixture.Match, error) {
	return f(ctx)
}

func staticFetcher(matches ...fixture.Match) fetchFunc {
	return func(context.Context) ([]fixture.Match, error) {
		return matches, nil
	}
}

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}

func newTestPipeline(t *testing.T, f Fetcher, now time.Time) *Pipeline {
	t.Helper()
	p := New(f, calendar.NewSynthesizer(calendar.DefaultOptions()), calendar.NewAssembler(calendar.DefaultFeed()))
	p.now = func() time.Time { return now }
	return p
}

var (
	homeWin = fixture.Match{
		Day: 16, Month: 8, Kickoff: fixture.Kickoff{Hour: 19, Minute: 30},
		Competition: "LALIGA EA SPORTS", Teams: "FC Barcelona vs Mallorca", Home: true, Result: "2  -  1",
	}
	januaryAway = fixture.Match{
		Day: 21, Month: 1, Kickoff: fixture.Kickoff{Hour: 21},
		Competition: "Champions League", Teams: "Slavia Praga vs FC Barcelona",
	}
	impossible = fixture.Match{
		Day: 31, Month: 2, Kickoff: fixture.Kickoff{Hour: 21},
		Competition: "LALIGA", Teams: "FC Barcelona vs Nobody", Home: true,
	}
)

func TestRun_Refreshed(t *testing.T) {
	now := time.Date(2025, 8, 10, 12, 0, 0, 0, madrid(t))
	p := newTestPipeline(t, staticFetcher(homeWin, januaryAway, impossible), now)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusRefreshed, res.Status)
	assert.Len(t, res.Matches, 3)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Events, 2)

	assert.Equal(t, 2025, res.Events[0].Start.Year())
	assert.Equal(t, 2026, res.Events[1].Start.Year(), "January is next season half")
	assert.Equal(t, 2, strings.Count(string(res.Feed), "BEGIN:VEVENT"))
	assert.Nil(t, res.FetchErr)
}

func TestRun_NoMatches(t *testing.T) {
	now := time.Date(2025, 8, 10, 12, 0, 0, 0, madrid(t))

	t.Run("empty page", func(t *testing.T) {
		res, err := newTestPipeline(t, staticFetcher(), now).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusNoMatches, res.Status)
		assert.Nil(t, res.Feed)
	})

	t.Run("every record malformed", func(t *testing.T) {
		res, err := newTestPipeline(t, staticFetcher(impossible), now).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusNoMatches, res.Status)
		assert.Equal(t, 1, res.Skipped)
		assert.Nil(t, res.Feed)
	})
}

func TestRun_FetchFailed(t *testing.T) {
	boom := errors.Mark(errors.New("connection refused"), scraper.ErrFetch)
	f := fetchFunc(func(context.Context) ([]fixture.Match, error) { return nil, boom })

	res, err := newTestPipeline(t, f, time.Now()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFetchFailed, res.Status)
	assert.True(t, errors.Is(res.FetchErr, scraper.ErrFetch))
	assert.Nil(t, res.Feed)
}

func TestRun_OtherErrorsPropagate(t *testing.T) {
	f := fetchFunc(func(context.Context) ([]fixture.Match, error) { return nil, errors.New("misconfigured") })

	_, err := newTestPipeline(t, f, time.Now()).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_EndToEnd(t *testing.T) {
	page, err := os.ReadFile("../scraper/testdata/calendario.html")
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	ext, err := scraper.NewExtractor(scraper.DefaultRules(), filter.DefaultCompetitions())
	require.NoError(t, err)
	s := scraper.New(scraper.Config{URL: srv.URL}, ext)

	now := time.Date(2025, 8, 1, 10, 0, 0, 0, madrid(t))
	res, err := newTestPipeline(t, s, now).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRefreshed, res.Status)
	require.Len(t, res.Events, 4)

	events, err := calendar.Parse(strings.NewReader(string(res.Feed)))
	require.NoError(t, err)
	require.Len(t, events, 4)

	first := events[0]
	assert.Equal(t, "🏟️ FC Barcelona vs Mallorca ⚽ 2 - 1", first.Title)
	assert.True(t, first.Start.Equal(time.Date(2025, 8, 16, 19, 30, 0, 0, madrid(t))))
	assert.Equal(t, 2*time.Hour+15*time.Minute, first.Duration())
	assert.Equal(t, "LALIGA", first.Competition)

	for _, e := range events {
		assert.NotContains(t, e.Title, "Barbastro", "cup ties are filtered out")
	}

	// A second run over the same page, an hour later, yields the same uids.
	again, err := newTestPipeline(t, s, now.Add(time.Hour)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusRefreshed, again.Status)
	assert.ElementsMatch(t, uids(res.Events), uids(again.Events))
}

func uids(events []calendar.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.UID)
	}
	return out
}

func TestEntries(t *testing.T) {
	loc := madrid(t)
	entries := Entries([]calendar.Event{{
		UID: "x", Title: "t", Start: time.Date(2025, 8, 16, 19, 30, 0, 0, loc),
		Location: "l", Competition: "LALIGA", Result: "1 - 0",
	}})
	require.Len(t, entries, 1)
	assert.Equal(t, time.UTC, entries[0].Start.Location())
	assert.Equal(t, "1 - 0", entries[0].Result)
}
