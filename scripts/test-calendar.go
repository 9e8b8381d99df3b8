// Command test-calendar builds a feed from a saved fixtures page without
// touching the network or the cache. Handy when the page layout changes and
// the selectors need tuning.
//
//	go run ./scripts/test-calendar.go internal/scraper/testdata/calendario.html
package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/filter"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/pipeline"
	"github.com/barcelona-calendar/barca-ics/internal/scraper"
)

// pageFetcher reads fixtures from a file instead of the network.
type pageFetcher struct {
	path string
	ext  *scraper.Extractor
}

func (f pageFetcher) FetchMatches(context.Context) ([]fixture.Match, error) {
	page, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	defer page.Close()
	return f.ext.Parse(page)
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: test-calendar <page.html>")
		os.Exit(1)
	}
	logger.SetDefault(logger.New(logger.LevelWarn, logger.FormatConsole, os.Stderr))

	ext, err := scraper.NewExtractor(scraper.DefaultRules(), filter.DefaultCompetitions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building extractor: %v\n", err)
		os.Exit(1)
	}

	p := pipeline.New(
		pageFetcher{path: os.Args[1], ext: ext},
		calendar.NewSynthesizer(calendar.DefaultOptions()),
		calendar.NewAssembler(calendar.DefaultFeed()),
	)
	res, err := p.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing page: %v\n", err)
		os.Exit(1)
	}
	if res.Status != pipeline.StatusRefreshed {
		fmt.Fprintf(os.Stderr, "No feed built: %s (%d fixtures, %d skipped)\n", res.Status, len(res.Matches), res.Skipped)
		os.Exit(1)
	}

	// Write to file (owner read/write only)
	filename := "test-barcelona.ics"
	if err := os.WriteFile(filename, res.Feed, 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Generated calendar file with %d of %d fixtures: %s\n\n", len(res.Events), len(res.Matches), filename)
	fmt.Println("Test it by:")
	fmt.Println("1. Open the .ics file with your calendar app (double-click)")
	fmt.Println("2. Or import it into Google Calendar, Apple Calendar, or Outlook")
	fmt.Println("\nFile contents preview:")
	fmt.Println("---")
	fmt.Println(string(res.Feed))
}
