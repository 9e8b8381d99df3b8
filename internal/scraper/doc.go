// Package scraper provides HTTP fetching and HTML parsing for the team's
// fixtures page.
//
// The page is loosely structured third-party markup, so every structural
// assumption (block and heading selectors, the heading pattern, the result
// fallback chain) lives in Rules. When the layout drifts, the rules change
// and the extraction logic does not. Blocks that do not look like a match
// are skipped silently; only the fetch itself can fail a run.
package scraper
