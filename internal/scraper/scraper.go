package scraper

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html/charset"

	"github.com/barcelona-calendar/barca-ics/internal/fixture"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
)

const (
	DefaultURL       = "https://as.com/resultados/ficha/equipo/barcelona/3/calendario/"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultTimeout   = 15 * time.Second

	// maxBodySize caps how much of the page is read.
	maxBodySize = 8 << 20
)

// ErrFetch marks errors caused by the source page being unreachable or
// answering with something other than 200. Check with errors.Is.
var ErrFetch = errors.New("fetching fixtures page")

// Config controls the HTTP side of the scraper.
type Config struct {
	URL       string        `yaml:"url" json:"url" env:"SOURCE_URL, overwrite"`
	UserAgent string        `yaml:"user_agent" json:"user_agent" env:"USER_AGENT, overwrite"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" env:"FETCH_TIMEOUT, overwrite"`
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		URL:       DefaultURL,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
	}
}

// Scraper fetches the fixtures page and extracts matches from it.
type Scraper struct {
	client    *http.Client
	url       string
	userAgent string
	extractor *Extractor
}

// New creates a Scraper. Zero fields in cfg take their defaults.
func New(cfg Config, extractor *Extractor) *Scraper {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Scraper{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		extractor: extractor,
	}
}

// URL returns the page the scraper reads.
func (s *Scraper) URL() string {
	return s.url
}

// FetchMatches downloads the fixtures page and returns every allow-listed
// match on it. An empty slice with a nil error means the page was fetched
// but held no matches.
func (s *Scraper) FetchMatches(ctx context.Context) ([]fixture.Match, error) {
	start := time.Now()
	body, err := s.fetch(ctx)
	if err != nil {
		logger.IncrCounter("scraper.fetch_failures")
		return nil, err
	}
	defer body.Close()
	logger.RecordTiming("scraper.fetch", time.Since(start))

	matches, err := s.extractor.Parse(body)
	if err != nil {
		return nil, errors.Mark(err, ErrFetch)
	}

	logger.Info("Extracted fixtures", logger.Fields{
		"url":     s.url,
		"matches": len(matches),
		"elapsed": time.Since(start),
	})
	logger.SetGauge("scraper.matches", float64(len(matches)))
	return matches, nil
}

// fetch returns the decoded body of the fixtures page.
func (s *Scraper) fetch(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "creating request"), ErrFetch)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "fetching page"), ErrFetch)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Mark(errors.Newf("unexpected status code: %d", resp.StatusCode), ErrFetch)
	}

	limited := io.LimitReader(resp.Body, maxBodySize)
	decoded, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return nil, errors.Mark(errors.Wrap(err, "decoding body"), ErrFetch)
	}
	return readCloser{Reader: decoded, Closer: resp.Body}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
