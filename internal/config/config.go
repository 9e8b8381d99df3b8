// Package config loads barca-ics settings from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, then
// BARCA_-prefixed environment variables (a .env file is loaded into the
// environment by main before any of this runs).
package config

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/filter"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/schedule"
	"github.com/barcelona-calendar/barca-ics/internal/scraper"
	"github.com/barcelona-calendar/barca-ics/internal/storage"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "BARCA_"

// EventsConfig holds the per-event presentation.
type EventsConfig struct {
	Home calendar.Preset `yaml:"home" json:"home"`
	Away calendar.Preset `yaml:"away" json:"away"`

	// BaseDuration is the length of a fixture without a result; ResultExtra
	// is added once a final score is known.
	BaseDuration time.Duration `yaml:"base_duration" json:"base_duration"`
	ResultExtra  time.Duration `yaml:"result_extra" json:"result_extra"`

	UIDPrefix string `yaml:"uid_prefix" json:"uid_prefix"`
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`
}

// ScheduleConfig controls when the feed is rebuilt.
type ScheduleConfig struct {
	CutoffHour   int           `yaml:"cutoff_hour" json:"cutoff_hour"`
	CutoffMinute int           `yaml:"cutoff_minute" json:"cutoff_minute"`
	MaxAge       time.Duration `yaml:"max_age" json:"max_age" env:"MAX_AGE, overwrite"`
	// Cron is a standard five-field spec evaluated in Config.Timezone.
	Cron string `yaml:"cron" json:"cron" env:"REFRESH_CRON, overwrite"`
}

// ServerConfig configures the HTTP handler.
type ServerConfig struct {
	Listen          string        `yaml:"listen" json:"listen" env:"LISTEN, overwrite"`
	FeedPath        string        `yaml:"feed_path" json:"feed_path" env:"FEED_PATH, overwrite"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL, overwrite"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT, overwrite"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone kick-off times are published in. It also
	// anchors the daily cutoff and the cron schedule.
	Timezone string `yaml:"timezone" json:"timezone" env:"TIMEZONE, overwrite"`

	// Output is where `generate` writes the feed.
	Output string `yaml:"output" json:"output" env:"OUTPUT, overwrite"`

	Source       scraper.Config      `yaml:"source" json:"source"`
	Rules        scraper.Rules       `yaml:"rules" json:"rules"`
	Competitions filter.Competitions `yaml:"competitions" json:"competitions"`
	Events       EventsConfig        `yaml:"events" json:"events"`
	Feed         calendar.Feed       `yaml:"feed" json:"feed"`
	Storage      storage.Config      `yaml:"storage" json:"storage"`
	Schedule     ScheduleConfig      `yaml:"schedule" json:"schedule"`
	Server       ServerConfig        `yaml:"server" json:"server"`
	Log          LogConfig           `yaml:"log" json:"log"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	opts := calendar.DefaultOptions()
	policy := schedule.DefaultPolicy()
	return &Config{
		Timezone:     calendar.SourceTimezone,
		Output:       "barcelona.ics",
		Source:       scraper.DefaultConfig(),
		Rules:        scraper.DefaultRules(),
		Competitions: filter.DefaultCompetitions(),
		Events: EventsConfig{
			Home:         opts.Home,
			Away:         opts.Away,
			BaseDuration: opts.BaseDuration,
			ResultExtra:  opts.ResultExtra,
			UIDPrefix:    opts.UIDPrefix,
			UIDDomain:    opts.UIDDomain,
		},
		Feed:    calendar.DefaultFeed(),
		Storage: storage.DefaultConfig(),
		Schedule: ScheduleConfig{
			CutoffHour:   policy.CutoffHour,
			CutoffMinute: policy.CutoffMinute,
			MaxAge:       policy.MaxAge,
			Cron:         schedule.DefaultSpec,
		},
		Server: ServerConfig{
			Listen:          "127.0.0.1:8080",
			FeedPath:        "/barcelona.ics",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: string(logger.FormatJSON),
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partial
// configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Output == "" {
		c.Output = def.Output
	}
	if c.Source.URL == "" {
		c.Source.URL = def.Source.URL
	}
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = def.Source.UserAgent
	}
	if c.Source.Timeout <= 0 {
		c.Source.Timeout = def.Source.Timeout
	}
	c.Rules.Normalize()
	if len(c.Competitions) == 0 {
		c.Competitions = def.Competitions
	}

	if c.Events.Home == (calendar.Preset{}) {
		c.Events.Home = def.Events.Home
	}
	if c.Events.Away == (calendar.Preset{}) {
		c.Events.Away = def.Events.Away
	}
	if c.Events.BaseDuration <= 0 {
		c.Events.BaseDuration = def.Events.BaseDuration
	}
	if c.Events.ResultExtra < 0 {
		c.Events.ResultExtra = 0
	}
	if c.Events.UIDPrefix == "" {
		c.Events.UIDPrefix = def.Events.UIDPrefix
	}
	if c.Events.UIDDomain == "" {
		c.Events.UIDDomain = def.Events.UIDDomain
	}

	c.Feed.Normalize()

	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = def.Storage.DataDir
	}
	if c.Storage.Database == "" {
		c.Storage.Database = def.Storage.Database
	}

	if c.Schedule.CutoffHour < 0 || c.Schedule.CutoffHour > 23 {
		c.Schedule.CutoffHour = def.Schedule.CutoffHour
	}
	if c.Schedule.CutoffMinute < 0 || c.Schedule.CutoffMinute > 59 {
		c.Schedule.CutoffMinute = 0
	}
	if c.Schedule.MaxAge < 0 {
		c.Schedule.MaxAge = 0
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = def.Schedule.Cron
	}

	if c.Server.Listen == "" {
		c.Server.Listen = def.Server.Listen
	}
	if c.Server.FeedPath == "" {
		c.Server.FeedPath = def.Server.FeedPath
	}
	if !strings.HasPrefix(c.Server.FeedPath, "/") {
		c.Server.FeedPath = "/" + c.Server.FeedPath
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	switch logger.Format(c.Log.Format) {
	case logger.FormatJSON, logger.FormatConsole:
	default:
		c.Log.Format = def.Log.Format
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.Competitions.Validate(); err != nil {
		return errors.Wrap(err, "competitions")
	}
	switch c.Storage.Driver {
	case storage.DriverFile, storage.DriverSQLite:
	default:
		return errors.Newf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := schedule.NewScheduler(c.Schedule.Cron, time.UTC, nil); err != nil {
		return err
	}
	return nil
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "loading timezone %q", c.Timezone)
	}
	return loc, nil
}

// SynthesizerOptions builds the event synthesis options.
func (c *Config) SynthesizerOptions() (calendar.Options, error) {
	loc, err := c.Location()
	if err != nil {
		return calendar.Options{}, err
	}
	return calendar.Options{
		Home:         c.Events.Home,
		Away:         c.Events.Away,
		BaseDuration: c.Events.BaseDuration,
		ResultExtra:  c.Events.ResultExtra,
		UIDPrefix:    c.Events.UIDPrefix,
		UIDDomain:    c.Events.UIDDomain,
		Location:     loc,
		Competitions: c.Competitions,
	}, nil
}

// Policy builds the refresh policy.
func (c *Config) Policy() (schedule.Policy, error) {
	loc, err := c.Location()
	if err != nil {
		return schedule.Policy{}, err
	}
	return schedule.Policy{
		CutoffHour:   c.Schedule.CutoffHour,
		CutoffMinute: c.Schedule.CutoffMinute,
		MaxAge:       c.Schedule.MaxAge,
		Location:     loc,
	}, nil
}

// Logger builds a logger from the Log section.
func (c *Config) Logger(verbose bool) *logger.Logger {
	level := logger.ParseLevel(c.Log.Level)
	if verbose {
		level = logger.LevelDebug
	}
	return logger.New(level, logger.Format(c.Log.Format), os.Stderr)
}

// Load reads the YAML file at path on top of the defaults, then applies the
// environment overlay. An empty path skips the file; a path that does not
// exist is an error.
func Load(ctx context.Context, path string) (*Config, error) {
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit lookuper for the environment overlay.
func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, errors.Newf("config file %s does not exist", path)
			}
			return nil, errors.Wrap(err, "reading config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, lookuper),
		DefaultOverwrite: true,
	}); err != nil {
		return nil, errors.Wrap(err, "reading environment")
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "encoding config")
	}
	return data, nil
}

// Save writes cfg to path as YAML, creating parent directories. The file is
// replaced atomically and left readable only by the owner.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}
