package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/fixture"
)

var (
	// ErrNotFound is returned when a value has never been stored.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned when a stored value cannot be decoded. Callers
	// treat it the same as a missing value.
	ErrCorrupt = errors.New("corrupt state")
)

// Store is the state the refresh policy and the feed handler depend on.
type Store interface {
	LastRefresh(ctx context.Context) (time.Time, error)
	SetLastRefresh(ctx context.Context, t time.Time) error
	CachedFeed(ctx context.Context) ([]byte, error)
	SetCachedFeed(ctx context.Context, feed []byte) error
}

// SnapshotStore keeps the events of the last published feed.
type SnapshotStore interface {
	// LoadSnapshot returns an empty snapshot when none was saved yet.
	LoadSnapshot(ctx context.Context) (*fixture.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *fixture.Snapshot) error
}

// Backend is a complete state store.
type Backend interface {
	Store
	SnapshotStore
	Close() error
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver   string `yaml:"driver" json:"driver" env:"STORAGE_DRIVER, overwrite"`
	DataDir  string `yaml:"data_dir" json:"data_dir" env:"DATA_DIR, overwrite"`
	Database string `yaml:"database" json:"database" env:"DATABASE, overwrite"`
}

// DefaultConfig stores plain files under the user's data directory.
func DefaultConfig() Config {
	return Config{
		Driver:   DriverFile,
		DataDir:  "~/.local/share/barca-ics",
		Database: "barca-ics.db",
	}
}

// Open returns the backend named by cfg.Driver. A relative database path is
// resolved inside DataDir.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverFile:
		return NewFileStore(cfg.DataDir)
	case DriverSQLite:
		dir, err := prepareDir(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		path := cfg.Database
		if path == "" {
			path = DefaultConfig().Database
		}
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		return OpenSQLite(ctx, path)
	default:
		return nil, errors.Newf("unknown storage driver %q", cfg.Driver)
	}
}

// prepareDir expands a leading ~/ and creates the directory.
func prepareDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultConfig().DataDir
	}
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "getting home directory")
		}
		dir = filepath.Join(home, dir[2:])
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "creating data directory")
	}
	return dir, nil
}

// parseTimestamp decodes a stored refresh time.
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrNotFound
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.Mark(errors.Wrapf(err, "parsing timestamp %q", raw), ErrCorrupt)
	}
	return t.UTC(), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
