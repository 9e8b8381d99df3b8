package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/barcelona-calendar/barca-ics/internal/fixture"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	keyLastRefresh = "last_refresh"
	keyFeed        = "feed"
	keySnapshot    = "snapshot"
)

// SQLiteStore keeps state as rows of a key/value table.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Backend = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and brings
// its schema up to date.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if err := dbx.PingContext(ctx); err != nil {
		dbx.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}
	if err := runMigrations(dbx); err != nil {
		dbx.Close()
		return nil, err
	}
	return NewSQLiteStore(dbx), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// runMigrations performs all embedded migrations.
func runMigrations(dbx *sqlx.DB) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "creating migrations source")
	}
	i, err := sqlite.WithInstance(dbx.DB, &sqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "creating sqlite instance for migration")
	}
	migrator, err := migrate.NewWithInstance("iofs", d, "sqlite", i)
	if err != nil {
		return errors.Wrap(err, "creating migrator")
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migrating")
	}
	version, _, _ := migrator.Version()
	logger.Debug("Database migrated", logger.Fields{"version": version})
	return nil
}

func (s *SQLiteStore) get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := sq.Select("value").From("state").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "constructing sql")
	}

	var value []byte
	err = s.db.GetContext(ctx, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	return value, nil
}

func (s *SQLiteStore) put(ctx context.Context, key string, value []byte) error {
	query, args, err := sq.Insert("state").
		Columns("key", "value", "updated_at").
		Values(key, value, formatTimestamp(time.Now())).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "constructing sql")
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "writing %s", key)
	}
	return nil
}

func (s *SQLiteStore) LastRefresh(ctx context.Context) (time.Time, error) {
	value, err := s.get(ctx, keyLastRefresh)
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(string(value))
}

func (s *SQLiteStore) SetLastRefresh(ctx context.Context, t time.Time) error {
	return s.put(ctx, keyLastRefresh, []byte(formatTimestamp(t)))
}

func (s *SQLiteStore) CachedFeed(ctx context.Context) ([]byte, error) {
	value, err := s.get(ctx, keyFeed)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLiteStore) SetCachedFeed(ctx context.Context, feed []byte) error {
	return s.put(ctx, keyFeed, feed)
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*fixture.Snapshot, error) {
	value, err := s.get(ctx, keySnapshot)
	if errors.Is(err, ErrNotFound) {
		return fixture.NewSnapshot(), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(value)
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *fixture.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return s.put(ctx, keySnapshot, data)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
