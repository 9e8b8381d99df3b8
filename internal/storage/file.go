package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/fixture"
)

const (
	timestampFile = "barcelona_cache_timestamp.txt"
	feedFile      = "barcelona_calendar_cache.ics"
	snapshotFile  = "snapshot.json"
)

// FileStore keeps state as plain files in one directory.
type FileStore struct {
	dataDir string
}

var _ Backend = (*FileStore)(nil)

// NewFileStore creates the data directory if needed. A leading ~/ is
// expanded to the user's home directory.
func NewFileStore(dataDir string) (*FileStore, error) {
	dir, err := prepareDir(dataDir)
	if err != nil {
		return nil, err
	}
	return &FileStore{dataDir: dir}, nil
}

// Dir returns the resolved data directory.
func (s *FileStore) Dir() string {
	return s.dataDir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// LastRefresh returns ErrNotFound when no refresh was recorded and a
// wrapped ErrCorrupt when the file does not hold an RFC 3339 time.
func (s *FileStore) LastRefresh(_ context.Context) (time.Time, error) {
	data, err := s.read(timestampFile)
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(string(data))
}

func (s *FileStore) SetLastRefresh(_ context.Context, t time.Time) error {
	return WriteFileAtomic(s.path(timestampFile), []byte(formatTimestamp(t)))
}

func (s *FileStore) CachedFeed(_ context.Context) ([]byte, error) {
	data, err := s.read(feedFile)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *FileStore) SetCachedFeed(_ context.Context, feed []byte) error {
	return WriteFileAtomic(s.path(feedFile), feed)
}

// LoadSnapshot loads a snapshot from disk
func (s *FileStore) LoadSnapshot(_ context.Context) (*fixture.Snapshot, error) {
	data, err := s.read(snapshotFile)
	if errors.Is(err, ErrNotFound) {
		// No previous snapshot, return empty one
		return fixture.NewSnapshot(), nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

// SaveSnapshot saves a snapshot to disk
func (s *FileStore) SaveSnapshot(_ context.Context, snap *fixture.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.path(snapshotFile), data)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	return data, nil
}

func encodeSnapshot(snap *fixture.Snapshot) ([]byte, error) {
	if snap == nil {
		snap = fixture.NewSnapshot()
	}
	snap.UpdatedAt = formatTimestamp(time.Now())

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding snapshot")
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*fixture.Snapshot, error) {
	var snap fixture.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing snapshot"), ErrCorrupt)
	}

	// Ensure Events map is initialized
	if snap.Events == nil {
		snap.Events = make(map[string]*fixture.Entry)
	}
	return &snap, nil
}

// WriteFileAtomic writes data next to path and renames it into place, so a
// reader never sees a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", filepath.Base(path))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "syncing %s", filepath.Base(path))
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", filepath.Base(path))
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return errors.Wrapf(err, "setting mode on %s", filepath.Base(path))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "replacing %s", filepath.Base(path))
	}
	return nil
}
