package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/fixture"
	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/schedule"
	"github.com/barcelona-calendar/barca-ics/internal/storage"
)

// Source says where a served feed came from.
type Source string

const (
	SourceFresh     Source = "fresh"
	SourceCache     Source = "cache"
	SourceEmergency Source = "emergency"
)

// Runner runs one refresh. *Pipeline implements it.
type Runner interface {
	Run(ctx context.Context) (*Result, error)
}

// Outcome describes a Refresh call.
type Outcome struct {
	// Ran is false when the policy said the cache was still fresh.
	Ran    bool
	Reason schedule.Reason
	Result *Result
	// Diff is set after a refresh that published a new feed.
	Diff *fixture.DiffResult
}

// Service owns the refresh cycle and the cached feed. All methods are safe
// for concurrent use; at most one refresh runs at a time.
type Service struct {
	mu        sync.Mutex
	runner    Runner
	store     storage.Store
	snapshots storage.SnapshotStore
	policy    schedule.Policy
	emergency calendar.Feed
	now       func() time.Time
}

// NewService creates a Service. If store also implements
// storage.SnapshotStore, refreshes report what changed since the previous
// feed.
func NewService(runner Runner, store storage.Store, policy schedule.Policy, feed calendar.Feed) *Service {
	feed.Normalize()
	feed.Name += " (Error)"

	s := &Service{
		runner:    runner,
		store:     store,
		policy:    policy,
		emergency: feed,
		now:       time.Now,
	}
	if ss, ok := store.(storage.SnapshotStore); ok {
		s.snapshots = ss
	}
	return s
}

// Feed returns the feed to serve, refreshing first when the policy says so.
// It falls back to the cached feed, then to an empty emergency feed; only a
// broken store makes it fail.
func (s *Service) Feed(ctx context.Context) ([]byte, Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, haveCache, err := s.cachedFeed(ctx)
	if err != nil {
		return nil, "", err
	}

	if due, reason := s.policy.Check(s.now(), s.lastRefresh(ctx), haveCache); due {
		logger.Info("Refreshing feed", logger.Fields{"reason": string(reason)})
		out, err := s.refreshLocked(ctx, reason)
		if out != nil && out.Result != nil && out.Result.Status == StatusRefreshed {
			if err != nil {
				// The new feed is good even if it could not be cached.
				logger.Error("Caching refreshed feed failed", nil, err)
			}
			return out.Result.Feed, SourceFresh, nil
		}
		if err != nil {
			return nil, "", err
		}
	}

	if haveCache {
		logger.Debug("Serving cached feed", logger.Fields{"bytes": len(cached)})
		return cached, SourceCache, nil
	}

	logger.Warn("No feed available, serving emergency feed", nil)
	logger.IncrCounter("feed.emergency")
	return calendar.EmergencyFeed(s.emergency), SourceEmergency, nil
}

// Refresh runs the pipeline if the policy says the cache is stale, or
// unconditionally when force is set. Errors are persistence failures or
// programming faults; a failed fetch shows up in Outcome.Result.Status.
func (s *Service) Refresh(ctx context.Context, force bool) (*Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason := schedule.Reason("forced")
	if !force {
		_, haveCache, err := s.cachedFeed(ctx)
		if err != nil {
			return nil, err
		}
		var due bool
		due, reason = s.policy.Check(s.now(), s.lastRefresh(ctx), haveCache)
		if !due {
			logger.Info("Feed is fresh, skipping refresh", logger.Fields{"reason": string(reason)})
			return &Outcome{Reason: reason}, nil
		}
	}
	return s.refreshLocked(ctx, reason)
}

// CachedFeed returns the last stored feed, or ErrNotFound.
func (s *Service) CachedFeed(ctx context.Context) ([]byte, error) {
	return s.store.CachedFeed(ctx)
}

// LastRefresh returns the time of the last successful refresh, or the zero
// time when unknown.
func (s *Service) LastRefresh(ctx context.Context) time.Time {
	return s.lastRefresh(ctx)
}

func (s *Service) refreshLocked(ctx context.Context, reason schedule.Reason) (*Outcome, error) {
	out := &Outcome{Ran: true, Reason: reason}

	res, err := s.runner.Run(ctx)
	out.Result = res
	if err != nil {
		return out, err
	}

	switch res.Status {
	case StatusFetchFailed:
		logger.Warn("Refresh failed, keeping cached feed", logger.Fields{"reason": string(reason)})
		return out, nil
	case StatusNoMatches:
		logger.Warn("Refresh found no fixtures, keeping cached feed", logger.Fields{"skipped": res.Skipped})
		return out, nil
	}

	// Feed first: if it fails the old timestamp makes the next call retry.
	if err := s.store.SetCachedFeed(ctx, res.Feed); err != nil {
		return out, errors.Wrap(err, "caching feed")
	}
	if err := s.store.SetLastRefresh(ctx, s.now()); err != nil {
		return out, errors.Wrap(err, "recording refresh time")
	}

	out.Diff = s.recordSnapshot(ctx, res.Events)
	logger.Info("Feed refreshed", logger.Fields{
		"events":  len(res.Events),
		"skipped": res.Skipped,
		"elapsed": res.Elapsed,
	})
	return out, nil
}

// recordSnapshot diffs the new events against the previous snapshot and
// saves the new one. Failures only cost the report.
func (s *Service) recordSnapshot(ctx context.Context, events []calendar.Event) *fixture.DiffResult {
	if s.snapshots == nil {
		return nil
	}

	previous, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		logger.Warn("Loading snapshot failed, reporting every event as new", logger.Fields{"error": err.Error()})
		previous = fixture.NewSnapshot()
	}

	entries := Entries(events)
	diff := fixture.Diff(previous, entries)
	logger.Info("Fixture changes", logger.Fields{
		"added":   len(diff.Added),
		"removed": len(diff.Removed),
		"changed": len(diff.Changed),
	})
	for _, c := range diff.Changed {
		logger.Info("Fixture changed", logger.Fields{
			"uid":  c.UID,
			"kind": c.ChangeType,
			"old":  c.OldValue,
			"new":  c.NewValue,
		})
	}

	snap := fixture.CreateSnapshot(entries, s.now().UTC().Format(time.RFC3339))
	if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
		logger.Error("Saving snapshot failed", nil, err)
	}
	return diff
}

// cachedFeed treats a missing or corrupt cache as absent. Any other store
// error is returned.
func (s *Service) cachedFeed(ctx context.Context) ([]byte, bool, error) {
	feed, err := s.store.CachedFeed(ctx)
	switch {
	case err == nil:
		return feed, true, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrCorrupt):
		return nil, false, nil
	default:
		return nil, false, errors.Wrap(err, "reading cached feed")
	}
}

func (s *Service) lastRefresh(ctx context.Context) time.Time {
	t, err := s.store.LastRefresh(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn("Unreadable refresh timestamp, treating as stale", logger.Fields{"error": err.Error()})
		}
		return time.Time{}
	}
	return t
}
