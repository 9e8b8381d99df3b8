package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barcelona-calendar/barca-ics/internal/logger"
	"github.com/barcelona-calendar/barca-ics/internal/pipeline"
	"github.com/barcelona-calendar/barca-ics/internal/schedule"
)

type fakeService struct {
	feed   []byte
	source pipeline.Source
	err    error
	last   time.Time
	panics bool
}

func (f *fakeService) Feed(context.Context) ([]byte, pipeline.Source, error) {
	if f.panics {
		panic("boom")
	}
	return f.feed, f.source, f.err
}

func (f *fakeService) LastRefresh(context.Context) time.Time {
	return f.last
}

const testFeed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nEND:VCALENDAR\r\n"

func newTestServer(svc FeedService, sched *schedule.Scheduler) *Server {
	logger.SetDefault(logger.NewNop())
	s := New(Config{Listen: "127.0.0.1:0"}, svc, sched)
	s.now = func() time.Time { return time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC) }
	return s
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestFeed_Headers(t *testing.T) {
	last := time.Date(2025, 9, 20, 7, 5, 0, 0, time.UTC)
	s := newTestServer(&fakeService{feed: []byte(testFeed), source: pipeline.SourceCache, last: last}, nil)

	rec := serve(s, http.MethodGet, "/barcelona.ics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testFeed, rec.Body.String())
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="barcelona.ics"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Sat, 20 Sep 2025 07:05:00 GMT", rec.Header().Get("Last-Modified"))
	assert.Equal(t, "cache", rec.Header().Get("X-Feed-Source"))
}

func TestFeed_FreshUsesNow(t *testing.T) {
	s := newTestServer(&fakeService{feed: []byte(testFeed), source: pipeline.SourceFresh}, nil)

	rec := serve(s, http.MethodGet, "/barcelona.ics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sat, 20 Sep 2025 10:00:00 GMT", rec.Header().Get("Last-Modified"))
	assert.Equal(t, "fresh", rec.Header().Get("X-Feed-Source"))
}

func TestFeed_Head(t *testing.T) {
	s := newTestServer(&fakeService{feed: []byte(testFeed), source: pipeline.SourceEmergency}, nil)

	rec := serve(s, http.MethodHead, "/barcelona.ics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "emergency", rec.Header().Get("X-Feed-Source"))
}

func TestFeed_CustomPath(t *testing.T) {
	logger.SetDefault(logger.NewNop())
	s := New(Config{FeedPath: "/cal/barca.ics", FeedName: "barca.ics"}, &fakeService{feed: []byte(testFeed), source: pipeline.SourceFresh}, nil)

	rec := serve(s, http.MethodGet, "/cal/barca.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="barca.ics"`, rec.Header().Get("Content-Disposition"))

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/barcelona.ics").Code)
}

func TestFeed_Error(t *testing.T) {
	s := newTestServer(&fakeService{err: errors.New("store unreachable")}, nil)

	rec := serve(s, http.MethodGet, "/barcelona.ics")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "store unreachable")
}

func TestFeed_Panic(t *testing.T) {
	s := newTestServer(&fakeService{panics: true}, nil)

	rec := serve(s, http.MethodGet, "/barcelona.ics")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeService{feed: []byte(testFeed)}, nil)

	rec := serve(s, http.MethodPost, "/barcelona.ics")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	sched, err := schedule.NewScheduler("5 9 * * *", time.UTC, func(context.Context) {})
	require.NoError(t, err)
	last := time.Date(2025, 9, 20, 9, 5, 0, 0, time.UTC)
	s := newTestServer(&fakeService{last: last}, sched)

	rec := serve(s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "2025-09-20T09:05:00Z", body.LastRefresh)
	assert.Equal(t, "2025-09-21T09:05:00Z", body.NextRefresh)
}

func TestHealth_NeverRefreshed(t *testing.T) {
	s := newTestServer(&fakeService{}, nil)

	rec := serve(s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "last_refresh")
	assert.NotContains(t, body, "next_refresh")
}

func TestMetrics(t *testing.T) {
	s := newTestServer(&fakeService{feed: []byte(testFeed), source: pipeline.SourceCache}, nil)
	serve(s, http.MethodGet, "/barcelona.ics")

	rec := serve(s, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "counters")
	assert.Contains(t, body["counters"], "server.feed.cache")
}

func TestRun_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	sched, err := schedule.NewScheduler("0 0 1 1 *", time.UTC, func(context.Context) {})
	require.NoError(t, err)

	logger.SetDefault(logger.NewNop())
	s := New(Config{Listen: addr}, &fakeService{feed: []byte(testFeed), source: pipeline.SourceCache}, sched)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	logger.SetDefault(logger.NewNop())
	s := New(Config{Listen: l.Addr().String()}, &fakeService{}, nil)

	err = s.Run(context.Background())
	assert.Error(t, err)
}
