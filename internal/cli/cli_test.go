package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "time/tzdata"

	"github.com/barcelona-calendar/barca-ics/internal/calendar"
	"github.com/barcelona-calendar/barca-ics/internal/config"
)

// fixturesServer serves body with status on every path.
func fixturesServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func calendarioPage(t *testing.T) []byte {
	t.Helper()
	page, err := os.ReadFile("../scraper/testdata/calendario.html")
	require.NoError(t, err)
	return page
}

// testConfig writes a config pointing the scraper at url and the state
// store at a temp dir.
func testConfig(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "barca-ics.yaml")
	body := fmt.Sprintf(`
source:
  url: %s
  timeout: 5s
storage:
  driver: file
  data_dir: %s
log:
  level: error
`, url, filepath.Join(dir, "state"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGenerate_WritesFeed(t *testing.T) {
	srv := fixturesServer(t, http.StatusOK, calendarioPage(t))
	cfg := testConfig(t, srv.URL)
	output := filepath.Join(t.TempDir(), "public", "barcelona.ics")

	out, err := execute(t, "--config", cfg, "generate", "--force", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "NEW: ")
	assert.Contains(t, out, "Wrote 4 events to "+output)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	events, err := calendar.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestGenerate_SecondRunIsGated(t *testing.T) {
	srv := fixturesServer(t, http.StatusOK, calendarioPage(t))
	cfg := testConfig(t, srv.URL)
	output := filepath.Join(t.TempDir(), "barcelona.ics")

	_, err := execute(t, "--config", cfg, "generate", "--output", output)
	require.NoError(t, err)
	require.NoError(t, os.Remove(output))

	out, err := execute(t, "--config", cfg, "generate", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Feed is up to date")

	// The cached feed is written back out.
	_, err = os.Stat(output)
	assert.NoError(t, err)

	out, err = execute(t, "--config", cfg, "generate", "--force", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "No fixture changes.")
}

func TestGenerate_NoMatchesKeepsOutput(t *testing.T) {
	srv := fixturesServer(t, http.StatusOK, []byte("<html><body><p>Sin partidos</p></body></html>"))
	cfg := testConfig(t, srv.URL)
	output := filepath.Join(t.TempDir(), "barcelona.ics")
	require.NoError(t, os.WriteFile(output, []byte("previous"), 0o644))

	out, err := execute(t, "--config", cfg, "generate", "--force", "--output", output, "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "No fixtures found")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestGenerate_FetchFailed(t *testing.T) {
	srv := fixturesServer(t, http.StatusServiceUnavailable, nil)
	cfg := testConfig(t, srv.URL)
	output := filepath.Join(t.TempDir(), "barcelona.ics")

	out, err := execute(t, "--config", cfg, "generate", "--force", "--output", output)
	require.NoError(t, err, "without --strict a failed fetch is not an error")
	assert.Contains(t, out, "Fetching fixtures failed")

	_, err = execute(t, "--config", cfg, "generate", "--force", "--output", output, "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFetchFailed, ExitCode(err))

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerate_WriteFailure(t *testing.T) {
	srv := fixturesServer(t, http.StatusOK, calendarioPage(t))
	cfg := testConfig(t, srv.URL)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := execute(t, "--config", cfg, "generate", "--force", "--output", filepath.Join(blocker, "barcelona.ics"))
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestGenerate_JSONSummary(t *testing.T) {
	srv := fixturesServer(t, http.StatusOK, calendarioPage(t))
	cfg := testConfig(t, srv.URL)
	output := filepath.Join(t.TempDir(), "barcelona.ics")

	out, err := execute(t, "--config", cfg, "generate", "--force", "--output", output, "--format", "json")
	require.NoError(t, err)

	var summary RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.True(t, summary.Ran)
	assert.True(t, summary.Published)
	assert.Equal(t, "refreshed", summary.Status)
	assert.Equal(t, 4, summary.EventCount)
	require.NotNil(t, summary.Diff)
	assert.Len(t, summary.Diff.Added, 4)
}

func TestGenerate_DryRun(t *testing.T) {
	srv := fixturesServer(t, http.StatusOK, calendarioPage(t))
	cfg := testConfig(t, srv.URL)
	output := filepath.Join(t.TempDir(), "barcelona.ics")

	out, err := execute(t, "--config", cfg, "generate", "--dry-run", "--output", output)
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "(Length: ")
	assert.Contains(t, out, "Built 4 events")

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr), "dry run must not write the output")
}

func TestGenerate_BadFormat(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	_, err := execute(t, "--config", cfg, "generate", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestInspect(t *testing.T) {
	srv := fixturesServer(t, http.StatusOK, calendarioPage(t))
	cfg := testConfig(t, srv.URL)
	output := filepath.Join(t.TempDir(), "barcelona.ics")
	_, err := execute(t, "--config", cfg, "generate", "--force", "--output", output)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "inspect", output, "--sort", "competition", "--format", "json")
	require.NoError(t, err)

	var list EventList
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Equal(t, 4, list.EventCount)
	assert.Equal(t, "Champions", list.Events[0].Competition)
	for _, e := range list.Events[1:] {
		assert.Equal(t, "LALIGA", e.Competition)
	}

	out, err = execute(t, "--config", cfg, "--verbose", "inspect", output)
	require.NoError(t, err)
	assert.Contains(t, out, "Mallorca")
	assert.Contains(t, out, "UID: barca_")
	assert.Contains(t, out, "Total: 4 events")
}

func TestInspect_Errors(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")

	_, err := execute(t, "--config", cfg, "inspect", filepath.Join(t.TempDir(), "missing.ics"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.ics")
	require.NoError(t, os.WriteFile(garbage, []byte("not a calendar"), 0o644))
	_, err = execute(t, "--config", cfg, "inspect", garbage, "--sort", "stadium")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sort")

	_, err = execute(t, "--config", cfg, "inspect")
	assert.Error(t, err)
}

func TestConfigCmd(t *testing.T) {
	cfg := testConfig(t, "http://fixtures.example/calendario")

	out, err := execute(t, "--config", cfg, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "url: http://fixtures.example/calendario")
	assert.Contains(t, out, "timezone: Europe/Madrid")

	saved := filepath.Join(t.TempDir(), "saved.yaml")
	out, err = execute(t, "--config", cfg, "config", "--write", saved)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to")

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "fixtures.example"))
}

func TestConfigLoadFailure(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config")
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitError, ExitCode(assert.AnError))
	wrapped := fmt.Errorf("outer: %w", &exitCodeError{code: ExitFetchFailed, err: assert.AnError})
	assert.Equal(t, ExitFetchFailed, ExitCode(wrapped))
}

func TestEventsInRange(t *testing.T) {
	cfg := config.DefaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)

	now := time.Now().In(loc)
	inMonth := time.Date(now.Year(), now.Month(), 15, 21, 0, 0, 0, loc)
	later := inMonth.AddDate(0, 2, 0)
	events := []calendar.Event{
		{Title: "later", Start: later},
		{Title: "this month", Start: inMonth},
	}

	kept, err := eventsInRange(events, inMonth.Format("January"), cfg)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "this month", kept[0].Title)

	_, err = eventsInRange(events, "Brumaire", cfg)
	assert.Error(t, err)
}
