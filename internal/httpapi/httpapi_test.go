package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsync-engine/internal/config"
	"jobsync-engine/internal/domain"
	"jobsync-engine/internal/events"
	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/scheduler"
	"jobsync-engine/internal/store"
)

type fakeRunner struct {
	mu     sync.Mutex
	busy   bool
	fail   error
	starts []reconcile.Options
	status scheduler.Status
}

func (f *fakeRunner) Start(_ context.Context, opts reconcile.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.busy {
		return scheduler.ErrBusy
	}
	f.starts = append(f.starts, opts)
	return nil
}

func (f *fakeRunner) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeRunner) Starts() []reconcile.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reconcile.Options(nil), f.starts...)
}

type fakeCheckpointer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCheckpointer) Checkpoint(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func newServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Handler(d))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv := newServer(t, Deps{Runner: &fakeRunner{}, Hub: events.NewHub()})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, true, body["ok"])
	assert.EqualValues(t, 0, body["events_dropped"])
}

func TestSyncRun(t *testing.T) {
	runner := &fakeRunner{}
	srv := newServer(t, Deps{Runner: runner, Hub: events.NewHub()})

	resp, err := http.Post(srv.URL+"/sync/run?dry_run=1&source=AcmeBoard", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body runAccepted
	decode(t, resp, &body)
	assert.True(t, body.OK)
	assert.True(t, body.DryRun)
	assert.Equal(t, "AcmeBoard", body.Source)

	starts := runner.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, reconcile.Options{DryRun: true, SourceName: "AcmeBoard"}, starts[0])
}

func TestSyncRun_Conflict(t *testing.T) {
	srv := newServer(t, Deps{Runner: &fakeRunner{busy: true}, Hub: events.NewHub()})

	resp, err := http.Post(srv.URL+"/sync/run", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body APIError
	decode(t, resp, &body)
	assert.Equal(t, "sync_running", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestSyncRun_Failure(t *testing.T) {
	srv := newServer(t, Deps{Runner: &fakeRunner{fail: errors.New("boom")}, Hub: events.NewHub()})

	resp, err := http.Post(srv.URL+"/sync/run", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSyncRun_MethodNotAllowed(t *testing.T) {
	srv := newServer(t, Deps{Runner: &fakeRunner{}, Hub: events.NewHub()})

	resp, err := http.Get(srv.URL + "/sync/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSyncStatus(t *testing.T) {
	runner := &fakeRunner{status: scheduler.Status{
		Running:   true,
		LastRunAt: "2026-10-19T06:00:00Z",
		Last:      &reconcile.SyncSummary{RunID: "run-1", BySource: []reconcile.SourceRunSummary{}},
	}}
	srv := newServer(t, Deps{Runner: runner, Hub: events.NewHub()})

	resp, err := http.Get(srv.URL + "/sync/status")
	require.NoError(t, err)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "2026-10-19T06:00:00Z", body["last_run_at"])
	last, ok := body["last_summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-1", last["runId"])
}

func TestJobsList(t *testing.T) {
	mem := store.NewMemory()
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	for _, l := range []domain.Listing{
		{Title: "Engineer", Company: "Acme", Link: "https://acme.io/jobs/1", Source: "AcmeBoard"},
		{Title: "Designer", Company: "Acme", Link: "https://acme.io/jobs/2", Source: "AcmeBoard"},
		{Title: "Analyst", Company: "Globex", Link: "https://globex.example/1", Source: "Globex"},
	} {
		_, err := mem.Insert(context.Background(), domain.NewJobRecord(l, now))
		require.NoError(t, err)
	}
	srv := newServer(t, Deps{Runner: &fakeRunner{}, Hub: events.NewHub(), Jobs: mem})

	resp, err := http.Get(srv.URL + "/jobs?source=AcmeBoard&sort=title&order=asc")
	require.NoError(t, err)
	var page jobsPage
	decode(t, resp, &page)
	require.Equal(t, 2, page.Count)
	assert.Equal(t, "Designer", page.Jobs[0].Title)
	assert.Equal(t, "Engineer", page.Jobs[1].Title)

	resp, err = http.Get(srv.URL + "/jobs?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobsList_DisabledWithoutLister(t *testing.T) {
	srv := newServer(t, Deps{Runner: &fakeRunner{}, Hub: events.NewHub()})

	resp, err := http.Get(srv.URL + "/jobs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfig_NeverLeaksDatabaseURL(t *testing.T) {
	cfg := &config.Config{
		DataDir:     "/var/lib/jobsync",
		DBDriver:    "postgres",
		DatabaseURL: "postgres://jobs:hunter2@db/jobs",
		SourcesEnv:  "JOB_BOARD_SOURCES",
	}
	srv := newServer(t, Deps{Runner: &fakeRunner{}, Hub: events.NewHub(), Config: cfg})

	resp, err := http.Get(srv.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var raw strings.Builder
	_, err = bufio.NewReader(resp.Body).WriteTo(&raw)
	require.NoError(t, err)
	assert.NotContains(t, raw.String(), "hunter2")
	assert.Contains(t, raw.String(), `"db_driver":"postgres"`)
	assert.Contains(t, raw.String(), `"validation"`)
}

func TestSources(t *testing.T) {
	set := &config.SourceSet{
		Sources: []domain.SourceDescriptor{{Name: "AcmeBoard", URL: "https://acme.io/careers", Token: "s3cret"}},
		Origin:  config.OriginEnv,
		Dropped: 1,
	}
	srv := newServer(t, Deps{
		Runner: &fakeRunner{},
		Hub:    events.NewHub(),
		LoadSources: func(context.Context) (*config.SourceSet, error) {
			return set, nil
		},
	})

	resp, err := http.Get(srv.URL + "/sources")
	require.NoError(t, err)
	var got map[string]any
	decode(t, resp, &got)
	assert.Equal(t, float64(1), got["dropped"])
	assert.NotContains(t, got["sources"].([]any)[0], "Token")

	bad := newServer(t, Deps{
		Runner: &fakeRunner{},
		Hub:    events.NewHub(),
		LoadSources: func(context.Context) (*config.SourceSet, error) {
			return nil, config.ErrInvalidSourcesEnv
		},
	})
	resp, err = http.Get(bad.URL + "/sources")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestSetSourceToken(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]string{}
	srv := newServer(t, Deps{
		Runner: &fakeRunner{},
		Hub:    events.NewHub(),
		SetToken: func(account, token string) error {
			mu.Lock()
			defer mu.Unlock()
			stored[account] = token
			return nil
		},
	})

	resp, err := http.Post(srv.URL+"/secrets/token", "application/json",
		strings.NewReader(`{"account":"acme-board","token":"tok"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	mu.Lock()
	assert.Equal(t, "tok", stored["acme-board"])
	mu.Unlock()

	resp, err = http.Post(srv.URL+"/secrets/token", "application/json", strings.NewReader(`{"account":""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetSourceToken_RejectsRemoteCallers(t *testing.T) {
	h := SecretsHandler{SetToken: func(string, string) error {
		t.Fatal("must not store")
		return nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/secrets/token", strings.NewReader(`{"account":"a","token":"b"}`))
	req.RemoteAddr = "203.0.113.7:51234"
	rec := httptest.NewRecorder()

	h.SetSourceToken(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckpoint(t *testing.T) {
	db := &fakeCheckpointer{}
	srv := newServer(t, Deps{Runner: &fakeRunner{}, Hub: events.NewHub(), DB: db})

	resp, err := http.Post(srv.URL+"/db/checkpoint", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	db.mu.Lock()
	defer db.mu.Unlock()
	assert.Equal(t, 1, db.calls)
}

func TestEvents_StreamsHubMessages(t *testing.T) {
	hub := events.NewHub()
	srv := newServer(t, Deps{Runner: &fakeRunner{}, Hub: hub})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	readData := func() events.Event {
		for {
			line, err := r.ReadString('\n')
			require.NoError(t, err)
			if raw, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var e events.Event
				require.NoError(t, json.Unmarshal([]byte(raw), &e))
				return e
			}
		}
	}

	assert.Equal(t, events.TypePing, readData().Type)

	// the handler subscribes before sending the ping
	hub.Publish(events.MakeEvent(events.TypeSyncStarted, "run-1", nil))
	e := readData()
	assert.Equal(t, events.TypeSyncStarted, e.Type)
	assert.Equal(t, "run-1", e.RunID)
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}), RequestID, Recover)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}
