package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsync-engine/internal/reconcile"
	"jobsync-engine/internal/store"
)

func boardServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/careers/1">Network Engineer</a>
			<a href="/careers/2">SRE</a>
		</body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupEnv(t *testing.T, boardURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("JOBSYNC_DATA_DIR", dir)
	t.Setenv("JOBSYNC_DB_DRIVER", "sqlite")
	t.Setenv("JOBSYNC_FETCH_RPS", "0")
	t.Setenv("JOB_BOARD_SOURCES", fmt.Sprintf(`[{"name":"AcmeBoard","url":%q,"company":"Acme"}]`, boardURL+"/careers"))
	ConfigPath = filepath.Join(dir, "missing.yml")
	return dir
}

func runSyncCmd(t *testing.T, dryRun bool) reconcile.SyncSummary {
	t.Helper()
	syncDryRun, syncSource = dryRun, ""
	t.Cleanup(func() { syncDryRun = false })

	var out bytes.Buffer
	SyncCmd.SetContext(context.Background())
	SyncCmd.SetOut(&out)
	require.NoError(t, runSync(SyncCmd, nil))

	var sum reconcile.SyncSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &sum))
	return sum
}

func TestSyncCommand_EndToEnd(t *testing.T) {
	srv := boardServer(t)
	dir := setupEnv(t, srv.URL)

	dry := runSyncCmd(t, true)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 2, dry.Totals.Inserted)

	live := runSyncCmd(t, false)
	assert.False(t, live.DryRun)
	assert.Equal(t, dry.Totals.Counters, live.Totals.Counters)
	require.Len(t, live.BySource, 1)
	assert.Equal(t, "AcmeBoard", live.BySource[0].Source)

	again := runSyncCmd(t, false)
	assert.Equal(t, 0, again.Totals.Inserted)
	assert.Equal(t, 2, again.Totals.Updated)

	sq, err := store.OpenSQLite(context.Background(), filepath.Join(dir, "jobsync.db"))
	require.NoError(t, err)
	defer sq.Close()
	rows, err := sq.FindBySource(context.Background(), "AcmeBoard")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSyncCommand_InvalidSourcesFails(t *testing.T) {
	srv := boardServer(t)
	setupEnv(t, srv.URL)
	t.Setenv("JOB_BOARD_SOURCES", "not json")

	SyncCmd.SetContext(context.Background())
	SyncCmd.SetOut(&bytes.Buffer{})
	err := runSync(SyncCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load sources")
}

func TestCheckpointFunc(t *testing.T) {
	called := false
	var c interface {
		Checkpoint(context.Context) error
	} = checkpointFunc(func(context.Context) error { called = true; return nil })
	require.NoError(t, c.Checkpoint(context.Background()))
	assert.True(t, called)
}
