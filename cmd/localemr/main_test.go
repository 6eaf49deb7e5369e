package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"localemr/internal/blob"
	"localemr/internal/config"
	"localemr/internal/core"
	"localemr/internal/infra/persistence/memory"
	"localemr/pkg/domain"
)

// testApp is a memory-backed app shared across invocations in one test.
func testApp(t *testing.T) *app {
	t.Helper()
	metrics := core.NewPrometheusMetricsRecorder()
	store := core.NewPatientStore(memory.NewStore(), core.WithMetrics(metrics))
	blobs := blob.NewMemory()
	return &app{
		cfg:     &config.Config{Storage: config.StorageConfig{Driver: config.StorageMemory, Timeout: 5 * time.Second}},
		logger:  zap.NewNop(),
		metrics: metrics,
		store:   store,
		session: core.NewSession(store),
		blobs:   func(context.Context) (blob.Store, error) { return blobs, nil },
	}
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := &environment{open: func(context.Context, appOptions) (*app, error) { return a, nil }}
	root := newRootCmd(env)
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	env.close()
	return stdout.String(), err
}

func mustExecute(t *testing.T, a *app, args ...string) string {
	t.Helper()
	out, err := execute(t, a, args...)
	require.NoError(t, err, "localemr %s", strings.Join(args, " "))
	return out
}

func TestRoundingFlow(t *testing.T) {
	a := testApp(t)

	assert.Equal(t, "No patients yet\n", mustExecute(t, a, "list"))
	assert.Equal(t, "Patient added (id 1)\n", mustExecute(t, a, "add", "--name", "J. Doe", "--room", "204", "--age", "67", "--diagnoses", "CHF\nAFib"))
	mustExecute(t, a, "add", "--name", "R. Roe", "--room", "12")

	out := mustExecute(t, a, "list")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ROOM")
	assert.Contains(t, lines[1], "R. Roe", "numeric room order puts 12 before 204")
	assert.Contains(t, lines[2], "CHF")
	assert.NotContains(t, out, "AFib")

	assert.Equal(t, "J. Doe: Seen\n", mustExecute(t, a, "seen", "1"))
	assert.Equal(t, "J. Doe: Note Done\n", mustExecute(t, a, "note", "1"))
	assert.Equal(t, "J. Doe: Note Done\n", mustExecute(t, a, "seen", "1"))
	assert.Equal(t, "No patient with id 9\n", mustExecute(t, a, "seen", "9"))

	assert.Equal(t, "Total: 2  Seen: 1  Notes: 1\n", mustExecute(t, a, "stats"))
}

func TestListJSONAndFilters(t *testing.T) {
	a := testApp(t)
	mustExecute(t, a, "add", "--name", "a", "--room", "3", "--status", "seen")
	mustExecute(t, a, "add", "--name", "b", "--room", "1")

	var view []domain.Patient
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, a, "list", "--json", "--filter", "seen")), &view))
	require.Len(t, view, 1)
	assert.Equal(t, "a", view[0].Name)

	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, a, "list", "--json", "--filter", "completed")), &view))
	assert.Empty(t, view)
	assert.Equal(t, "No patients match this filter\n", mustExecute(t, a, "list", "--filter", "completed"))

	_, err := execute(t, a, "list", "--filter", "done")
	assert.Error(t, err)

	var st core.Stats
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, a, "stats", "--json")), &st))
	assert.Equal(t, core.Stats{Total: 2, SeenCount: 1}, st)
}

func TestAddValidation(t *testing.T) {
	a := testApp(t)
	_, err := execute(t, a, "add", "--room", "1")
	require.Error(t, err)
	assert.Equal(t, core.MsgNameRequired, err.Error())

	_, err = execute(t, a, "add", "--name", "x", "--age", "old")
	assert.ErrorContains(t, err, "invalid age")
	_, err = execute(t, a, "add", "--name", "x", "--status", "done")
	assert.ErrorContains(t, err, "unknown status")
	assert.Empty(t, a.session.Patients())
}

func TestEditKeepsUnsetFields(t *testing.T) {
	a := testApp(t)
	mustExecute(t, a, "add", "--name", "J. Doe", "--room", "204", "--age", "67", "--status", "seen", "--notes", "I/O")

	assert.Equal(t, "Patient updated\n", mustExecute(t, a, "edit", "1", "--room", "205", "--age", ""))
	p, ok, err := a.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "J. Doe", p.Name)
	assert.Equal(t, "205", p.Room)
	assert.Nil(t, p.Age)
	assert.Equal(t, domain.StatusSeen, p.Status)
	assert.Equal(t, "I/O", p.Notes)

	_, err = execute(t, a, "edit", "7", "--room", "1")
	assert.ErrorContains(t, err, "patient 7 not found")
	_, err = execute(t, a, "edit", "abc")
	assert.ErrorContains(t, err, "invalid patient id")
}

func TestShow(t *testing.T) {
	a := testApp(t)
	mustExecute(t, a, "add", "--name", "J. Doe")
	var p domain.Patient
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, a, "show", "1")), &p))
	assert.Equal(t, "J. Doe", p.Name)
	_, err := execute(t, a, "show", "2")
	assert.Error(t, err)
}

func TestRemoveRequiresConfirmation(t *testing.T) {
	a := testApp(t)
	mustExecute(t, a, "add", "--name", "J. Doe")

	_, err := execute(t, a, "rm", "1")
	assert.ErrorIs(t, err, errNotConfirmed)
	assert.Len(t, a.session.Patients(), 1)

	assert.Equal(t, "Patient deleted\n", mustExecute(t, a, "rm", "1", "--yes"))
	assert.Empty(t, a.session.Patients())
}

func TestNewDay(t *testing.T) {
	a := testApp(t)
	assert.Equal(t, "No patients to reset\n", mustExecute(t, a, "new-day"))

	mustExecute(t, a, "add", "--name", "a", "--status", "seen")
	mustExecute(t, a, "add", "--name", "b", "--status", "noteComplete")
	mustExecute(t, a, "add", "--name", "c")

	_, err := execute(t, a, "new-day")
	assert.ErrorIs(t, err, errNotConfirmed)
	assert.Equal(t, "Reset 2 patients to Pending\n", mustExecute(t, a, "new-day", "--yes"))
	assert.Equal(t, "All patients already pending\n", mustExecute(t, a, "new-day", "--yes"))
	assert.Equal(t, "Total: 3  Seen: 0  Notes: 0\n", mustExecute(t, a, "stats"))
}

func TestExportImport(t *testing.T) {
	a := testApp(t)
	mustExecute(t, a, "add", "--name", "a", "--room", "1")
	mustExecute(t, a, "add", "--name", "b", "--room", "2", "--status", "seen")

	path := filepath.Join(t.TempDir(), "backup.json")
	assert.Equal(t, "Data exported to "+path+"\n", mustExecute(t, a, "export", "--out", path))
	doc, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"version": 1`)

	var streamed domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(mustExecute(t, a, "export", "--out", "-")), &streamed))
	assert.Len(t, streamed.Patients, 2)

	b := testApp(t)
	mustExecute(t, b, "add", "--name", "replaced")
	_, err = execute(t, b, "import", path)
	assert.ErrorIs(t, err, errNotConfirmed)
	assert.Equal(t, "Imported 2 patients\n", mustExecute(t, b, "import", path, "--yes"))
	assert.Equal(t, "Total: 2  Seen: 1  Notes: 0\n", mustExecute(t, b, "stats"))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"patients":{}}`), 0o600))
	_, err = execute(t, b, "import", bad, "--yes")
	assert.ErrorIs(t, err, domain.ErrInvalidBackup)
	assert.Len(t, b.session.Patients(), 2)

	_, err = execute(t, b, "import", filepath.Join(t.TempDir(), "missing.json"), "--yes")
	assert.ErrorContains(t, err, "read backup")
}

func TestBackupCommands(t *testing.T) {
	a := testApp(t)
	assert.Equal(t, "No backups yet\n", mustExecute(t, a, "backup", "list"))
	mustExecute(t, a, "add", "--name", "only")

	out := mustExecute(t, a, "backup", "create")
	assert.True(t, strings.HasPrefix(out, "Backup localemr-backup-"))
	assert.Contains(t, out, "(1 patient)")
	key := strings.Fields(out)[1]

	listing := mustExecute(t, a, "backup", "list")
	assert.Contains(t, listing, key)

	mustExecute(t, a, "add", "--name", "extra")
	_, err := execute(t, a, "backup", "restore", key)
	assert.ErrorIs(t, err, errNotConfirmed)
	assert.Equal(t, "Imported 1 patient\n", mustExecute(t, a, "backup", "restore", key, "--yes"))
	assert.Len(t, a.session.Patients(), 1)

	assert.Equal(t, "Backup "+key+" deleted\n", mustExecute(t, a, "backup", "delete", key, "--yes"))
	_, err = execute(t, a, "backup", "delete", key, "--yes")
	assert.ErrorContains(t, err, "not found")
}

func TestRosterWorkbook(t *testing.T) {
	a := testApp(t)
	mustExecute(t, a, "add", "--name", "a", "--room", "10")
	mustExecute(t, a, "add", "--name", "b", "--room", "2")

	path := filepath.Join(t.TempDir(), "rounds.xlsx")
	assert.Equal(t, "Roster written to "+path+"\n", mustExecute(t, a, "roster", "--out", path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows("Rounds")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, "2", rows[1][0])
	assert.Equal(t, "10", rows[2][0])
}

func TestMetricsOut(t *testing.T) {
	a := testApp(t)
	path := filepath.Join(t.TempDir(), "metrics.prom")
	mustExecute(t, a, "--metrics-out", path, "add", "--name", "a")

	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(text), `localemr_store_operations_total{operation="add",status="success"} 1`)
}

func TestRunWithEnvironmentConfig(t *testing.T) {
	t.Setenv("LOCALEMR_STORAGE_DRIVER", "memory")
	t.Setenv("LOCALEMR_BLOB_DRIVER", "memory")
	t.Setenv("LOCALEMR_LOG_OUTPUT", filepath.Join(t.TempDir(), "localemr.log"))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"stats"}, &stdout, &stderr))
	assert.Equal(t, "Total: 0  Seen: 0  Notes: 0\n", stdout.String())

	t.Setenv("LOCALEMR_STORAGE_DRIVER", "mongo")
	stdout.Reset()
	err := run(context.Background(), []string{"stats"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "localemr:")
}

func TestHelpDoesNotOpenStore(t *testing.T) {
	env := &environment{open: func(context.Context, appOptions) (*app, error) {
		t.Fatal("help must not open the store")
		return nil, nil
	}}
	root := newRootCmd(env)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"help"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "new-day")
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "1 patient", plural(1, "patient"))
	assert.Equal(t, "0 patients", plural(0, "patient"))
	assert.Equal(t, "3 patients", plural(3, "patient"))
}
