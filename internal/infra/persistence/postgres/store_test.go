package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localemr/internal/infra/persistence/memory"
	"localemr/pkg/domain"
)

var patientColumns = []string{"id", "name", "room", "age", "status", "diagnoses", "medications", "notes", "created_at", "updated_at"}

func expectSchema(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS patients").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS patients_status_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS patients_room_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS id_sequence").WillReturnResult(sqlmock.NewResult(0, 0))
}

func newMockStore(t *testing.T, rows *sqlmock.Rows, next int64, opts ...memory.Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	expectSchema(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, room")).WillReturnRows(rows)
	seq := mock.ExpectQuery(regexp.QuoteMeta("SELECT next_id FROM id_sequence WHERE name = $1")).WithArgs("patients")
	if next > 0 {
		seq.WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(next))
	} else {
		seq.WillReturnError(sql.ErrNoRows)
	}

	store, err := Open(context.Background(), db, opts...)
	require.NoError(t, err)
	return store, mock
}

func TestOpenHydratesFromTables(t *testing.T) {
	rows := sqlmock.NewRows(patientColumns).
		AddRow(int64(3), "J. Doe", "204", int64(67), "seen", "CHF", "", "", "2026-10-14T07:00:00Z", "2026-10-14T07:05:00.25Z").
		AddRow(int64(5), "R. Roe", "12", nil, "bogus", "", "", "", "2026-10-14T07:00:00Z", "")
	store, mock := newMockStore(t, rows, 9)

	patients := store.ListPatients()
	require.Len(t, patients, 2)
	assert.Equal(t, "J. Doe", patients[0].Name)
	require.NotNil(t, patients[0].Age)
	assert.Equal(t, 67, *patients[0].Age)
	assert.Equal(t, domain.StatusSeen, patients[0].Status)
	assert.True(t, time.Date(2026, 10, 14, 7, 5, 0, 250000000, time.UTC).Equal(patients[0].UpdatedAt))
	assert.Nil(t, patients[1].Age)
	assert.Equal(t, domain.StatusPending, patients[1].Status, "unknown status normalizes to pending")
	assert.Equal(t, int64(9), store.ExportState().NextID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionWritesChanges(t *testing.T) {
	at := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t, sqlmock.NewRows(patientColumns), 0, memory.WithClock(func() time.Time { return at }))

	stamp := at.Format(time.RFC3339Nano)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").
		WithArgs(int64(1), "J. Doe", "204", int64(67), "pending", "", "", "", stamp, stamp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO id_sequence").
		WithArgs("patients", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreatePatient(domain.Patient{Name: "J. Doe", Room: "204", Age: domain.IntPtr(67)})
		return err
	})
	require.NoError(t, err)
	assert.Len(t, store.ListPatients(), 1)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM patients WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO id_sequence").
		WithArgs("patients", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		tx.DeletePatient(1)
		return nil
	}))
	assert.Empty(t, store.ListPatients())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionRollsBackOnSQLError(t *testing.T) {
	store, mock := newMockStore(t, sqlmock.NewRows(patientColumns), 0)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO patients").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreatePatient(domain.Patient{Name: "lost"})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, store.ListPatients())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	mock.ExpectPing().WillReturnError(errors.New("refused"))

	_, err = Open(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping postgres")
}

func TestNewStoreOpenError(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	var gotDriver, gotDSN string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return nil, errors.New("no driver")
	}
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, defaultDSN, gotDSN)
}

func TestDialectRebind(t *testing.T) {
	assert.Equal(t, "SELECT $1 FROM x WHERE y = $2", Dialect.Rebind("SELECT ? FROM x WHERE y = ?"))
	assert.Equal(t, "VALUES ($1, $2)", Dialect.Rebind("VALUES (?, ?)"))
}
