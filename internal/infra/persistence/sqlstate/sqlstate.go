// Package sqlstate applies in-memory transaction commits to a relational
// patients table and hydrates snapshots back from it. The sqlite and postgres
// backends share it through a Dialect.
package sqlstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"localemr/internal/infra/persistence/memory"
	"localemr/pkg/domain"
)

// TimeLayout is used for the created_at/updated_at text columns.
const TimeLayout = time.RFC3339Nano

const sequenceName = "patients"

// Dialect captures the per-engine differences.
type Dialect struct {
	Name string
	// Schema lists the idempotent DDL statements executed on open.
	Schema []string
	// Numbered switches ? placeholders to $1, $2, ...
	Numbered bool
}

// Rebind rewrites ? placeholders for dialects that use numbered parameters.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Columns lists the patients columns in scan order.
const Columns = "id, name, room, age, status, diagnoses, medications, notes, created_at, updated_at"

const (
	upsertPatient = `INSERT INTO patients (` + Columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, room = excluded.room, age = excluded.age,
status = excluded.status, diagnoses = excluded.diagnoses, medications = excluded.medications,
notes = excluded.notes, created_at = excluded.created_at, updated_at = excluded.updated_at`
	deletePatient  = `DELETE FROM patients WHERE id = ?`
	deleteAll      = `DELETE FROM patients`
	upsertSequence = `INSERT INTO id_sequence (name, next_id) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET next_id = excluded.next_id`
	selectPatients = `SELECT ` + Columns + ` FROM patients ORDER BY id`
	selectSequence = `SELECT next_id FROM id_sequence WHERE name = ?`
)

// EnsureSchema executes the dialect DDL.
func EnsureSchema(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s schema: %w", d.Name, err)
		}
	}
	return nil
}

// Load reads every patient row and the id sequence into a memory snapshot.
func Load(ctx context.Context, db *sql.DB, d Dialect) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, selectPatients)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select patients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return memory.Snapshot{}, err
		}
		snapshot.Patients = append(snapshot.Patients, p)
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate patients: %w", err)
	}

	var next int64
	err = db.QueryRowContext(ctx, d.Rebind(selectSequence), sequenceName).Scan(&next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return memory.Snapshot{}, fmt.Errorf("select sequence: %w", err)
	default:
		snapshot.NextID = next
	}
	return snapshot, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPatient(row scanner) (domain.Patient, error) {
	var (
		p                  domain.Patient
		age                sql.NullInt64
		status             string
		createdAt, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Room, &age, &status, &p.Diagnoses, &p.Medications, &p.Notes, &createdAt, &updated); err != nil {
		return domain.Patient{}, fmt.Errorf("scan patient: %w", err)
	}
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	p.Status = domain.Status(status)
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Patient{}, fmt.Errorf("patient %d created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Patient{}, fmt.Errorf("patient %d updated_at: %w", p.ID, err)
	}
	return p, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeLayout, v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// Apply writes a commit inside a single SQL transaction. Nothing is written
// unless every statement and the commit succeed.
func Apply(ctx context.Context, db *sql.DB, d Dialect, commit memory.Commit) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, change := range commit.Changes {
		switch change.Action {
		case domain.ActionCreate, domain.ActionUpdate:
			if change.After == nil {
				continue
			}
			if err := upsert(ctx, tx, d, *change.After); err != nil {
				return err
			}
		case domain.ActionDelete:
			if change.Before == nil {
				continue
			}
			if _, err := tx.ExecContext(ctx, d.Rebind(deletePatient), change.Before.ID); err != nil {
				return fmt.Errorf("delete patient %d: %w", change.Before.ID, err)
			}
		case domain.ActionClear:
			if _, err := tx.ExecContext(ctx, deleteAll); err != nil {
				return fmt.Errorf("clear patients: %w", err)
			}
		default:
			return fmt.Errorf("unsupported change action %q", change.Action)
		}
	}
	if _, err := tx.ExecContext(ctx, d.Rebind(upsertSequence), sequenceName, commit.NextID); err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, d Dialect, p domain.Patient) error {
	var age any
	if p.Age != nil {
		age = int64(*p.Age)
	}
	_, err := tx.ExecContext(ctx, d.Rebind(upsertPatient),
		p.ID, p.Name, p.Room, age, string(p.Status), p.Diagnoses, p.Medications, p.Notes,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert patient %d: %w", p.ID, err)
	}
	return nil
}
