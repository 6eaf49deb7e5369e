package domain

import "context"

// Action indicates the type of modification captured in a Change.
type Action string

// Change actions recorded by transactions.
const (
	// ActionCreate indicates a record was inserted.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record was replaced (or upserted).
	ActionUpdate Action = "update"
	// ActionDelete indicates a record was removed.
	ActionDelete Action = "delete"
	// ActionClear indicates every record was removed.
	ActionClear Action = "clear"
)

// Change describes a single mutation applied within a transaction. Before is
// nil for creates and clears, After is nil for deletes and clears.
type Change struct {
	Action Action
	Before *Patient
	After  *Patient
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Timestamps are stamped by the transaction.
type Transaction interface {
	Snapshot() TransactionView
	// CreatePatient assigns the next id, defaults the status and stamps both timestamps.
	CreatePatient(Patient) (Patient, error)
	// PutPatient replaces the record at p.ID, creating it when absent.
	PutPatient(Patient) (Patient, error)
	// InsertPatient restores a record verbatim, keeping its id and timestamps
	// when present. Used by bulk import.
	InsertPatient(Patient) (Patient, error)
	// DeletePatient removes the record and reports whether it existed.
	DeletePatient(id int64) bool
	// DeleteAll removes every record and reports how many were removed.
	DeleteAll() int
}

// TransactionView provides read-only access to a consistent state.
type TransactionView interface {
	ListPatients() []Patient
	FindPatient(id int64) (Patient, bool)
	ListByStatus(status Status) []Patient
	ListByRoom(room string) []Patient
}

// PersistentStore is the abstraction over durable backends used by the core.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
