// Package domain defines the patient roster entities, value types and the
// persistence contracts implemented by the storage backends.
package domain

import (
	"strings"
	"time"
)

// Status enumerates where a patient is in today's rounding workflow.
type Status string

// Canonical statuses. Anything else is treated as StatusPending.
const (
	// StatusPending marks a patient not yet seen today.
	StatusPending Status = "pending"
	// StatusSeen marks a patient who has been seen but whose note is outstanding.
	StatusSeen Status = "seen"
	// StatusNoteComplete marks a patient who has been seen and documented.
	StatusNoteComplete Status = "noteComplete"
)

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSeen, StatusNoteComplete:
		return true
	default:
		return false
	}
}

// Normalize maps empty or unknown values onto StatusPending.
func (s Status) Normalize() Status {
	if s.Valid() {
		return s
	}
	return StatusPending
}

// Rank orders statuses for the status sort: pending, seen, noteComplete.
func (s Status) Rank() int {
	switch s {
	case StatusSeen:
		return 1
	case StatusNoteComplete:
		return 2
	default:
		return 0
	}
}

// IsSeen reports whether the patient has at least been seen.
func (s Status) IsSeen() bool {
	return s == StatusSeen || s == StatusNoteComplete
}

// Patient is a single roster record.
type Patient struct {
	ID          int64     `json:"id,omitempty"`
	Name        string    `json:"name"`
	Room        string    `json:"room"`
	Age         *int      `json:"age"`
	Status      Status    `json:"status"`
	Diagnoses   string    `json:"diagnoses"`
	Medications string    `json:"medications"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasName reports whether the record carries a non-blank name.
func (p Patient) HasName() bool {
	return strings.TrimSpace(p.Name) != ""
}

// Clone returns a deep copy of p.
func (p Patient) Clone() Patient {
	cp := p
	if p.Age != nil {
		age := *p.Age
		cp.Age = &age
	}
	return cp
}

// IntPtr is a small helper for populating optional ages.
func IntPtr(v int) *int { return &v }
