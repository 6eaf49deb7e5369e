package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"localemr/pkg/domain"
)

// Filter selects which patients a roster view shows.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"   // not yet seen
	FilterSeen      Filter = "seen"      // seen, with or without a note
	FilterCompleted Filter = "completed" // note complete
)

// SortMode orders a roster view.
type SortMode string

const (
	SortStatus SortMode = "status" // pending first, ties by room
	SortRoom   SortMode = "room"
)

// ParseFilter validates a filter name. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterSeen, FilterCompleted:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (all|pending|seen|completed)", s)
	}
}

// ParseSortMode validates a sort mode name. Empty means status.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SortStatus, nil
	case SortStatus, SortRoom:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q (status|room)", s)
	}
}

// Match reports whether p belongs in the filtered view.
func (f Filter) Match(p Patient) bool {
	switch f {
	case FilterPending:
		return p.Status.Normalize() == domain.StatusPending
	case FilterSeen:
		return p.Status.IsSeen()
	case FilterCompleted:
		return p.Status == domain.StatusNoteComplete
	default:
		return true
	}
}

// Stats summarises a roster.
type Stats struct {
	Total     int `json:"total"`
	SeenCount int `json:"seenCount"`
	NoteCount int `json:"noteCount"`
}

// PatientInput is a form-style edit. A zero ID means a new patient.
type PatientInput struct {
	ID          int64
	Name        string
	Room        string
	Age         *int
	Status      Status
	Diagnoses   string
	Medications string
	Notes       string
}

// MsgNameRequired is the reason given when a save has no patient name.
const MsgNameRequired = "Please enter a patient name"

// Session caches the full roster and applies the rounding workflow to it.
// Every mutation goes through the store and is followed by a full reload.
// A Session is meant for a single caller; it does not serialize concurrent use.
type Session struct {
	store    *PatientStore
	logger   *zap.Logger
	patients []Patient
}

// NewSession returns a session over store with an empty cache; call Reload.
func NewSession(store *PatientStore) *Session {
	return &Session{store: store, logger: store.Logger()}
}

// Store returns the underlying patient store.
func (s *Session) Store() *PatientStore { return s.store }

// Reload replaces the cache with the store contents.
func (s *Session) Reload(ctx context.Context) error {
	patients, err := s.store.GetAll(ctx)
	if err != nil {
		return err
	}
	s.patients = patients
	return nil
}

// Patients returns a copy of the cached roster in store order.
func (s *Session) Patients() []Patient {
	out := make([]Patient, len(s.patients))
	for i, p := range s.patients {
		out[i] = p.Clone()
	}
	return out
}

// FilteredSorted computes a view of the cache without touching the store.
// The sort is stable with respect to cache order.
func (s *Session) FilteredSorted(filter Filter, mode SortMode) []Patient {
	out := make([]Patient, 0, len(s.patients))
	for _, p := range s.patients {
		if filter.Match(p) {
			out = append(out, p.Clone())
		}
	}
	rooms := newRoomCollator()
	sort.SliceStable(out, func(i, j int) bool {
		if mode != SortRoom {
			ri, rj := out[i].Status.Rank(), out[j].Status.Rank()
			if ri != rj {
				return ri < rj
			}
		}
		return rooms.CompareString(out[i].Room, out[j].Room) < 0
	})
	return out
}

// newRoomCollator compares rooms numerically where they contain digits, so
// "2" sorts before "10". Collators are not safe for concurrent use.
func newRoomCollator() *collate.Collator {
	return collate.New(language.Und, collate.Numeric)
}

// EmptyMessage returns the empty-state text for a view, or "" if the view has rows.
func (s *Session) EmptyMessage(filter Filter, mode SortMode) string {
	if len(s.patients) == 0 {
		return "No patients yet"
	}
	if len(s.FilteredSorted(filter, mode)) == 0 {
		return "No patients match this filter"
	}
	return ""
}

// Stats counts the cached roster.
func (s *Session) Stats() Stats {
	st := Stats{Total: len(s.patients)}
	for _, p := range s.patients {
		if p.Status.IsSeen() {
			st.SeenCount++
		}
		if p.Status == domain.StatusNoteComplete {
			st.NoteCount++
		}
	}
	return st
}

// NextSeenStatus is the seen toggle: pending and seen swap, a completed note
// is never demoted.
func NextSeenStatus(current Status) Status {
	switch current.Normalize() {
	case domain.StatusPending:
		return domain.StatusSeen
	case domain.StatusSeen:
		return domain.StatusPending
	default:
		return domain.StatusNoteComplete
	}
}

// NextNoteStatus is the note toggle: a completed note goes back to seen,
// anything else becomes complete.
func NextNoteStatus(current Status) Status {
	if current == domain.StatusNoteComplete {
		return domain.StatusSeen
	}
	return domain.StatusNoteComplete
}

// ToggleSeen applies NextSeenStatus to the record. A missing id is a no-op.
func (s *Session) ToggleSeen(ctx context.Context, id int64) error {
	return s.transition(ctx, id, NextSeenStatus)
}

// ToggleNote applies NextNoteStatus to the record. A missing id is a no-op.
func (s *Session) ToggleNote(ctx context.Context, id int64) error {
	return s.transition(ctx, id, NextNoteStatus)
}

func (s *Session) transition(ctx context.Context, id int64, next func(Status) Status) error {
	p, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("toggle on missing patient", zap.Int64("id", id))
		return nil
	}
	p.Status = next(p.Status)
	if err := s.store.Update(ctx, p); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// ResetAllToPending starts a new day: each cached record that is not pending
// is written back as pending with its own update. It returns how many were
// changed. A failure stops the loop and leaves earlier resets in place.
func (s *Session) ResetAllToPending(ctx context.Context) (int, error) {
	count := 0
	for _, p := range s.Patients() {
		if p.Status == domain.StatusPending {
			continue
		}
		p.Status = domain.StatusPending
		if err := s.store.Update(ctx, p); err != nil {
			s.logger.Warn("new day reset interrupted", zap.Int("reset", count), zap.Int64("id", p.ID))
			if rerr := s.Reload(ctx); rerr != nil {
				s.logger.Warn("reload after failed reset", zap.Error(rerr))
			}
			return count, err
		}
		count++
	}
	if err := s.Reload(ctx); err != nil {
		return count, err
	}
	return count, nil
}

// Save validates and persists a form edit and returns the record id. Text
// fields are trimmed. With an id, the edit is merged over the stored record
// so fields the form does not carry survive.
func (s *Session) Save(ctx context.Context, in PatientInput) (int64, error) {
	data := Patient{
		ID:          in.ID,
		Name:        strings.TrimSpace(in.Name),
		Room:        strings.TrimSpace(in.Room),
		Age:         in.Age,
		Status:      in.Status.Normalize(),
		Diagnoses:   strings.TrimSpace(in.Diagnoses),
		Medications: strings.TrimSpace(in.Medications),
		Notes:       strings.TrimSpace(in.Notes),
	}
	if data.Name == "" {
		return 0, &domain.ValidationError{Reason: MsgNameRequired}
	}

	id := in.ID
	if id == 0 {
		var err error
		if id, err = s.store.Add(ctx, data); err != nil {
			return 0, err
		}
	} else {
		existing, ok, err := s.store.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		merged := data
		if ok {
			merged = mergePatient(existing, data)
		}
		if err := s.store.Update(ctx, merged); err != nil {
			return 0, err
		}
	}
	return id, s.Reload(ctx)
}

// mergePatient overlays every form field onto existing, keeping identity and timestamps.
func mergePatient(existing, edit Patient) Patient {
	out := existing.Clone()
	out.Name = edit.Name
	out.Room = edit.Room
	out.Age = edit.Age
	out.Status = edit.Status
	out.Diagnoses = edit.Diagnoses
	out.Medications = edit.Medications
	out.Notes = edit.Notes
	return out
}

// Delete removes a record and reloads.
func (s *Session) Delete(ctx context.Context, id int64) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	return s.Reload(ctx)
}

// Export returns the snapshot document of the whole collection.
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	return s.store.ExportAll(ctx)
}

// Import replaces the collection with doc and reloads. An invalid document
// leaves both the store and the cache untouched.
func (s *Session) Import(ctx context.Context, doc []byte) (int, error) {
	n, err := s.store.ImportAll(ctx, doc)
	if err != nil {
		return 0, err
	}
	return n, s.Reload(ctx)
}

// BackupFilename is the download name for an export taken at now.
func BackupFilename(now time.Time) string {
	return domain.BackupFilename(now)
}
