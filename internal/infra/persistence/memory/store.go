// Package memory provides an in-memory implementation of the patient
// persistence store used for tests, ephemeral sessions and as the hydrated
// read model of the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"localemr/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Patient aliases domain.Patient for in-memory persistence operations.
	Patient = domain.Patient
	// Status aliases domain.Status.
	Status = domain.Status
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Snapshot captures a point-in-time copy of the store state for hydration
// from, or persistence to, a durable backend.
type Snapshot struct {
	Patients []Patient `json:"patients"`
	NextID   int64     `json:"next_id"`
}

// Commit is the outcome of a successful transaction handed to a PersistFunc
// before it becomes visible.
type Commit struct {
	Changes []Change
	NextID  int64
}

// PersistFunc makes a commit durable. Returning an error abandons the
// transaction and leaves the live state untouched.
type PersistFunc func(ctx context.Context, commit Commit) error

type idSet map[int64]struct{}

type memoryState struct {
	patients map[int64]Patient
	byStatus map[Status]idSet
	byRoom   map[string]idSet
	nextID   int64
}

func newMemoryState() memoryState {
	return memoryState{
		patients: make(map[int64]Patient),
		byStatus: make(map[Status]idSet),
		byRoom:   make(map[string]idSet),
		nextID:   1,
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		patients: make(map[int64]Patient, len(s.patients)),
		byStatus: make(map[Status]idSet, len(s.byStatus)),
		byRoom:   make(map[string]idSet, len(s.byRoom)),
		nextID:   s.nextID,
	}
	for id, p := range s.patients {
		cp.patients[id] = p.Clone()
	}
	for k, ids := range s.byStatus {
		cp.byStatus[k] = cloneIDs(ids)
	}
	for k, ids := range s.byRoom {
		cp.byRoom[k] = cloneIDs(ids)
	}
	return cp
}

func cloneIDs(ids idSet) idSet {
	out := make(idSet, len(ids))
	for id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func (s *memoryState) index(p Patient) {
	if s.byStatus[p.Status] == nil {
		s.byStatus[p.Status] = make(idSet)
	}
	s.byStatus[p.Status][p.ID] = struct{}{}
	if s.byRoom[p.Room] == nil {
		s.byRoom[p.Room] = make(idSet)
	}
	s.byRoom[p.Room][p.ID] = struct{}{}
}

func (s *memoryState) unindex(p Patient) {
	if ids, ok := s.byStatus[p.Status]; ok {
		delete(ids, p.ID)
		if len(ids) == 0 {
			delete(s.byStatus, p.Status)
		}
	}
	if ids, ok := s.byRoom[p.Room]; ok {
		delete(ids, p.ID)
		if len(ids) == 0 {
			delete(s.byRoom, p.Room)
		}
	}
}

func (s *memoryState) put(p Patient) {
	if prev, ok := s.patients[p.ID]; ok {
		s.unindex(prev)
	}
	s.patients[p.ID] = p.Clone()
	s.index(p)
	if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
}

func (s *memoryState) remove(id int64) (Patient, bool) {
	prev, ok := s.patients[id]
	if !ok {
		return Patient{}, false
	}
	s.unindex(prev)
	delete(s.patients, id)
	return prev, true
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	out := Snapshot{Patients: make([]Patient, 0, len(state.patients)), NextID: state.nextID}
	for _, p := range state.patients {
		out.Patients = append(out.Patients, p.Clone())
	}
	sortByID(out.Patients)
	return out
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	state := newMemoryState()
	for _, p := range snapshot.Patients {
		p.Status = p.Status.Normalize()
		state.put(p)
	}
	if snapshot.NextID > state.nextID {
		state.nextID = snapshot.NextID
	}
	return state
}

func sortByID(ps []Patient) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// Store provides an in-memory transactional store for patient records.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// Close is a no-op for the memory backend.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	return s.RunInTransactionWithPersist(ctx, fn, nil)
}

// RunInTransactionWithPersist executes fn within a transactional copy of the
// store state. When fn succeeds and recorded changes, persist is invoked while
// the store lock is held; only if it succeeds does the copy replace the live
// state.
func (s *Store) RunInTransactionWithPersist(ctx context.Context, fn func(tx Transaction) error, persist PersistFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn().UTC().Truncate(time.Millisecond),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if persist != nil && len(tx.changes) > 0 {
		if err := persist(ctx, Commit{Changes: tx.changes, NextID: tx.state.nextID}); err != nil {
			return err
		}
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// ListPatients returns every stored patient ordered by id.
func (s *Store) ListPatients() []Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPatients()
}

// GetPatient returns the patient with id when present.
func (s *Store) GetPatient(id int64) (Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindPatient(id)
}

// transactionView exposes a read-only snapshot of the state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) collect(ids idSet) []Patient {
	out := make([]Patient, 0, len(ids))
	for id := range ids {
		if p, ok := v.state.patients[id]; ok {
			out = append(out, p.Clone())
		}
	}
	sortByID(out)
	return out
}

// ListPatients returns all patients ordered by id.
func (v transactionView) ListPatients() []Patient {
	out := make([]Patient, 0, len(v.state.patients))
	for _, p := range v.state.patients {
		out = append(out, p.Clone())
	}
	sortByID(out)
	return out
}

// FindPatient looks a patient up by id.
func (v transactionView) FindPatient(id int64) (Patient, bool) {
	p, ok := v.state.patients[id]
	if !ok {
		return Patient{}, false
	}
	return p.Clone(), true
}

// ListByStatus uses the status index. Unknown statuses are looked up as pending.
func (v transactionView) ListByStatus(status Status) []Patient {
	return v.collect(v.state.byStatus[status.Normalize()])
}

// ListByRoom uses the room index; matching is exact.
func (v transactionView) ListByRoom(room string) []Patient {
	return v.collect(v.state.byRoom[room])
}

// transaction represents a mutation set applied to a copy of the store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// stampAfter returns the transaction time, nudged forward when the clock has
// not advanced past prev so updatedAt is strictly increasing per record.
func (tx *transaction) stampAfter(prev time.Time) time.Time {
	if !prev.IsZero() && !tx.now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return tx.now
}

// CreatePatient stores a new patient under the next sequence id.
func (tx *transaction) CreatePatient(p Patient) (Patient, error) {
	p = p.Clone()
	p.ID = tx.state.nextID
	if _, exists := tx.state.patients[p.ID]; exists {
		return Patient{}, fmt.Errorf("patient %d already exists", p.ID)
	}
	p.Status = p.Status.Normalize()
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.put(p)
	after := p.Clone()
	tx.recordChange(Change{Action: domain.ActionCreate, After: &after})
	return p.Clone(), nil
}

// PutPatient replaces the patient stored at p.ID, creating it when absent.
// createdAt is kept from the stored record; updatedAt is always restamped.
func (tx *transaction) PutPatient(p Patient) (Patient, error) {
	if p.ID < 0 {
		return Patient{}, fmt.Errorf("invalid patient id %d", p.ID)
	}
	if p.ID == 0 {
		return tx.CreatePatient(p)
	}
	p = p.Clone()
	p.Status = p.Status.Normalize()
	var before *Patient
	prevUpdated := p.UpdatedAt
	if current, ok := tx.state.patients[p.ID]; ok {
		cp := current.Clone()
		before = &cp
		p.CreatedAt = current.CreatedAt
		prevUpdated = current.UpdatedAt
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now
	}
	p.UpdatedAt = tx.stampAfter(prevUpdated)
	tx.state.put(p)
	after := p.Clone()
	tx.recordChange(Change{Action: domain.ActionUpdate, Before: before, After: &after})
	return p.Clone(), nil
}

// InsertPatient restores a record as-is, assigning an id only when missing.
func (tx *transaction) InsertPatient(p Patient) (Patient, error) {
	p = p.Clone()
	if p.ID < 0 {
		return Patient{}, fmt.Errorf("invalid patient id %d", p.ID)
	}
	if p.ID == 0 {
		p.ID = tx.state.nextID
	}
	if _, exists := tx.state.patients[p.ID]; exists {
		return Patient{}, fmt.Errorf("patient %d already exists", p.ID)
	}
	p.Status = p.Status.Normalize()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	tx.state.put(p)
	after := p.Clone()
	tx.recordChange(Change{Action: domain.ActionCreate, After: &after})
	return p.Clone(), nil
}

// DeletePatient removes a patient, reporting whether it existed.
func (tx *transaction) DeletePatient(id int64) bool {
	prev, ok := tx.state.remove(id)
	if !ok {
		return false
	}
	tx.recordChange(Change{Action: domain.ActionDelete, Before: &prev})
	return true
}

// DeleteAll removes every patient. The id sequence is not rewound.
func (tx *transaction) DeleteAll() int {
	n := len(tx.state.patients)
	next := tx.state.nextID
	tx.state = newMemoryState()
	tx.state.nextID = next
	tx.recordChange(Change{Action: domain.ActionClear})
	return n
}
