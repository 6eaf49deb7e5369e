package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"localemr/internal/infra/persistence/memory"
	"localemr/pkg/domain"
)

// tickingClock advances by one second per call so timestamps are distinct.
type tickingClock struct{ t time.Time }

func (c *tickingClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *tickingClock {
	return &tickingClock{t: time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)}
}

func newTestStore(t *testing.T, opts ...StoreOption) (*PatientStore, *memory.Store) {
	t.Helper()
	backend := memory.NewStore(memory.WithClock(newClock().now))
	opts = append([]StoreOption{WithLogger(zap.NewNop()), WithNow(newClock().now)}, opts...)
	return NewPatientStore(backend, opts...), backend
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	store, _ := newTestStore(t)
	return NewSession(store)
}

func mustAdd(t *testing.T, s *PatientStore, p Patient) int64 {
	t.Helper()
	id, err := s.Add(context.Background(), p)
	if err != nil {
		t.Fatalf("add %q: %v", p.Name, err)
	}
	return id
}

var errDiskGone = errors.New("disk gone")

// failingBackend wraps a real backend and fails writes (and optionally reads)
// once armed.
type failingBackend struct {
	PersistentStore
	failWrites     bool
	failReads      bool
	failAfterWrite int // fail once this many writes have succeeded; 0 disables
	writes         int
}

func (f *failingBackend) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if f.failWrites || (f.failAfterWrite > 0 && f.writes >= f.failAfterWrite) {
		return errDiskGone
	}
	f.writes++
	return f.PersistentStore.RunInTransaction(ctx, fn)
}

func (f *failingBackend) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if f.failReads {
		return errDiskGone
	}
	return f.PersistentStore.View(ctx, fn)
}

func statuses(ps []Patient) []Status {
	out := make([]Status, len(ps))
	for i, p := range ps {
		out[i] = p.Status
	}
	return out
}

func rooms(ps []Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Room
	}
	return out
}

func stringsReader(s string) *strings.Reader { return strings.NewReader(s) }
