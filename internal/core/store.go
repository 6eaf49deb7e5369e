package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"localemr/pkg/domain"
)

// PatientStore is the durable patient collection used by the session. Every
// write that returns nil has been committed by the backend; failures surface
// as *domain.StorageError, rejected input as *domain.ValidationError.
type PatientStore struct {
	backend PersistentStore
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time
}

// StoreOption configures a PatientStore.
type StoreOption func(*PatientStore)

// WithLogger sets the logger used for mutation and failure logs.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *PatientStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the recorder observing each operation.
func WithMetrics(m MetricsRecorder) StoreOption {
	return func(s *PatientStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNow overrides the clock used for snapshot export times.
func WithNow(now func() time.Time) StoreOption {
	return func(s *PatientStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPatientStore wraps backend.
func NewPatientStore(backend PersistentStore, opts ...StoreOption) *PatientStore {
	s := &PatientStore{
		backend: backend,
		logger:  zap.NewNop(),
		metrics: NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Logger returns the configured logger.
func (s *PatientStore) Logger() *zap.Logger { return s.logger }

// Close releases the backend.
func (s *PatientStore) Close() error {
	return domain.NewStorageError("close", s.backend.Close())
}

// finish records metrics, logs failures and converts backend errors.
func (s *PatientStore) finish(ctx context.Context, op string, start time.Time, err error, fields ...zap.Field) error {
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	if err == nil {
		return nil
	}
	err = domain.NewStorageError(op, err)
	if domain.IsValidationError(err) {
		s.logger.Warn("rejected input", append(fields, zap.String("op", op), zap.Error(err))...)
	} else {
		s.logger.Error("store operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
	}
	return err
}

func (s *PatientStore) view(ctx context.Context, op string, fn func(TransactionView)) error {
	start := time.Now()
	err := s.backend.View(ctx, func(v TransactionView) error {
		fn(v)
		return nil
	})
	return s.finish(ctx, op, start, err)
}

// GetAll returns every record ordered by id.
func (s *PatientStore) GetAll(ctx context.Context) ([]Patient, error) {
	var out []Patient
	if err := s.view(ctx, "get_all", func(v TransactionView) { out = v.ListPatients() }); err != nil {
		return nil, err
	}
	return out, nil
}

// Get looks a record up by id. A missing record is reported by ok=false.
func (s *PatientStore) Get(ctx context.Context, id int64) (Patient, bool, error) {
	var (
		p  Patient
		ok bool
	)
	if err := s.view(ctx, "get", func(v TransactionView) { p, ok = v.FindPatient(id) }); err != nil {
		return Patient{}, false, err
	}
	return p, ok, nil
}

// ByStatus returns the records with status, served by the status index.
func (s *PatientStore) ByStatus(ctx context.Context, status Status) ([]Patient, error) {
	var out []Patient
	if err := s.view(ctx, "by_status", func(v TransactionView) { out = v.ListByStatus(status) }); err != nil {
		return nil, err
	}
	return out, nil
}

// ByRoom returns the records in room, served by the room index.
func (s *PatientStore) ByRoom(ctx context.Context, room string) ([]Patient, error) {
	var out []Patient
	if err := s.view(ctx, "by_room", func(v TransactionView) { out = v.ListByRoom(room) }); err != nil {
		return nil, err
	}
	return out, nil
}

// Add creates a record under a fresh id. Any id on p is ignored; status
// defaults to pending and both timestamps are stamped to the same instant.
func (s *PatientStore) Add(ctx context.Context, p Patient) (int64, error) {
	start := time.Now()
	p.ID = 0
	var created Patient
	err := s.backend.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePatient(p)
		return err
	})
	if err := s.finish(ctx, "add", start, err); err != nil {
		return 0, err
	}
	s.logger.Debug("patient added", zap.Int64("id", created.ID), zap.String("status", string(created.Status)))
	return created.ID, nil
}

// Update replaces the whole record stored at p.ID, creating it when absent.
// createdAt is kept from the stored record and updatedAt is restamped.
func (s *PatientStore) Update(ctx context.Context, p Patient) error {
	start := time.Now()
	if p.ID <= 0 {
		return s.finish(ctx, "update", start, &domain.ValidationError{Reason: fmt.Sprintf("invalid patient id %d", p.ID)})
	}
	var updated Patient
	err := s.backend.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.PutPatient(p)
		return err
	})
	if err := s.finish(ctx, "update", start, err, zap.Int64("id", p.ID)); err != nil {
		return err
	}
	s.logger.Debug("patient updated", zap.Int64("id", updated.ID), zap.String("status", string(updated.Status)))
	return nil
}

// Remove deletes the record if present; a missing id is not an error.
func (s *PatientStore) Remove(ctx context.Context, id int64) error {
	start := time.Now()
	var existed bool
	err := s.backend.RunInTransaction(ctx, func(tx Transaction) error {
		existed = tx.DeletePatient(id)
		return nil
	})
	if err := s.finish(ctx, "remove", start, err, zap.Int64("id", id)); err != nil {
		return err
	}
	s.logger.Debug("patient removed", zap.Int64("id", id), zap.Bool("existed", existed))
	return nil
}

// Clear deletes every record.
func (s *PatientStore) Clear(ctx context.Context) error {
	start := time.Now()
	var n int
	err := s.backend.RunInTransaction(ctx, func(tx Transaction) error {
		n = tx.DeleteAll()
		return nil
	})
	if err := s.finish(ctx, "clear", start, err); err != nil {
		return err
	}
	s.logger.Debug("patients cleared", zap.Int("count", n))
	return nil
}

// ExportAll renders every record as a versioned snapshot document.
func (s *PatientStore) ExportAll(ctx context.Context) ([]byte, error) {
	patients, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	doc, err := domain.EncodeSnapshot(domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ExportedAt: s.now().UTC().Truncate(time.Millisecond),
		Patients:   patients,
	})
	if err := s.finish(ctx, "export", start, err); err != nil {
		return nil, err
	}
	return doc, nil
}

// ImportAll replaces the whole collection with the records in doc. The
// document is validated before anything is cleared, and the clear plus every
// insert commit in a single transaction. Records keep their snapshot ids;
// records without one are numbered after the explicit ids are placed.
func (s *PatientStore) ImportAll(ctx context.Context, doc []byte) (int, error) {
	start := time.Now()
	snapshot, err := domain.DecodeSnapshot(doc)
	if err != nil {
		return 0, s.finish(ctx, "import", start, err)
	}
	err = s.backend.RunInTransaction(ctx, func(tx Transaction) error {
		tx.DeleteAll()
		var unnumbered []Patient
		for _, p := range snapshot.Patients {
			if p.ID == 0 {
				unnumbered = append(unnumbered, p)
				continue
			}
			if _, err := tx.InsertPatient(p); err != nil {
				return err
			}
		}
		for _, p := range unnumbered {
			if _, err := tx.InsertPatient(p); err != nil {
				return err
			}
		}
		return nil
	})
	if err := s.finish(ctx, "import", start, err); err != nil {
		return 0, err
	}
	s.logger.Info("patients imported", zap.Int("count", len(snapshot.Patients)), zap.Int("version", snapshot.Version))
	return len(snapshot.Patients), nil
}
