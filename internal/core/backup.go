package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"localemr/internal/blob"
	"localemr/pkg/domain"
)

// maxBackupAttempts bounds the time-suffixed fallback keys tried per Create.
const maxBackupAttempts = 5

// Backup describes a stored snapshot.
type Backup struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Patients int       `json:"patients"` // -1 when the backend does not report metadata
	SavedAt  time.Time `json:"savedAt"`
}

// BackupService keeps exported snapshots in a blob store.
type BackupService struct {
	session *Session
	blobs   blob.Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewBackupService binds a session to a blob store.
func NewBackupService(session *Session, blobs blob.Store) *BackupService {
	return &BackupService{session: session, blobs: blobs, logger: session.logger, now: time.Now}
}

// WithClock overrides the time source used to name backups.
func (b *BackupService) WithClock(now func() time.Time) *BackupService {
	if now != nil {
		b.now = now
	}
	return b
}

// Create stores a snapshot of the whole collection under today's backup
// key. When that key is taken the time of day is appended.
func (b *BackupService) Create(ctx context.Context) (Backup, error) {
	doc, err := b.session.Export(ctx)
	if err != nil {
		return Backup{}, err
	}
	snapshot, err := domain.DecodeSnapshot(doc)
	if err != nil {
		return Backup{}, err
	}
	now := b.now().UTC()
	opts := blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"patients": strconv.Itoa(len(snapshot.Patients)),
			"version":  strconv.Itoa(domain.SnapshotVersion),
		},
	}
	for attempt := 0; attempt < maxBackupAttempts; attempt++ {
		key := backupKey(now, attempt)
		info, err := b.blobs.Put(ctx, key, bytes.NewReader(doc), opts)
		if errors.Is(err, blob.ErrExists) {
			continue
		}
		if err != nil {
			b.logger.Error("backup write failed", zap.String("key", key), zap.Error(err))
			return Backup{}, fmt.Errorf("store backup %s: %w", key, err)
		}
		b.logger.Info("backup created", zap.String("key", key), zap.Int("patients", len(snapshot.Patients)))
		return toBackup(info), nil
	}
	return Backup{}, fmt.Errorf("store backup: no free key for %s", domain.BackupFilename(now))
}

// backupKey is the dated filename, then variants carrying the time of day.
func backupKey(now time.Time, attempt int) string {
	name := domain.BackupFilename(now)
	switch attempt {
	case 0:
		return name
	case 1:
		return strings.TrimSuffix(name, ".json") + "-" + now.Format("150405") + ".json"
	default:
		return fmt.Sprintf("%s-%s-%d.json", strings.TrimSuffix(name, ".json"), now.Format("150405"), attempt)
	}
}

// List returns the stored backups oldest first. Keys are compared without
// their extension so a day's fallback keys follow its primary key.
func (b *BackupService) List(ctx context.Context) ([]Backup, error) {
	infos, err := b.blobs.List(ctx, domain.BackupPrefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := make([]Backup, 0, len(infos))
	for _, info := range infos {
		out = append(out, toBackup(info))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.TrimSuffix(out[i].Key, ".json") < strings.TrimSuffix(out[j].Key, ".json")
	})
	return out, nil
}

// Restore replaces the collection with the snapshot stored at key.
func (b *BackupService) Restore(ctx context.Context, key string) (int, error) {
	_, rc, err := b.blobs.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("read backup %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	doc, err := io.ReadAll(rc)
	if err != nil {
		return 0, fmt.Errorf("read backup %s: %w", key, err)
	}
	n, err := b.session.Import(ctx, doc)
	if err != nil {
		return 0, err
	}
	b.logger.Info("backup restored", zap.String("key", key), zap.Int("patients", n))
	return n, nil
}

// Delete removes a stored backup, reporting whether it existed.
func (b *BackupService) Delete(ctx context.Context, key string) (bool, error) {
	ok, err := b.blobs.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("delete backup %s: %w", key, err)
	}
	return ok, nil
}

func toBackup(info blob.Info) Backup {
	out := Backup{Key: info.Key, Size: info.Size, Patients: -1, SavedAt: info.LastModified}
	if v, ok := info.Metadata["patients"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			out.Patients = n
		}
	}
	return out
}
