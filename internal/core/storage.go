package core

import (
	"context"
	"fmt"

	"localemr/internal/blob"
	"localemr/internal/config"
	"localemr/internal/infra/persistence/memory"
	"localemr/internal/infra/persistence/postgres"
	"localemr/internal/infra/persistence/sqlite"
	"localemr/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = config.StorageMemory   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = config.StorageSQLite   // embedded sqlite file
	StoragePostgres StorageDriver = config.StoragePostgres // PostgreSQL server
)

type (
	Patient         = domain.Patient
	Status          = domain.Status
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend from cfg. An empty driver means sqlite.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, opts ...memory.Option) (PersistentStore, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(opts...), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, opts...)
		if err != nil {
			return nil, domain.NewStorageError("open", err)
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, opts...)
		if err != nil {
			return nil, domain.NewStorageError("open", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenBlobStore maps the blob section of the configuration onto a backend.
func OpenBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Driver),
		FSRoot: cfg.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		},
	})
}
