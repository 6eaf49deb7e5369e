package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"localemr/internal/blob"
	"localemr/internal/config"
	"localemr/internal/core"
	"localemr/internal/logger"
)

// app holds everything a command needs, built once per invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics core.MetricsRecorder
	store   *core.PatientStore
	session *core.Session
	blobs   func(ctx context.Context) (blob.Store, error)
}

// openFunc builds the app; tests swap in a memory-backed one.
type openFunc func(ctx context.Context, opts appOptions) (*app, error)

type appOptions struct {
	// forceMetrics enables a prometheus recorder when none is configured.
	forceMetrics bool
}

func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	backend := cfg.Metrics.Backend
	if opts.forceMetrics && (backend == "" || backend == config.MetricsNone) {
		backend = config.MetricsPrometheus
	}
	metrics, err := core.NewMetricsRecorder(backend)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()
	persistent, err := core.OpenPersistentStore(openCtx, cfg.Storage)
	if err != nil {
		log.Error("open store", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
		_ = log.Sync()
		return nil, err
	}
	log.Debug("store opened", zap.String("driver", cfg.Storage.Driver))

	store := core.NewPatientStore(persistent, core.WithLogger(log), core.WithMetrics(metrics))
	blobCfg := cfg.Blob
	return &app{
		cfg:     cfg,
		logger:  log,
		metrics: metrics,
		store:   store,
		session: core.NewSession(store),
		blobs: func(ctx context.Context) (blob.Store, error) {
			return core.OpenBlobStore(ctx, blobCfg)
		},
	}, nil
}

// close releases the store and flushes the logger.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// writeMetrics dumps the recorder to path in its native format.
func (a *app) writeMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	defer func() { _ = f.Close() }()
	switch m := a.metrics.(type) {
	case *core.PrometheusMetricsRecorder:
		if err := m.WriteText(f); err != nil {
			return err
		}
	case *core.ExpvarMetricsRecorder:
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m.Snapshot()); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	default:
		return fmt.Errorf("metrics backend %T cannot be exported", a.metrics)
	}
	return f.Close()
}
