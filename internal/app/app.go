// Package app provides the unified lifecycle management for mosaicod.
package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mosaicolabs/mosaico/internal/cache"
	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/chunk"
	"github.com/mosaicolabs/mosaico/internal/config"
	"github.com/mosaicolabs/mosaico/internal/engine"
	"github.com/mosaicolabs/mosaico/internal/ontology"
	"github.com/mosaicolabs/mosaico/internal/server"
	"github.com/mosaicolabs/mosaico/internal/storage"
	"github.com/mosaicolabs/mosaico/internal/wire"
)

// App wires the daemon together: catalog store, chunk storage, engine,
// and shutdown management.
type App struct {
	cfg *config.Config

	catalog  catalog.Catalog
	storage  storage.ObjectStorage
	engine   *engine.Engine
	shutdown *server.ShutdownManager

	mu      sync.Mutex
	running bool
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{cfg: cfg}, nil
}

// Start initializes the catalog, storage backend, and engine.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())

	cat, err := catalog.NewCatalog(a.cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	a.catalog = cat
	a.shutdown.RegisterCloser(cat)
	log.Printf("Catalog opened: %s", a.cfg.Catalog.Path)

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		if a.cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		}
		if a.cfg.Storage.S3.PartSizeMB > 0 {
			s3Cfg.MultipartConfig.PartSize = int64(a.cfg.Storage.S3.PartSizeMB) << 20
		}
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Storage initialized: type=%s", a.cfg.Storage.Type)

	if a.cfg.Retrieve.CacheSizeMB > 0 {
		cached, err := cache.NewChunkCache(a.storage, a.cfg.Retrieve.CacheDir,
			int64(a.cfg.Retrieve.CacheSizeMB)<<20)
		if err != nil {
			return fmt.Errorf("failed to initialize chunk cache: %w", err)
		}
		a.storage = cached
		log.Printf("Chunk cache enabled: dir=%s, size=%dMB",
			a.cfg.Retrieve.CacheDir, a.cfg.Retrieve.CacheSizeMB)
	}

	engCfg := engine.DefaultConfig()
	engCfg.Writer = chunk.WriterConfig{
		MaxRecords: a.cfg.Ingest.MaxChunkRecords,
		MaxBytes:   a.cfg.Ingest.MaxChunkBytes,
	}
	engCfg.Prefetch = a.cfg.Retrieve.Prefetch
	a.engine = engine.New(a.catalog, a.storage, ontology.Default(), engCfg, nil)
	log.Printf("Engine started: max_chunk_records=%d, max_chunk_bytes=%d, prefetch=%d",
		a.cfg.Ingest.MaxChunkRecords, a.cfg.Ingest.MaxChunkBytes, a.cfg.Retrieve.Prefetch)

	return nil
}

// Engine returns the running engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Transport returns an in-process transport serving this instance.
func (a *App) Transport() wire.Transport {
	return wire.NewInProcessTransport(a.engine)
}

// Shutdown exposes the shutdown manager for session tracking.
func (a *App) Shutdown() *server.ShutdownManager { return a.shutdown }

// Stop gracefully stops the daemon and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")
	err := a.shutdown.Shutdown(ctx, "stop requested")
	log.Printf("Mosaico stopped")
	return err
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}
