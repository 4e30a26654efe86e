package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"signvault/archive"
	"signvault/catalog"
	"signvault/config"
	"signvault/d4sign"
	"signvault/ledger"
	"signvault/refresh"
	"signvault/storage"
	"signvault/timestamps"
)

// durableStore is a shared store backing the ledger, signature times and refresh queue.
type durableStore interface {
	ledger.Backend
	timestamps.Durable
	timestamps.Queue
}

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *d4sign.Client
	signatures *timestamps.Store
	ledger     *ledger.Ledger
	resolver   *refresh.Resolver
	refresher  *refresh.Refresher
	catalog    *catalog.Catalog
	archiver   *archive.Builder
	queue      timestamps.Queue
	closers    []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var (
		primary ledger.Backend
		durable timestamps.Durable
	)
	if store != nil {
		primary, durable, a.queue = store, store, store
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DownloadsFile), 0o755); err != nil {
		a.close()
		return nil, fmt.Errorf("create downloads directory: %w", err)
	}
	a.ledger = ledger.New(primary, ledger.NewFileBackend(cfg.DownloadsFile), logger)
	a.signatures = timestamps.New(durable, a.queue, logger)

	a.client = d4sign.New(&http.Client{Timeout: 2 * time.Minute}, d4sign.Config{
		BaseURL:  cfg.D4SignHost,
		TokenAPI: cfg.TokenAPI,
		CryptKey: cfg.CryptKey,
	}, a.signatures, logger)

	source := catalog.NewCachedSource(a.client, cfg.ListCacheTTL)
	a.catalog = catalog.New(source, a.ledger, logger)
	a.resolver = refresh.NewResolver(a.client, cfg.TimelineCacheTTL)
	a.refresher = refresh.New(a.resolver, a.signatures, a.ledger, source, logger)
	a.archiver = archive.New(a.client, a.ledger, logger,
		archive.WithConcurrency(cfg.ArchiveConcurrency),
		archive.WithTimeout(cfg.ArchiveTimeout))

	logger.Info("Application wired",
		"host", cfg.D4SignHost,
		"store_backend", backendName(cfg.StoreBackend),
		"downloads_file", cfg.DownloadsFile)
	return a, nil
}

// openStore returns nil when no shared store is configured.
func (a *app) openStore(ctx context.Context) (durableStore, error) {
	switch a.cfg.StoreBackend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx, a.cfg.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return storage.New(client, a.cfg.StorageBucket, "", a.logger), nil

	case config.BackendLocal:
		if err := os.MkdirAll(a.cfg.LocalStorage, 0o755); err != nil {
			return nil, fmt.Errorf("create local storage directory: %w", err)
		}
		return storage.New(nil, "", a.cfg.LocalStorage, a.logger), nil

	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(a.cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		db, err := storage.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := storage.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return storage.NewSQLite(db, a.logger), nil

	default:
		return nil, nil
	}
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Failed to close resources", "error", err)
	}
}

func backendName(b string) string {
	if b == config.BackendFile {
		return "file"
	}
	return b
}
