package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finlight/internal/adapters"
	"finlight/internal/amqp"
	"finlight/internal/cache"
	"finlight/internal/services"
	"finlight/internal/store"
	"finlight/internal/store/memory"
	"finlight/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo    store.Store
		closers []func() error
	)
	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		repo, closers = sqliteRepo, append(closers, sqliteRepo.Close)
	case PostgresBackend:
		pgRepo, err := storage.NewPostgresRepository(ctx, storage.PostgresOptions{
			URL:      config.DatabaseURL,
			MaxConns: int32(config.MaxConns),
			Migrate:  true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend", "max_conns", config.MaxConns)
		repo, closers = pgRepo, append(closers, pgRepo.Close)
	case MemoryBackend:
		memStore, err := memory.NewFromFile(config.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
		repo = memStore
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &BackendResult{Store: repo, Directory: repo}

	if config.DirectoryCacheSize > 0 && config.DirectoryCacheTTL > 0 {
		cached := adapters.NewCachedDirectory(repo, config.DirectoryCacheSize, config.DirectoryCacheTTL)
		manager := cache.NewManager(f.logger)
		cached.Register(manager)
		manager.StartCleanup(context.WithoutCancel(ctx), config.DirectoryCacheTTL)
		result.Directory = cached
		// stop the sweeper before the store it reads from closes
		closers = append([]func() error{func() error {
			manager.Stop()
			stats := cached.Stats()
			f.logger.Info("Business cache stopped", "hits", stats.Hits, "misses", stats.Misses, "evictions", stats.Evictions)
			return nil
		}}, closers...)
		f.logger.Info("Business cache enabled", "size", config.DirectoryCacheSize, "ttl", config.DirectoryCacheTTL)
	}

	result.Audit = services.StoreAuditPublisher{Writer: repo}
	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, writing audit events directly", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Audit = services.FallbackAuditPublisher{Primary: amqpClient, Secondary: result.Audit}
			closers = append([]func() error{amqpClient.Close}, closers...)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		for _, c := range closers {
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return result, nil
}
