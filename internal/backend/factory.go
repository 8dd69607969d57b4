package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetflow/internal/adapters"
	"budgetflow/internal/amqp"
	"budgetflow/internal/cache"
	"budgetflow/internal/catalog"
	gsheet "budgetflow/internal/catalog/google"
	"budgetflow/internal/catalog/memory"
	"budgetflow/internal/catalog/remote"
	"budgetflow/internal/storage"
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
	return &DefaultFactory{logger: logger}
}

// base is the raw catalog before caching and income overlay.
type base struct {
	catalog catalog.Catalog
	kv      catalog.KeyValueStore
	ready   ReadyFunc
	closers []CleanupFunc
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		b   *base
		err error
	)
	switch config.Type {
	case MemoryBackend:
		b, err = f.createMemoryBackend(config)
	case SQLiteBackend:
		b, err = f.createSQLiteBackend(ctx, config)
	case RemoteBackend:
		b, err = f.createRemoteBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	var incomes catalog.IncomeSourceReader
	if config.IncomePlansFromSheets {
		cli, err := gsheet.NewFromEnv(ctx, config.GoogleSpreadsheetID, config.GoogleIncomeSheetName)
		if err != nil {
			runAll(b.closers)
			return nil, fmt.Errorf("failed to initialize Google Sheets income plans: %w", err)
		}
		incomes = cli
		f.logger.Info("Income plans read from Google Sheets", "sheet", config.GoogleIncomeSheetName)
	}

	cached := adapters.NewCachedCatalog(b.catalog, incomes, config.CatalogCacheTTL)
	closers := b.closers
	if config.CatalogCacheTTL > 0 {
		manager := cache.NewManager()
		cached.Register(manager)
		manager.StartCleanup(config.CatalogCacheTTL)
		closers = append(closers, func() error {
			manager.Stop()
			return nil
		})
	}

	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			closers = append([]CleanupFunc{amqpClient.Close}, closers...)
		}
	}

	f.logger.Info("Backend ready",
		"backend", config.Type.String(),
		"cache_ttl", config.CatalogCacheTTL,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Catalog: cached,
		KV:      b.kv,
		AMQP:    amqpClient,
		Ready:   b.ready,
		Cleanup: func() error { return runAll(closers) },
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*base, error) {
	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory backend: %w", err)
	}
	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	return &base{
		catalog: store,
		kv:      store,
		ready:   func(context.Context) error { return nil },
	}, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*base, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	if config.SeedFile != "" {
		seed, err := memory.LoadSeed(config.SeedFile)
		if err == nil {
			err = repo.ImportSeed(ctx, seed)
		}
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to import seed file: %w", err)
		}
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &base{
		catalog: repo,
		kv:      repo,
		ready:   repo.Ping,
		closers: []CleanupFunc{repo.Close},
	}, nil
}

// createRemoteBackend reads the catalog over HTTP and keeps dismissals and
// worker progress in a local SQLite file, or in memory when no path is set.
func (f *DefaultFactory) createRemoteBackend(config Config) (*base, error) {
	client, err := remote.New(remote.Config{
		BaseURL: config.RemoteAPIURL,
		Token:   config.RemoteAPIToken,
		Timeout: config.RemoteAPITimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remote catalog: %w", err)
	}

	b := &base{
		catalog: client,
		ready: func(context.Context) error {
			if state := client.State(); state == "open" {
				return fmt.Errorf("remote catalog circuit breaker is %s", state)
			}
			return nil
		},
	}
	if config.SQLiteDBPath != "" {
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local state store: %w", err)
		}
		b.kv = repo
		b.closers = append(b.closers, repo.Close)
	} else {
		b.kv = memory.New(memory.Seed{})
	}

	f.logger.Info("Initialized remote backend",
		"base_url", config.RemoteAPIURL,
		"timeout", config.RemoteAPITimeout,
		"local_state", config.SQLiteDBPath)
	return b, nil
}

func runAll(fns []CleanupFunc) error {
	var errs []error
	for _, fn := range fns {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
