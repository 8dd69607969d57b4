package backend

import (
	"context"
	"time"

	"budgetflow/internal/amqp"
	"budgetflow/internal/catalog"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// ReadyFunc reports whether the backend can currently serve requests.
type ReadyFunc func(ctx context.Context) error

// BackendResult contains everything the binaries wire into services.
type BackendResult struct {
	Catalog catalog.Catalog
	// KV holds client-local state such as dismissals and worker progress.
	KV catalog.KeyValueStore
	// AMQP is nil when no broker is configured or reachable.
	AMQP    *amqp.Client
	Ready   ReadyFunc
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend seed document, optional.
	SeedFile string

	// SQLite database. The remote backend keeps its local state here too.
	SQLiteDBPath string

	// Remote personal-finance API
	RemoteAPIURL     string
	RemoteAPIToken   string
	RemoteAPITimeout time.Duration

	// Income plans read from a spreadsheet instead of the backend.
	IncomePlansFromSheets bool
	GoogleSpreadsheetID   string
	GoogleIncomeSheetName string

	// Zero disables the catalog read cache.
	CatalogCacheTTL time.Duration

	// AMQP is optional for every backend.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	RemoteBackend BackendType = "remote"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RemoteBackend:
		return true
	default:
		return false
	}
}
