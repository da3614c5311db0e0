package backend

import (
	"context"
	"time"

	"finlight/internal/services"
	"finlight/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the opened store, the directory the services should
// use (cached when configured), the audit publisher and a cleanup function.
type BackendResult struct {
	Store     store.Store
	Directory store.BusinessDirectory
	Audit     services.AuditPublisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string
	MaxConns    int

	// Memory specific; empty means an empty store
	SeedFile string

	// Audit queue; empty URL writes audit events straight to the store
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Directory cache; zero size or TTL disables it
	DirectoryCacheSize int
	DirectoryCacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
