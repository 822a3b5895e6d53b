package backend

import (
	"context"

	"fintrack/internal/amqp"
	"fintrack/internal/ledger"
	"fintrack/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the ledger store, the optional AMQP publisher and
// a cleanup function releasing both.
type BackendResult struct {
	Store     ledger.Store
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Notifier returns the publisher as an UpcomingNotifier, or nil when AMQP is
// not configured.
func (r *BackendResult) Notifier() services.UpcomingNotifier {
	if r.Publisher == nil {
		return nil
	}
	return r.Publisher
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	DatabaseURL string

	// Optional AMQP publisher, any backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
