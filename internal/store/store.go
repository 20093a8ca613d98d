package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txloader/internal/domain"
)

// Table names shared by every sink.
const (
	TransactionsTable = "transactions"
	ErrorLogsTable    = "error_logs"
	CustomersTable    = "customers"
)

// ErrDuplicateKey is wrapped by an *Error when a transactions row collides
// with an existing (customerId, transactionId) key.
var ErrDuplicateKey = errors.New("duplicate primary key")

// Error is a batch-level persistence failure.
type Error struct {
	Op    string
	Table string
	Err   error
}

func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Sink persists a routed batch.
//
//go:generate mockgen -source=store.go -destination=mocks/mock_sink.go -package=mock_store
type Sink interface {
	// EnsureTables creates the transactions, error_logs and (where supported)
	// customers tables if they do not exist.
	EnsureTables(ctx context.Context) error

	// Persist appends the accepted partition to transactions and the rejected
	// partition to error_logs.
	Persist(ctx context.Context, p domain.Partition) error

	// Close releases the underlying connection.
	Close() error
}
