// Package bigquery is the BigQuery persistence sink. Streaming inserts are
// not transactional and primary keys are not enforced, so a duplicate
// (customerId, transactionId) is stored rather than reported.
package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/store"
)

// Sink is the store.Sink implementation that writes to BigQuery. It holds a
// shared BigQuery client to avoid creating a new connection for each batch.
type Sink struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	opts      store.Options
}

// NewSink creates a Sink with its own client.
func NewSink(ctx context.Context, projectID, datasetID string, opts store.Options) (*Sink, error) {
	if projectID == "" || datasetID == "" {
		return nil, errors.New("NewSink: project and dataset are required")
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, &store.Error{Op: "connect", Err: fmt.Errorf("NewSink: creating client: %w", err)}
	}
	return &Sink{client: client, projectID: projectID, datasetID: datasetID, opts: opts}, nil
}

// EnsureTables delegates to EnsureTablesWithClient with the shared client.
func (s *Sink) EnsureTables(ctx context.Context) error {
	return EnsureTablesWithClient(ctx, s.client, s.projectID, s.datasetID)
}

// Persist implements store.Sink.
func (s *Sink) Persist(ctx context.Context, p domain.Partition) error {
	txRows := make([]*TransactionRow, 0, len(p.Accepted))
	for _, rec := range p.Accepted {
		row, err := NewTransactionRow(rec, s.opts)
		if err != nil {
			return &store.Error{Op: "map", Table: store.TransactionsTable, Err: err}
		}
		txRows = append(txRows, row)
	}

	errRows := make([]*ErrorLogRow, 0, len(p.Rejected))
	for _, rej := range p.Rejected {
		errRows = append(errRows, NewErrorLogRow(rej, s.opts))
	}

	if err := InsertTransactionsWithClient(ctx, s.client, s.projectID, s.datasetID, txRows); err != nil {
		return err
	}
	return InsertErrorLogsWithClient(ctx, s.client, s.projectID, s.datasetID, errRows)
}

// Close closes the BigQuery client connection.
func (s *Sink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

var _ store.Sink = (*Sink)(nil)
