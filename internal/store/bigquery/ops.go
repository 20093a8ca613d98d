package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txloader/internal/store"
)

// BigQuery does not enforce primary keys; the constraint is informational
// and duplicates are accepted by streaming inserts.
const transactionsDDL = `
	CREATE TABLE IF NOT EXISTS ` + "`%s.%s.transactions`" + ` (
		customerId      STRING NOT NULL,
		customerName    STRING,
		transactionId   STRING NOT NULL,
		transactionDate DATE NOT NULL,
		sourceDate      TIMESTAMP NOT NULL,
		merchantId      INT64 NOT NULL,
		categoryId      INT64 NOT NULL,
		currency        STRING NOT NULL,
		amount          NUMERIC NOT NULL,
		description     STRING,
		PRIMARY KEY (customerId, transactionId) NOT ENFORCED
	)
`

const errorLogsDDL = `
	CREATE TABLE IF NOT EXISTS ` + "`%s.%s.error_logs`" + ` (
		customerId      STRING,
		customerName    STRING,
		transactionId   STRING,
		transactionDate STRING,
		sourceDate      STRING,
		merchantId      STRING,
		categoryId      STRING,
		currency        STRING,
		amount          STRING,
		description     STRING,
		errorReason     STRING NOT NULL
	)
`

// tableDDL returns the CREATE statements in the order they are applied.
func tableDDL(projectID, datasetID string) []struct{ table, sql string } {
	return []struct{ table, sql string }{
		{store.TransactionsTable, fmt.Sprintf(transactionsDDL, projectID, datasetID)},
		{store.ErrorLogsTable, fmt.Sprintf(errorLogsDDL, projectID, datasetID)},
	}
}

// EnsureTablesWithClient creates the transactions and error_logs tables if
// they do not exist.
func EnsureTablesWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string) error {
	for _, ddl := range tableDDL(projectID, datasetID) {
		if err := runQuery(ctx, client, ddl.sql); err != nil {
			return &store.Error{Op: "create table", Table: ddl.table, Err: err}
		}
	}
	return nil
}

func runQuery(ctx context.Context, client *bigquery.Client, sql string) error {
	job, err := client.Query(sql).Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

// InsertTransactionsWithClient streams rows into the transactions table.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(projectID, datasetID).Table(store.TransactionsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return &store.Error{Op: "insert", Table: store.TransactionsTable, Err: err}
	}
	return nil
}

// InsertErrorLogsWithClient streams rows into the error_logs table.
func InsertErrorLogsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, rows []*ErrorLogRow) error {
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(projectID, datasetID).Table(store.ErrorLogsTable)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return &store.Error{Op: "insert", Table: store.ErrorLogsTable, Err: err}
	}
	return nil
}
