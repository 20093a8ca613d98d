// Package sqlite is a single-file persistence sink for local runs, built on
// database/sql and the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/store"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var schema = []struct {
	table string
	ddl   string
}{
	{store.TransactionsTable, `CREATE TABLE IF NOT EXISTS transactions (
		"customerId"      TEXT    NOT NULL,
		"customerName"    TEXT,
		"transactionId"   TEXT    NOT NULL,
		"transactionDate" TEXT    NOT NULL,
		"sourceDate"      TEXT    NOT NULL,
		"merchantId"      INTEGER NOT NULL,
		"categoryId"      INTEGER NOT NULL,
		"currency"        TEXT    NOT NULL,
		"amount"          TEXT    NOT NULL,
		"description"     TEXT,
		PRIMARY KEY ("customerId", "transactionId")
	)`},
	{store.ErrorLogsTable, `CREATE TABLE IF NOT EXISTS error_logs (
		"customerId"      TEXT,
		"customerName"    TEXT,
		"transactionId"   TEXT,
		"transactionDate" TEXT,
		"sourceDate"      TEXT,
		"merchantId"      TEXT,
		"categoryId"      TEXT,
		"currency"        TEXT,
		"amount"          TEXT,
		"description"     TEXT,
		"errorReason"     TEXT NOT NULL
	)`},
	{store.CustomersTable, `CREATE TABLE IF NOT EXISTS customers (
		"customerId"            TEXT PRIMARY KEY,
		"transactionDateLatest" TEXT NOT NULL
	)`},
}

const (
	insertTransaction = `INSERT INTO transactions ("customerId", "customerName", "transactionId",
		"transactionDate", "sourceDate", "merchantId", "categoryId", "currency", "amount", "description")
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertErrorLog = `INSERT INTO error_logs ("customerId", "customerName", "transactionId",
		"transactionDate", "sourceDate", "merchantId", "categoryId", "currency", "amount", "description",
		"errorReason") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	upsertCustomer = `INSERT INTO customers ("customerId", "transactionDateLatest") VALUES (?, ?)
		ON CONFLICT ("customerId") DO UPDATE SET
		"transactionDateLatest" = MAX("transactionDateLatest", excluded."transactionDateLatest")`
)

// Sink writes batches to a SQLite database file.
type Sink struct {
	db   *sql.DB
	opts store.Options
}

// Open opens (creating if needed) the database at path.
func Open(path string, opts store.Options) (*Sink, error) {
	if path == "" {
		return nil, errors.New("sqlite.Open: empty path")
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &store.Error{Op: "connect", Err: err}
	}

	// Limit open connections to 1 for SQLite to avoid locking issues
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &store.Error{Op: "connect", Err: err}
	}
	return &Sink{db: db, opts: opts}, nil
}

// EnsureTables implements store.Sink.
func (s *Sink) EnsureTables(ctx context.Context) error {
	for _, t := range schema {
		if _, err := s.db.ExecContext(ctx, t.ddl); err != nil {
			return &store.Error{Op: "create table", Table: t.table, Err: err}
		}
	}
	return nil
}

// Persist implements store.Sink. Both partitions and the customers upsert are
// written in one transaction.
func (s *Sink) Persist(ctx context.Context, p domain.Partition) (err error) {
	if p.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.Error{Op: "transaction", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err := s.insertTransactions(ctx, tx, p.Accepted); err != nil {
		return err
	}
	if err := s.insertErrorLogs(ctx, tx, p.Rejected); err != nil {
		return err
	}
	if err := upsertCustomers(ctx, tx, domain.LatestByCustomer(p.Accepted)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &store.Error{Op: "commit", Err: err}
	}
	return nil
}

func (s *Sink) insertTransactions(ctx context.Context, tx *sql.Tx, records []domain.NormalizedRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return &store.Error{Op: "prepare", Table: store.TransactionsTable, Err: err}
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.CustomerID.Value,
			s.opts.CustomerName(r.CustomerName),
			r.TransactionID.Value,
			r.TransactionDate.Value.String(),
			r.SourceDate.Value.UTC().Format(time.RFC3339Nano),
			r.MerchantID.Value,
			r.CategoryID.Value,
			r.Currency.Value,
			r.Amount.Value,
			store.FieldText(r.Description),
		)
		if err != nil {
			return &store.Error{Op: "insert", Table: store.TransactionsTable, Err: translateError(err)}
		}
	}
	return nil
}

func (s *Sink) insertErrorLogs(ctx context.Context, tx *sql.Tx, rejections []domain.Rejection) error {
	if len(rejections) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertErrorLog)
	if err != nil {
		return &store.Error{Op: "prepare", Table: store.ErrorLogsTable, Err: err}
	}
	defer stmt.Close()

	for _, rej := range rejections {
		row := s.opts.NewErrorLogRow(rej)
		_, err := stmt.ExecContext(ctx,
			row.CustomerID,
			row.CustomerName,
			row.TransactionID,
			row.TransactionDate,
			row.SourceDate,
			row.MerchantID,
			row.CategoryID,
			row.Currency,
			row.Amount,
			row.Description,
			row.ErrorReason,
		)
		if err != nil {
			return &store.Error{Op: "insert", Table: store.ErrorLogsTable, Err: translateError(err)}
		}
	}
	return nil
}

func upsertCustomers(ctx context.Context, tx *sql.Tx, customers []domain.CustomerLatest) error {
	for _, c := range customers {
		if _, err := tx.ExecContext(ctx, upsertCustomer, c.CustomerID, c.TransactionDateLatest.String()); err != nil {
			return &store.Error{Op: "upsert", Table: store.CustomersTable, Err: translateError(err)}
		}
	}
	return nil
}

// Close implements store.Sink.
func (s *Sink) Close() error {
	return s.db.Close()
}

// translateError maps key violations onto store.ErrDuplicateKey.
func translateError(err error) error {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%w: %w", store.ErrDuplicateKey, err)
		}
		if serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %w", store.ErrDuplicateKey, err)
		}
	}
	return err
}

var _ store.Sink = (*Sink)(nil)
