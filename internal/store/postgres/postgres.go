// Package postgres is the PostgreSQL persistence sink, built on gorm.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

//go:embed sql/*.sql
var ddl embed.FS

// ddlFiles are applied in order by EnsureTables.
var ddlFiles = []string{
	"sql/transactions.sql",
	"sql/error_logs.sql",
	"sql/customers.sql",
}

const insertBatchSize = 500

// Sink writes batches to PostgreSQL. Each Persist call is one database
// transaction, so a failed batch leaves no rows behind.
type Sink struct {
	db   *gorm.DB
	opts store.Options
}

// Open connects to PostgreSQL. appEnv "development" turns on gorm's SQL log.
func Open(dsn, appEnv string, opts store.Options) (*Sink, error) {
	if dsn == "" {
		return nil, errors.New("postgres.Open: empty DSN")
	}

	logMode := logger.Silent
	if appEnv == "development" {
		logMode = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logMode),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, &store.Error{Op: "connect", Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &store.Error{Op: "connect", Err: err}
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	return New(db, opts), nil
}

// New wraps an open gorm connection.
func New(db *gorm.DB, opts store.Options) *Sink {
	return &Sink{db: db, opts: opts}
}

// EnsureTables implements store.Sink.
func (s *Sink) EnsureTables(ctx context.Context) error {
	for _, name := range ddlFiles {
		stmt, err := ddl.ReadFile(name)
		if err != nil {
			return &store.Error{Op: "create table", Err: err}
		}
		table := strings.TrimSuffix(path.Base(name), ".sql")
		if err := s.db.WithContext(ctx).Exec(string(stmt)).Error; err != nil {
			return &store.Error{Op: "create table", Table: table, Err: err}
		}
	}
	return nil
}

// Persist implements store.Sink.
func (s *Sink) Persist(ctx context.Context, p domain.Partition) error {
	if p.Len() == 0 {
		return nil
	}

	txRows := make([]transactionRow, 0, len(p.Accepted))
	for _, rec := range p.Accepted {
		row, err := newTransactionRow(rec, s.opts)
		if err != nil {
			return &store.Error{Op: "map", Table: store.TransactionsTable, Err: err}
		}
		txRows = append(txRows, row)
	}

	errRows := make([]errorLogRow, 0, len(p.Rejected))
	for _, rej := range p.Rejected {
		errRows = append(errRows, newErrorLogRow(rej, s.opts))
	}

	customers := newCustomerRows(p.Accepted)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(txRows) > 0 {
			if err := tx.CreateInBatches(&txRows, insertBatchSize).Error; err != nil {
				return &store.Error{Op: "insert", Table: store.TransactionsTable, Err: translateError(err)}
			}
		}
		if len(errRows) > 0 {
			if err := tx.CreateInBatches(&errRows, insertBatchSize).Error; err != nil {
				return &store.Error{Op: "insert", Table: store.ErrorLogsTable, Err: translateError(err)}
			}
		}
		if len(customers) > 0 {
			upsert := clause.OnConflict{
				Columns: []clause.Column{{Name: "customerId"}},
				DoUpdates: clause.Set{{
					Column: clause.Column{Name: "transactionDateLatest"},
					Value:  gorm.Expr(`GREATEST("customers"."transactionDateLatest", EXCLUDED."transactionDateLatest")`),
				}},
			}
			if err := tx.Clauses(upsert).CreateInBatches(&customers, insertBatchSize).Error; err != nil {
				return &store.Error{Op: "upsert", Table: store.CustomersTable, Err: translateError(err)}
			}
		}
		return nil
	})
	if err != nil {
		var serr *store.Error
		if errors.As(err, &serr) {
			return err
		}
		return &store.Error{Op: "transaction", Err: err}
	}
	return nil
}

// Close implements store.Sink.
func (s *Sink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("Sink.Close: %w", err)
	}
	return sqlDB.Close()
}

// translateError maps gorm errors onto store errors.
func translateError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", store.ErrDuplicateKey, err)
	}
	return err
}

var _ store.Sink = (*Sink)(nil)
