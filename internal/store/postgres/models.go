package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/store"
	"github.com/shopspring/decimal"
)

type transactionRow struct {
	CustomerID      string          `gorm:"column:customerId;primaryKey"`
	CustomerName    *string         `gorm:"column:customerName"`
	TransactionID   string          `gorm:"column:transactionId;primaryKey"`
	TransactionDate time.Time       `gorm:"column:transactionDate;type:date"`
	SourceDate      time.Time       `gorm:"column:sourceDate"`
	MerchantID      int64           `gorm:"column:merchantId"`
	CategoryID      int64           `gorm:"column:categoryId"`
	Currency        string          `gorm:"column:currency"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric"`
	Description     *string         `gorm:"column:description"`
}

func (transactionRow) TableName() string { return store.TransactionsTable }

type errorLogRow struct {
	CustomerID      *string `gorm:"column:customerId"`
	CustomerName    *string `gorm:"column:customerName"`
	TransactionID   *string `gorm:"column:transactionId"`
	TransactionDate *string `gorm:"column:transactionDate"`
	SourceDate      *string `gorm:"column:sourceDate"`
	MerchantID      *string `gorm:"column:merchantId"`
	CategoryID      *string `gorm:"column:categoryId"`
	Currency        *string `gorm:"column:currency"`
	Amount          *string `gorm:"column:amount"`
	Description     *string `gorm:"column:description"`
	ErrorReason     string  `gorm:"column:errorReason"`
}

func (errorLogRow) TableName() string { return store.ErrorLogsTable }

type customerRow struct {
	CustomerID            string    `gorm:"column:customerId;primaryKey"`
	TransactionDateLatest time.Time `gorm:"column:transactionDateLatest;type:date"`
}

func (customerRow) TableName() string { return store.CustomersTable }

func newTransactionRow(r domain.NormalizedRecord, opts store.Options) (transactionRow, error) {
	amount, err := decimal.NewFromString(r.Amount.Value)
	if err != nil {
		return transactionRow{}, fmt.Errorf("transaction %s/%s: amount %q: %w",
			r.CustomerID.Value, r.TransactionID.Value, r.Amount.Value, err)
	}

	return transactionRow{
		CustomerID:      text(r.CustomerID.Value),
		CustomerName:    textPtr(opts.CustomerName(r.CustomerName)),
		TransactionID:   text(r.TransactionID.Value),
		TransactionDate: r.TransactionDate.Value.In(time.UTC),
		SourceDate:      r.SourceDate.Value,
		MerchantID:      r.MerchantID.Value,
		CategoryID:      r.CategoryID.Value,
		Currency:        text(r.Currency.Value),
		Amount:          amount,
		Description:     textPtr(store.FieldText(r.Description)),
	}, nil
}

func newErrorLogRow(r domain.Rejection, opts store.Options) errorLogRow {
	row := opts.NewErrorLogRow(r)
	return errorLogRow{
		CustomerID:      textPtr(row.CustomerID),
		CustomerName:    textPtr(row.CustomerName),
		TransactionID:   textPtr(row.TransactionID),
		TransactionDate: textPtr(row.TransactionDate),
		SourceDate:      textPtr(row.SourceDate),
		MerchantID:      textPtr(row.MerchantID),
		CategoryID:      textPtr(row.CategoryID),
		Currency:        textPtr(row.Currency),
		Amount:          textPtr(row.Amount),
		Description:     textPtr(row.Description),
		ErrorReason:     row.ErrorReason,
	}
}

func newCustomerRows(accepted []domain.NormalizedRecord) []customerRow {
	latest := domain.LatestByCustomer(accepted)
	rows := make([]customerRow, 0, len(latest))
	for _, c := range latest {
		rows = append(rows, customerRow{
			CustomerID:            text(c.CustomerID),
			TransactionDateLatest: c.TransactionDateLatest.In(time.UTC),
		})
	}
	return rows
}

// nulEscape is how a NUL byte is written to TEXT columns, which reject it.
const nulEscape = `\u0000`

func text(s string) string {
	return strings.ReplaceAll(s, "\x00", nulEscape)
}

func textPtr(s *string) *string {
	if s == nil || !strings.Contains(*s, "\x00") {
		return s
	}
	escaped := text(*s)
	return &escaped
}
