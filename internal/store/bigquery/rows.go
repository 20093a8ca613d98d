package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/store"
	"github.com/shopspring/decimal"
)

type TransactionRow struct {
	CustomerID    string              `bigquery:"customerId"`    // REQUIRED
	CustomerName  bigquery.NullString `bigquery:"customerName"`  // NULLABLE
	TransactionID string              `bigquery:"transactionId"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transactionDate"` // REQUIRED DATE
	SourceDate      time.Time  `bigquery:"sourceDate"`      // REQUIRED TIMESTAMP

	MerchantID int64 `bigquery:"merchantId"` // REQUIRED INT64
	CategoryID int64 `bigquery:"categoryId"` // REQUIRED INT64

	Currency string   `bigquery:"currency"` // REQUIRED STRING
	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC

	Description bigquery.NullString `bigquery:"description"` // NULLABLE
}

// ErrorLogRow keeps every original value as text.
type ErrorLogRow struct {
	CustomerID      bigquery.NullString `bigquery:"customerId"`
	CustomerName    bigquery.NullString `bigquery:"customerName"`
	TransactionID   bigquery.NullString `bigquery:"transactionId"`
	TransactionDate bigquery.NullString `bigquery:"transactionDate"`
	SourceDate      bigquery.NullString `bigquery:"sourceDate"`
	MerchantID      bigquery.NullString `bigquery:"merchantId"`
	CategoryID      bigquery.NullString `bigquery:"categoryId"`
	Currency        bigquery.NullString `bigquery:"currency"`
	Amount          bigquery.NullString `bigquery:"amount"`
	Description     bigquery.NullString `bigquery:"description"`
	ErrorReason     string              `bigquery:"errorReason"` // REQUIRED
}

// NewTransactionRow maps an accepted record onto a transactions row.
func NewTransactionRow(r domain.NormalizedRecord, opts store.Options) (*TransactionRow, error) {
	amount, err := decimal.NewFromString(r.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("NewTransactionRow: parsing amount %q: %w", r.Amount.Value, err)
	}

	return &TransactionRow{
		CustomerID:      r.CustomerID.Value,
		CustomerName:    nullString(opts.CustomerName(r.CustomerName)),
		TransactionID:   r.TransactionID.Value,
		TransactionDate: r.TransactionDate.Value,
		SourceDate:      r.SourceDate.Value,
		MerchantID:      r.MerchantID.Value,
		CategoryID:      r.CategoryID.Value,
		Currency:        r.Currency.Value,
		Amount:          amount.Rat(),
		Description:     nullString(store.FieldText(r.Description)),
	}, nil
}

// NewErrorLogRow maps a rejection onto an error_logs row.
func NewErrorLogRow(r domain.Rejection, opts store.Options) *ErrorLogRow {
	row := opts.NewErrorLogRow(r)
	return &ErrorLogRow{
		CustomerID:      nullString(row.CustomerID),
		CustomerName:    nullString(row.CustomerName),
		TransactionID:   nullString(row.TransactionID),
		TransactionDate: nullString(row.TransactionDate),
		SourceDate:      nullString(row.SourceDate),
		MerchantID:      nullString(row.MerchantID),
		CategoryID:      nullString(row.CategoryID),
		Currency:        nullString(row.Currency),
		Amount:          nullString(row.Amount),
		Description:     nullString(row.Description),
		ErrorReason:     row.ErrorReason,
	}
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}
