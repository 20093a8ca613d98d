package store

import (
	"github.com/dvloznov/txloader/internal/domain"
)

// MaskedCustomerName replaces customer names when masking is enabled.
const MaskedCustomerName = "******"

// Options are behaviours shared by every sink.
type Options struct {
	// MaskCustomerName stores MaskedCustomerName instead of the real name.
	MaskCustomerName bool
}

// CustomerName returns the value to store for a record's customer name.
func (o Options) CustomerName(f domain.Field[string]) *string {
	if o.MaskCustomerName {
		masked := MaskedCustomerName
		return &masked
	}
	return FieldText(f)
}

// RejectedCustomerName is CustomerName for an error_logs row.
func (o Options) RejectedCustomerName(v domain.RawValue) *string {
	if o.MaskCustomerName && !v.IsNull() {
		masked := MaskedCustomerName
		return &masked
	}
	return RawText(v)
}

// FieldText returns a pointer to the field text, or nil when absent.
func FieldText(f domain.Field[string]) *string {
	if f.Status == domain.StatusAbsent {
		return nil
	}
	s := f.Value
	return &s
}

// RawText returns the original text of a value as stored in error_logs, or
// nil for null and missing values.
func RawText(v domain.RawValue) *string {
	if v.IsNull() {
		return nil
	}
	s := v.Text
	return &s
}

// ErrorLogRow is the text-only shape of an error_logs row, in column order.
type ErrorLogRow struct {
	CustomerID      *string
	CustomerName    *string
	TransactionID   *string
	TransactionDate *string
	SourceDate      *string
	MerchantID      *string
	CategoryID      *string
	Currency        *string
	Amount          *string
	Description     *string
	ErrorReason     string
}

// NewErrorLogRow maps a rejection onto an error_logs row.
func (o Options) NewErrorLogRow(r domain.Rejection) ErrorLogRow {
	raw := r.Original
	return ErrorLogRow{
		CustomerID:      RawText(raw.CustomerID),
		CustomerName:    o.RejectedCustomerName(raw.CustomerName),
		TransactionID:   RawText(raw.TransactionID),
		TransactionDate: RawText(raw.TransactionDate),
		SourceDate:      RawText(raw.SourceDate),
		MerchantID:      RawText(raw.MerchantID),
		CategoryID:      RawText(raw.CategoryID),
		Currency:        RawText(raw.Currency),
		Amount:          RawText(raw.Amount),
		Description:     RawText(raw.Description),
		ErrorReason:     r.Reason,
	}
}
