package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Status is the coercion result of a single field.
type Status uint8

const (
	// StatusAbsent means the field was missing, null or blank.
	StatusAbsent Status = iota
	// StatusValid means the field was coerced to its target type.
	StatusValid
	// StatusInvalid means a value was present but could not be coerced.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "absent"
	}
}

// Field is a normalized field. Text is the canonical rendering of Value when
// the field is valid, and the trimmed original text when it is invalid.
type Field[T any] struct {
	Value  T
	Text   string
	Status Status
}

// Valid reports whether the field was coerced successfully.
func (f Field[T]) Valid() bool { return f.Status == StatusValid }

// ValidField builds a coerced field.
func ValidField[T any](v T, text string) Field[T] {
	return Field[T]{Value: v, Text: text, Status: StatusValid}
}

// InvalidField builds a field whose value could not be coerced.
func InvalidField[T any](text string) Field[T] {
	return Field[T]{Text: text, Status: StatusInvalid}
}

// NormalizedRecord is a RawRecord with every field coerced to its semantic type
// where possible.
type NormalizedRecord struct {
	CustomerID      Field[string]
	CustomerName    Field[string]
	TransactionID   Field[string]
	TransactionDate Field[civil.Date]
	SourceDate      Field[time.Time]
	MerchantID      Field[int64]
	CategoryID      Field[int64]
	Currency        Field[string]
	// Amount holds exact decimal text; it is never routed through float64.
	Amount      Field[string]
	Description Field[string]
}
