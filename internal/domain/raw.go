package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the JSON shape a RawValue arrived in.
type Kind uint8

const (
	// KindAbsent means the key was not present in the input object.
	KindAbsent Kind = iota
	// KindNull is an explicit JSON null.
	KindNull
	// KindString is a JSON string.
	KindString
	// KindNumber is a JSON number, kept as its literal text.
	KindNumber
	// KindOther covers booleans, objects and arrays, kept as raw JSON text.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// RawValue is one loosely-typed input field exactly as received.
type RawValue struct {
	Kind Kind
	Text string
}

// String returns a RawValue holding a JSON string.
func String(s string) RawValue { return RawValue{Kind: KindString, Text: s} }

// Number returns a RawValue holding a JSON number literal.
func Number(lit string) RawValue { return RawValue{Kind: KindNumber, Text: lit} }

// Null returns an explicit JSON null.
func Null() RawValue { return RawValue{Kind: KindNull} }

// IsNull reports whether the value carries no data (absent or null).
func (v RawValue) IsNull() bool {
	return v.Kind == KindAbsent || v.Kind == KindNull
}

// UnmarshalJSON implements json.Unmarshaler. It never fails on a well-formed
// JSON value: shapes that are not string, number or null are kept as KindOther.
func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("RawValue: empty input")
	}

	switch c := data[0]; {
	case c == 'n':
		*v = RawValue{Kind: KindNull}
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("RawValue: decoding string: %w", err)
		}
		*v = RawValue{Kind: KindString, Text: s}
	case c == '-' || (c >= '0' && c <= '9'):
		*v = RawValue{Kind: KindNumber, Text: string(data)}
	default:
		*v = RawValue{Kind: KindOther, Text: string(data)}
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Absent values encode as null.
func (v RawValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Text)
	case KindNumber, KindOther:
		return []byte(v.Text), nil
	default:
		return []byte("null"), nil
	}
}

// Field names as they appear in the input and in both tables.
const (
	FieldCustomerID      = "customerId"
	FieldCustomerName    = "customerName"
	FieldTransactionID   = "transactionId"
	FieldTransactionDate = "transactionDate"
	FieldSourceDate      = "sourceDate"
	FieldMerchantID      = "merchantId"
	FieldCategoryID      = "categoryId"
	FieldCurrency        = "currency"
	FieldAmount          = "amount"
	FieldDescription     = "description"
)

// Columns lists the record fields in table column order.
var Columns = []string{
	FieldCustomerID,
	FieldCustomerName,
	FieldTransactionID,
	FieldTransactionDate,
	FieldSourceDate,
	FieldMerchantID,
	FieldCategoryID,
	FieldCurrency,
	FieldAmount,
	FieldDescription,
}

// RawRecord is one input transaction before any coercion. Keys are matched
// exactly; "CustomerId" or "customerid" is an unknown key and ignored.
type RawRecord struct {
	CustomerID      RawValue `json:"customerId"`
	CustomerName    RawValue `json:"customerName"`
	TransactionID   RawValue `json:"transactionId"`
	TransactionDate RawValue `json:"transactionDate"`
	SourceDate      RawValue `json:"sourceDate"`
	MerchantID      RawValue `json:"merchantId"`
	CategoryID      RawValue `json:"categoryId"`
	Currency        RawValue `json:"currency"`
	Amount          RawValue `json:"amount"`
	Description     RawValue `json:"description"`
}

// Values returns the fields in Columns order.
func (r RawRecord) Values() []RawValue {
	return []RawValue{
		r.CustomerID,
		r.CustomerName,
		r.TransactionID,
		r.TransactionDate,
		r.SourceDate,
		r.MerchantID,
		r.CategoryID,
		r.Currency,
		r.Amount,
		r.Description,
	}
}

// fields returns pointers to the fields in Columns order.
func (r *RawRecord) fields() []*RawValue {
	return []*RawValue{
		&r.CustomerID,
		&r.CustomerName,
		&r.TransactionID,
		&r.TransactionDate,
		&r.SourceDate,
		&r.MerchantID,
		&r.CategoryID,
		&r.Currency,
		&r.Amount,
		&r.Description,
	}
}

// UnmarshalJSON implements json.Unmarshaler with case-sensitive key matching.
// When a key repeats, the last occurrence wins.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("RawRecord: %w", err)
	}
	if obj == nil {
		return fmt.Errorf("RawRecord: expected an object, got %s", bytes.TrimSpace(data))
	}

	rec := RawRecord{}
	for i, dst := range rec.fields() {
		raw, ok := obj[Columns[i]]
		if !ok {
			continue
		}
		if len(raw) == 0 {
			*dst = Null()
			continue
		}
		if err := dst.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("RawRecord: field %s: %w", Columns[i], err)
		}
	}
	*r = rec
	return nil
}
