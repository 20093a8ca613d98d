package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/txloader/internal/domain"
	"github.com/shopspring/decimal"
)

// sourceDateLayout is the accepted sourceDate format. Canonical output uses
// RFC3339Nano so fractional seconds survive a round trip.
const sourceDateLayout = time.RFC3339

// Digit limits for JSON numbers, checked on the coefficient and exponent
// before the value is rescaled or written out in plain notation.
const (
	maxIntegerDigits       = 19 // int64
	maxAmountIntegerDigits = 38
	maxAmountScale         = 38
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
)

// Normalize coerces every field of a raw record to its target type. It never
// fails: a value that cannot be coerced is kept as text and flagged invalid.
func Normalize(raw domain.RawRecord) domain.NormalizedRecord {
	return domain.NormalizedRecord{
		CustomerID:      normalizeText(raw.CustomerID),
		CustomerName:    normalizeText(raw.CustomerName),
		TransactionID:   normalizeText(raw.TransactionID),
		TransactionDate: normalizeDate(raw.TransactionDate),
		SourceDate:      normalizeTimestamp(raw.SourceDate),
		MerchantID:      normalizeInteger(raw.MerchantID),
		CategoryID:      normalizeInteger(raw.CategoryID),
		Currency:        normalizeText(raw.Currency),
		Amount:          normalizeAmount(raw.Amount),
		Description:     normalizeText(raw.Description),
	}
}

// Denormalize renders a normalized record back into raw input form: valid
// fields as their canonical text, invalid fields as their retained text.
// Normalize(Denormalize(n)) == n.
func Denormalize(n domain.NormalizedRecord) domain.RawRecord {
	return domain.RawRecord{
		CustomerID:      denormalize(n.CustomerID, false),
		CustomerName:    denormalize(n.CustomerName, false),
		TransactionID:   denormalize(n.TransactionID, false),
		TransactionDate: denormalize(n.TransactionDate, false),
		SourceDate:      denormalize(n.SourceDate, false),
		MerchantID:      denormalize(n.MerchantID, true),
		CategoryID:      denormalize(n.CategoryID, true),
		Currency:        denormalize(n.Currency, false),
		Amount:          denormalize(n.Amount, false),
		Description:     denormalize(n.Description, false),
	}
}

func denormalize[T any](f domain.Field[T], numeric bool) domain.RawValue {
	switch {
	case f.Status == domain.StatusAbsent:
		return domain.RawValue{}
	case f.Status == domain.StatusValid && numeric:
		return domain.Number(f.Text)
	default:
		return domain.String(f.Text)
	}
}

// presentText returns the trimmed text of a value and whether anything is left.
func presentText(v domain.RawValue) (string, bool) {
	if v.IsNull() {
		return "", false
	}
	s := strings.TrimSpace(v.Text)
	return s, s != ""
}

func normalizeText(v domain.RawValue) domain.Field[string] {
	s, ok := presentText(v)
	if !ok {
		return domain.Field[string]{}
	}
	return domain.ValidField(s, s)
}

func normalizeDate(v domain.RawValue) domain.Field[civil.Date] {
	s, ok := presentText(v)
	if !ok {
		return domain.Field[civil.Date]{}
	}
	if v.Kind != domain.KindString {
		return domain.InvalidField[civil.Date](s)
	}

	d, err := civil.ParseDate(s)
	if err != nil {
		return domain.InvalidField[civil.Date](s)
	}
	return domain.ValidField(d, d.String())
}

func normalizeTimestamp(v domain.RawValue) domain.Field[time.Time] {
	s, ok := presentText(v)
	if !ok {
		return domain.Field[time.Time]{}
	}
	if v.Kind != domain.KindString {
		return domain.InvalidField[time.Time](s)
	}

	ts, err := time.Parse(sourceDateLayout, s)
	if err != nil {
		return domain.InvalidField[time.Time](s)
	}
	ts = ts.UTC()
	return domain.ValidField(ts, ts.Format(time.RFC3339Nano))
}

func normalizeInteger(v domain.RawValue) domain.Field[int64] {
	s, ok := presentText(v)
	if !ok {
		return domain.Field[int64]{}
	}

	switch v.Kind {
	case domain.KindString:
		if !integerPattern.MatchString(s) {
			return domain.InvalidField[int64](s)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.InvalidField[int64](s)
		}
		return domain.ValidField(n, strconv.FormatInt(n, 10))

	case domain.KindNumber:
		// JSON numbers such as 42.0 are accepted when integral.
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.InvalidField[int64](s)
		}
		if d.IsZero() {
			return domain.ValidField(int64(0), "0")
		}
		if integer, _ := plainDigits(d); integer > maxIntegerDigits {
			return domain.InvalidField[int64](s)
		}
		if !d.IsInteger() || !d.BigInt().IsInt64() {
			return domain.InvalidField[int64](s)
		}
		n := d.IntPart()
		return domain.ValidField(n, strconv.FormatInt(n, 10))

	default:
		return domain.InvalidField[int64](s)
	}
}

func normalizeAmount(v domain.RawValue) domain.Field[string] {
	s, ok := presentText(v)
	if !ok {
		return domain.Field[string]{}
	}

	switch v.Kind {
	case domain.KindString:
		if !decimalPattern.MatchString(s) {
			return domain.InvalidField[string](s)
		}
		if _, err := decimal.NewFromString(s); err != nil {
			return domain.InvalidField[string](s)
		}
		return domain.ValidField(s, s)

	case domain.KindNumber:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.InvalidField[string](s)
		}
		if integer, scale := plainDigits(d); integer > maxAmountIntegerDigits || scale > maxAmountScale {
			return domain.InvalidField[string](s)
		}
		// Keep the literal unless it uses exponent notation.
		if strings.ContainsAny(s, "eE") {
			s = d.String()
		}
		return domain.ValidField(s, s)

	default:
		return domain.InvalidField[string](s)
	}
}

// plainDigits returns how many integer and fractional digits d has when
// written without an exponent. Only the coefficient and exponent are read.
func plainDigits(d decimal.Decimal) (integer, scale int64) {
	n := int64(d.NumDigits())
	exp := int64(d.Exponent())
	if exp >= 0 {
		return n + exp, 0
	}
	return max(n+exp, 0), -exp
}
