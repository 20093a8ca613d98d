package pipeline

import (
	"strings"

	"github.com/dvloznov/txloader/internal/domain"
)

// Rejection reasons written to error_logs. The strings are part of the
// observable contract.
const (
	ReasonMissingCustomerID      = "missing customerId"
	ReasonMissingTransactionID   = "missing transactionId"
	ReasonInvalidTransactionDate = "invalid transactionDate"
	ReasonInvalidSourceDate      = "invalid sourceDate"
	ReasonInvalidMerchantID      = "invalid merchantId"
	ReasonInvalidCategoryID      = "invalid categoryId"
	ReasonMissingCurrency        = "missing currency"
	ReasonInvalidAmount          = "invalid amount"
	ReasonInvalidCurrency        = "invalid currency"
)

type rule struct {
	reason string
	check  func(r domain.NormalizedRecord) bool
}

// baseRules run in this exact order; the first failure is the only reason
// reported for a record.
var baseRules = []rule{
	{ReasonMissingCustomerID, func(r domain.NormalizedRecord) bool { return r.CustomerID.Valid() }},
	{ReasonMissingTransactionID, func(r domain.NormalizedRecord) bool { return r.TransactionID.Valid() }},
	{ReasonInvalidTransactionDate, func(r domain.NormalizedRecord) bool { return r.TransactionDate.Valid() }},
	{ReasonInvalidSourceDate, func(r domain.NormalizedRecord) bool { return r.SourceDate.Valid() }},
	{ReasonInvalidMerchantID, func(r domain.NormalizedRecord) bool { return r.MerchantID.Valid() }},
	{ReasonInvalidCategoryID, func(r domain.NormalizedRecord) bool { return r.CategoryID.Valid() }},
	{ReasonMissingCurrency, func(r domain.NormalizedRecord) bool { return r.Currency.Valid() }},
	{ReasonInvalidAmount, func(r domain.NormalizedRecord) bool { return r.Amount.Valid() }},
}

// Validator classifies normalized records. It holds no mutable state and is
// safe for concurrent use.
type Validator struct {
	rules []rule
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithAllowedCurrencies appends a currency whitelist rule after the base
// rules. Codes are compared case-insensitively. An empty list adds nothing.
func WithAllowedCurrencies(codes ...string) ValidatorOption {
	return func(v *Validator) {
		allowed := make(map[string]bool, len(codes))
		for _, c := range codes {
			if c = normalizeCurrency(c); c != "" {
				allowed[c] = true
			}
		}
		if len(allowed) == 0 {
			return
		}
		v.rules = append(v.rules, rule{
			reason: ReasonInvalidCurrency,
			check: func(r domain.NormalizedRecord) bool {
				return allowed[normalizeCurrency(r.Currency.Value)]
			},
		})
	}
}

// NewValidator creates a validator with the base rule set.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{rules: append([]rule(nil), baseRules...)}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the reason of the first failing rule, or ok=true when the
// record passes every rule.
func (v *Validator) Validate(r domain.NormalizedRecord) (reason string, ok bool) {
	for _, rl := range v.rules {
		if !rl.check(r) {
			return rl.reason, false
		}
	}
	return "", true
}

// Classify normalizes and validates a single raw record.
func (v *Validator) Classify(raw domain.RawRecord) domain.Outcome {
	rec := Normalize(raw)
	if reason, ok := v.Validate(rec); !ok {
		return domain.Reject(raw, reason)
	}
	return domain.Accept(rec, raw)
}

// normalizeCurrency normalizes a currency code for comparison.
func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
