package domain

import (
	"sort"

	"cloud.google.com/go/civil"
)

// Outcome is the classification of one input record. A record is accepted
// when Reason is empty; otherwise it is rejected and Original carries the
// values as received.
type Outcome struct {
	Record   NormalizedRecord
	Original RawRecord
	Reason   string
}

// Accept builds an accepted outcome.
func Accept(rec NormalizedRecord, original RawRecord) Outcome {
	return Outcome{Record: rec, Original: original}
}

// Reject builds a rejected outcome with a single reason.
func Reject(original RawRecord, reason string) Outcome {
	return Outcome{Original: original, Reason: reason}
}

// Accepted reports whether the record passed validation.
func (o Outcome) Accepted() bool { return o.Reason == "" }

// Rejection is an error_logs entry: the original field values plus the first
// failing rule.
type Rejection struct {
	Original RawRecord
	Reason   string
}

// Partition is the two-way split of one batch. Both slices keep input order.
type Partition struct {
	Accepted []NormalizedRecord
	Rejected []Rejection
}

// Len returns the number of records in the partition.
func (p Partition) Len() int { return len(p.Accepted) + len(p.Rejected) }

// CustomerLatest is a customers table row: the most recent transaction date
// seen for a customer.
type CustomerLatest struct {
	CustomerID            string
	TransactionDateLatest civil.Date
}

// LatestByCustomer reduces accepted records to one row per customer holding
// the latest transactionDate. Rows are sorted by customer ID.
func LatestByCustomer(records []NormalizedRecord) []CustomerLatest {
	latest := make(map[string]civil.Date)
	for _, r := range records {
		if !r.CustomerID.Valid() || !r.TransactionDate.Valid() {
			continue
		}
		id := r.CustomerID.Value
		if cur, ok := latest[id]; !ok || r.TransactionDate.Value.After(cur) {
			latest[id] = r.TransactionDate.Value
		}
	}

	out := make([]CustomerLatest, 0, len(latest))
	for id, d := range latest {
		out = append(out, CustomerLatest{CustomerID: id, TransactionDateLatest: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}
