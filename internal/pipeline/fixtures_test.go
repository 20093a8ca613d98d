package pipeline

import (
	"github.com/dvloznov/txloader/internal/domain"
)

// wellFormed returns a record that passes every base rule.
func wellFormed() domain.RawRecord {
	return domain.RawRecord{
		CustomerID:      domain.String("C1"),
		CustomerName:    domain.String("Jane Doe"),
		TransactionID:   domain.String("T1"),
		TransactionDate: domain.String("2021-01-05"),
		SourceDate:      domain.String("2021-01-05T10:00:00Z"),
		MerchantID:      domain.String("42"),
		CategoryID:      domain.String("3"),
		Currency:        domain.String("USD"),
		Amount:          domain.String("19.99"),
		Description:     domain.String("coffee"),
	}
}

// with returns wellFormed with one change applied.
func with(mutate func(r *domain.RawRecord)) domain.RawRecord {
	r := wellFormed()
	mutate(&r)
	return r
}
