package pipeline

import (
	"fmt"
	"io"
	"sort"

	"github.com/dvloznov/txloader/internal/domain"
)

// Summary describes the result of routing one batch.
type Summary struct {
	Total    int
	Accepted int
	Rejected int
	Reasons  map[string]int
}

// Print writes the counts and the per-reason breakdown, reasons sorted.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Total: %d, accepted: %d, rejected: %d\n", s.Total, s.Accepted, s.Rejected)

	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "  %-25s %d\n", r, s.Reasons[r])
	}
}

// Router folds a stream of outcomes into a stable two-way partition.
type Router struct {
	partition domain.Partition
	reasons   map[string]int
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		partition: domain.Partition{
			Accepted: make([]domain.NormalizedRecord, 0),
			Rejected: make([]domain.Rejection, 0),
		},
		reasons: make(map[string]int),
	}
}

// Add routes one outcome to exactly one side of the partition.
func (r *Router) Add(o domain.Outcome) {
	if o.Accepted() {
		r.partition.Accepted = append(r.partition.Accepted, o.Record)
		return
	}
	r.partition.Rejected = append(r.partition.Rejected, domain.Rejection{
		Original: o.Original,
		Reason:   o.Reason,
	})
	r.reasons[o.Reason]++
}

// Partition returns the records routed so far.
func (r *Router) Partition() domain.Partition {
	return r.partition
}

// Summary returns counts for the records routed so far.
func (r *Router) Summary() Summary {
	reasons := make(map[string]int, len(r.reasons))
	for k, v := range r.reasons {
		reasons[k] = v
	}
	return Summary{
		Total:    r.partition.Len(),
		Accepted: len(r.partition.Accepted),
		Rejected: len(r.partition.Rejected),
		Reasons:  reasons,
	}
}

// Route partitions a complete slice of outcomes.
func Route(outcomes []domain.Outcome) domain.Partition {
	r := NewRouter()
	for _, o := range outcomes {
		r.Add(o)
	}
	return r.Partition()
}
