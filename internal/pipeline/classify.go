package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/txloader/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ClassifyAll classifies every record and returns the outcomes in input order.
// With workers > 1 the batch is split into contiguous chunks processed
// concurrently; each worker writes only its own slice indexes.
func ClassifyAll(ctx context.Context, v *Validator, records []domain.RawRecord, workers int) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, len(records))
	if workers <= 1 || len(records) < 2 {
		for i, rec := range records {
			outcomes[i] = v.Classify(rec)
		}
		return outcomes, nil
	}

	if workers > len(records) {
		workers = len(records)
	}
	chunk := (len(records) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				outcomes[i] = v.Classify(records[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ClassifyAll: %w", err)
	}
	return outcomes, nil
}
