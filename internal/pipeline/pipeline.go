package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/loader"
	"github.com/dvloznov/txloader/internal/logger"
	"github.com/dvloznov/txloader/internal/store"
	"github.com/google/uuid"
)

// RecordIterator is a lazy, finite sequence of raw records. Next returns
// iterator.Done once the sequence is exhausted.
type RecordIterator interface {
	Next() (domain.RawRecord, error)
	Close() error
}

// Source opens the records of one batch.
type Source interface {
	Open(ctx context.Context, kind, location string) (RecordIterator, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, kind, location string) (RecordIterator, error)

// Open implements Source.
func (f SourceFunc) Open(ctx context.Context, kind, location string) (RecordIterator, error) {
	return f(ctx, kind, location)
}

// LoaderSource adapts a *loader.Loader to Source.
func LoaderSource(l *loader.Loader) Source {
	return SourceFunc(func(ctx context.Context, kind, location string) (RecordIterator, error) {
		b, err := l.Open(ctx, kind, location)
		if err != nil {
			return nil, err
		}
		return b, nil
	})
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *BatchState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}

// Options configure one batch run.
type Options struct {
	Kind     string
	Location string

	Source    Source
	Sink      store.Sink
	Validator *Validator
	Workers   int

	// DryRun classifies and routes without writing anything.
	DryRun bool
	// FailOnRejects makes a run with any rejected record return
	// ErrRejectedRecords after persisting.
	FailOnRejects bool
}

// NewBatchPipeline creates the standard pipeline for opts.
func NewBatchPipeline(opts Options) *Pipeline {
	steps := []PipelineStep{
		&LoadStep{Source: opts.Source},
		&ClassifyStep{Validator: opts.Validator, Workers: opts.Workers},
		&RouteStep{},
	}
	if !opts.DryRun {
		steps = append(steps, &PersistStep{Sink: opts.Sink})
	}
	steps = append(steps, &VerdictStep{FailOnRejects: opts.FailOnRejects})
	return NewPipeline(steps...)
}

// Run processes one batch end to end. The returned state is populated as far
// as the run got, even when an error is returned.
func Run(ctx context.Context, opts Options) (*BatchState, error) {
	state := &BatchState{
		RunID:    uuid.New().String(),
		Source:   opts.Kind,
		Location: opts.Location,
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"run_id":   state.RunID,
		"source":   state.Source,
		"location": state.Location,
	})
	ctx = logger.WithContext(ctx, log)

	start := time.Now()
	log.Info().Bool("dry_run", opts.DryRun).Msg("Starting batch")

	if err := NewBatchPipeline(opts).Execute(ctx, state); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Batch failed")
		return state, err
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("Batch complete")
	return state, nil
}
