package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/logger"
	"github.com/dvloznov/txloader/internal/store"
	"google.golang.org/api/iterator"
)

// ErrRejectedRecords is returned after a fully persisted run when rejects
// are configured to fail the run.
var ErrRejectedRecords = errors.New("DQ check failed: batch contains rejected records")

// PipelineStep represents a single step in the batch pipeline.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *BatchState) error
}

// BatchState holds the shared state across all pipeline steps.
type BatchState struct {
	RunID     string
	Source    string
	Location  string
	Records   []domain.RawRecord
	Outcomes  []domain.Outcome
	Partition domain.Partition
	Summary   Summary
}

// LoadStep reads every record of the batch. A loader failure aborts the run
// before anything is written.
type LoadStep struct {
	Source Source
}

func (s *LoadStep) Name() string { return "load" }

func (s *LoadStep) Execute(ctx context.Context, state *BatchState) error {
	if s.Source == nil {
		return errors.New("LoadStep: no record source configured")
	}

	it, err := s.Source.Open(ctx, state.Source, state.Location)
	if err != nil {
		return err
	}
	defer it.Close()

	records := make([]domain.RawRecord, 0)
	for {
		rec, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	state.Records = records

	log := logger.FromContext(ctx)
	log.Info().Int("records", len(records)).Msg("Batch loaded")
	return nil
}

// ClassifyStep normalizes and validates every loaded record.
type ClassifyStep struct {
	Validator *Validator
	Workers   int
}

func (s *ClassifyStep) Name() string { return "classify" }

func (s *ClassifyStep) Execute(ctx context.Context, state *BatchState) error {
	v := s.Validator
	if v == nil {
		v = NewValidator()
	}

	outcomes, err := ClassifyAll(ctx, v, state.Records, s.Workers)
	if err != nil {
		return err
	}
	state.Outcomes = outcomes
	return nil
}

// RouteStep partitions the outcomes into accepted and rejected records.
type RouteStep struct{}

func (s *RouteStep) Name() string { return "route" }

func (s *RouteStep) Execute(ctx context.Context, state *BatchState) error {
	r := NewRouter()
	for _, o := range state.Outcomes {
		r.Add(o)
	}
	state.Partition = r.Partition()
	state.Summary = r.Summary()

	if state.Summary.Total != len(state.Records) {
		return fmt.Errorf("RouteStep: routed %d of %d records", state.Summary.Total, len(state.Records))
	}

	log := logger.FromContext(ctx)
	ev := log.Info().
		Int("total", state.Summary.Total).
		Int("accepted", state.Summary.Accepted).
		Int("rejected", state.Summary.Rejected)
	if len(state.Summary.Reasons) > 0 {
		ev = ev.Interface("reasons", state.Summary.Reasons)
	}
	ev.Msg("Batch routed")
	return nil
}

// PersistStep creates the tables if needed and writes both partitions.
type PersistStep struct {
	Sink store.Sink
}

func (s *PersistStep) Name() string { return "persist" }

func (s *PersistStep) Execute(ctx context.Context, state *BatchState) error {
	if s.Sink == nil {
		return errors.New("PersistStep: no sink configured")
	}
	if err := s.Sink.EnsureTables(ctx); err != nil {
		return err
	}
	if err := s.Sink.Persist(ctx, state.Partition); err != nil {
		return err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int(store.TransactionsTable, len(state.Partition.Accepted)).
		Int(store.ErrorLogsTable, len(state.Partition.Rejected)).
		Msg("Batch persisted")
	return nil
}

// VerdictStep fails the run when rejects are not tolerated. It runs after
// PersistStep so rejected records are already in error_logs.
type VerdictStep struct {
	FailOnRejects bool
}

func (s *VerdictStep) Name() string { return "verdict" }

func (s *VerdictStep) Execute(ctx context.Context, state *BatchState) error {
	if s.FailOnRejects && state.Summary.Rejected > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRejectedRecords, state.Summary.Rejected, state.Summary.Total)
	}
	return nil
}
