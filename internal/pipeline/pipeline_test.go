package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/loader"
	"github.com/dvloznov/txloader/internal/logger"
	"github.com/dvloznov/txloader/internal/pipeline"
	"github.com/dvloznov/txloader/internal/store"
	mock_store "github.com/dvloznov/txloader/internal/store/mocks"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

// sliceIterator serves records from memory.
type sliceIterator struct {
	records []domain.RawRecord
	pos     int
	closed  bool
}

func (it *sliceIterator) Next() (domain.RawRecord, error) {
	if it.pos >= len(it.records) {
		return domain.RawRecord{}, iterator.Done
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, nil
}

func (it *sliceIterator) Close() error {
	it.closed = true
	return nil
}

func sourceOf(it *sliceIterator) pipeline.Source {
	return pipeline.SourceFunc(func(ctx context.Context, kind, location string) (pipeline.RecordIterator, error) {
		return it, nil
	})
}

func record(customerID, transactionID, amount string) domain.RawRecord {
	return domain.RawRecord{
		CustomerID:      domain.String(customerID),
		TransactionID:   domain.String(transactionID),
		TransactionDate: domain.String("2021-01-05"),
		SourceDate:      domain.String("2021-01-05T10:00:00Z"),
		MerchantID:      domain.String("42"),
		CategoryID:      domain.String("3"),
		Currency:        domain.String("USD"),
		Amount:          domain.String(amount),
	}
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(&bytes.Buffer{}))
}

func TestRun_PersistsBothPartitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock_store.NewMockSink(ctrl)

	it := &sliceIterator{records: []domain.RawRecord{
		record("C1", "T1", "19.99"),
		record("C1", "T2", "nineteen"),
		record("", "T3", "1.00"),
		record("C2", "T4", "-3"),
	}}

	var persisted domain.Partition
	gomock.InOrder(
		sink.EXPECT().EnsureTables(gomock.Any()).Return(nil),
		sink.EXPECT().Persist(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, p domain.Partition) error {
				persisted = p
				return nil
			}),
	)

	state, err := pipeline.Run(quietContext(), pipeline.Options{
		Kind:     loader.KindLocal,
		Location: "batch.json",
		Source:   sourceOf(it),
		Sink:     sink,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, state.RunID)
	assert.True(t, it.closed)
	assert.Equal(t, 4, state.Summary.Total)

	require.Len(t, persisted.Accepted, 2)
	assert.Equal(t, "T1", persisted.Accepted[0].TransactionID.Value)
	assert.Equal(t, "T4", persisted.Accepted[1].TransactionID.Value)

	require.Len(t, persisted.Rejected, 2)
	assert.Equal(t, pipeline.ReasonInvalidAmount, persisted.Rejected[0].Reason)
	assert.Equal(t, pipeline.ReasonMissingCustomerID, persisted.Rejected[1].Reason)
	assert.Equal(t, domain.String("nineteen"), persisted.Rejected[0].Original.Amount)
}

func TestRun_EmptyBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock_store.NewMockSink(ctrl)

	sink.EXPECT().EnsureTables(gomock.Any()).Return(nil)
	sink.EXPECT().Persist(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, p domain.Partition) error {
			assert.Empty(t, p.Accepted)
			assert.Empty(t, p.Rejected)
			return nil
		})

	state, err := pipeline.Run(quietContext(), pipeline.Options{
		Source:        sourceOf(&sliceIterator{}),
		Sink:          sink,
		FailOnRejects: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, state.Summary.Total)
}

func TestRun_DryRunSkipsSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock_store.NewMockSink(ctrl)

	state, err := pipeline.Run(quietContext(), pipeline.Options{
		Source: sourceOf(&sliceIterator{records: []domain.RawRecord{record("C1", "T1", "x")}}),
		Sink:   sink,
		DryRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, state.Summary.Rejected)
}

func TestRun_LoaderFailureWritesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock_store.NewMockSink(ctrl)

	loadErr := &loader.Error{Op: "open", Location: "missing.json", Err: errors.New("no such file")}
	src := pipeline.SourceFunc(func(ctx context.Context, kind, location string) (pipeline.RecordIterator, error) {
		return nil, loadErr
	})

	_, err := pipeline.Run(quietContext(), pipeline.Options{Source: src, Sink: sink})

	var lerr *loader.Error
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, err.Error(), "pipeline step 1 (load) failed")
}

func TestRun_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock_store.NewMockSink(ctrl)

	sink.EXPECT().EnsureTables(gomock.Any()).Return(nil)
	sink.EXPECT().Persist(gomock.Any(), gomock.Any()).Return(&store.Error{
		Op:    "insert",
		Table: store.TransactionsTable,
		Err:   store.ErrDuplicateKey,
	})

	state, err := pipeline.Run(quietContext(), pipeline.Options{
		Source: sourceOf(&sliceIterator{records: []domain.RawRecord{record("C1", "T1", "1")}}),
		Sink:   sink,
	})

	require.ErrorIs(t, err, store.ErrDuplicateKey)
	var serr *store.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, store.TransactionsTable, serr.Table)
	assert.Equal(t, 1, state.Summary.Accepted)
}

func TestRun_EnsureTablesFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock_store.NewMockSink(ctrl)

	sink.EXPECT().EnsureTables(gomock.Any()).Return(errors.New("connection refused"))

	_, err := pipeline.Run(quietContext(), pipeline.Options{
		Source: sourceOf(&sliceIterator{}),
		Sink:   sink,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(persist)")
}

func TestRun_FailOnRejectsAfterPersist(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mock_store.NewMockSink(ctrl)

	gomock.InOrder(
		sink.EXPECT().EnsureTables(gomock.Any()).Return(nil),
		sink.EXPECT().Persist(gomock.Any(), gomock.Any()).Return(nil),
	)

	_, err := pipeline.Run(quietContext(), pipeline.Options{
		Source: sourceOf(&sliceIterator{records: []domain.RawRecord{
			record("C1", "T1", "1"),
			record("C1", "T2", "bad"),
		}}),
		Sink:          sink,
		FailOnRejects: true,
	})
	require.ErrorIs(t, err, pipeline.ErrRejectedRecords)
}

func TestRun_WorkersKeepOrder(t *testing.T) {
	var records []domain.RawRecord
	for i := 0; i < 50; i++ {
		records = append(records, record("C1", fmt.Sprintf("T%02d", i), "1"))
	}

	state, err := pipeline.Run(quietContext(), pipeline.Options{
		Source:  sourceOf(&sliceIterator{records: records}),
		Workers: 4,
		DryRun:  true,
	})
	require.NoError(t, err)
	require.Len(t, state.Partition.Accepted, 50)
	for i, rec := range state.Partition.Accepted {
		assert.Equal(t, fmt.Sprintf("T%02d", i), rec.TransactionID.Value)
	}
}

func TestRun_AllowedCurrencies(t *testing.T) {
	rec := record("C1", "T1", "1")
	rec.Currency = domain.String("JPY")

	state, err := pipeline.Run(quietContext(), pipeline.Options{
		Source:    sourceOf(&sliceIterator{records: []domain.RawRecord{rec}}),
		Validator: pipeline.NewValidator(pipeline.WithAllowedCurrencies("EUR", "GBP", "USD")),
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{pipeline.ReasonInvalidCurrency: 1}, state.Summary.Reasons)
}

type failingStep struct{}

func (failingStep) Name() string { return "explode" }

func (failingStep) Execute(ctx context.Context, state *pipeline.BatchState) error {
	return errors.New("boom")
}

func TestPipeline_ExecuteStopsAtFirstFailure(t *testing.T) {
	it := &sliceIterator{records: []domain.RawRecord{record("C1", "T1", "1")}}
	p := pipeline.NewPipeline(
		&pipeline.LoadStep{Source: sourceOf(it)},
		failingStep{},
		&pipeline.ClassifyStep{},
	)

	state := &pipeline.BatchState{}
	err := p.Execute(quietContext(), state)

	require.EqualError(t, err, "pipeline step 2 (explode) failed: boom")
	assert.Len(t, state.Records, 1)
	assert.Nil(t, state.Outcomes)
}

func TestLoaderSource_NoTypedNil(t *testing.T) {
	src := pipeline.LoaderSource(loader.New())
	it, err := src.Open(context.Background(), "ftp", "x")
	require.Error(t, err)
	assert.Nil(t, it)
}

func TestRun_LogsCarryRunFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	state, err := pipeline.Run(ctx, pipeline.Options{
		Kind:     loader.KindLocal,
		Location: "batch.json",
		Source:   sourceOf(&sliceIterator{}),
		DryRun:   true,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"run_id":"`+state.RunID+`"`)
	assert.Contains(t, out, `"source":"local"`)
	assert.Contains(t, out, `"location":"batch.json"`)
}
