package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/txloader/internal/config"
	"github.com/dvloznov/txloader/internal/loader"
	"github.com/dvloznov/txloader/internal/logger"
	"github.com/dvloznov/txloader/internal/objectstore"
	"github.com/dvloznov/txloader/internal/pipeline"
	"github.com/dvloznov/txloader/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const batchJSON = `{"transactions": [
  {"customerId": "C1", "customerName": "Jane", "transactionId": "T1",
   "transactionDate": "2021-01-05", "sourceDate": "2021-01-05T10:00:00Z",
   "merchantId": 42, "categoryId": "3", "currency": "usd", "amount": "19.99"},
  {"customerId": "C2", "transactionId": "T2",
   "transactionDate": "2021-02-30", "sourceDate": "2021-02-01T10:00:00Z",
   "merchantId": 1, "categoryId": 1, "currency": "EUR", "amount": 5},
  {"transactionId": "T3"}
]}`

type fakeClient struct {
	uploads map[string][]byte
	objects map[string]string
}

func (f *fakeClient) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewBufferString(body)), nil
}

func (f *fakeClient) Upload(_ context.Context, bucket, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[bucket+"/"+key] = b
	return nil
}

func (f *fakeClient) Close() error { return nil }

func factory(c objectstore.Client) loader.ClientFactory {
	return func(context.Context, string) (objectstore.Client, error) { return c, nil }
}

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = config.DriverSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "txloader.db")
	cfg.Pipeline.Timeout = time.Minute
	return cfg
}

func writeBatch(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(batchJSON), 0o600))
	return path
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRunBatch_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	a := New(cfg, logger.NewWithWriter(io.Discard))
	defer a.Close()

	state, err := a.RunBatch(context.Background(), loader.KindLocal, writeBatch(t), false)
	require.NoError(t, err)

	assert.Equal(t, 3, state.Summary.Total)
	assert.Equal(t, 1, state.Summary.Accepted)
	assert.Equal(t, 2, state.Summary.Rejected)
	assert.Equal(t, 1, state.Summary.Reasons[pipeline.ReasonInvalidTransactionDate])
	assert.Equal(t, 1, state.Summary.Reasons[pipeline.ReasonMissingCustomerID])

	assert.Equal(t, 1, countRows(t, cfg.SQLite.Path, store.TransactionsTable))
	assert.Equal(t, 2, countRows(t, cfg.SQLite.Path, store.ErrorLogsTable))

	// Same batch again hits the primary key.
	_, err = a.RunBatch(context.Background(), loader.KindLocal, writeBatch(t), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestRunBatch_DryRunDoesNotOpenSink(t *testing.T) {
	cfg := sqliteConfig(t)
	a := New(cfg, logger.NewWithWriter(io.Discard), WithSinkOpener(func(context.Context, *config.Config) (store.Sink, error) {
		t.Fatal("sink opened on dry run")
		return nil, nil
	}))
	defer a.Close()

	state, err := a.RunBatch(context.Background(), loader.KindLocal, writeBatch(t), true)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Summary.Total)
}

func TestRunBatch_AllowedCurrencies(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Pipeline.AllowedCurrencies = []string{"EUR"}
	a := New(cfg, logger.NewWithWriter(io.Discard))
	defer a.Close()

	state, err := a.RunBatch(context.Background(), loader.KindLocal, writeBatch(t), true)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Summary.Accepted)
	assert.Equal(t, 1, state.Summary.Reasons[pipeline.ReasonInvalidCurrency])
}

func TestRunBatch_FailOnRejects(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Pipeline.FailOnRejects = true
	a := New(cfg, logger.NewWithWriter(io.Discard))
	defer a.Close()

	_, err := a.RunBatch(context.Background(), loader.KindLocal, writeBatch(t), false)
	assert.ErrorIs(t, err, pipeline.ErrRejectedRecords)
	// Both partitions are persisted before the verdict.
	assert.Equal(t, 2, countRows(t, cfg.SQLite.Path, store.ErrorLogsTable))
}

func TestRunBatch_Remote(t *testing.T) {
	client := &fakeClient{objects: map[string]string{"bucket/in/batch.json": batchJSON}}
	a := New(sqliteConfig(t), logger.NewWithWriter(io.Discard), WithClientFactory(factory(client)))
	defer a.Close()

	state, err := a.RunBatch(context.Background(), loader.KindRemote, "gs://bucket/in/batch.json", true)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Summary.Total)
}

func TestRunBatch_SinkOpenFailure(t *testing.T) {
	a := New(sqliteConfig(t), logger.NewWithWriter(io.Discard), WithSinkOpener(func(context.Context, *config.Config) (store.Sink, error) {
		return nil, errors.New("connection refused")
	}))
	defer a.Close()

	state, err := a.RunBatch(context.Background(), loader.KindLocal, writeBatch(t), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	var serr *store.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "open", serr.Op)
	// Loading and routing happened before the store was needed.
	assert.Equal(t, 3, state.Summary.Total)
}

func TestRunBatch_LoadFailureBeforeSinkOpen(t *testing.T) {
	opened := false
	a := New(sqliteConfig(t), logger.NewWithWriter(io.Discard), WithSinkOpener(func(context.Context, *config.Config) (store.Sink, error) {
		opened = true
		return nil, errors.New("connection refused")
	}))
	defer a.Close()

	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err := a.RunBatch(context.Background(), loader.KindLocal, missing, false)
	require.Error(t, err)

	var lerr *loader.Error
	require.ErrorAs(t, err, &lerr)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, opened, "sink opened for a batch that never loaded")
}

func TestInitDB(t *testing.T) {
	cfg := sqliteConfig(t)
	a := New(cfg, logger.NewWithWriter(io.Discard))
	defer a.Close()

	require.NoError(t, a.InitDB(context.Background()))
	require.NoError(t, a.InitDB(context.Background()))
	assert.Equal(t, 0, countRows(t, cfg.SQLite.Path, store.CustomersTable))
}

func TestOpenSink_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "mysql"
	_, err := OpenSink(context.Background(), cfg)
	assert.Error(t, err)
}

func TestUpload(t *testing.T) {
	file := writeBatch(t)

	tests := []struct {
		name    string
		uri     string
		wantKey string
		wantErr bool
	}{
		{name: "full key", uri: "gs://bucket/in/today.json", wantKey: "bucket/in/today.json"},
		{name: "prefix", uri: "s3://bucket/in/", wantKey: "bucket/in/batch.json"},
		{name: "no key", uri: "gs://bucket", wantErr: true},
		{name: "bad scheme", uri: "ftp://bucket/a.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{}
			a := New(sqliteConfig(t), logger.NewWithWriter(io.Discard), WithClientFactory(factory(client)))
			defer a.Close()

			_, err := a.Upload(context.Background(), file, tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, batchJSON, string(client.uploads[tt.wantKey]))
		})
	}
}
