package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

// mockClient is a mock implementation of objectstore.Client for testing.
type mockClient struct {
	OpenFunc   func(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	UploadFunc func(ctx context.Context, bucket, key string, r io.Reader) error
	closed     bool
}

func (m *mockClient) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, bucket, key)
	}
	return io.NopCloser(bytes.NewReader([]byte("[]"))), nil
}

func (m *mockClient) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, bucket, key, r)
	}
	return nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func drain(t *testing.T, b *Batch) []domain.RawRecord {
	t.Helper()
	defer b.Close()
	records, err := b.All()
	require.NoError(t, err)
	return records
}

func TestOpen_LocalContainers(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"top-level array", `[{"customerId":"C1"},{"customerId":"C2"}]`, 2},
		{"wrapped object", `{"transactions":[{"customerId":"C1"}]}`, 1},
		{"wrapped with other keys", `{"meta":{"v":1},"transactions":[{"customerId":"C1"}],"tail":true}`, 1},
		{"empty array", `[]`, 0},
		{"empty wrapped array", `{"transactions": []}`, 0},
	}

	l := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := l.Open(context.Background(), KindLocal, writeFile(t, tt.content))
			require.NoError(t, err)
			assert.Len(t, drain(t, b), tt.want)
		})
	}
}

func TestOpen_DecodesRawValues(t *testing.T) {
	path := writeFile(t, `{"transactions":[{
		"customerId": "C1",
		"transactionId": null,
		"merchantId": 42,
		"amount": 19.990,
		"description": true,
		"unknownField": "ignored"
	}]}`)

	b, err := New().Open(context.Background(), KindLocal, path)
	require.NoError(t, err)
	records := drain(t, b)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, domain.String("C1"), r.CustomerID)
	assert.Equal(t, domain.Null(), r.TransactionID)
	assert.Equal(t, domain.Number("42"), r.MerchantID)
	assert.Equal(t, domain.Number("19.990"), r.Amount)
	assert.Equal(t, domain.KindOther, r.Description.Kind)
	assert.Equal(t, domain.KindAbsent, r.Currency.Kind)
}

func TestOpen_LocalErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `transactions`},
		{"scalar container", `42`},
		{"object without transactions", `{"records":[]}`},
		{"transactions not an array", `{"transactions":{"customerId":"C1"}}`},
		{"empty file", ``},
	}

	l := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Open(context.Background(), KindLocal, writeFile(t, tt.content))
			var lerr *Error
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, "parse", lerr.Op)
		})
	}
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := New().Open(context.Background(), KindLocal, filepath.Join(t.TempDir(), "incorrect_file.json"))

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "open", lerr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "could not find local file")
}

func TestOpen_UnknownSource(t *testing.T) {
	_, err := New().Open(context.Background(), "ftp", "whatever")

	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestBatch_MalformedElement(t *testing.T) {
	tests := []struct {
		name    string
		content string
		good    int
	}{
		{"string element", `[{"customerId":"C1"},"oops"]`, 1},
		{"truncated", `[{"customerId":"C1"},{"customerId":`, 1},
		{"nested array element", `[[1,2]]`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New().Open(context.Background(), KindLocal, writeFile(t, tt.content))
			require.NoError(t, err)
			defer b.Close()

			for i := 0; i < tt.good; i++ {
				_, err := b.Next()
				require.NoError(t, err)
			}
			_, err = b.Next()
			var lerr *Error
			require.ErrorAs(t, err, &lerr)

			// The failure is sticky.
			_, again := b.Next()
			assert.Equal(t, err, again)

			_, err = b.All()
			assert.Error(t, err)
		})
	}
}

func TestBatch_NotRestartable(t *testing.T) {
	b, err := New().Open(context.Background(), KindLocal, writeFile(t, `[{"customerId":"C1"}]`))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Next()
	require.NoError(t, err)
	_, err = b.Next()
	require.ErrorIs(t, err, iterator.Done)
	_, err = b.Next()
	require.ErrorIs(t, err, iterator.Done)
}

func TestOpen_Remote(t *testing.T) {
	var gotBucket, gotKey string
	gcs := &mockClient{
		OpenFunc: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			gotBucket, gotKey = bucket, key
			return io.NopCloser(bytes.NewReader([]byte(`{"transactions":[{"customerId":"C1"}]}`))), nil
		},
	}
	s3 := &mockClient{}

	l := New(WithClient(objectstore.SchemeGCS, gcs), WithClient(objectstore.SchemeS3, s3))

	b, err := l.Open(context.Background(), KindRemote, "gs://input/2021/batch.json")
	require.NoError(t, err)
	assert.Len(t, drain(t, b), 1)
	assert.Equal(t, "input", gotBucket)
	assert.Equal(t, "2021/batch.json", gotKey)

	b, err = l.Open(context.Background(), KindS3, "s3://input/batch.json")
	require.NoError(t, err)
	assert.Empty(t, drain(t, b))

	require.NoError(t, l.Close())
	assert.True(t, gcs.closed)
	assert.True(t, s3.closed)
}

func TestOpen_RemoteErrors(t *testing.T) {
	fetchErr := errors.New("object not found")
	failing := &mockClient{
		OpenFunc: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			return nil, fetchErr
		},
	}

	tests := []struct {
		name     string
		kind     string
		location string
		opts     []Option
		wantErr  error
	}{
		{
			name:     "not a uri",
			kind:     KindRemote,
			location: "/tmp/batch.json",
		},
		{
			name:     "scheme does not match kind",
			kind:     KindGCS,
			location: "s3://bucket/batch.json",
			opts:     []Option{WithClient(objectstore.SchemeS3, &mockClient{})},
		},
		{
			name:     "fetch fails",
			kind:     KindRemote,
			location: "gs://bucket/batch.json",
			opts:     []Option{WithClient(objectstore.SchemeGCS, failing)},
			wantErr:  fetchErr,
		},
		{
			name:     "client cannot be created",
			kind:     KindS3,
			location: "s3://bucket/batch.json",
			opts: []Option{WithClientFactory(func(ctx context.Context, scheme string) (objectstore.Client, error) {
				return nil, fetchErr
			})},
			wantErr: fetchErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...).Open(context.Background(), tt.kind, tt.location)
			var lerr *Error
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, "open", lerr.Op)
			assert.Equal(t, tt.location, lerr.Location)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ClientCreatedOnce(t *testing.T) {
	calls := 0
	l := New(WithClientFactory(func(ctx context.Context, scheme string) (objectstore.Client, error) {
		calls++
		return &mockClient{}, nil
	}))

	for i := 0; i < 3; i++ {
		b, err := l.Open(context.Background(), KindRemote, "gs://bucket/batch.json")
		require.NoError(t, err)
		drain(t, b)
	}
	assert.Equal(t, 1, calls)
}
