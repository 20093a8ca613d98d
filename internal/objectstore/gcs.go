package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// uploadTimeout bounds a single upload.
const uploadTimeout = 2 * time.Minute

// GCSClient is the Client implementation backed by Google Cloud Storage.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
type GCSClient struct {
	client *storage.Client
}

// NewGCSClient creates a GCS client with a shared connection.
func NewGCSClient(ctx context.Context) (*GCSClient, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSClient: creating storage client: %w", err)
	}
	return &GCSClient{client: client}, nil
}

// Open implements Client.
func (c *GCSClient) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSClient.Open: reading object %s/%s: %w", bucket, key, err)
	}
	return rc, nil
}

// Upload implements Client.
func (c *GCSClient) Upload(ctx context.Context, bucket, key string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCSClient.Upload: copy to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSClient.Upload: finalize upload: %w", err)
	}
	return nil
}

// Close implements Client.
func (c *GCSClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

var _ Client = (*GCSClient)(nil)
