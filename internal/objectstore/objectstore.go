package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// URI schemes understood by ParseURI.
const (
	SchemeGCS = "gs"
	SchemeS3  = "s3"
)

// Client provides an interface for cloud object storage operations.
// This interface enables mocking and testing of storage functionality.
type Client interface {
	// Open returns a reader over the object's bytes. The caller closes it.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Upload writes r to the object, replacing any previous content.
	Upload(ctx context.Context, bucket, key string, r io.Reader) error

	// Close releases the underlying client.
	Close() error
}

// Location is a parsed object URI such as gs://bucket/path/file.json.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseURI splits a gs:// or s3:// URI into its parts.
func ParseURI(uri string) (Location, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return Location{}, fmt.Errorf("invalid object URI %q: missing scheme", uri)
	}
	scheme = strings.ToLower(scheme)
	if scheme != SchemeGCS && scheme != SchemeS3 {
		return Location{}, fmt.Errorf("invalid object URI %q: unsupported scheme %q", uri, scheme)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid object URI %q: no object path", uri)
	}

	return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// String renders the location back as a URI.
func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Filename returns the last path element of the key.
// e.g., "gs://bucket/folder/file.json" → "file.json"
func (l Location) Filename() string {
	return path.Base(l.Key)
}
