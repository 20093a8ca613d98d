package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dvloznov/txloader/internal/objectstore"
)

// Source kinds accepted by Open.
const (
	KindLocal  = "local"
	KindRemote = "remote"
	KindGCS    = "gcs"
	KindS3     = "s3"
)

// ErrUnknownSource is wrapped by an *Error when the source kind is not one of
// the supported kinds.
var ErrUnknownSource = errors.New("incorrect source, it must be one of local, remote, gcs or s3")

// Error is a batch-level failure to open or parse a source.
type Error struct {
	Op       string
	Location string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("loader: %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClientFactory creates an object storage client for a URI scheme.
type ClientFactory func(ctx context.Context, scheme string) (objectstore.Client, error)

// Loader opens batches from local files or object storage. Remote clients are
// created on first use and reused until Close.
type Loader struct {
	newClient ClientFactory

	mu      sync.Mutex
	clients map[string]objectstore.Client
}

// Option configures a Loader.
type Option func(*Loader)

// WithClientFactory replaces the default GCS/S3 client construction.
func WithClientFactory(f ClientFactory) Option {
	return func(l *Loader) { l.newClient = f }
}

// WithClient registers a ready client for a scheme.
func WithClient(scheme string, c objectstore.Client) Option {
	return func(l *Loader) { l.clients[scheme] = c }
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		newClient: DefaultClientFactory(""),
		clients:   make(map[string]objectstore.Client),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// DefaultClientFactory builds real GCS and S3 clients. awsRegion may be empty.
func DefaultClientFactory(awsRegion string) ClientFactory {
	return func(ctx context.Context, scheme string) (objectstore.Client, error) {
		switch scheme {
		case objectstore.SchemeGCS:
			return objectstore.NewGCSClient(ctx)
		case objectstore.SchemeS3:
			return objectstore.NewS3Client(ctx, awsRegion)
		default:
			return nil, fmt.Errorf("no object storage client for scheme %q", scheme)
		}
	}
}

// Open returns a lazy iterator over the records at location.
//
// kind selects the source: local reads a file path, remote dispatches on the
// URI scheme (gs:// or s3://), and gcs / s3 require that scheme.
func (l *Loader) Open(ctx context.Context, kind, location string) (*Batch, error) {
	switch kind {
	case KindLocal:
		f, err := os.Open(location)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("could not find local file: %w", err)
			}
			return nil, &Error{Op: "open", Location: location, Err: err}
		}
		return NewBatch(location, f)

	case KindRemote, KindGCS, KindS3:
		loc, err := objectstore.ParseURI(location)
		if err != nil {
			return nil, &Error{Op: "open", Location: location, Err: err}
		}
		if want := schemeFor(kind); want != "" && loc.Scheme != want {
			return nil, &Error{
				Op:       "open",
				Location: location,
				Err:      fmt.Errorf("source %s expects a %s:// URI", kind, want),
			}
		}

		client, err := l.client(ctx, loc.Scheme)
		if err != nil {
			return nil, &Error{Op: "open", Location: location, Err: err}
		}
		rc, err := client.Open(ctx, loc.Bucket, loc.Key)
		if err != nil {
			return nil, &Error{Op: "open", Location: location, Err: err}
		}
		return NewBatch(location, rc)

	default:
		return nil, &Error{
			Op:       "open",
			Location: location,
			Err:      fmt.Errorf("%w: got %q", ErrUnknownSource, kind),
		}
	}
}

// Close releases every remote client the loader created or was given.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for scheme, c := range l.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s client: %w", scheme, err))
		}
		delete(l.clients, scheme)
	}
	return errors.Join(errs...)
}

func (l *Loader) client(ctx context.Context, scheme string) (objectstore.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.clients[scheme]; ok {
		return c, nil
	}
	c, err := l.newClient(ctx, scheme)
	if err != nil {
		return nil, err
	}
	l.clients[scheme] = c
	return c, nil
}

func schemeFor(kind string) string {
	switch kind {
	case KindGCS:
		return objectstore.SchemeGCS
	case KindS3:
		return objectstore.SchemeS3
	default:
		return ""
	}
}
