// Package app wires configuration, the record loader, the pipeline and the
// configured sink into the operations the commands expose.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/txloader/internal/config"
	"github.com/dvloznov/txloader/internal/loader"
	"github.com/dvloznov/txloader/internal/logger"
	"github.com/dvloznov/txloader/internal/objectstore"
	"github.com/dvloznov/txloader/internal/pipeline"
	"github.com/dvloznov/txloader/internal/store"
	"github.com/dvloznov/txloader/internal/store/bigquery"
	"github.com/dvloznov/txloader/internal/store/postgres"
	"github.com/dvloznov/txloader/internal/store/sqlite"
	"github.com/rs/zerolog"
)

// SinkOpener opens the persistence sink for a configuration.
type SinkOpener func(ctx context.Context, cfg *config.Config) (store.Sink, error)

type App struct {
	Config *config.Config
	Logger zerolog.Logger

	loader    *loader.Loader
	newClient loader.ClientFactory
	openSink  SinkOpener
}

// Option configures an App.
type Option func(*App)

// WithClientFactory replaces the object storage client construction used
// for remote batches and uploads.
func WithClientFactory(f loader.ClientFactory) Option {
	return func(a *App) { a.newClient = f }
}

// WithSinkOpener replaces OpenSink.
func WithSinkOpener(f SinkOpener) Option {
	return func(a *App) { a.openSink = f }
}

// New creates an App from a loaded configuration.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) *App {
	a := &App{
		Config:    cfg,
		Logger:    log,
		newClient: loader.DefaultClientFactory(cfg.AWS.Region),
		openSink:  OpenSink,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.loader = loader.New(loader.WithClientFactory(a.newClient))
	return a
}

// Setup loads the configuration file and builds the logger from it.
func Setup(configFile string, opts ...Option) (*App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	redacted := cfg.Redacted()
	log.Debug().
		Str("env", redacted.Env).
		Str("store_driver", redacted.Store.Driver).
		Str("postgres_host", redacted.Postgres.Host).
		Str("postgres_password", redacted.Postgres.Password).
		Int("workers", redacted.Pipeline.Workers).
		Strs("allowed_currencies", redacted.Pipeline.AllowedCurrencies).
		Dur("timeout", redacted.Pipeline.Timeout).
		Msg("App config loaded")

	return New(cfg, log, opts...), nil
}

// OpenSink opens the sink selected by cfg.Store.Driver.
func OpenSink(ctx context.Context, cfg *config.Config) (store.Sink, error) {
	opts := store.Options{MaskCustomerName: cfg.Pipeline.MaskCustomerName}

	var (
		sink store.Sink
		err  error
	)
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		sink, err = postgres.Open(cfg.Postgres.DSN(), cfg.Env, opts)
	case config.DriverSQLite:
		sink, err = sqlite.Open(cfg.SQLite.Path, opts)
	case config.DriverBigQuery:
		sink, err = bigquery.NewSink(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset, opts)
	default:
		return nil, fmt.Errorf("OpenSink: unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Validator builds the record validator from configuration.
func (a *App) Validator() *pipeline.Validator {
	return pipeline.NewValidator(pipeline.WithAllowedCurrencies(a.Config.Pipeline.AllowedCurrencies...))
}

// runContext attaches the logger and the run timeout.
func (a *App) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, a.Config.Pipeline.Timeout)
	return logger.WithContext(ctx, a.Logger), cancel
}

// RunBatch loads, validates, routes and (unless dryRun) persists one batch.
func (a *App) RunBatch(ctx context.Context, kind, location string, dryRun bool) (*pipeline.BatchState, error) {
	ctx, cancel := a.runContext(ctx)
	defer cancel()

	// The sink is opened by the persist step, after the batch has loaded.
	var sink store.Sink
	if !dryRun {
		lazy := newLazySink(a.openSink, a.Config)
		defer func() {
			if err := lazy.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("Closing sink failed")
			}
		}()
		sink = lazy
	}

	return pipeline.Run(ctx, pipeline.Options{
		Kind:          kind,
		Location:      location,
		Source:        pipeline.LoaderSource(a.loader),
		Sink:          sink,
		Validator:     a.Validator(),
		Workers:       a.Config.Pipeline.Workers,
		DryRun:        dryRun,
		FailOnRejects: a.Config.Pipeline.FailOnRejects,
	})
}

// InitDB creates the tables of the configured sink.
func (a *App) InitDB(ctx context.Context) error {
	ctx, cancel := a.runContext(ctx)
	defer cancel()

	sink, err := a.openSink(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("InitDB: opening sink: %w", err)
	}
	defer sink.Close()

	if err := sink.EnsureTables(ctx); err != nil {
		return fmt.Errorf("InitDB: %w", err)
	}
	a.Logger.Info().Str("store_driver", a.Config.Store.Driver).Msg("Tables ready")
	return nil
}

// Upload copies a local file to an object URI (gs:// or s3://). A URI that
// ends in "/" is treated as a prefix and the file name is appended.
func (a *App) Upload(ctx context.Context, filePath, uri string) (objectstore.Location, error) {
	ctx, cancel := a.runContext(ctx)
	defer cancel()

	if len(uri) > 0 && uri[len(uri)-1] == '/' {
		uri += filepath.Base(filePath)
	}
	loc, err := objectstore.ParseURI(uri)
	if err != nil {
		return objectstore.Location{}, fmt.Errorf("Upload: %w", err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return objectstore.Location{}, fmt.Errorf("Upload: open file: %w", err)
	}
	defer f.Close()

	client, err := a.newClient(ctx, loc.Scheme)
	if err != nil {
		return objectstore.Location{}, fmt.Errorf("Upload: %w", err)
	}
	defer client.Close()

	a.Logger.Info().
		Str("bucket", loc.Bucket).
		Str("object", loc.Key).
		Str("file", filePath).
		Msg("Uploading file")

	if err := client.Upload(ctx, loc.Bucket, loc.Key, f); err != nil {
		return objectstore.Location{}, fmt.Errorf("Upload: %w", err)
	}
	return loc, nil
}

// Close releases the loader's remote clients.
func (a *App) Close() error {
	return a.loader.Close()
}
