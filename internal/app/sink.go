package app

import (
	"context"
	"sync"

	"github.com/dvloznov/txloader/internal/config"
	"github.com/dvloznov/txloader/internal/domain"
	"github.com/dvloznov/txloader/internal/store"
)

// lazySink opens the configured sink on first use, so a batch that fails to
// load never touches the store.
type lazySink struct {
	open SinkOpener
	cfg  *config.Config

	mu   sync.Mutex
	sink store.Sink
}

func newLazySink(open SinkOpener, cfg *config.Config) *lazySink {
	return &lazySink{open: open, cfg: cfg}
}

func (l *lazySink) get(ctx context.Context) (store.Sink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink != nil {
		return l.sink, nil
	}
	s, err := l.open(ctx, l.cfg)
	if err != nil {
		return nil, &store.Error{Op: "open", Err: err}
	}
	l.sink = s
	return s, nil
}

func (l *lazySink) EnsureTables(ctx context.Context) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.EnsureTables(ctx)
}

func (l *lazySink) Persist(ctx context.Context, p domain.Partition) error {
	s, err := l.get(ctx)
	if err != nil {
		return err
	}
	return s.Persist(ctx, p)
}

// Close closes the sink if it was ever opened.
func (l *lazySink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	l.sink = nil
	return err
}
