package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dvloznov/txloader/internal/domain"
	"google.golang.org/api/iterator"
)

// containerKey is the object key holding the record array when the batch is
// wrapped in an object.
const containerKey = "transactions"

// Batch is a lazy, single-pass sequence of raw records decoded from a JSON
// stream. It is not safe for concurrent use.
type Batch struct {
	location string
	rc       io.ReadCloser
	dec      *json.Decoder
	index    int
	done     bool
	err      error
}

// NewBatch positions a decoder at the start of the record array and returns
// the batch. The container is either a top-level array of objects or an
// object whose "transactions" key holds that array. rc is closed on error.
func NewBatch(location string, rc io.ReadCloser) (*Batch, error) {
	b := &Batch{
		location: location,
		rc:       rc,
		dec:      json.NewDecoder(rc),
	}
	if err := b.openArray(); err != nil {
		_ = rc.Close()
		return nil, &Error{Op: "parse", Location: location, Err: err}
	}
	return b, nil
}

func (b *Batch) openArray() error {
	tok, err := b.dec.Token()
	if err != nil {
		return fmt.Errorf("reading container: %w", err)
	}

	switch tok {
	case json.Delim('['):
		return nil
	case json.Delim('{'):
	default:
		return fmt.Errorf("expected a JSON array or object, got %v", tok)
	}

	for b.dec.More() {
		keyTok, err := b.dec.Token()
		if err != nil {
			return fmt.Errorf("reading container key: %w", err)
		}
		key, _ := keyTok.(string)
		if key != containerKey {
			var skip json.RawMessage
			if err := b.dec.Decode(&skip); err != nil {
				return fmt.Errorf("skipping %q: %w", key, err)
			}
			continue
		}

		tok, err := b.dec.Token()
		if err != nil {
			return fmt.Errorf("reading %q: %w", containerKey, err)
		}
		if tok != json.Delim('[') {
			return fmt.Errorf("%q must be an array, got %v", containerKey, tok)
		}
		return nil
	}
	return fmt.Errorf("object has no %q array", containerKey)
}

// Next returns the next record, or iterator.Done when the batch is exhausted.
// A malformed element ends the batch with an *Error.
func (b *Batch) Next() (domain.RawRecord, error) {
	if b.err != nil {
		return domain.RawRecord{}, b.err
	}
	if b.done {
		return domain.RawRecord{}, iterator.Done
	}

	if !b.dec.More() {
		if _, err := b.dec.Token(); err != nil {
			return domain.RawRecord{}, b.fail(fmt.Errorf("closing record array: %w", err))
		}
		b.done = true
		return domain.RawRecord{}, iterator.Done
	}

	var elem json.RawMessage
	if err := b.dec.Decode(&elem); err != nil {
		return domain.RawRecord{}, b.fail(fmt.Errorf("record %d: %w", b.index, err))
	}
	if t := bytes.TrimSpace(elem); len(t) == 0 || t[0] != '{' {
		return domain.RawRecord{}, b.fail(fmt.Errorf("record %d is not an object", b.index))
	}

	var rec domain.RawRecord
	if err := json.Unmarshal(elem, &rec); err != nil {
		return domain.RawRecord{}, b.fail(fmt.Errorf("record %d: %w", b.index, err))
	}
	b.index++
	return rec, nil
}

// All drains the batch.
func (b *Batch) All() ([]domain.RawRecord, error) {
	records := make([]domain.RawRecord, 0)
	for {
		rec, err := b.Next()
		if errors.Is(err, iterator.Done) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// Location returns where the batch was read from.
func (b *Batch) Location() string { return b.location }

// Close releases the underlying reader.
func (b *Batch) Close() error {
	return b.rc.Close()
}

func (b *Batch) fail(err error) error {
	b.err = &Error{Op: "parse", Location: b.location, Err: err}
	return b.err
}
