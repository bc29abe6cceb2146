// Package logstore persists one record per user interaction to an
// S3-compatible object store. The log is a single flat CSV table maintained
// by read-modify-write: fetch the table, append one row, write it back.
// Concurrent sessions can race and lose updates; that is an accepted
// limitation of the current design.
package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jszwec/csvutil"
)

// RedactionSentinel replaces user content when logging consent is withheld.
// The timestamp is still recorded, so the presence of an interaction is
// logged even when its content is not.
const RedactionSentinel = "USER OPTED OUT"

// Record is one appended log row.
type Record struct {
	Timestamp   time.Time `csv:"timestamp"`
	Question    string    `csv:"question"`
	SQL         string    `csv:"sql_query"`
	Explanation string    `csv:"explanation"`
	Model       string    `csv:"model_choice"`
}

// ObjectStore is the narrow get/put contract against the remote store. No
// partial-write or transactional semantics are assumed.
type ObjectStore interface {
	// Get returns the object contents, or ErrNotFound when the key does
	// not exist yet.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the object contents in full.
	Put(ctx context.Context, key string, body []byte) error
}

// ErrNotFound is returned by ObjectStore.Get for a missing key. A missing
// log table is treated as an empty one.
var ErrNotFound = fmt.Errorf("object not found")

// Config holds configuration for a Store.
type Config struct {
	Logger *slog.Logger
	Store  ObjectStore
	Key    string // object key of the CSV log table
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Store == nil {
		return fmt.Errorf("object store is required")
	}
	if c.Key == "" {
		return fmt.Errorf("object key is required")
	}
	return nil
}

// Store appends interaction records to the remote log table.
type Store struct {
	log   *slog.Logger
	store ObjectStore
	key   string
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Store{log: cfg.Logger, store: cfg.Store, key: cfg.Key}, nil
}

// Append adds exactly one record to the log table. When consent is false the
// question, SQL, explanation and model fields are replaced with the
// redaction sentinel before anything leaves the process.
func (s *Store) Append(ctx context.Context, consent bool, rec Record) error {
	if !consent {
		rec.Question = RedactionSentinel
		rec.SQL = RedactionSentinel
		rec.Explanation = RedactionSentinel
		rec.Model = RedactionSentinel
	}

	operation := func() error {
		records, err := s.fetch(ctx)
		if err != nil {
			return err
		}
		records = append(records, rec)

		body, err := csvutil.Marshal(records)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to encode log table: %w", err))
		}
		return s.store.Put(ctx, s.key, body)
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)); err != nil {
		return fmt.Errorf("failed to append log record: %w", err)
	}
	s.log.Debug("logstore: record appended", "key", s.key, "consent", consent)
	return nil
}

func (s *Store) fetch(ctx context.Context) ([]Record, error) {
	body, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch log table: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var records []Record
	if err := csvutil.Unmarshal(body, &records); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode log table: %w", err))
	}
	return records, nil
}

// discard makes io.ReadCloser bodies safe to drain in implementations.
func discard(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	rc.Close()
}
