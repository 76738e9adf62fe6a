package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown record store backend")

// ErrMalformedRecord marks persisted data that cannot be turned into a record
var ErrMalformedRecord = errors.New("malformed record")

// RecordStore persists crawl records keyed by canonical node identifier.
// Get returns nil, nil when the identifier has no (usable) record.
type RecordStore interface {
	Get(ctx context.Context, id string) (*SubredditRecord, error)
	Put(ctx context.Context, id string, record *SubredditRecord) error
	Close() error
}

// Options selects and configures a RecordStore backend
type Options struct {
	Backend     string
	DBPath      string
	RecordsDir  string
	RedisAddr   string
	PostgresURL string
	Logger      *logrus.Entry
}

// Open returns the record store selected by opts.Backend. The "memory"
// backend lives in the memory package and is not handled here.
func Open(ctx context.Context, opts Options) (RecordStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}

	switch opts.Backend {
	case "", "sqlite":
		return NewStorage(opts.DBPath, logger)
	case "file":
		return NewFileStore(opts.RecordsDir, logger)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, logger)
	case "postgres":
		return NewPostgresStore(ctx, opts.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func discardLogger() *logrus.Entry {
	return logrus.NewEntry(&logrus.Logger{Out: io.Discard})
}

// EncodeRecord serializes a record for persistence
func EncodeRecord(record *SubredditRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrMalformedRecord)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", record.URL, err)
	}
	return data, nil
}

// DecodeRecord parses and validates persisted record data
func DecodeRecord(data []byte) (*SubredditRecord, error) {
	var record SubredditRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := normalize(&record); err != nil {
		return nil, err
	}
	return &record, nil
}

// normalize fills nil collections and rejects records that break invariants
func normalize(record *SubredditRecord) error {
	if record.URL == "" {
		return fmt.Errorf("%w: empty url", ErrMalformedRecord)
	}
	if record.Tags == nil {
		record.Tags = make(Tags)
	}
	if record.RelatedSubreddits == nil {
		record.RelatedSubreddits = []string{}
	}
	for name, distance := range record.Tags {
		if distance < 0 {
			return fmt.Errorf("%w: tag %q has negative distance %d", ErrMalformedRecord, name, distance)
		}
	}
	return nil
}

