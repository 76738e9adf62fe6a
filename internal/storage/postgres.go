package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// PostgresStore keeps records as jsonb rows in PostgreSQL
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *logrus.Entry
}

// NewPostgresStore opens a connection pool and creates the schema
func NewPostgresStore(ctx context.Context, connStr string, logger *logrus.Entry) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres url is required")
	}
	if logger == nil {
		logger = discardLogger()
	}

	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	_, err = db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS subreddits (
			node_id TEXT PRIMARY KEY,
			record JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Get loads the record row for id
func (s *PostgresStore) Get(ctx context.Context, id string) (*SubredditRecord, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT record FROM subreddits WHERE node_id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subreddit %s: %w", id, err)
	}

	record, err := DecodeRecord(data)
	if err != nil {
		s.logger.Warnf("Discarding record %s: %v", id, err)
		return nil, nil
	}
	return record, nil
}

// Put upserts the record row for id
func (s *PostgresStore) Put(ctx context.Context, id string, record *SubredditRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO subreddits (node_id, record) VALUES ($1, $2)
		 ON CONFLICT (node_id) DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()`,
		id, data)
	if err != nil {
		return fmt.Errorf("failed to put subreddit %s: %w", id, err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
