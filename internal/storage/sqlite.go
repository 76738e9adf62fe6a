package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Storage is the SQLite record store
type Storage struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string, logger *logrus.Entry) (*Storage, error) {
	if logger == nil {
		logger = discardLogger()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	storage := &Storage{db: db, logger: logger}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	count, err := storage.Count(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Infof("SQLite store opened at %s with %d records", dbPath, count)

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subreddits (
		node_id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		name TEXT,
		total_subscribers INTEGER DEFAULT 0,
		fetched INTEGER DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '{}',
		related TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_subreddits_fetched ON subreddits(fetched);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Put replaces the stored record for id
func (s *Storage) Put(ctx context.Context, id string, record *SubredditRecord) error {
	tags, err := json.Marshal(record.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags for %s: %w", id, err)
	}
	related, err := json.Marshal(record.RelatedSubreddits)
	if err != nil {
		return fmt.Errorf("failed to encode related subreddits for %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subreddits (node_id, url, name, total_subscribers, fetched, tags, related, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(node_id) DO UPDATE SET
			url = EXCLUDED.url,
			name = EXCLUDED.name,
			total_subscribers = EXCLUDED.total_subscribers,
			fetched = EXCLUDED.fetched,
			tags = EXCLUDED.tags,
			related = EXCLUDED.related,
			updated_at = CURRENT_TIMESTAMP
	`, id, record.URL, record.Name, record.TotalSubscribers, record.Fetched, string(tags), string(related))
	if err != nil {
		return fmt.Errorf("failed to upsert subreddit %s: %w", id, err)
	}

	return nil
}

// Get retrieves a record by node id, returns nil if not found or unreadable
func (s *Storage) Get(ctx context.Context, id string) (*SubredditRecord, error) {
	var (
		record  SubredditRecord
		name    sql.NullString
		tags    string
		related string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT url, name, total_subscribers, fetched, tags, related
		FROM subreddits
		WHERE node_id = ?
	`, id).Scan(&record.URL, &name, &record.TotalSubscribers, &record.Fetched, &tags, &related)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subreddit %s: %w", id, err)
	}
	record.Name = name.String

	if err := json.Unmarshal([]byte(tags), &record.Tags); err != nil {
		s.logger.Warnf("Discarding malformed tags for %s: %v", id, err)
		return nil, nil
	}
	if err := json.Unmarshal([]byte(related), &record.RelatedSubreddits); err != nil {
		s.logger.Warnf("Discarding malformed related subreddits for %s: %v", id, err)
		return nil, nil
	}
	if err := normalize(&record); err != nil {
		s.logger.Warnf("Discarding record %s: %v", id, err)
		return nil, nil
	}

	return &record, nil
}

// Count returns the number of stored records
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM subreddits").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subreddits: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}
