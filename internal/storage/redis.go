package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const recordKeyPrefix = "subreddit:"

// RedisStore keeps records as JSON values in Redis
type RedisStore struct {
	client *redis.Client
	logger *logrus.Entry
}

// NewRedisStore connects to addr and verifies the connection
func NewRedisStore(ctx context.Context, addr string, logger *logrus.Entry) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if logger == nil {
		logger = discardLogger()
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}

// Get loads the record stored under id
func (s *RedisStore) Get(ctx context.Context, id string) (*SubredditRecord, error) {
	data, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
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

// Put replaces the value stored under id. Records never expire.
func (s *RedisStore) Put(ctx context.Context, id string, record *SubredditRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, recordKey(id), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to put subreddit %s: %w", id, err)
	}
	return nil
}

// Close closes the redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
