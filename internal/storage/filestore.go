package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileStore keeps one JSON file per node under a directory
type FileStore struct {
	dir    string
	logger *logrus.Entry
}

// NewFileStore creates the records directory if needed
func NewFileStore(dir string, logger *logrus.Entry) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("records directory is required")
	}
	if logger == nil {
		logger = discardLogger()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// path maps a node id to its file; ids like /r/golang become r%2Fgolang.json
func (fs *FileStore) path(id string) string {
	name := url.PathEscape(strings.Trim(id, "/"))
	return filepath.Join(fs.dir, name+".json")
}

// Get reads the record file for id
func (fs *FileStore) Get(_ context.Context, id string) (*SubredditRecord, error) {
	data, err := os.ReadFile(fs.path(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}

	record, err := DecodeRecord(data)
	if err != nil {
		fs.logger.Warnf("Discarding record file for %s: %v", id, err)
		return nil, nil
	}
	return record, nil
}

// Put writes the record file for id, replacing it atomically
func (fs *FileStore) Put(_ context.Context, id string, record *SubredditRecord) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(fs.dir, ".record-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close record %s: %w", id, err)
	}
	if err := os.Rename(tmpName, fs.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record %s: %w", id, err)
	}
	return nil
}

// Close is a no-op for the file store
func (fs *FileStore) Close() error {
	return nil
}
