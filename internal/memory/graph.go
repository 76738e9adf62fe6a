package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/alvmarrod/tag-weaver/internal/storage"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Graph holds subreddit records in memory for fast access. With a backing
// store it acts as a write-back cache: misses fall through to the backing
// store and writes stay in memory until Flush.
type Graph struct {
	records map[string]*storage.SubredditRecord // node id -> record
	dirty   map[string]bool
	backing storage.RecordStore
	logger  *logrus.Entry
	mu      sync.RWMutex
}

// NewGraph creates a new in-memory graph. backing may be nil.
func NewGraph(backing storage.RecordStore, logger *logrus.Entry) *Graph {
	if logger == nil {
		logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}
	return &Graph{
		records: make(map[string]*storage.SubredditRecord),
		dirty:   make(map[string]bool),
		backing: backing,
		logger:  logger,
	}
}

// Get retrieves a copy of the record for id, loading it from the backing
// store on a miss
func (g *Graph) Get(ctx context.Context, id string) (*storage.SubredditRecord, error) {
	g.mu.RLock()
	record, exists := g.records[id]
	g.mu.RUnlock()

	if exists {
		// Return a copy to prevent external modifications
		return record.Clone(), nil
	}
	if g.backing == nil {
		return nil, nil // Not found (matches storage behavior)
	}

	loaded, err := g.backing.Get(ctx, id)
	if err != nil || loaded == nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// A concurrent Put wins over the value we just loaded
	if current, exists := g.records[id]; exists {
		return current.Clone(), nil
	}
	g.records[id] = loaded.Clone()
	return loaded, nil
}

// Put stores a copy of record under id and marks it dirty
func (g *Graph) Put(_ context.Context, id string, record *storage.SubredditRecord) error {
	if record == nil {
		return fmt.Errorf("nil record for %s", id)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.records[id] = record.Clone()
	g.dirty[id] = true
	return nil
}

// GetStats returns the number of records held and how many await a flush
func (g *Graph) GetStats() (recordCount, dirtyCount int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.records), len(g.dirty)
}

// ids returns the ids of all records held in memory, sorted
func (g *Graph) ids() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]string, 0, len(g.records))
	for id := range g.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Flush writes all dirty records to the backing store. Records that fail to
// persist stay dirty so a later flush retries them.
func (g *Graph) Flush(ctx context.Context) error {
	if g.backing == nil {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	startTime := time.Now()
	g.logger.Infof("Starting flush of %d records...", len(g.dirty))

	var (
		written int
		errs    error
	)
	for id := range g.dirty {
		if err := g.backing.Put(ctx, id, g.records[id]); err != nil {
			errs = multierror.Append(errs, err)
			g.logger.Warnf("Failed to flush record %s: %v", id, err)
			continue
		}
		delete(g.dirty, id)
		written++
	}

	g.logger.Infof("Flush complete: %d records written in %v", written, time.Since(startTime))
	return errs
}

// Close flushes pending writes and closes the backing store
func (g *Graph) Close() error {
	var errs error
	if err := g.Flush(context.Background()); err != nil {
		errs = multierror.Append(errs, err)
	}
	if g.backing != nil {
		if err := g.backing.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
