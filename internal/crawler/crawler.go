package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/tag-weaver/internal/catalog"
	"github.com/alvmarrod/tag-weaver/internal/extract"
	"github.com/alvmarrod/tag-weaver/internal/propagate"
	"github.com/alvmarrod/tag-weaver/internal/storage"
)

//go:generate mockgen -package mocks -destination mocks/mock_catalog.go github.com/alvmarrod/tag-weaver/internal/crawler Catalog

// ErrFetchFailed wraps any catalog page that could not be fetched or decoded
var ErrFetchFailed = errors.New("catalog page fetch failed")

// Catalog serves pages of subreddit entries
type Catalog interface {
	// Fetch returns the page following cursor. An empty cursor requests the
	// first page.
	Fetch(ctx context.Context, cursor string, pageSize int) (*catalog.Page, error)
}

// Propagator pushes a parent's tags into a related node and beyond
type Propagator interface {
	Propagate(ctx context.Context, targetID string, parent *storage.SubredditRecord, depth int) (propagate.Result, error)
}

// Observer receives frontier events, typically a metrics tracker
type Observer interface {
	PageFetched(duration time.Duration)
	PageFailed()
	RecordFetched(id string)
}

// Config configures the frontier driver
type Config struct {
	// Source of catalog pages.
	Catalog Catalog

	// Record store shared with the propagation engine.
	Store storage.RecordStore

	// Propagation engine invoked for every related node of a fetched record.
	Engine Propagator

	// Crawl position. The cursor is advanced after every completed page.
	State *storage.CrawlState

	// Entries requested per page, within [catalog.MinPageSize, catalog.MaxPageSize].
	PageSize int

	// Pause between two page fetches.
	Delay time.Duration

	// A clock instance for the inter-page timer. If not specified, the
	// default wall-clock will be used instead.
	Clock clock.Clock

	Observer Observer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (config *Config) validate() error {
	var err error

	if config.Catalog == nil {
		err = multierror.Append(err, fmt.Errorf("catalog not provided"))
	}

	if config.Store == nil {
		err = multierror.Append(err, fmt.Errorf("record store not provided"))
	}

	if config.Engine == nil {
		err = multierror.Append(err, fmt.Errorf("propagation engine not provided"))
	}

	if config.State == nil {
		err = multierror.Append(err, fmt.Errorf("crawl state not provided"))
	}

	if config.PageSize < catalog.MinPageSize || config.PageSize > catalog.MaxPageSize {
		err = multierror.Append(err, fmt.Errorf("invalid value for page size %d", config.PageSize))
	}

	if config.Delay < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid value for inter-page delay"))
	}

	if config.Clock == nil {
		config.Clock = clock.WallClock
	}

	if config.Observer == nil {
		config.Observer = nopObserver{}
	}

	if config.Logger == nil {
		config.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return err
}

// Crawler walks the catalog page by page, merging each entry into its record
// and propagating its tags before moving on
type Crawler struct {
	config Config
}

// New creates a frontier driver
func New(config Config) (*Crawler, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("crawler: config validation failed: %w", err)
	}

	return &Crawler{config: config}, nil
}

// Run processes pages until ctx is cancelled or a page fails. Cancellation
// is honoured between pages only: a page in progress always completes.
func (c *Crawler) Run(ctx context.Context) error {
	c.config.Logger.WithFields(logrus.Fields{
		"page_size": c.config.PageSize,
		"delay":     c.config.Delay.String(),
	}).Info("starting crawl")
	defer c.config.Logger.Info("stopped crawl")

	if ctx.Err() != nil {
		return nil
	}

	for {
		if err := c.ProcessPage(context.WithoutCancel(ctx)); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.config.Clock.After(c.config.Delay):
		}
	}
}

// ProcessPage fetches the page at the current cursor, merges and propagates
// every entry, then advances the cursor
func (c *Crawler) ProcessPage(ctx context.Context) error {
	cursor := c.config.State.Cursor

	startedAt := c.config.Clock.Now()
	page, err := c.config.Catalog.Fetch(ctx, cursor, c.config.PageSize)
	if err != nil {
		c.config.Observer.PageFailed()
		return fmt.Errorf("%w (cursor %q): %w", ErrFetchFailed, cursor, err)
	}
	c.config.Observer.PageFetched(c.config.Clock.Now().Sub(startedAt))

	for _, entry := range page.Entries {
		if err := c.processEntry(ctx, entry); err != nil {
			return err
		}
	}

	c.config.State.Cursor = page.NextCursor
	if page.NextCursor == "" {
		c.config.Logger.Info("Reached the end of the catalog, starting over from the first page")
	}

	return nil
}

func (c *Crawler) processEntry(ctx context.Context, entry catalog.Entry) error {
	id := extract.NodeID(entry.URL)
	if id == "" || extract.IsExcluded(id) {
		c.config.Logger.Warnf("Skipping catalog entry with url %q", entry.URL)
		return nil
	}
	c.config.Observer.RecordFetched(id)

	record, err := c.config.Store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("crawler: load %s: %w", id, err)
	}
	if record == nil {
		record = storage.NewSubredditRecord(id)
	}

	record.URL = id
	record.Name = entry.Name
	record.TotalSubscribers = entry.Subscribers
	record.Fetched = true

	for _, tag := range extract.ExtractTags(entry.AudienceTarget) {
		propagate.Relax(record, storage.Tag{Name: tag, Distance: 0}, 0)
	}
	record.AddRelated(extract.ExtractMentions(entry)...)

	if err := c.config.Store.Put(ctx, id, record); err != nil {
		return fmt.Errorf("crawler: store %s: %w", id, err)
	}

	related := record.RelatedSubreddits
	for i, next := range related {
		c.config.Logger.Infof("Updating (%d/%d): %s", i+1, len(related), next)
		if _, err := c.config.Engine.Propagate(ctx, next, record, 1); err != nil {
			return fmt.Errorf("crawler: %w", err)
		}
	}

	c.config.Logger.Infof("Finished %s", id)
	return nil
}

type nopObserver struct{}

func (nopObserver) PageFetched(time.Duration) {}
func (nopObserver) PageFailed() {}
func (nopObserver) RecordFetched(string) {}
