// Package catalog fetches pages of subreddit entries from a reddit style
// listing endpoint.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

const (
	// MinPageSize and MaxPageSize bound the number of entries per request
	MinPageSize = 1
	MaxPageSize = 100

	// DefaultURL is the public subreddit listing
	DefaultURL = "https://www.reddit.com/reddits.json"
)

// ErrMalformedListing is returned when a response body is not a listing
var ErrMalformedListing = errors.New("malformed listing response")

// Entry is a single subreddit as served by the catalog
type Entry struct {
	URL               string
	Name              string
	Subscribers       int
	AudienceTarget    string
	Description       string
	PublicDescription string
	DescriptionHTML   string
}

// Page is one page of catalog entries plus the continuation cursor.
// An empty NextCursor means the end of the catalog was reached.
type Page struct {
	Entries    []Entry
	NextCursor string
}

// Config configures a catalog Client
type Config struct {
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
	Logger         *logrus.Entry
}

// Client fetches catalog pages through a colly collector
type Client struct {
	baseURL   string
	collector *colly.Collector
	logger    *logrus.Entry
}

// NewClient creates a new catalog client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.MaxDepth(0),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	if cfg.RequestTimeout > 0 {
		collector.SetRequestTimeout(cfg.RequestTimeout)
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		collector: collector,
		logger:    cfg.Logger,
	}, nil
}

// BuildURL returns the listing url for the page following cursor
func (c *Client) BuildURL(cursor string, pageSize int) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}

	q := u.Query()
	q.Set("limit", strconv.Itoa(pageSize))
	if cursor != "" {
		q.Set("after", cursor)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch retrieves the page following cursor. Any transport failure, non-2xx
// status or undecodable body is returned as an error.
func (c *Client) Fetch(ctx context.Context, cursor string, pageSize int) (*Page, error) {
	target := c.BuildURL(cursor, pageSize)

	// Callbacks are per fetch, the underlying transport is shared
	collector := c.collector.Clone()
	collector.Context = ctx

	var (
		page     *Page
		fetchErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		c.logger.Infof("Querying %s", r.URL)
	})

	collector.OnResponse(func(r *colly.Response) {
		page, fetchErr = decodeListing(r.Body)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Request != nil {
			fetchErr = fmt.Errorf("fetch %s (status %d): %w", r.Request.URL, r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := collector.Visit(target); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("fetch %s: %w", target, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if page == nil {
		return nil, fmt.Errorf("fetch %s: %w: empty response", target, ErrMalformedListing)
	}

	return page, nil
}

type listing struct {
	Kind string `json:"kind"`
	Data *struct {
		After    *string `json:"after"`
		Children []struct {
			Kind string      `json:"kind"`
			Data listingItem `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingItem struct {
	URL               string `json:"url"`
	DisplayName       string `json:"display_name"`
	Subscribers       int    `json:"subscribers"`
	AudienceTarget    string `json:"audience_target"`
	Description       string `json:"description"`
	PublicDescription string `json:"public_description"`
	DescriptionHTML   string `json:"description_html"`
}

func decodeListing(body []byte) (*Page, error) {
	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedListing, err)
	}
	if l.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedListing)
	}

	page := &Page{Entries: make([]Entry, 0, len(l.Data.Children))}
	if l.Data.After != nil {
		page.NextCursor = *l.Data.After
	}
	for _, child := range l.Data.Children {
		item := child.Data
		if item.URL == "" {
			continue
		}
		page.Entries = append(page.Entries, Entry{
			URL:               item.URL,
			Name:              item.DisplayName,
			Subscribers:       item.Subscribers,
			AudienceTarget:    item.AudienceTarget,
			Description:       item.Description,
			PublicDescription: item.PublicDescription,
			DescriptionHTML:   item.DescriptionHTML,
		})
	}

	return page, nil
}

// ClampPageSize bounds n to [MinPageSize, MaxPageSize]
func ClampPageSize(n int, logger *logrus.Entry) int {
	switch {
	case n > MaxPageSize:
		if logger != nil {
			logger.Warnf("Max page size is %d", MaxPageSize)
		}
		return MaxPageSize
	case n < MinPageSize:
		if logger != nil {
			logger.Warnf("Min page size is %d", MinPageSize)
		}
		return MinPageSize
	}
	return n
}
