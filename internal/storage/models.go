package storage

import (
	"sort"
	"time"
)

// Tags maps a tag name to its mention distance
type Tags map[string]int

// Tag is a single tag carried by a record, used as a relaxation candidate
type Tag struct {
	Name     string
	Distance int
}

// SubredditRecord is the crawl record of a single node in the mention graph
type SubredditRecord struct {
	URL              string `json:"url"`
	Name             string `json:"name,omitempty"`
	TotalSubscribers int    `json:"totalSubscribers,omitempty"`
	// Fetched is set once the record came straight from the catalog rather
	// than being inferred from a mention.
	Fetched           bool     `json:"fetched,omitempty"`
	Tags              Tags     `json:"tags"`
	RelatedSubreddits []string `json:"relatedSubreddits"`
}

// NewSubredditRecord returns an empty record for the given url
func NewSubredditRecord(url string) *SubredditRecord {
	return &SubredditRecord{
		URL:               url,
		Tags:              make(Tags),
		RelatedSubreddits: []string{},
	}
}

// Clone returns a deep copy of the record
func (r *SubredditRecord) Clone() *SubredditRecord {
	if r == nil {
		return nil
	}

	cp := *r
	cp.Tags = make(Tags, len(r.Tags))
	for name, distance := range r.Tags {
		cp.Tags[name] = distance
	}
	cp.RelatedSubreddits = append([]string{}, r.RelatedSubreddits...)

	return &cp
}

// TagList returns the record tags sorted by name
func (r *SubredditRecord) TagList() []Tag {
	tags := make([]Tag, 0, len(r.Tags))
	for name, distance := range r.Tags {
		tags = append(tags, Tag{Name: name, Distance: distance})
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}

// AddRelated appends ids to RelatedSubreddits, skipping ones already present.
// Returns the number of ids added.
func (r *SubredditRecord) AddRelated(ids ...string) int {
	added := 0
	for _, id := range ids {
		if id == "" || r.HasRelated(id) {
			continue
		}
		r.RelatedSubreddits = append(r.RelatedSubreddits, id)
		added++
	}
	return added
}

// HasRelated reports whether id is one of the record's outbound mentions
func (r *SubredditRecord) HasRelated(id string) bool {
	for _, existing := range r.RelatedSubreddits {
		if existing == id {
			return true
		}
	}
	return false
}

// CrawlState is the process-wide resumable crawl position and statistics
type CrawlState struct {
	Cursor            string `json:"cursor"`
	MaxDepthReached   int    `json:"maxDepthReached"`
	MaxDepthSubreddit string `json:"maxDepthSubreddit"`
}

// ObserveDepth raises the max depth high-water mark if depth exceeds it.
// Returns true when the mark moved.
func (s *CrawlState) ObserveDepth(depth int, id string) bool {
	if depth <= s.MaxDepthReached {
		return false
	}
	s.MaxDepthReached = depth
	s.MaxDepthSubreddit = id
	return true
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	RunID               string    `json:"run_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	PagesFetched        int       `json:"pages_fetched"`
	PagesFailed         int       `json:"pages_failed"`
	RecordsFetched      int       `json:"records_fetched"`
	NodesDiscovered     int       `json:"nodes_discovered"`
	RecordsWritten      int       `json:"records_written"`
	Relaxations         int       `json:"relaxations"`
	Rescans             int       `json:"rescans"`
	Traversals          int       `json:"traversals"`
	TruncatedTraversals int       `json:"truncated_traversals"`
	MaxDepthReached     int       `json:"max_depth_reached"`
	MaxDepthSubreddit   string    `json:"max_depth_subreddit"`
	TotalFetchTimeMs    int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs      int64     `json:"avg_fetch_time_ms"`
	TerminationReason   string    `json:"termination_reason"`
}
