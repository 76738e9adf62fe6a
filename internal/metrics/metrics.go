package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alvmarrod/tag-weaver/internal/propagate"
	"github.com/alvmarrod/tag-weaver/internal/storage"
)

// Tracker holds and manages crawl metrics. Every counter is mirrored into a
// private prometheus registry.
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int

	registry      *prometheus.Registry
	pages         *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	records       *prometheus.CounterVec
	relaxations   prometheus.Counter
	rescans       prometheus.Counter
	traversals    *prometheus.CounterVec
	maxDepth      prometheus.Gauge
}

// NewTracker creates a new metrics tracker for the run identified by runID
func NewTracker(runID string) *Tracker {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Tracker{
		data: storage.Metrics{
			RunID:     runID,
			StartTime: time.Now(),
		},
		registry: reg,
		pages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weaver_pages_total",
				Help: "Catalog pages requested, by outcome.",
			},
			[]string{"status"}, // status: fetched, failed
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "weaver_page_fetch_duration_seconds",
				Help:    "Duration of catalog page fetches.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		records: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weaver_records_total",
				Help: "Subreddit records handled, by event.",
			},
			[]string{"event"}, // event: fetched, discovered, written
		),
		relaxations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "weaver_tag_relaxations_total",
				Help: "Tag distances inserted or lowered.",
			},
		),
		rescans: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "weaver_rescans_total",
				Help: "Settled nodes reopened by a later change.",
			},
		),
		traversals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weaver_traversals_total",
				Help: "Propagation traversals, by completion.",
			},
			[]string{"result"}, // result: complete, truncated
		),
		maxDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "weaver_max_depth_reached",
				Help: "Deepest propagation depth observed.",
			},
		),
	}
}

// Registry returns the prometheus registry holding the tracker's collectors
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// PageFetched records a successful page fetch and its duration
func (t *Tracker) PageFetched(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFetched++
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++

	t.pages.WithLabelValues("fetched").Inc()
	t.fetchDuration.Observe(duration.Seconds())
}

// PageFailed increments the failed fetch counter
func (t *Tracker) PageFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFailed++
	t.pages.WithLabelValues("failed").Inc()
}

// RecordFetched increments the counter of records read from the catalog
func (t *Tracker) RecordFetched(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RecordsFetched++
	t.records.WithLabelValues("fetched").Inc()
}

// NodeDiscovered increments the discovered nodes counter
func (t *Tracker) NodeDiscovered(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.NodesDiscovered++
	t.records.WithLabelValues("discovered").Inc()
}

// RecordWritten increments the persisted records counter
func (t *Tracker) RecordWritten(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RecordsWritten++
	t.records.WithLabelValues("written").Inc()
}

// TagsRelaxed adds n successful relaxations
func (t *Tracker) TagsRelaxed(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Relaxations += n
	t.relaxations.Add(float64(n))
}

// Rescanned increments the rescan counter
func (t *Tracker) Rescanned(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Rescans++
	t.rescans.Inc()
}

// TraversalFinished records the outcome of a propagation traversal
func (t *Tracker) TraversalFinished(res propagate.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Traversals++
	if res.MaxDepth > t.data.MaxDepthReached {
		t.data.MaxDepthReached = res.MaxDepth
		t.maxDepth.Set(float64(res.MaxDepth))
	}
	if res.Truncated {
		t.data.TruncatedTraversals++
		t.traversals.WithLabelValues("truncated").Inc()
		return
	}
	t.traversals.WithLabelValues("complete").Inc()
}

// ObserveDepth copies the crawl state's max depth bookkeeping
func (t *Tracker) ObserveDepth(state storage.CrawlState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.MaxDepthReached = state.MaxDepthReached
	t.data.MaxDepthSubreddit = state.MaxDepthSubreddit
	t.maxDepth.Set(float64(state.MaxDepthReached))
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.data.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		t.data.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for the periodic console update
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Pages: %d fetched, %d failed | Records: %d fetched, %d discovered, %d written | Relaxations: %d | Max depth: %d",
		t.data.PagesFetched,
		t.data.PagesFailed,
		t.data.RecordsFetched,
		t.data.NodesDiscovered,
		t.data.RecordsWritten,
		t.data.Relaxations,
		t.data.MaxDepthReached,
	)
}
