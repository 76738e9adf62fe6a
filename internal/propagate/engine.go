// Package propagate pushes tags across the subreddit mention graph so every
// node holds the minimum mention distance of each tag reachable from a tagged
// ancestor.
//
// A traversal starts at one target node with the record of the node that
// mentions it. Whenever a node's tags change it is persisted and all of its
// related nodes are queued again with the updated record as their parent.
// Each change strictly lowers (or inserts) a distance, so a traversal always
// reaches a fixed point.
package propagate

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/alvmarrod/tag-weaver/internal/storage"
)

// hopWeight is the distance added per mention edge
const hopWeight = 1

// Observer receives propagation events, typically a metrics tracker
type Observer interface {
	NodeDiscovered(id string)
	RecordWritten(id string)
	TagsRelaxed(n int)
	Rescanned(id string)
	TraversalFinished(res Result)
}

// Result summarizes one traversal
type Result struct {
	Touched     int
	Updated     int
	Created     int
	Relaxations int
	Rescans     int
	Skipped     int
	MaxDepth    int
	Truncated   bool
}

// Config configures an Engine
type Config struct {
	// Store holds the records being propagated into. Required.
	Store storage.RecordStore

	// State receives the max depth bookkeeping. Required.
	State *storage.CrawlState

	// TraversalBudget caps the nodes touched per traversal, 0 = unlimited.
	TraversalBudget int

	Observer Observer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

// Engine runs propagation traversals. It is not safe for concurrent use; a
// single crawl worker owns graph mutation.
type Engine struct {
	store    storage.RecordStore
	state    *storage.CrawlState
	budget   int
	observer Observer
	logger   *logrus.Entry
}

// NewEngine creates a propagation engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("propagate: record store not provided")
	}
	if cfg.State == nil {
		return nil, fmt.Errorf("propagate: crawl state not provided")
	}
	if cfg.TraversalBudget < 0 {
		return nil, fmt.Errorf("propagate: invalid traversal budget %d", cfg.TraversalBudget)
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: io.Discard})
	}

	return &Engine{
		store:    cfg.Store,
		state:    cfg.State,
		budget:   cfg.TraversalBudget,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}, nil
}

// Propagate pushes parent's tags into targetID at the given depth and keeps
// going outward until no node changes. The visited set is local to this call.
func (e *Engine) Propagate(
	ctx context.Context, targetID string, parent *storage.SubredditRecord, depth int,
) (Result, error) {
	var (
		res    Result
		work   queue
		budget = NewBudget(e.budget)
		// visited maps a node settled in this traversal to its tags at the
		// time it settled.
		visited = make(map[string]storage.Tags)
	)

	work.Push(workItem{target: targetID, parent: parent.Clone(), depth: depth, root: true})

	for !work.IsEmpty() {
		item, _ := work.Pop()

		if e.state.ObserveDepth(item.depth, item.target) {
			e.logger.WithFields(logrus.Fields{
				"depth":     item.depth,
				"subreddit": item.target,
			}).Debug("New max depth reached")
		}
		if item.depth > res.MaxDepth {
			res.MaxDepth = item.depth
		}

		if settled, ok := visited[item.target]; ok && !item.root {
			if !improves(settled, item.parent) {
				res.Skipped++
				continue
			}
			delete(visited, item.target)
		}

		if !budget.Touch() {
			res.Truncated = true
			e.logger.WithFields(logrus.Fields{
				"budget":  e.budget,
				"pending": work.Size() + 1,
			}).Warnf("Traversal budget exhausted at %s, stopping early", item.target)
			break
		}
		res.Touched = budget.Touched()

		record, err := e.store.Get(ctx, item.target)
		if err != nil {
			return res, fmt.Errorf("propagate: load %s: %w", item.target, err)
		}

		created := record == nil
		if created {
			record = storage.NewSubredditRecord(item.target)
			record.AddRelated(item.parent.URL)
			e.observer.NodeDiscovered(item.target)
		}

		changed := RelaxAll(record, item.parent, hopWeight)
		res.Relaxations += changed
		if changed > 0 {
			e.observer.TagsRelaxed(changed)
		}

		if changed == 0 && !created {
			visited[item.target] = record.Tags
			e.logger.Debugf("Finished: %s", item.target)
			continue
		}

		if err := e.store.Put(ctx, item.target, record); err != nil {
			return res, fmt.Errorf("propagate: store %s: %w", item.target, err)
		}
		e.observer.RecordWritten(item.target)
		if created {
			res.Created++
		} else {
			res.Updated++
		}

		snapshot := record.Clone()
		for i, next := range record.RelatedSubreddits {
			if _, ok := visited[next]; ok {
				delete(visited, next)
				res.Rescans++
				e.observer.Rescanned(next)
				e.logger.Debugf("Need to scan %s again in case changes relate", next)
			}
			e.logger.Debugf("Updating (%d/%d): %s", i+1, len(record.RelatedSubreddits), next)
			work.Push(workItem{target: next, parent: snapshot, depth: item.depth + 1})
		}
	}

	e.observer.TraversalFinished(res)
	return res, nil
}

// improves reports whether relaxing parent into a node holding tags would
// change anything
func improves(tags storage.Tags, parent *storage.SubredditRecord) bool {
	for name, distance := range parent.Tags {
		current, ok := tags[name]
		if !ok || distance+hopWeight < current {
			return true
		}
	}
	return false
}

type nopObserver struct{}

func (nopObserver) NodeDiscovered(string) {}
func (nopObserver) RecordWritten(string) {}
func (nopObserver) TagsRelaxed(int) {}
func (nopObserver) Rescanned(string) {}
func (nopObserver) TraversalFinished(Result) {}
