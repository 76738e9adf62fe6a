package propagate

import "github.com/alvmarrod/tag-weaver/internal/storage"

// workItem asks the engine to push parent's tags into target
type workItem struct {
	target string
	parent *storage.SubredditRecord // snapshot taken when enqueued
	depth  int
	root   bool
}

// queue is the FIFO work queue of a single traversal. A traversal is owned by
// one goroutine so no locking is needed.
type queue struct {
	items []workItem
	head  int
}

// Push appends an item
func (q *queue) Push(item workItem) {
	q.items = append(q.items, item)
}

// Pop removes and returns the first item, false when empty
func (q *queue) Pop() (workItem, bool) {
	if q.head >= len(q.items) {
		return workItem{}, false
	}

	item := q.items[q.head]
	q.items[q.head] = workItem{}
	q.head++

	// Reclaim the consumed prefix once it dominates the slice
	if q.head > 64 && q.head*2 > len(q.items) {
		q.items = append([]workItem(nil), q.items[q.head:]...)
		q.head = 0
	}
	return item, true
}

// Size returns the number of pending items
func (q *queue) Size() int {
	return len(q.items) - q.head
}

// IsEmpty returns true if the queue has no pending items
func (q *queue) IsEmpty() bool {
	return q.Size() == 0
}
