package propagate

// Budget caps the number of nodes a single traversal may touch. It is a
// safety valve against pathological fan-out; a zero limit never trips.
type Budget struct {
	limit   int
	touched int
}

// NewBudget creates a budget allowing limit touches, 0 meaning unlimited
func NewBudget(limit int) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// CanTouch checks whether one more node may be touched.
// Does NOT modify state - use Touch() to register the node
func (b *Budget) CanTouch() bool {
	return b.limit == 0 || b.touched < b.limit
}

// Touch registers a touched node. Returns false if the limit was exceeded.
func (b *Budget) Touch() bool {
	if !b.CanTouch() {
		return false
	}
	b.touched++
	return true
}

// Touched returns the number of nodes registered so far
func (b *Budget) Touched() int {
	return b.touched
}
