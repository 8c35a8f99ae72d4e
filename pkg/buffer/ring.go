// Package buffer provides a capacity-bounded, time-prunable ring buffer
// used to hold one sensor stream's recent readings.
package buffer

// Timestamped is anything carrying an epoch-millisecond timestamp.
type Timestamped interface {
	UnixMilli() int64
}

// Ring is a fixed-capacity FIFO. When full, pushing drops the oldest entry.
// Ring is not safe for concurrent use; callers serialize access.
type Ring[T Timestamped] struct {
	data []T
	head int // index of the oldest entry
	size int
}

// New creates a ring holding at most capacity entries (minimum 1).
func New[T Timestamped](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Len returns the number of buffered entries.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the maximum number of entries.
func (r *Ring[T]) Cap() int { return len(r.data) }

func (r *Ring[T]) slot(i int) int {
	return (r.head + i) % len(r.data)
}

// Push appends v, evicting the oldest entry when the ring is full.
// It reports whether an entry was evicted.
func (r *Ring[T]) Push(v T) bool {
	if r.size == len(r.data) {
		r.data[r.head] = v
		r.head = (r.head + 1) % len(r.data)
		return true
	}
	r.data[r.slot(r.size)] = v
	r.size++
	return false
}

// PruneBefore drops every entry whose timestamp is older than cutoff,
// keeping the relative order of the rest. It compacts in place and
// returns the number of entries removed.
func (r *Ring[T]) PruneBefore(cutoff int64) int {
	var zero T
	kept := 0
	for i := 0; i < r.size; i++ {
		v := r.data[r.slot(i)]
		if v.UnixMilli() < cutoff {
			continue
		}
		r.data[r.slot(kept)] = v
		kept++
	}
	for i := kept; i < r.size; i++ {
		r.data[r.slot(i)] = zero
	}
	removed := r.size - kept
	r.size = kept
	return removed
}

// Resize changes the capacity, keeping the most recent entries.
// It returns the number of entries dropped.
func (r *Ring[T]) Resize(capacity int) int {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(r.data) {
		return 0
	}
	keep := r.size
	if keep > capacity {
		keep = capacity
	}
	data := make([]T, capacity)
	start := r.size - keep
	for i := 0; i < keep; i++ {
		data[i] = r.data[r.slot(start+i)]
	}
	dropped := r.size - keep
	r.data, r.head, r.size = data, 0, keep
	return dropped
}

// Snapshot returns a copy of the entries, oldest first.
func (r *Ring[T]) Snapshot() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.data[r.slot(i)]
	}
	return out
}

// Clear removes all entries without changing capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head, r.size = 0, 0
}
