package buffer

import "errors"

// ErrEmpty is returned when removing from an empty Ring.
var ErrEmpty = errors.New("buffer: empty")

// Ring is a double-ended FIFO backed by one contiguous, growable slice.
// Elements are addressed relative to the logical front. Ring is not safe
// for concurrent use; callers serialize access.
type Ring[T any] struct {
	data  []T
	start int
	count int
}

// NewRing creates a Ring with room for capacity elements before it grows.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring[T]{data: make([]T, capacity)}
}

// Len returns the number of queued elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the current backing capacity.
func (r *Ring[T]) Cap() int { return len(r.data) }

// Add appends item at the back, growing the backing slice when full.
func (r *Ring[T]) Add(item T) {
	if r.count == len(r.data) {
		r.grow()
	}
	r.data[r.physical(r.count)] = item
	r.count++
}

// RemoveFirst pops the element at the front.
func (r *Ring[T]) RemoveFirst() (T, error) {
	var zero T
	if r.count == 0 {
		return zero, ErrEmpty
	}
	item := r.data[r.start]
	r.data[r.start] = zero
	r.start++
	if r.start == len(r.data) {
		r.start = 0
	}
	r.count--
	return item, nil
}

// RemoveLast pops the element at the back.
func (r *Ring[T]) RemoveLast() (T, error) {
	var zero T
	if r.count == 0 {
		return zero, ErrEmpty
	}
	idx := r.physical(r.count - 1)
	item := r.data[idx]
	r.data[idx] = zero
	r.count--
	return item, nil
}

// At returns the element i positions from the front. i must be in [0, Len()).
func (r *Ring[T]) At(i int) T {
	return r.data[r.physical(i)]
}

// Set overwrites the element i positions from the front. i must be in [0, Len()).
func (r *Ring[T]) Set(i int, item T) {
	r.data[r.physical(i)] = item
}

// Clear drops every element and keeps the capacity.
func (r *Ring[T]) Clear() {
	clear(r.data)
	r.start = 0
	r.count = 0
}

func (r *Ring[T]) physical(i int) int {
	idx := r.start + i
	if idx >= len(r.data) {
		idx -= len(r.data)
	}
	return idx
}

// grow at least doubles the capacity. Only called when the ring is full, so
// the elements occupy [start, oldCap) followed by the wrapped prefix
// [0, start). Whichever of the two runs is shorter gets relocated.
func (r *Ring[T]) grow() {
	oldCap := len(r.data)
	newCap := oldCap * 2
	if newCap < 2 {
		newCap = 2
	}
	grown := make([]T, newCap)
	copy(grown, r.data)

	prefix := r.start
	suffix := oldCap - r.start
	if prefix > 0 {
		if prefix <= suffix {
			// Move the wrapped prefix to just past the old end.
			copy(grown[oldCap:], grown[:prefix])
			clear(grown[:prefix])
		} else {
			// Move the suffix to the end of the new slice.
			newStart := newCap - suffix
			copy(grown[newStart:], grown[r.start:oldCap])
			clear(grown[r.start:min(oldCap, newStart)])
			r.start = newStart
		}
	}
	r.data = grown
}
