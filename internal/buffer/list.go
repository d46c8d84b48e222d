package buffer

const defaultListCapacity = 64

// List is an append-only growable array with O(1) indexed access.
type List[T any] struct {
	data []T
	size int
}

// NewList creates a List. A capacity <= 0 uses the default of 64.
func NewList[T any](capacity int) *List[T] {
	if capacity <= 0 {
		capacity = defaultListCapacity
	}
	return &List[T]{data: make([]T, capacity)}
}

// Len returns the number of elements.
func (l *List[T]) Len() int { return l.size }

// Cap returns the backing capacity.
func (l *List[T]) Cap() int { return len(l.data) }

// Append adds v at the end, doubling the capacity on overflow.
func (l *List[T]) Append(v T) {
	if l.size == len(l.data) {
		grown := make([]T, max(2*len(l.data), defaultListCapacity))
		copy(grown, l.data)
		l.data = grown
	}
	l.data[l.size] = v
	l.size++
}

// At returns element i. i must be in [0, Len()).
func (l *List[T]) At(i int) T { return l.data[:l.size][i] }

// Set overwrites element i. i must be in [0, Len()).
func (l *List[T]) Set(i int, v T) { l.data[:l.size][i] = v }

// IndexOf returns the first index whose element equals v under eq, or -1.
func (l *List[T]) IndexOf(v T, eq func(a, b T) bool) int {
	for i := 0; i < l.size; i++ {
		if eq(l.data[i], v) {
			return i
		}
	}
	return -1
}

// Clear resets the length to zero. Capacity is retained.
func (l *List[T]) Clear() {
	clear(l.data[:l.size])
	l.size = 0
}

// Values returns the live elements. The slice aliases the list and is only
// valid until the next Append.
func (l *List[T]) Values() []T { return l.data[:l.size] }
