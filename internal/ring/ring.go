// Package ring provides a fixed-capacity FIFO buffer that silently drops the
// oldest element on overflow.
package ring

// Buffer holds at most Cap() elements. The zero value is not usable; use New.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// New returns an empty buffer with the given capacity. Capacity below 1 is
// raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest element when full. Reports whether an
// element was evicted.
func (b *Buffer[T]) Push(v T) bool {
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = v
		b.size++
		return false
	}
	b.items[b.head] = v
	b.head = (b.head + 1) % len(b.items)
	return true
}

// Len returns the number of stored elements.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// At returns the i-th element, 0 being the oldest. Panics when out of range.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.size {
		panic("ring: index out of range")
	}
	return b.items[(b.head+i)%len(b.items)]
}

// Last returns the newest element.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.At(b.size - 1), true
}

// Each calls fn for every element from oldest to newest until fn returns false.
func (b *Buffer[T]) Each(fn func(T) bool) {
	for i := 0; i < b.size; i++ {
		if !fn(b.items[(b.head+i)%len(b.items)]) {
			return
		}
	}
}

// EachReverse calls fn from newest to oldest until fn returns false.
func (b *Buffer[T]) EachReverse(fn func(T) bool) {
	for i := b.size - 1; i >= 0; i-- {
		if !fn(b.items[(b.head+i)%len(b.items)]) {
			return
		}
	}
}

// Slice copies the contents into a new slice, oldest first.
func (b *Buffer[T]) Slice() []T {
	out := make([]T, 0, b.size)
	b.Each(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}
