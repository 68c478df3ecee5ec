// Package history keeps a bounded, oldest-first window of recent items.
package history

import "sync"

// DefaultCapacity is used when a Buffer is created with a non-positive capacity.
const DefaultCapacity = 100

// Buffer is a fixed-capacity FIFO. Appending to a full buffer drops the
// oldest item. It is safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// New creates a Buffer holding at most capacity items.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append adds item, evicting the oldest item when the buffer is full.
func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = item
	if b.size < len(b.items) {
		b.size++
		return
	}
	b.head = (b.head + 1) % len(b.items)
}

// Snapshot returns a copy of the buffered items, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the maximum number of items the buffer holds.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}
