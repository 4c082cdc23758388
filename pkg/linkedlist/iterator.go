// Iterators are a read-only view over a list. They never own nodes; instead they remember the list version they
// started from and stop as soon as the list has been mutated underneath them.

package linkedlist

import (
	"errors"
	"iter"

	"github.com/nobletooth/seqlist/pkg/utils"
)

// ErrModifiedDuringIteration is reported by an iterator whose list was mutated after the iterator was created.
var ErrModifiedDuringIteration = errors.New("list was modified during iteration")

// Iterator walks the list from head to tail. It yields at most as many values as the list held when the
// iterator was created and can't be restarted; call List.Iter again for a fresh pass.
type Iterator[T comparable] struct {
	list      *List[T]
	current   int    // Slot of the next value to yield.
	remaining int    // Values left to yield.
	version   uint64 // List version at creation.
	err       error
}

// Iter returns a forward iterator starting at the current head.
func (l *List[T]) Iter() *Iterator[T] {
	return &Iterator[T]{list: l, current: l.head, remaining: l.size, version: l.version}
}

// Next returns the next value and true, or false when the sequence is exhausted or the list was mutated.
// Check Err to tell the two apart.
func (it *Iterator[T]) Next() (T, bool) {
	if it.remaining == 0 || it.err != nil {
		return *new(T), false
	}
	if it.version != it.list.version {
		it.err = ErrModifiedDuringIteration
		it.remaining = 0
		return *new(T), false
	}
	if it.current == none {
		utils.RaiseInvariant("linkedlist", "broken_next_link", "Iterator reached the end of the chain too early.",
			"remaining", it.remaining)
		it.remaining = 0
		return *new(T), false
	}
	current := it.list.arena.at(it.current)
	it.remaining--
	it.current = current.next
	return current.value, true
}

// Err returns ErrModifiedDuringIteration if the iterator stopped because the list changed, nil otherwise.
func (it *Iterator[T]) Err() error {
	return it.err
}

// All returns a single pass over the list values from head to tail, usable with range-over-func.
// Mutating the list inside the loop body ends the loop early and raises an invariant.
func (l *List[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		it := l.Iter()
		for value, ok := it.Next(); ok; value, ok = it.Next() {
			if !yield(value) {
				return
			}
		}
		if err := it.Err(); err != nil {
			utils.RaiseInvariant("linkedlist", "modified_during_iteration",
				"List was mutated while ranging over it.", "error", err)
		}
	}
}

// Backward returns a single pass over the list values from tail to head by following the predecessor links.
func (l *List[T]) Backward() iter.Seq[T] {
	return func(yield func(T) bool) {
		version := l.version
		idx := l.tail
		for remaining := l.size; remaining > 0; remaining-- {
			if version != l.version {
				utils.RaiseInvariant("linkedlist", "modified_during_iteration",
					"List was mutated while ranging over it backwards.", "error", ErrModifiedDuringIteration)
				return
			}
			if idx == none {
				utils.RaiseInvariant("linkedlist", "broken_prev_link", "Reached the head of the chain too early.",
					"remaining", remaining)
				return
			}
			current := l.arena.at(idx)
			idx = current.prev
			if !yield(current.value) {
				return
			}
		}
	}
}
