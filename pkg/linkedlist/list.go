// Seqlist keeps ordered, mutable sequences in a doubly linked list. Every node lives in a single arena owned by the
// list and neighbors refer to each other by slot index, so a node is kept alive only by the list that links it and a
// back-reference can never outlive its target.
//
// Complexity:
// - PushFront / PushBack / PopFront / PopBack / Len: O(1)
// - Insert / Remove / Contains: O(n); positional walks start from the nearer end.
//
// Lists are not safe for concurrent use; wrap them with a lock (see storage.ListStore) when sharing.

package linkedlist

import (
	"errors"
	"slices"

	"github.com/nobletooth/seqlist/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrEmptyList is returned when popping from either end of an empty list. The list is left untouched.
	ErrEmptyList = errors.New("list is empty")
	// ErrCorruptedList is returned when a positional walk runs off the chain before reaching its index.
	ErrCorruptedList = errors.New("list links are corrupted")

	emptyPops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkedlist_empty_pops_total",
		Help: "Total number of pops attempted on an empty list.",
	}, []string{"side" /* front | back */})
)

// List is a doubly linked sequence of values. The zero value is an empty list ready to use.
type List[T comparable] struct {
	arena   arena[T]
	head    int // Slot of the first node; none iff size == 0.
	tail    int // Slot of the last node; none iff size == 0.
	size    int
	version uint64 // Bumped on every structural change so iterators can detect mutation.
	ready   bool
}

// New returns an empty list.
func New[T comparable]() *List[T] {
	l := new(List[T])
	l.lazyInit()
	return l
}

// lazyInit makes the zero value usable; ints default to 0, which is a valid slot.
func (l *List[T]) lazyInit() {
	if l.ready {
		return
	}
	l.arena = newArena[T]()
	l.head, l.tail = none, none
	l.ready = true
}

// Len returns the number of elements in the list.
func (l *List[T]) Len() int {
	return l.size
}

// IsEmpty returns true when the list holds no elements.
func (l *List[T]) IsEmpty() bool {
	return l.size == 0
}

// Front returns the first value of the list and false if the list is empty.
func (l *List[T]) Front() (T, bool) {
	if l.size == 0 {
		return *new(T), false
	}
	return l.arena.at(l.head).value, true
}

// Back returns the last value of the list and false if the list is empty.
func (l *List[T]) Back() (T, bool) {
	if l.size == 0 {
		return *new(T), false
	}
	return l.arena.at(l.tail).value, true
}

// Contains scans the list from head to tail and returns true on the first element equal to `value`.
func (l *List[T]) Contains(value T) bool {
	idx := l.head
	for step := 0; step < l.size; step++ {
		if idx == none {
			utils.RaiseInvariant("linkedlist", "broken_next_link", "Reached the end of the chain too early.",
				"step", step, "size", l.size)
			return false
		}
		current := l.arena.at(idx)
		if current.value == value {
			return true
		}
		idx = current.next
	}
	return false
}

// Values returns a snapshot of the list values in order.
func (l *List[T]) Values() []T {
	return slices.Collect(l.All())
}

// PushBack adds a new value to the back of the list.
func (l *List[T]) PushBack(value T) {
	l.lazyInit()
	idx := l.arena.alloc(value)
	if l.tail != none {
		l.arena.at(l.tail).next = idx
		l.arena.at(idx).prev = l.tail
	} else { // List was empty.
		l.head = idx
	}
	l.tail = idx
	l.size++
	l.version++
}

// PushFront adds a new value to the front of the list.
func (l *List[T]) PushFront(value T) {
	l.lazyInit()
	idx := l.arena.alloc(value)
	if l.head != none {
		l.arena.at(l.head).prev = idx
		l.arena.at(idx).next = l.head
	} else { // List was empty.
		l.tail = idx
	}
	l.head = idx
	l.size++
	l.version++
}

// PopBack removes the last element and returns its value, or ErrEmptyList if there is nothing to remove.
func (l *List[T]) PopBack() (T, error) {
	if l.size == 0 {
		emptyPops.WithLabelValues("back").Inc()
		return *new(T), ErrEmptyList
	}
	idx := l.tail
	if prev := l.arena.at(idx).prev; prev != none {
		l.arena.at(prev).next = none
		l.tail = prev
	} else { // Tail was the only node.
		l.head, l.tail = none, none
	}
	l.size--
	l.version++
	return l.arena.release(idx), nil
}

// PopFront removes the first element and returns its value, or ErrEmptyList if there is nothing to remove.
func (l *List[T]) PopFront() (T, error) {
	if l.size == 0 {
		emptyPops.WithLabelValues("front").Inc()
		return *new(T), ErrEmptyList
	}
	idx := l.head
	if next := l.arena.at(idx).next; next != none {
		l.arena.at(next).prev = none
		l.head = next
	} else { // Head was the only node.
		l.head, l.tail = none, none
	}
	l.size--
	l.version++
	return l.arena.release(idx), nil
}

// Insert places `value` so that it ends up at `index`. Indexes at or beyond Len() append to the back and
// non-positive indexes prepend to the front; out of range indexes are never rejected.
func (l *List[T]) Insert(index int, value T) {
	if index >= l.size {
		l.PushBack(value)
		return
	}
	if index <= 0 {
		l.PushFront(value)
		return
	}

	successor := l.nodeAt(index)
	if successor == none {
		return // Invariant was already raised.
	}
	idx := l.arena.alloc(value) // May grow the arena; take node pointers afterwards.
	predecessor := l.arena.at(successor).prev
	inserted := l.arena.at(idx)
	inserted.prev, inserted.next = predecessor, successor
	l.arena.at(predecessor).next = idx
	l.arena.at(successor).prev = idx
	l.size++
	l.version++
}

// Remove deletes the element at `index` and returns its value. Indexes at or beyond Len() pop the back and
// non-positive indexes pop the front, so only an empty list yields an error (ErrEmptyList).
func (l *List[T]) Remove(index int) (T, error) {
	// The range check goes first: Remove(n) on an empty list is a PopBack, not a PopFront.
	if index >= l.size {
		return l.PopBack()
	}
	if index <= 0 {
		return l.PopFront()
	}

	idx := l.nodeAt(index)
	if idx == none {
		return *new(T), ErrCorruptedList
	}
	// index > 0, so the node always has a predecessor.
	removed := l.arena.at(idx)
	predecessor, successor := removed.prev, removed.next
	l.arena.at(predecessor).next = successor
	if successor != none {
		l.arena.at(successor).prev = predecessor
	} else {
		l.tail = predecessor
	}
	l.size--
	l.version++
	return l.arena.release(idx), nil
}

// Clear removes all elements from the list.
func (l *List[T]) Clear() {
	l.lazyInit()
	l.arena.reset()
	l.head, l.tail = none, none
	l.size = 0
	l.version++
}

// nodeAt returns the slot of the node at `index`, walking from whichever end is closer.
// Expects 0 <= index < size; returns none if the chain breaks before reaching the index.
func (l *List[T]) nodeAt(index int) int {
	var idx int
	if index < l.size/2 {
		idx = l.head
		for step := 0; step < index && idx != none; step++ {
			idx = l.arena.at(idx).next
		}
	} else {
		idx = l.tail
		for step := l.size - 1; step > index && idx != none; step-- {
			idx = l.arena.at(idx).prev
		}
	}
	utils.Ensure(idx != none, "linkedlist", "broken_link", "Positional walk fell off the chain.",
		"index", index, "size", l.size)
	return idx
}
