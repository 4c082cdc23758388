package linkedlist

// none marks an absent link, i.e. no successor / predecessor / head / tail.
const none = -1

// node represents one stored element. Neighbors are referenced by their slot index inside the arena.
type node[T any] struct {
	value T
	next  int // Successor slot; for a released slot this chains the free list.
	prev  int // Predecessor slot; lookup only, never keeps a slot alive.
}

// arena stores all nodes of a list in a single slice. Released slots are chained through `next` and reused by
// later allocations, so a slot is live iff it is reachable from the list head.
type arena[T any] struct {
	nodes []node[T]
	free  int // First released slot or none.
	live  int // Number of allocated slots.
}

func newArena[T any]() arena[T] {
	return arena[T]{free: none}
}

// alloc returns a slot holding `value` with both links absent.
func (a *arena[T]) alloc(value T) int {
	a.live++
	if a.free != none {
		idx := a.free
		a.free = a.nodes[idx].next
		a.nodes[idx] = node[T]{value: value, next: none, prev: none}
		return idx
	}
	a.nodes = append(a.nodes, node[T]{value: value, next: none, prev: none})
	return len(a.nodes) - 1
}

// release returns the slot at `idx` to the free list and hands back the value it held.
// The value is zeroed so the arena doesn't retain it and the links are cleared so
// any stale reference resolves to absent.
func (a *arena[T]) release(idx int) T {
	value := a.nodes[idx].value
	a.nodes[idx] = node[T]{next: a.free, prev: none}
	a.free = idx
	a.live--
	return value
}

// reset drops every slot while keeping the backing storage for reuse.
func (a *arena[T]) reset() {
	clear(a.nodes) // Let the GC collect the stored values.
	a.nodes = a.nodes[:0]
	a.free = none
	a.live = 0
}

func (a *arena[T]) at(idx int) *node[T] {
	return &a.nodes[idx]
}
