package matching

import (
	"exchange/internal/orderbook"
)

// Registry owns the canonical state of every live order. The book location
// of an order is its (side, price) key; the registry never holds level
// references.
//
// Orders that reach a terminal status leave the registry. The final state of
// the most recent window of them is kept, so reads still see them and
// repeated cancel/modify calls report ErrAlreadyTerminal rather than
// ErrNotFound.
type Registry struct {
	live map[uint64]*orderbook.Order

	retired map[uint64]*orderbook.Order
	ring    []uint64
	head    int
}

func NewRegistry(window int) *Registry {
	if window < 0 {
		window = 0
	}
	return &Registry{
		live:    make(map[uint64]*orderbook.Order),
		retired: make(map[uint64]*orderbook.Order, window),
		ring:    make([]uint64, 0, window),
	}
}

func (r *Registry) Add(o *orderbook.Order) {
	r.live[o.ID] = o
}

// Get returns the live order with id.
func (r *Registry) Get(id uint64) (*orderbook.Order, bool) {
	o, ok := r.live[id]
	return o, ok
}

// Retire drops o from the live set, if present, and remembers a copy of its
// terminal state.
func (r *Registry) Retire(o *orderbook.Order) {
	delete(r.live, o.ID)

	window := cap(r.ring)
	if window == 0 {
		return
	}
	if len(r.ring) < window {
		r.ring = append(r.ring, o.ID)
	} else {
		delete(r.retired, r.ring[r.head])
		r.ring[r.head] = o.ID
		r.head = (r.head + 1) % window
	}
	r.retired[o.ID] = o.Clone()
}

// Retired returns the final state of a recently retired order. Callers must
// not modify it.
func (r *Registry) Retired(id uint64) (*orderbook.Order, bool) {
	o, ok := r.retired[id]
	return o, ok
}

// Len returns the number of live orders.
func (r *Registry) Len() int {
	return len(r.live)
}
