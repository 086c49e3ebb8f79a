package orderbook

// PriceLevel is a FIFO queue of resting orders at a single price.
// TotalQuantity is kept equal to the sum of remaining quantities.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64

	head  *Order
	tail  *Order
	count int
}

func newPriceLevel(price int64) *PriceLevel {
	return &PriceLevel{Price: price}
}

// Append adds o at the tail of the queue.
func (pl *PriceLevel) Append(o *Order) {
	o.prev, o.next = pl.tail, nil
	if pl.tail == nil {
		pl.head = o
	} else {
		pl.tail.next = o
	}
	pl.tail = o
	pl.TotalQuantity += o.RemainingQuantity
	pl.count++
}

// Remove unlinks o from anywhere in the queue.
func (pl *PriceLevel) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else if pl.head == o {
		pl.head = o.next
	} else {
		return // not in this level
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		pl.tail = o.prev
	}
	o.prev, o.next = nil, nil
	pl.TotalQuantity -= o.RemainingQuantity
	pl.count--
}

// Fill executes qty against o, which must belong to this level.
func (pl *PriceLevel) Fill(o *Order, qty int64) {
	o.RemainingQuantity -= qty
	pl.TotalQuantity -= qty
}

// Reduce lowers o's remaining quantity in place, keeping its queue position.
func (pl *PriceLevel) Reduce(o *Order, remaining int64) {
	pl.TotalQuantity -= o.RemainingQuantity - remaining
	o.RemainingQuantity = remaining
}

// Front returns the oldest order, or nil.
func (pl *PriceLevel) Front() *Order {
	return pl.head
}

func (pl *PriceLevel) Len() int {
	return pl.count
}

func (pl *PriceLevel) Empty() bool {
	return pl.head == nil
}

// Each walks the queue front to back until fn returns false.
func (pl *PriceLevel) Each(fn func(*Order) bool) {
	for o := pl.head; o != nil; o = o.next {
		if !fn(o) {
			return
		}
	}
}
