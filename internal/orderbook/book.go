package orderbook

import (
	"github.com/google/btree"
)

const treeDegree = 32

// Book is the in-memory order book for a single symbol. It is not safe for
// concurrent use; the owning engine serializes access.
type Book struct {
	Symbol string

	// Both trees are ordered by ascending price: best bid is Max, best ask is Min.
	bids *btree.BTreeG[*PriceLevel]
	asks *btree.BTreeG[*PriceLevel]
}

func lessPrice(a, b *PriceLevel) bool {
	return a.Price < b.Price
}

func New(symbol string) *Book {
	return &Book{
		Symbol: symbol,
		bids:   btree.NewG(treeDegree, lessPrice),
		asks:   btree.NewG(treeDegree, lessPrice),
	}
}

func (b *Book) tree(side Side) *btree.BTreeG[*PriceLevel] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// Insert appends o at the tail of its price level, creating the level if
// absent. It does not check for crossing.
func (b *Book) Insert(o *Order) {
	t := b.tree(o.Side)
	level, ok := t.Get(&PriceLevel{Price: o.Price})
	if !ok {
		level = newPriceLevel(o.Price)
		t.ReplaceOrInsert(level)
	}
	level.Append(o)
}

// Best returns the best level for side, or nil if that side is empty.
func (b *Book) Best(side Side) *PriceLevel {
	var (
		level *PriceLevel
		ok    bool
	)
	if side == Buy {
		level, ok = b.bids.Max()
	} else {
		level, ok = b.asks.Min()
	}
	if !ok {
		return nil
	}
	return level
}

// Level returns the level at price on side, or nil.
func (b *Book) Level(side Side, price int64) *PriceLevel {
	level, ok := b.tree(side).Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return level
}

// RestingQuantity returns the aggregate remaining quantity at price on side.
func (b *Book) RestingQuantity(side Side, price int64) int64 {
	if level := b.Level(side, price); level != nil {
		return level.TotalQuantity
	}
	return 0
}

// RemoveLevelIfEmpty drops the level at price when it holds no quantity.
func (b *Book) RemoveLevelIfEmpty(side Side, price int64) bool {
	t := b.tree(side)
	level, ok := t.Get(&PriceLevel{Price: price})
	if !ok || !level.Empty() {
		return false
	}
	t.Delete(level)
	return true
}

// RemoveOrder unlinks o from its level and drops the level if it empties.
func (b *Book) RemoveOrder(o *Order) bool {
	level := b.Level(o.Side, o.Price)
	if level == nil {
		return false
	}
	level.Remove(o)
	b.RemoveLevelIfEmpty(o.Side, o.Price)
	return true
}

// Crosses reports whether an order on side at price would match the best
// opposing level.
func (b *Book) Crosses(side Side, price int64) bool {
	best := b.Best(side.Opposite())
	if best == nil {
		return false
	}
	if side == Buy {
		return price >= best.Price
	}
	return price <= best.Price
}

// BestBid returns the highest bid price, or 0 if no bids
func (b *Book) BestBid() int64 {
	if level := b.Best(Buy); level != nil {
		return level.Price
	}
	return 0
}

// BestAsk returns the lowest ask price, or 0 if no asks
func (b *Book) BestAsk() int64 {
	if level := b.Best(Sell); level != nil {
		return level.Price
	}
	return 0
}

// Levels returns the number of distinct prices on side.
func (b *Book) Levels(side Side) int {
	return b.tree(side).Len()
}

// Snapshot returns current book state
type BookSnapshot struct {
	Symbol string          `json:"symbol"`
	Bids   []LevelSnapshot `json:"bids"`
	Asks   []LevelSnapshot `json:"asks"`
}

type LevelSnapshot struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

// Snapshot lists up to depth levels per side, best first. depth <= 0 lists all.
func (b *Book) Snapshot(depth int) BookSnapshot {
	return BookSnapshot{
		Symbol: b.Symbol,
		Bids:   b.depth(Buy, depth),
		Asks:   b.depth(Sell, depth),
	}
}

func (b *Book) depth(side Side, depth int) []LevelSnapshot {
	levels := make([]LevelSnapshot, 0)
	visit := func(level *PriceLevel) bool {
		levels = append(levels, LevelSnapshot{
			Price:    level.Price,
			Quantity: level.TotalQuantity,
			Orders:   level.Len(),
		})
		return depth <= 0 || len(levels) < depth
	}
	if side == Buy {
		b.bids.Descend(visit)
	} else {
		b.asks.Ascend(visit)
	}
	return levels
}
