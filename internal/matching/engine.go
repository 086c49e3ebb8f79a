package matching

import (
	"fmt"
	"math"
	"sync"
	"time"

	"exchange/internal/orderbook"
)

// Batch is the ordered set of state changes one command committed: the
// final state of every order it touched and the trades it produced.
type Batch struct {
	Symbol string
	Orders []orderbook.Order
	Trades []orderbook.Trade
}

func (b *Batch) Empty() bool {
	return len(b.Orders) == 0 && len(b.Trades) == 0
}

// Sink receives committed batches. Publish is called while the engine still
// serializes commands, so batches arrive in command order; implementations
// must not block.
type Sink interface {
	Publish(Batch)
}

// DefaultMaxQuantity bounds a single order's original quantity.
const DefaultMaxQuantity int64 = 1_000_000_000_000

// Options holds configuration for an Engine.
type Options struct {
	// RetiredWindow is how many terminal orders are remembered.
	RetiredWindow int
	// TradeHistory bounds the in-memory tail served by RecentTrades.
	TradeHistory int
	// MaxQuantity bounds an order's original quantity, including after a
	// modify. Zero means DefaultMaxQuantity.
	MaxQuantity int64
	Sink        Sink
	Now         func() time.Time
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		RetiredWindow: 1 << 16,
		TradeHistory:  1024,
		MaxQuantity:   DefaultMaxQuantity,
		Now:           time.Now,
	}
}

type SubmitResult struct {
	OrderID uint64            `json:"order_id"`
	Trades  []orderbook.Trade `json:"trades"`
	Resting *orderbook.Order  `json:"resting"`
}

// ModifyRequest carries the optional new price and quantity, in ticks and lots.
type ModifyRequest struct {
	Price    *int64
	Quantity *int64
}

type ModifyResult struct {
	OrderID uint64            `json:"order_id"`
	Trades  []orderbook.Trade `json:"trades"`
	// Order is the live order after the modification, nil if it filled.
	Order *orderbook.Order `json:"order"`
}

// Engine is the single-writer matching engine for one symbol. Every command
// holds mu for its full duration, so no caller observes a partially applied
// command.
type Engine struct {
	symbol string

	mu       sync.Mutex
	book     *orderbook.Book
	registry *Registry
	orders   *Clock
	trades   *Clock

	// history is a ring; once full, historyHead is the oldest entry.
	history     []orderbook.Trade
	historyHead int
	historyCap  int

	maxQuantity int64

	sink Sink
	now  func() time.Time
}

func New(symbol string, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxQuantity <= 0 {
		opts.MaxQuantity = DefaultMaxQuantity
	}
	historyCap := max(opts.TradeHistory, 0)
	return &Engine{
		symbol:      symbol,
		book:        orderbook.New(symbol),
		registry:    NewRegistry(opts.RetiredWindow),
		orders:      NewClock(0),
		trades:      NewClock(0),
		history:     make([]orderbook.Trade, 0, historyCap),
		historyCap:  historyCap,
		maxQuantity: opts.MaxQuantity,
		sink:        opts.Sink,
		now:         opts.Now,
	}
}

func (e *Engine) Symbol() string {
	return e.symbol
}

func (e *Engine) validateOrder(side orderbook.Side, price, quantity int64) error {
	if !side.Valid() {
		return fmt.Errorf("%w: unrecognized side %d", ErrInvalidInput, int(side))
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %d", ErrInvalidInput, price)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidInput, quantity)
	}
	if quantity > e.maxQuantity {
		return fmt.Errorf("%w: %d exceeds maximum %d", ErrInvalidQuantity, quantity, e.maxQuantity)
	}
	return nil
}

// fitsLevel reports whether quantity more can rest at price on side without
// overflowing the level aggregate. exclude is already counted in the level
// and leaves it first.
func (e *Engine) fitsLevel(side orderbook.Side, price, quantity, exclude int64) bool {
	resting := e.book.RestingQuantity(side, price) - exclude
	return resting <= math.MaxInt64-quantity
}

// Submit places a limit order, matching it against the opposite side before
// resting any remainder.
func (e *Engine) Submit(side orderbook.Side, price, quantity int64) (SubmitResult, error) {
	if err := e.validateOrder(side, price, quantity); err != nil {
		return SubmitResult{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Matching only consumes the opposite side, so the check holds for
	// whatever remainder rests.
	if !e.fitsLevel(side, price, quantity, 0) {
		return SubmitResult{}, fmt.Errorf("%w: level %d cannot hold %d more", ErrInvalidQuantity, price, quantity)
	}

	now := e.now()
	seq := e.orders.Next()
	order := &orderbook.Order{
		ID:                seq,
		Symbol:            e.symbol,
		Side:              side,
		Price:             price,
		OriginalQuantity:  quantity,
		RemainingQuantity: quantity,
		Sequence:          seq,
		Status:            orderbook.Resting,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	batch := Batch{Symbol: e.symbol}
	trades := e.match(order, now, &batch)

	res := SubmitResult{OrderID: order.ID, Trades: trades}
	if order.RemainingQuantity > 0 {
		e.registry.Add(order)
		e.book.Insert(order)
		res.Resting = order.Clone()
	} else {
		e.registry.Retire(order)
	}
	batch.Orders = append(batch.Orders, *order.Clone())

	e.publish(batch)
	return res, nil
}

// match crosses incoming against the best opposing levels while prices
// allow. Each resting order is either fully consumed or left with positive
// remaining quantity before the loop advances.
func (e *Engine) match(incoming *orderbook.Order, now time.Time, batch *Batch) []orderbook.Trade {
	trades := make([]orderbook.Trade, 0)
	opposite := incoming.Side.Opposite()

	for incoming.RemainingQuantity > 0 && e.book.Crosses(incoming.Side, incoming.Price) {
		level := e.book.Best(opposite)
		resting := level.Front()

		fill := min(incoming.RemainingQuantity, resting.RemainingQuantity)
		level.Fill(resting, fill)
		incoming.RemainingQuantity -= fill

		trade := e.newTrade(incoming, resting, fill, now)
		trades = append(trades, trade)

		resting.UpdatedAt = now
		if resting.RemainingQuantity == 0 {
			resting.Status = orderbook.Filled
			level.Remove(resting)
			e.registry.Retire(resting)
			e.book.RemoveLevelIfEmpty(opposite, level.Price)
		} else {
			resting.Status = orderbook.PartiallyFilled
		}
		batch.Orders = append(batch.Orders, *resting.Clone())
	}

	if len(trades) > 0 {
		incoming.UpdatedAt = now
	}
	switch {
	case incoming.RemainingQuantity == 0:
		incoming.Status = orderbook.Filled
	case incoming.Filled() > 0:
		incoming.Status = orderbook.PartiallyFilled
	default:
		incoming.Status = orderbook.Resting
	}

	batch.Trades = append(batch.Trades, trades...)
	return trades
}

func (e *Engine) newTrade(incoming, resting *orderbook.Order, qty int64, now time.Time) orderbook.Trade {
	buy, sell := resting, incoming
	if incoming.Side == orderbook.Buy {
		buy, sell = incoming, resting
	}
	trade := orderbook.Trade{
		Sequence:    e.trades.Next(),
		Symbol:      e.symbol,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Price:       resting.Price, // trade at resting order's price
		Quantity:    qty,
		Aggressor:   incoming.Side,
		Timestamp:   now,
	}
	e.appendHistory(trade)
	return trade
}

func (e *Engine) appendHistory(t orderbook.Trade) {
	if e.historyCap == 0 {
		return
	}
	if len(e.history) < e.historyCap {
		e.history = append(e.history, t)
		return
	}
	e.history[e.historyHead] = t
	e.historyHead = (e.historyHead + 1) % e.historyCap
}

// lookup resolves id to a live order or the appropriate error kind.
func (e *Engine) lookup(id uint64) (*orderbook.Order, error) {
	if o, ok := e.registry.Get(id); ok {
		return o, nil
	}
	if o, ok := e.registry.Retired(id); ok {
		return nil, fmt.Errorf("%w: order %d is %s", ErrAlreadyTerminal, id, o.Status)
	}
	return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Cancel removes a live order from the book. No trades are generated.
func (e *Engine) Cancel(id uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.lookup(id)
	if err != nil {
		return err
	}

	e.book.RemoveOrder(order)
	order.Status = orderbook.Cancelled
	order.UpdatedAt = e.now()
	e.registry.Retire(order)

	e.publish(Batch{Symbol: e.symbol, Orders: []orderbook.Order{*order.Clone()}})
	return nil
}

// Modify changes a live order's price and/or quantity. A quantity decrease
// at the same price keeps time priority; a quantity increase or any price
// change re-enters the order with a fresh sequence, and a new price may
// cross immediately.
func (e *Engine) Modify(id uint64, req ModifyRequest) (ModifyResult, error) {
	if req.Price == nil && req.Quantity == nil {
		return ModifyResult{}, fmt.Errorf("%w: nothing to modify", ErrInvalidInput)
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return ModifyResult{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, *req.Quantity)
	}
	if req.Quantity != nil && *req.Quantity > e.maxQuantity {
		return ModifyResult{}, fmt.Errorf("%w: %d exceeds maximum %d", ErrInvalidQuantity, *req.Quantity, e.maxQuantity)
	}
	if req.Price != nil && *req.Price <= 0 {
		return ModifyResult{}, fmt.Errorf("%w: price must be positive, got %d", ErrInvalidInput, *req.Price)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.lookup(id)
	if err != nil {
		return ModifyResult{}, err
	}

	price := order.Price
	if req.Price != nil {
		price = *req.Price
	}
	quantity := order.RemainingQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	filled := order.Filled()
	if quantity > e.maxQuantity-filled {
		return ModifyResult{}, fmt.Errorf("%w: filled %d plus %d exceeds maximum %d", ErrInvalidQuantity, filled, quantity, e.maxQuantity)
	}

	res := ModifyResult{OrderID: id, Trades: make([]orderbook.Trade, 0)}
	now := e.now()

	switch {
	case price == order.Price && quantity == order.RemainingQuantity:
		res.Order = order.Clone()
		return res, nil

	case price == order.Price && quantity < order.RemainingQuantity:
		e.book.Level(order.Side, order.Price).Reduce(order, quantity)
		order.OriginalQuantity = filled + quantity
		order.UpdatedAt = now
		res.Order = order.Clone()
		e.publish(Batch{Symbol: e.symbol, Orders: []orderbook.Order{*order.Clone()}})
		return res, nil
	}

	// Loses priority: leave the book and re-enter as a fresh submission.
	var exclude int64
	if price == order.Price {
		exclude = order.RemainingQuantity
	}
	if !e.fitsLevel(order.Side, price, quantity, exclude) {
		return ModifyResult{}, fmt.Errorf("%w: level %d cannot hold %d more", ErrInvalidQuantity, price, quantity)
	}
	e.book.RemoveOrder(order)
	order.Price = price
	order.RemainingQuantity = quantity
	order.OriginalQuantity = filled + quantity
	order.Sequence = e.orders.Next()
	order.UpdatedAt = now

	batch := Batch{Symbol: e.symbol}
	res.Trades = e.match(order, now, &batch)
	if order.RemainingQuantity > 0 {
		e.book.Insert(order)
		res.Order = order.Clone()
	} else {
		e.registry.Retire(order)
	}
	batch.Orders = append(batch.Orders, *order.Clone())

	e.publish(batch)
	return res, nil
}

func (e *Engine) publish(b Batch) {
	if e.sink == nil || b.Empty() {
		return
	}
	e.sink.Publish(b)
}

// Order returns a copy of the order with id: live, or the final state of a
// recently retired one.
func (e *Engine) Order(id uint64) (*orderbook.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if o, ok := e.registry.Get(id); ok {
		return o.Clone(), nil
	}
	if o, ok := e.registry.Retired(id); ok {
		return o.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
}

// Snapshot returns up to depth aggregated levels per side, best first.
func (e *Engine) Snapshot(depth int) orderbook.BookSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot(depth)
}

// RecentTrades returns the last n trades, oldest first.
func (e *Engine) RecentTrades(n int) []orderbook.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	size := len(e.history)
	if n > size || n <= 0 {
		n = size
	}
	out := make([]orderbook.Trade, n)
	start := e.historyHead + size - n
	for i := range out {
		out[i] = e.history[(start+i)%size]
	}
	return out
}

// Stats is a point-in-time summary of the book.
type Stats struct {
	LiveOrders int   `json:"live_orders"`
	BidLevels  int   `json:"bid_levels"`
	AskLevels  int   `json:"ask_levels"`
	BestBid    int64 `json:"best_bid"`
	BestAsk    int64 `json:"best_ask"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		LiveOrders: e.registry.Len(),
		BidLevels:  e.book.Levels(orderbook.Buy),
		AskLevels:  e.book.Levels(orderbook.Sell),
		BestBid:    e.book.BestBid(),
		BestAsk:    e.book.BestAsk(),
	}
}
