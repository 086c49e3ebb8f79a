package api

import (
	"time"

	"exchange/internal/orderbook"
	"exchange/internal/ticks"
)

// Prices leave the API as decimal strings alongside their tick counts.

type OrderView struct {
	ID                uint64    `json:"id"`
	Symbol            string    `json:"symbol"`
	Side              string    `json:"side"`
	Price             string    `json:"price"`
	PriceTicks        int64     `json:"price_ticks"`
	OriginalQuantity  int64     `json:"original_quantity"`
	RemainingQuantity int64     `json:"remaining_quantity"`
	FilledQuantity    int64     `json:"filled_quantity"`
	Sequence          uint64    `json:"sequence"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type TradeView struct {
	Sequence    uint64    `json:"sequence"`
	Symbol      string    `json:"symbol"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Price       string    `json:"price"`
	PriceTicks  int64     `json:"price_ticks"`
	Quantity    int64     `json:"quantity"`
	Aggressor   string    `json:"aggressor"`
	Timestamp   time.Time `json:"timestamp"`
}

type LevelView struct {
	Price      string `json:"price"`
	PriceTicks int64  `json:"price_ticks"`
	Quantity   int64  `json:"quantity"`
	Orders     int    `json:"orders"`
}

type BookView struct {
	Symbol string      `json:"symbol"`
	Bids   []LevelView `json:"bids"`
	Asks   []LevelView `json:"asks"`
}

type MarketView struct {
	Symbol     string `json:"symbol"`
	TickSize   string `json:"tick_size"`
	BestBid    string `json:"best_bid,omitempty"`
	BestAsk    string `json:"best_ask,omitempty"`
	LiveOrders int    `json:"live_orders"`
}

func newOrderView(c *ticks.Converter, o *orderbook.Order) *OrderView {
	if o == nil {
		return nil
	}
	return &OrderView{
		ID:                o.ID,
		Symbol:            o.Symbol,
		Side:              o.Side.String(),
		Price:             c.Format(o.Price),
		PriceTicks:        o.Price,
		OriginalQuantity:  o.OriginalQuantity,
		RemainingQuantity: o.RemainingQuantity,
		FilledQuantity:    o.Filled(),
		Sequence:          o.Sequence,
		Status:            o.Status.String(),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func newTradeViews(c *ticks.Converter, trades []orderbook.Trade) []TradeView {
	out := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeView{
			Sequence:    t.Sequence,
			Symbol:      t.Symbol,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Price:       c.Format(t.Price),
			PriceTicks:  t.Price,
			Quantity:    t.Quantity,
			Aggressor:   t.Aggressor.String(),
			Timestamp:   t.Timestamp,
		})
	}
	return out
}

func newLevelViews(c *ticks.Converter, levels []orderbook.LevelSnapshot) []LevelView {
	out := make([]LevelView, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelView{
			Price:      c.Format(l.Price),
			PriceTicks: l.Price,
			Quantity:   l.Quantity,
			Orders:     l.Orders,
		})
	}
	return out
}

func newBookView(c *ticks.Converter, snap orderbook.BookSnapshot) BookView {
	return BookView{
		Symbol: snap.Symbol,
		Bids:   newLevelViews(c, snap.Bids),
		Asks:   newLevelViews(c, snap.Asks),
	}
}
