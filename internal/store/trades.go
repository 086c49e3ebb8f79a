package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"exchange/internal/orderbook"
)

const tradeColumns = `symbol, sequence, buy_order_id, sell_order_id, price, quantity, aggressor, executed_at`

func scanTrade(row rowScanner) (orderbook.Trade, error) {
	var (
		t                 orderbook.Trade
		seq, buyID, selID int64
		aggressor         string
		executedAt        int64
	)
	if err := row.Scan(&t.Symbol, &seq, &buyID, &selID, &t.Price, &t.Quantity, &aggressor, &executedAt); err != nil {
		return t, err
	}
	side, ok := orderbook.ParseSide(aggressor)
	if !ok {
		return t, errors.Errorf("trade %s/%d: bad aggressor %q", t.Symbol, seq, aggressor)
	}
	t.Sequence = uint64(seq)
	t.BuyOrderID = uint64(buyID)
	t.SellOrderID = uint64(selID)
	t.Aggressor = side
	t.Timestamp = time.Unix(0, executedAt).UTC()
	return t, nil
}

func (s *Store) queryTrades(ctx context.Context, query string, args ...any) ([]orderbook.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query trades")
	}
	defer rows.Close()

	trades := make([]orderbook.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan trade")
		}
		trades = append(trades, t)
	}
	return trades, errors.Wrap(rows.Err(), "iterate trades")
}

// RecentTrades returns up to limit of the latest trades for symbol, oldest first
func (s *Store) RecentTrades(ctx context.Context, symbol string, limit int) ([]orderbook.Trade, error) {
	trades, err := s.queryTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades WHERE symbol = ?
		ORDER BY sequence DESC LIMIT ?
	`, symbol, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// TradesForOrder returns every trade the order took part in, in execution order
func (s *Store) TradesForOrder(ctx context.Context, symbol string, id uint64) ([]orderbook.Trade, error) {
	return s.queryTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE symbol = ? AND (buy_order_id = ? OR sell_order_id = ?)
		ORDER BY sequence
	`, symbol, int64(id), int64(id))
}
