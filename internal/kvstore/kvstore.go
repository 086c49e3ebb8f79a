// Package kvstore mirrors engine batches into a pebble database.
//
// Keys:
//
//	order/<symbol>/<id:8 bytes big-endian>    latest order state (JSON)
//	trade/<symbol>/<seq:8 bytes big-endian>   trade (JSON)
//
// Big-endian ids keep a prefix scan in id order.
package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"exchange/internal/matching"
	"exchange/internal/orderbook"
)

var ErrNotFound = errors.New("kvstore: not found")

type Store struct {
	db *pebble.DB
}

func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble %s", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func prefix(kind, symbol string) []byte {
	p := make([]byte, 0, len(kind)+len(symbol)+2)
	p = append(p, kind...)
	p = append(p, '/')
	p = append(p, symbol...)
	return append(p, '/')
}

func key(kind, symbol string, n uint64) []byte {
	return binary.BigEndian.AppendUint64(prefix(kind, symbol), n)
}

func orderKey(symbol string, id uint64) []byte { return key("order", symbol, id) }
func tradeKey(symbol string, seq uint64) []byte { return key("trade", symbol, seq) }

// upperBound returns the smallest key greater than every key with prefix p.
func upperBound(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Record applies b as one synced pebble batch.
func (s *Store) Record(_ context.Context, b matching.Batch) error {
	wb := s.db.NewBatch()
	defer wb.Close()

	for i := range b.Orders {
		o := &b.Orders[i]
		val, err := json.Marshal(o)
		if err != nil {
			return errors.Wrapf(err, "encode order %s/%d", o.Symbol, o.ID)
		}
		if err := wb.Set(orderKey(o.Symbol, o.ID), val, nil); err != nil {
			return errors.Wrap(err, "stage order")
		}
	}
	for i := range b.Trades {
		t := &b.Trades[i]
		val, err := json.Marshal(t)
		if err != nil {
			return errors.Wrapf(err, "encode trade %s/%d", t.Symbol, t.Sequence)
		}
		if err := wb.Set(tradeKey(t.Symbol, t.Sequence), val, nil); err != nil {
			return errors.Wrap(err, "stage trade")
		}
	}

	return errors.Wrap(wb.Commit(pebble.Sync), "commit batch")
}

func (s *Store) GetOrder(symbol string, id uint64) (*orderbook.Order, error) {
	val, closer, err := s.db.Get(orderKey(symbol, id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s/%d", symbol, id)
	}
	defer closer.Close()

	var o orderbook.Order
	if err := json.Unmarshal(val, &o); err != nil {
		return nil, errors.Wrapf(err, "decode order %s/%d", symbol, id)
	}
	return &o, nil
}

// scan visits values in [lower, upper) in key order until fn returns false.
func (s *Store) scan(lower, upper []byte, fn func(val []byte) (bool, error)) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return errors.Wrap(err, "new iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		more, err := fn(iter.Value())
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return errors.Wrap(iter.Error(), "iterate")
}

// ScanOrders returns up to limit orders for symbol in id order. limit <= 0
// returns all.
func (s *Store) ScanOrders(symbol string, limit int) ([]orderbook.Order, error) {
	orders := make([]orderbook.Order, 0)
	p := prefix("order", symbol)
	err := s.scan(p, upperBound(p), func(val []byte) (bool, error) {
		var o orderbook.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return false, errors.Wrap(err, "decode order")
		}
		orders = append(orders, o)
		return limit <= 0 || len(orders) < limit, nil
	})
	return orders, err
}

// ScanTrades returns trades for symbol with sequence >= from, in sequence order.
func (s *Store) ScanTrades(symbol string, from uint64, limit int) ([]orderbook.Trade, error) {
	trades := make([]orderbook.Trade, 0)
	err := s.scan(tradeKey(symbol, from), upperBound(prefix("trade", symbol)), func(val []byte) (bool, error) {
		var t orderbook.Trade
		if err := json.Unmarshal(val, &t); err != nil {
			return false, errors.Wrap(err, "decode trade")
		}
		trades = append(trades, t)
		return limit <= 0 || len(trades) < limit, nil
	})
	return trades, err
}
