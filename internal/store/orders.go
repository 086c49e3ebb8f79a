package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"exchange/internal/orderbook"
)

var ErrOrderNotFound = errors.New("order not found")

const maxListLimit = 1000

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	Symbol string
	Status *orderbook.Status
	Side   *orderbook.Side
	Limit  int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*orderbook.Order, error) {
	var (
		o                  orderbook.Order
		id, seq            int64
		side, status       string
		createdAt, updated int64
	)
	err := row.Scan(&o.Symbol, &id, &side, &o.Price, &o.OriginalQuantity, &o.RemainingQuantity,
		&seq, &status, &createdAt, &updated)
	if err != nil {
		return nil, err
	}

	var ok bool
	if o.Side, ok = orderbook.ParseSide(side); !ok {
		return nil, errors.Errorf("order %s/%d: bad side %q", o.Symbol, id, side)
	}
	if o.Status, ok = orderbook.ParseStatus(status); !ok {
		return nil, errors.Errorf("order %s/%d: bad status %q", o.Symbol, id, status)
	}
	o.ID = uint64(id)
	o.Sequence = uint64(seq)
	o.CreatedAt = time.Unix(0, createdAt).UTC()
	o.UpdatedAt = time.Unix(0, updated).UTC()
	return &o, nil
}

const orderColumns = `symbol, id, side, price, original_quantity, remaining_quantity,
	sequence, status, created_at, updated_at`

// GetOrder returns the last recorded state of an order
func (s *Store) GetOrder(ctx context.Context, symbol string, id uint64) (*orderbook.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE symbol = ? AND id = ?", symbol, int64(id))
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s/%d", symbol, id)
	}
	return o, nil
}

// ListOrders returns recorded orders, newest first
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]orderbook.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, f.Status.String())
	}
	if f.Side != nil {
		where = append(where, "side = ?")
		args = append(args, f.Side.String())
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer rows.Close()

	orders := make([]orderbook.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, *o)
	}
	return orders, errors.Wrap(rows.Err(), "iterate orders")
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
