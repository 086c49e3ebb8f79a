package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"exchange/internal/matching"
)

// Store mirrors orders and trades into SQLite
type Store struct {
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", dbPath)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	s := &Store{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes every order state and trade in b in one transaction. Orders
// are upserted so the row always holds the latest state; trades already
// present are left alone.
func (s *Store) Record(ctx context.Context, b matching.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin record tx")
	}
	defer tx.Rollback()

	for _, o := range b.Orders {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (symbol, id, side, price, original_quantity, remaining_quantity,
				sequence, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, id) DO UPDATE SET
				price = excluded.price,
				original_quantity = excluded.original_quantity,
				remaining_quantity = excluded.remaining_quantity,
				sequence = excluded.sequence,
				status = excluded.status,
				updated_at = excluded.updated_at
		`, o.Symbol, int64(o.ID), o.Side.String(), o.Price, o.OriginalQuantity, o.RemainingQuantity,
			int64(o.Sequence), o.Status.String(), o.CreatedAt.UnixNano(), o.UpdatedAt.UnixNano())
		if err != nil {
			return errors.Wrapf(err, "upsert order %s/%d", o.Symbol, o.ID)
		}
	}

	for _, t := range b.Trades {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO trades (symbol, sequence, buy_order_id, sell_order_id,
				price, quantity, aggressor, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, t.Symbol, int64(t.Sequence), int64(t.BuyOrderID), int64(t.SellOrderID),
			t.Price, t.Quantity, t.Aggressor.String(), t.Timestamp.UnixNano())
		if err != nil {
			return errors.Wrapf(err, "insert trade %s/%d", t.Symbol, t.Sequence)
		}
	}

	return errors.Wrap(tx.Commit(), "commit record tx")
}

// DB returns the underlying database connection for advanced operations
func (s *Store) DB() *sql.DB {
	return s.db
}
