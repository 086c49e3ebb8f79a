package store

import (
	"github.com/pkg/errors"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of all migrations
// New migrations should be appended to the end with incrementing version numbers
var migrations = []Migration{
	{
		Version:     1,
		Description: "Orders and trades",
		SQL: `
		CREATE TABLE IF NOT EXISTS orders (
			symbol TEXT NOT NULL,
			id INTEGER NOT NULL,
			side TEXT NOT NULL,
			price INTEGER NOT NULL,
			original_quantity INTEGER NOT NULL,
			remaining_quantity INTEGER NOT NULL,
			sequence INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, id)
		);

		CREATE TABLE IF NOT EXISTS trades (
			symbol TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			buy_order_id INTEGER NOT NULL,
			sell_order_id INTEGER NOT NULL,
			price INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			aggressor TEXT NOT NULL,
			executed_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, sequence)
		);

		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(symbol, status);
		`,
	},
	{
		Version:     2,
		Description: "Trade lookup by order",
		SQL: `
		CREATE INDEX IF NOT EXISTS idx_trades_buy ON trades(symbol, buy_order_id);
		CREATE INDEX IF NOT EXISTS idx_trades_sell ON trades(symbol, sell_order_id);
		`,
	},
}

// initMigrationsTable creates the migrations tracking table
func (s *Store) initMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// getCurrentVersion returns the highest applied migration version
func (s *Store) getCurrentVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Migrate runs all pending migrations
func (s *Store) Migrate() error {
	if err := s.initMigrationsTable(); err != nil {
		return errors.Wrap(err, "init migrations table")
	}

	currentVersion, err := s.getCurrentVersion()
	if err != nil {
		return errors.Wrap(err, "get schema version")
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		if err := s.applyMigration(m); err != nil {
			return errors.Wrapf(err, "migration %d (%s)", m.Version, m.Description)
		}
	}

	return nil
}

// applyMigration runs a single migration in a transaction
func (s *Store) applyMigration(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// MigrationStatus returns applied and pending migrations
func (s *Store) MigrationStatus() (applied []int, pending []int, err error) {
	if err := s.initMigrationsTable(); err != nil {
		return nil, nil, err
	}

	// Get applied versions
	rows, err := s.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	appliedSet := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, nil, err
		}
		applied = append(applied, v)
		appliedSet[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	// Find pending
	for _, m := range migrations {
		if !appliedSet[m.Version] {
			pending = append(pending, m.Version)
		}
	}

	return applied, pending, nil
}

