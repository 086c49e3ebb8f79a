package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exchange/internal/matching"
	"exchange/internal/orderbook"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	// Create temp file for test database
	f, err := os.CreateTemp("", "exchange-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	dbPath := f.Name()
	f.Close()

	store, err := New(dbPath)
	if err != nil {
		os.Remove(dbPath)
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(dbPath)
	}

	return store, cleanup
}

func sampleBatch(now time.Time) matching.Batch {
	return matching.Batch{
		Symbol: "FAKE",
		Orders: []orderbook.Order{
			{ID: 1, Symbol: "FAKE", Side: orderbook.Sell, Price: 10000, OriginalQuantity: 10,
				RemainingQuantity: 4, Sequence: 1, Status: orderbook.PartiallyFilled, CreatedAt: now, UpdatedAt: now},
			{ID: 2, Symbol: "FAKE", Side: orderbook.Buy, Price: 10100, OriginalQuantity: 6,
				RemainingQuantity: 0, Sequence: 2, Status: orderbook.Filled, CreatedAt: now, UpdatedAt: now},
		},
		Trades: []orderbook.Trade{
			{Sequence: 1, Symbol: "FAKE", BuyOrderID: 2, SellOrderID: 1, Price: 10000,
				Quantity: 6, Aggressor: orderbook.Buy, Timestamp: now},
		},
	}
}

// ==================== ORDER TESTS ====================

func TestRecordAndGetOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Unix(1700000000, 123).UTC()

	require.NoError(t, store.Record(ctx, sampleBatch(now)))

	o, err := store.GetOrder(ctx, "FAKE", 1)
	require.NoError(t, err)
	assert.Equal(t, orderbook.Sell, o.Side)
	assert.Equal(t, int64(10000), o.Price)
	assert.Equal(t, int64(4), o.RemainingQuantity)
	assert.Equal(t, orderbook.PartiallyFilled, o.Status)
	assert.True(t, o.CreatedAt.Equal(now))

	_, err = store.GetOrder(ctx, "FAKE", 99)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = store.GetOrder(ctx, "OTHER", 1)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestRecordUpsertsLatestState(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	require.NoError(t, store.Record(ctx, sampleBatch(now)))

	later := now.Add(time.Second)
	cancel := matching.Batch{Symbol: "FAKE", Orders: []orderbook.Order{
		{ID: 1, Symbol: "FAKE", Side: orderbook.Sell, Price: 10000, OriginalQuantity: 10,
			RemainingQuantity: 4, Sequence: 1, Status: orderbook.Cancelled, CreatedAt: now, UpdatedAt: later},
	}}
	require.NoError(t, store.Record(ctx, cancel))

	o, err := store.GetOrder(ctx, "FAKE", 1)
	require.NoError(t, err)
	assert.Equal(t, orderbook.Cancelled, o.Status)
	assert.True(t, o.UpdatedAt.Equal(later))
	assert.True(t, o.CreatedAt.Equal(now), "created_at must survive updates")
}

func TestRecordIsIdempotentForTrades(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	b := sampleBatch(time.Unix(1700000000, 0))

	require.NoError(t, store.Record(ctx, b))
	require.NoError(t, store.Record(ctx, b))

	trades, err := store.RecentTrades(ctx, "FAKE", 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestOrdersAreKeyedBySymbol(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	require.NoError(t, store.Record(ctx, sampleBatch(now)))
	other := sampleBatch(now)
	other.Symbol = "OTHER"
	for i := range other.Orders {
		other.Orders[i].Symbol = "OTHER"
	}
	for i := range other.Trades {
		other.Trades[i].Symbol = "OTHER"
	}
	require.NoError(t, store.Record(ctx, other))

	all, err := store.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	fake, err := store.ListOrders(ctx, OrderFilter{Symbol: "FAKE"})
	require.NoError(t, err)
	assert.Len(t, fake, 2)
}

func TestListOrdersFilters(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleBatch(time.Unix(1700000000, 0))))

	filled := orderbook.Filled
	orders, err := store.ListOrders(ctx, OrderFilter{Symbol: "FAKE", Status: &filled})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(2), orders[0].ID)

	sell := orderbook.Sell
	orders, err = store.ListOrders(ctx, OrderFilter{Symbol: "FAKE", Side: &sell})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(1), orders[0].ID)

	orders, err = store.ListOrders(ctx, OrderFilter{Symbol: "FAKE", Limit: 1})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, uint64(2), orders[0].ID, "newest first")
}

// ==================== TRADE TESTS ====================

func TestRecentTradesOldestFirst(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	b := matching.Batch{Symbol: "FAKE"}
	for seq := uint64(1); seq <= 5; seq++ {
		b.Trades = append(b.Trades, orderbook.Trade{
			Sequence: seq, Symbol: "FAKE", BuyOrderID: 10, SellOrderID: seq,
			Price: 10000, Quantity: 1, Aggressor: orderbook.Buy, Timestamp: now,
		})
	}
	require.NoError(t, store.Record(ctx, b))

	trades, err := store.RecentTrades(ctx, "FAKE", 3)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, uint64(3), trades[0].Sequence)
	assert.Equal(t, uint64(5), trades[2].Sequence)
	assert.Equal(t, orderbook.Buy, trades[0].Aggressor)
}

func TestTradesForOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, sampleBatch(time.Unix(1700000000, 0))))

	for _, id := range []uint64{1, 2} {
		trades, err := store.TradesForOrder(ctx, "FAKE", id)
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, int64(6), trades[0].Quantity)
	}

	none, err := store.TradesForOrder(ctx, "FAKE", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStore(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Record(ctx, sampleBatch(time.Unix(1700000000, 0))))
	_, err = store.GetOrder(ctx, "FAKE", 2)
	assert.NoError(t, err)
}

// ==================== MIGRATION TESTS ====================

func TestMigrationStatus(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	// After New(), all migrations should be applied
	applied, pending, err := store.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}

	if len(pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(pending))
	}

	// Should have at least the initial migrations applied
	if len(applied) < 2 {
		t.Errorf("expected at least 2 applied migrations, got %d", len(applied))
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	// Running Migrate() again should be a no-op
	err := store.Migrate()
	if err != nil {
		t.Fatalf("second Migrate() failed: %v", err)
	}

	_, pending, err := store.MigrationStatus()
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}

	if len(pending) != 0 {
		t.Errorf("expected no pending migrations after re-run, got %d", len(pending))
	}

	// Tables still accept writes
	if err := store.Record(context.Background(), sampleBatch(time.Unix(1700000000, 0))); err != nil {
		t.Fatalf("Record failed after migration re-run: %v", err)
	}
}

func TestMigrationVersionsAreSequential(t *testing.T) {
	// Verify migrations are in order
	for i, m := range migrations {
		expectedVersion := i + 1
		if m.Version != expectedVersion {
			t.Errorf("migration %d has version %d, expected %d", i, m.Version, expectedVersion)
		}
	}
}
