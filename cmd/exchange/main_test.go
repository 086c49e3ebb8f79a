package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"exchange/internal/config"
	"exchange/internal/kvstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Instruments: []string{"FAKE"},
		TickSize:    "0.01",
		MaxQuantity: 1000,
		Persist: config.PersistConfig{
			SQLitePath: filepath.Join(dir, "exchange.db"),
			PebbleDir:  filepath.Join(dir, "pebble"),
			QueueSize:  16,
		},
	}
}

func TestBuildFailureReleasesMirrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Instruments = []string{"FAKE", "FAKE"}

	_, err := build(cfg, zap.NewNop())
	require.Error(t, err)

	// Pebble holds a directory lock while open.
	kv, err := kvstore.Open(cfg.Persist.PebbleDir)
	require.NoError(t, err, "pebble mirror left open after a failed build")
	require.NoError(t, kv.Close())
}

func TestBuildAndCloseMirrors(t *testing.T) {
	cfg := testConfig(t)

	a, err := build(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"FAKE"}, a.venue.Symbols())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.server.Shutdown()
	a.closeMirrors(ctx)

	kv, err := kvstore.Open(cfg.Persist.PebbleDir)
	require.NoError(t, err)
	require.NoError(t, kv.Close())
}

func TestBuildRejectsBadTickSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.TickSize = "zero"

	_, err := build(cfg, zap.NewNop())
	assert.Error(t, err)
}
