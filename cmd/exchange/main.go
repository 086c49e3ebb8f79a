package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"exchange/internal/api"
	"exchange/internal/config"
	"exchange/internal/exchange"
	"exchange/internal/kvstore"
	"exchange/internal/logger"
	"exchange/internal/metrics"
	"exchange/internal/persist"
	"exchange/internal/publish"
	"exchange/internal/store"
	"exchange/internal/ticks"
)

func main() {
	os.Exit(exitCode())
}

// exitCode runs the process and returns its exit status, so deferred
// cleanup, including the logger flush, runs before os.Exit.
func exitCode() int {
	addr := flag.String("addr", "", "listen address (overrides HTTP_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides SQLITE_PATH)")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *dbPath != "" {
		cfg.Persist.SQLitePath = *dbPath
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("exchange stopped", zap.Error(err))
		return 1
	}
	return 0
}

// app is the wired process: the venue, its HTTP surface and the mirrors
// behind the dispatcher.
type app struct {
	venue      *exchange.Venue
	server     *api.Server
	dispatcher *persist.Dispatcher
	ticks      *ticks.Converter
	log        *zap.Logger
}

// build wires every component from cfg. On error, anything already opened
// is closed again.
func build(cfg config.Config, log *zap.Logger) (*app, error) {
	converter, err := ticks.NewConverter(cfg.TickSize)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	// Mirrors, all optional
	var (
		recorders persist.Multi
		sqlite    *store.Store
	)
	if cfg.Persist.SQLitePath != "" {
		sqlite, err = store.New(cfg.Persist.SQLitePath)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, sqlite)
		log.Info("sqlite mirror enabled", zap.String("path", cfg.Persist.SQLitePath))
	}
	if cfg.Persist.PebbleDir != "" {
		kv, err := kvstore.Open(cfg.Persist.PebbleDir)
		if err != nil {
			recorders.Close()
			return nil, err
		}
		recorders = append(recorders, kv)
		log.Info("pebble mirror enabled", zap.String("dir", cfg.Persist.PebbleDir))
	}
	if cfg.Kafka.Enabled() {
		recorders = append(recorders, publish.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		log.Info("kafka mirror enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	a := &app{ticks: converter, log: log}
	venueOpts := exchange.Options{
		RetiredWindow: cfg.RetiredWindow,
		TradeHistory:  cfg.TradeHistory,
		MaxQuantity:   cfg.MaxQuantity,
		Log:           log,
		Metrics:       m,
	}
	if len(recorders) > 0 {
		a.dispatcher = persist.NewDispatcher(recorders, cfg.Persist.QueueSize, log, m)
		venueOpts.Sink = a.dispatcher
	}

	a.venue, err = exchange.New(cfg.Instruments, venueOpts)
	if err != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.closeMirrors(ctx)
		return nil, err
	}

	apiOpts := api.Options{
		Ticks:       converter,
		Log:         log,
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
	}
	if sqlite != nil {
		apiOpts.Store = sqlite
	}
	a.server = api.NewServer(a.venue, apiOpts)
	return a, nil
}

// closeMirrors flushes what is queued and closes every mirror.
func (a *app) closeMirrors(ctx context.Context) {
	if a.dispatcher == nil {
		return
	}
	if err := a.dispatcher.Close(ctx); err != nil {
		a.log.Warn("persist shutdown", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	a, err := build(cfg, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting exchange",
			zap.String("addr", cfg.HTTPAddr),
			zap.Strings("instruments", a.venue.Symbols()),
			zap.String("tick_size", a.ticks.TickSize().String()),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
		log.Error("http server failed", zap.Error(serveErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	a.server.Shutdown()

	// Matching has stopped; flush what is queued and close the mirrors.
	a.closeMirrors(ctx)

	log.Info("shutdown complete")
	return serveErr
}
