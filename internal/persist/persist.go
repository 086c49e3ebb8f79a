// Package persist mirrors committed engine batches to durable stores. The
// engine's in-memory state is authoritative; everything here is best effort.
package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"exchange/internal/matching"
	"exchange/internal/metrics"
)

// Recorder writes one committed batch. Implementations upsert order state by
// (symbol, order id) and insert trades by (symbol, sequence), so replaying a
// batch is harmless.
type Recorder interface {
	Record(ctx context.Context, b matching.Batch) error
	Close() error
}

// Multi records each batch to every recorder in turn.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, b matching.Batch) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

const recordTimeout = 5 * time.Second

// Dispatcher is a matching.Sink that hands batches to a Recorder on a single
// background worker, preserving publish order. Publish never blocks: when the
// queue is full the batch is dropped, logged and counted.
type Dispatcher struct {
	rec     Recorder
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan matching.Batch
	done   chan struct{}

	// ctx parents every Record call; cancelling it abandons the queue.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewDispatcher(rec Recorder, size int, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		ctx:     ctx,
		cancel:  cancel,
		rec:     rec,
		log:     log.Named("persist"),
		metrics: m,
		queue:   make(chan matching.Batch, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Publish(b matching.Batch) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn("batch published after close", zap.String("symbol", b.Symbol))
		d.metrics.PersistDropped()
		return
	}
	select {
	case d.queue <- b:
		d.metrics.PersistQueued(len(d.queue))
	default:
		d.log.Warn("persist queue full, dropping batch",
			zap.String("symbol", b.Symbol),
			zap.Int("orders", len(b.Orders)),
			zap.Int("trades", len(b.Trades)),
		)
		d.metrics.PersistDropped()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	abandoned := 0
	for b := range d.queue {
		d.metrics.PersistQueued(len(d.queue))
		if d.ctx.Err() != nil {
			abandoned++
			d.metrics.PersistDropped()
			continue
		}
		d.record(b)
	}
	if abandoned > 0 {
		d.log.Warn("abandoned queued batches on shutdown", zap.Int("batches", abandoned))
	}
}

func (d *Dispatcher) record(b matching.Batch) {
	ctx, cancel := context.WithTimeout(d.ctx, recordTimeout)
	defer cancel()

	if err := d.rec.Record(ctx, b); err != nil {
		fields := []zap.Field{
			zap.String("symbol", b.Symbol),
			zap.Error(err),
		}
		if len(b.Orders) > 0 {
			fields = append(fields, zap.Uint64("order_id", b.Orders[len(b.Orders)-1].ID))
		}
		if len(b.Trades) > 0 {
			fields = append(fields, zap.Uint64("trade_seq", b.Trades[len(b.Trades)-1].Sequence))
		}
		d.log.Error("record batch", fields...)
		d.metrics.PersistFailed()
	}
}

// Close stops accepting batches, drains the queue and closes the recorder. If
// ctx expires first the in-flight record is cancelled, the remaining batches
// are abandoned and ctx's error is returned; the recorder is closed either way.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	var err error
	select {
	case <-d.done:
	case <-ctx.Done():
		err = ctx.Err()
		d.cancel()
		<-d.done
	}
	d.cancel()
	return errors.Join(err, d.rec.Close())
}
