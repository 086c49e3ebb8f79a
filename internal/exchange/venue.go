// Package exchange hosts one independent matching engine per instrument.
package exchange

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"exchange/internal/matching"
	"exchange/internal/metrics"
	"exchange/internal/orderbook"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

type Options struct {
	RetiredWindow int
	TradeHistory  int
	MaxQuantity   int64
	// Sink receives every engine's committed batches.
	Sink    matching.Sink
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Venue routes commands to the engine for their instrument. Engines share no
// mutable state, so commands on different instruments run concurrently.
type Venue struct {
	engines map[string]*matching.Engine
	symbols []string
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(symbols []string, opts Options) (*Venue, error) {
	if len(symbols) == 0 {
		return nil, errors.New("exchange: no instruments configured")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	engineOpts := matching.DefaultOptions()
	if opts.RetiredWindow > 0 {
		engineOpts.RetiredWindow = opts.RetiredWindow
	}
	if opts.TradeHistory > 0 {
		engineOpts.TradeHistory = opts.TradeHistory
	}
	if opts.MaxQuantity > 0 {
		engineOpts.MaxQuantity = opts.MaxQuantity
	}
	if opts.Now != nil {
		engineOpts.Now = opts.Now
	}
	engineOpts.Sink = opts.Sink

	v := &Venue{
		engines: make(map[string]*matching.Engine, len(symbols)),
		log:     opts.Log.Named("venue"),
		metrics: opts.Metrics,
	}
	for _, s := range symbols {
		if s == "" {
			return nil, errors.New("exchange: empty instrument symbol")
		}
		if _, dup := v.engines[s]; dup {
			return nil, fmt.Errorf("exchange: duplicate instrument %q", s)
		}
		v.engines[s] = matching.New(s, engineOpts)
		v.symbols = append(v.symbols, s)
	}
	sort.Strings(v.symbols)
	return v, nil
}

// Symbols lists configured instruments in sorted order.
func (v *Venue) Symbols() []string {
	out := make([]string, len(v.symbols))
	copy(out, v.symbols)
	return out
}

func (v *Venue) Engine(symbol string) (*matching.Engine, error) {
	e, ok := v.engines[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstrument, symbol)
	}
	return e, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, matching.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, matching.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, matching.ErrNotFound):
		return "not_found"
	case errors.Is(err, matching.ErrAlreadyTerminal):
		return "already_terminal"
	default:
		return "other"
	}
}

// observe records the outcome of one command.
func (v *Venue) observe(e *matching.Engine, op string, start time.Time, trades []orderbook.Trade, err error) {
	symbol := e.Symbol()
	v.metrics.ObserveCommand(symbol, op, time.Since(start))
	if err != nil {
		v.log.Debug("command rejected",
			zap.String("symbol", symbol),
			zap.String("op", op),
			zap.Error(err),
		)
		v.metrics.Rejected(symbol, op, reason(err))
		return
	}

	var qty int64
	for _, t := range trades {
		qty += t.Quantity
	}
	v.metrics.Traded(symbol, len(trades), qty)
	if v.metrics != nil {
		st := e.Stats()
		v.metrics.SetBook(symbol, st.LiveOrders, st.BidLevels, st.AskLevels)
	}
}

func (v *Venue) Submit(symbol string, side orderbook.Side, price, quantity int64) (matching.SubmitResult, error) {
	e, err := v.Engine(symbol)
	if err != nil {
		return matching.SubmitResult{}, err
	}
	start := time.Now()
	res, err := e.Submit(side, price, quantity)
	v.observe(e, "submit", start, res.Trades, err)
	return res, err
}

func (v *Venue) Cancel(symbol string, id uint64) error {
	e, err := v.Engine(symbol)
	if err != nil {
		return err
	}
	start := time.Now()
	err = e.Cancel(id)
	v.observe(e, "cancel", start, nil, err)
	return err
}

func (v *Venue) Modify(symbol string, id uint64, req matching.ModifyRequest) (matching.ModifyResult, error) {
	e, err := v.Engine(symbol)
	if err != nil {
		return matching.ModifyResult{}, err
	}
	start := time.Now()
	res, err := e.Modify(id, req)
	v.observe(e, "modify", start, res.Trades, err)
	return res, err
}

func (v *Venue) Order(symbol string, id uint64) (*orderbook.Order, error) {
	e, err := v.Engine(symbol)
	if err != nil {
		return nil, err
	}
	return e.Order(id)
}

func (v *Venue) Snapshot(symbol string, depth int) (orderbook.BookSnapshot, error) {
	e, err := v.Engine(symbol)
	if err != nil {
		return orderbook.BookSnapshot{}, err
	}
	return e.Snapshot(depth), nil
}

func (v *Venue) RecentTrades(symbol string, n int) ([]orderbook.Trade, error) {
	e, err := v.Engine(symbol)
	if err != nil {
		return nil, err
	}
	return e.RecentTrades(n), nil
}

func (v *Venue) Stats(symbol string) (matching.Stats, error) {
	e, err := v.Engine(symbol)
	if err != nil {
		return matching.Stats{}, err
	}
	return e.Stats(), nil
}
