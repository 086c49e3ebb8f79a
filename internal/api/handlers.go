package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"exchange/internal/matching"
	"exchange/internal/orderbook"
	"exchange/internal/store"
)

const (
	maxBodyBytes      = 1 << 16
	defaultTradeLimit = 50
)

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

func orderID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid order id %q", errBadRequest, chi.URLParam(r, "id"))
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

func (s *Server) toTicks(price *decimal.Decimal) (int64, error) {
	if price == nil {
		return 0, fmt.Errorf("%w: price is required", matching.ErrInvalidInput)
	}
	n, err := s.ticks.ToTicks(*price)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", matching.ErrInvalidInput, err)
	}
	return n, nil
}

// orderError upgrades NotFound to AlreadyTerminal when the order has aged out
// of the engine's retired window but its terminal state is persisted.
func (s *Server) orderError(w http.ResponseWriter, r *http.Request, id uint64, err error) {
	if s.store != nil && errors.Is(err, matching.ErrNotFound) {
		if o, serr := s.store.GetOrder(r.Context(), symbolFrom(r), id); serr == nil && o.Status.Terminal() {
			err = fmt.Errorf("%w: order %d is %s", matching.ErrAlreadyTerminal, id, o.Status)
		}
	}
	s.writeError(w, r, err)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets := make([]MarketView, 0)
	for _, sym := range s.venue.Symbols() {
		st, err := s.venue.Stats(sym)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		m := MarketView{
			Symbol:     sym,
			TickSize:   s.ticks.TickSize().String(),
			LiveOrders: st.LiveOrders,
		}
		if st.BestBid > 0 {
			m.BestBid = s.ticks.Format(st.BestBid)
		}
		if st.BestAsk > 0 {
			m.BestAsk = s.ticks.Format(st.BestAsk)
		}
		markets = append(markets, m)
	}
	writeJSON(w, http.StatusOK, markets)
}

type SubmitRequest struct {
	Side     string           `json:"side"`
	Price    *decimal.Decimal `json:"price"`
	Quantity int64            `json:"quantity"`
}

type SubmitResponse struct {
	OrderID uint64      `json:"order_id"`
	Trades  []TradeView `json:"trades"`
	Resting *OrderView  `json:"resting"`
}

func (s *Server) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	side, ok := orderbook.ParseSide(req.Side)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: side must be 'buy' or 'sell'", matching.ErrInvalidInput))
		return
	}
	price, err := s.toTicks(req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.venue.Submit(symbolFrom(r), side, price, req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitResponse{
		OrderID: res.OrderID,
		Trades:  newTradeViews(s.ticks, res.Trades),
		Resting: newOrderView(s.ticks, res.Resting),
	})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	o, err := s.venue.Order(symbolFrom(r), id)
	if err == nil {
		writeJSON(w, http.StatusOK, newOrderView(s.ticks, o))
		return
	}
	// Older than the engine's retired window: fall back to the mirror.
	if s.store != nil && errors.Is(err, matching.ErrNotFound) {
		persisted, serr := s.store.GetOrder(r.Context(), symbolFrom(r), id)
		if serr == nil {
			writeJSON(w, http.StatusOK, newOrderView(s.ticks, persisted))
			return
		}
		if !errors.Is(serr, store.ErrOrderNotFound) {
			s.writeError(w, r, serr)
			return
		}
	}
	s.writeError(w, r, err)
}

type ModifyRequest struct {
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity *int64           `json:"quantity,omitempty"`
}

type ModifyResponse struct {
	OrderID uint64      `json:"order_id"`
	Trades  []TradeView `json:"trades"`
	Order   *OrderView  `json:"order"`
}

func (s *Server) modifyOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ModifyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	mod := matching.ModifyRequest{Quantity: req.Quantity}
	if req.Price != nil {
		price, err := s.toTicks(req.Price)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		mod.Price = &price
	}

	res, err := s.venue.Modify(symbolFrom(r), id, mod)
	if err != nil {
		s.orderError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, ModifyResponse{
		OrderID: res.OrderID,
		Trades:  newTradeViews(s.ticks, res.Trades),
		Order:   newOrderView(s.ticks, res.Order),
	})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.venue.Cancel(symbolFrom(r), id); err != nil {
		s.orderError(w, r, id, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errNoPersistence)
		return
	}

	f := store.OrderFilter{Symbol: symbolFrom(r)}
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		st, ok := orderbook.ParseStatus(raw)
		if !ok {
			s.writeError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, raw))
			return
		}
		f.Status = &st
	}
	if raw := q.Get("side"); raw != "" {
		side, ok := orderbook.ParseSide(raw)
		if !ok {
			s.writeError(w, r, fmt.Errorf("%w: unknown side %q", errBadRequest, raw))
			return
		}
		f.Side = &side
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f.Limit = limit

	orders, err := s.store.ListOrders(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]*OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, newOrderView(s.ticks, &orders[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) orderTrades(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errNoPersistence)
		return
	}
	id, err := orderID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	trades, err := s.store.TradesForOrder(r.Context(), symbolFrom(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTradeViews(s.ticks, trades))
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.venue.Snapshot(symbolFrom(r), depth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookView(s.ticks, snap))
}

func (s *Server) getTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTradeLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if limit <= 0 {
		limit = defaultTradeLimit
	}

	trades, err := s.venue.RecentTrades(symbolFrom(r), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTradeViews(s.ticks, trades))
}
