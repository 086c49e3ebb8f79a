package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"exchange/internal/exchange"
	"exchange/internal/metrics"
	"exchange/internal/orderbook"
	"exchange/internal/store"
	"exchange/internal/ticks"
)

// OrderStore is the persisted mirror the API falls back to for orders that
// have left the engine.
type OrderStore interface {
	GetOrder(ctx context.Context, symbol string, id uint64) (*orderbook.Order, error)
	ListOrders(ctx context.Context, f store.OrderFilter) ([]orderbook.Order, error)
	TradesForOrder(ctx context.Context, symbol string, id uint64) ([]orderbook.Trade, error)
}

type Options struct {
	// Store may be nil, in which case history routes answer 501.
	Store       OrderStore
	Ticks       *ticks.Converter
	Log         *zap.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string // empty allows all
	RateLimit   int      // requests per minute per client, 0 disables
}

type Server struct {
	venue       *exchange.Venue
	store       OrderStore
	ticks       *ticks.Converter
	log         *zap.Logger
	metrics     *metrics.Metrics
	corsOrigins []string
	rateLimiter *RateLimiter
}

func NewServer(v *exchange.Venue, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Ticks == nil {
		opts.Ticks = ticks.MustConverter("0.01")
	}
	s := &Server{
		venue:       v,
		store:       opts.Store,
		ticks:       opts.Ticks,
		log:         opts.Log.Named("api"),
		metrics:     opts.Metrics,
		corsOrigins: opts.CORSOrigins,
	}
	if opts.RateLimit > 0 {
		s.rateLimiter = NewRateLimiter(opts.RateLimit, time.Minute)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware)
	}

	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api/markets", func(r chi.Router) {
		r.Get("/", s.listMarkets)

		r.Route("/{symbol}", func(r chi.Router) {
			r.Use(s.requireMarket)

			r.Post("/orders", s.submitOrder)
			r.Get("/orders", s.listOrders)
			r.Get("/orders/{id}", s.getOrder)
			r.Put("/orders/{id}", s.modifyOrder)
			r.Delete("/orders/{id}", s.cancelOrder)
			r.Get("/orders/{id}/trades", s.orderTrades)
			r.Get("/book", s.getBook)
			r.Get("/trades", s.getTrades)
		})
	})

	return r
}

// Shutdown stops background goroutines owned by the server
func (s *Server) Shutdown() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
