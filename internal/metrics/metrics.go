// Package metrics holds the exchange's Prometheus collectors. All methods are
// safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exchange"

type Metrics struct {
	registry *prometheus.Registry

	commands       *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
	trades         *prometheus.CounterVec
	tradedQuantity *prometheus.CounterVec
	liveOrders     *prometheus.GaugeVec
	bookLevels     *prometheus.GaugeVec

	persistQueued   prometheus.Gauge
	persistDropped  prometheus.Counter
	persistFailures prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands applied to a book, by instrument and operation",
		}, []string{"symbol", "op"}),

		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Commands rejected by the engine, by error kind",
		}, []string{"symbol", "op", "reason"}),

		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent applying a command to a book",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2},
		}, []string{"symbol", "op"}),

		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed",
		}, []string{"symbol"}),

		tradedQuantity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Quantity executed across all trades",
		}, []string{"symbol"}),

		liveOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_orders",
			Help:      "Orders currently resting in the book",
		}, []string{"symbol"}),

		bookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_levels",
			Help:      "Distinct price levels per side",
		}, []string{"symbol", "side"}),

		persistQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persist_queue_depth",
			Help:      "Batches waiting to be recorded",
		}),

		persistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_dropped_total",
			Help:      "Batches dropped because the persistence queue was full",
		}),

		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Batches a recorder failed to write",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands,
		m.rejections,
		m.commandLatency,
		m.trades,
		m.tradedQuantity,
		m.liveOrders,
		m.bookLevels,
		m.persistQueued,
		m.persistDropped,
		m.persistFailures,
		m.httpRequests,
		m.httpLatency,
	)

	return m
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCommand(symbol, op string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(symbol, op).Inc()
	m.commandLatency.WithLabelValues(symbol, op).Observe(d.Seconds())
}

func (m *Metrics) Rejected(symbol, op, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(symbol, op, reason).Inc()
}

func (m *Metrics) Traded(symbol string, count int, quantity int64) {
	if m == nil || count == 0 {
		return
	}
	m.trades.WithLabelValues(symbol).Add(float64(count))
	m.tradedQuantity.WithLabelValues(symbol).Add(float64(quantity))
}

func (m *Metrics) SetBook(symbol string, live, bidLevels, askLevels int) {
	if m == nil {
		return
	}
	m.liveOrders.WithLabelValues(symbol).Set(float64(live))
	m.bookLevels.WithLabelValues(symbol, "buy").Set(float64(bidLevels))
	m.bookLevels.WithLabelValues(symbol, "sell").Set(float64(askLevels))
}

func (m *Metrics) PersistQueued(depth int) {
	if m == nil {
		return
	}
	m.persistQueued.Set(float64(depth))
}

func (m *Metrics) PersistDropped() {
	if m == nil {
		return
	}
	m.persistDropped.Inc()
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
