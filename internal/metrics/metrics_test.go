package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCommand("FAKE", "submit", time.Millisecond)
	m.Rejected("FAKE", "cancel", "not_found")
	m.Traded("FAKE", 2, 10)
	m.SetBook("FAKE", 1, 1, 0)
	m.PersistDropped()
	m.PersistFailed()
	m.PersistQueued(3)
	m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()

	m.Traded("FAKE", 2, 15)
	m.Traded("FAKE", 1, 5)
	m.Rejected("FAKE", "submit", "invalid_input")
	m.PersistDropped()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.trades.WithLabelValues("FAKE")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.tradedQuantity.WithLabelValues("FAKE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("FAKE", "submit", "invalid_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistDropped))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveCommand("FAKE", "submit", time.Microsecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "exchange_commands_total"))
}
