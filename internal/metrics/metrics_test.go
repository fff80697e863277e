package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New("orderbot")

	m.InboundEvent("whatsapp")
	m.InboundEvent("whatsapp")
	m.DuplicateEvent("whatsapp")
	m.Transition("main_menu", "select_product")
	m.OrderCommitted()
	m.CommitFailed("duplicate_number")
	m.ObserveTurn(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.inbound.WithLabelValues("whatsapp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicates.WithLabelValues("whatsapp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("main_menu", "select_product")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitFailures.WithLabelValues("duplicate_number")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InboundEvent("irc")
		m.Transition("a", "b")
		m.OrderCommitted()
		m.CommitFailed("x")
		m.ObserveTurn(time.Now())
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("orderbot")
	m.OrderCommitted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orderbot_orders_committed_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
