package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func Test_Metrics(t *testing.T) {
	m := New()

	m.ObserveCommand("get", "hit", time.Millisecond)
	m.ObserveCommand("get", "hit", time.Millisecond)
	m.ObserveCommand("set", "stored", time.Millisecond)
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.SetBreakerState(1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("get", "hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.connsCurrent))
	require.Equal(t, 2.0, testutil.ToFloat64(m.connsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.breakerState))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `mcbridge_commands_total{op="set",outcome="stored"} 1`))
}

func Test_NilMetrics(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.ObserveCommand("get", "miss", time.Millisecond)
		m.ConnOpened()
		m.ConnClosed()
		m.SetBreakerState(2)
	})
	require.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
