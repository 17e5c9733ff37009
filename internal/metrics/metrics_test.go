package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("coingecko", time.Now(), nil)
	m.IncFallback()
	m.ObserveCache(true)
	m.ObserveComputation("beta", nil)
	m.ObserveExportItem(errors.New("x"))
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFetch("binance", time.Now(), errors.New("boom"))
	m.ObserveFetch("binance", time.Now(), nil)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.IncFallback()
	m.ObserveExportItem(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("binance", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchRequests.WithLabelValues("binance", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportItems.WithLabelValues("ok")))
}
