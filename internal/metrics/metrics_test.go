package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(NewRegistry())

	m.ObserveEnvelope("ticker", "ok")
	m.ObserveEnvelope("ticker", "ok")
	m.ObserveEnvelope("market_trades", "parse_error")
	m.IncDropped("ticker")
	m.SetQueueDepth("trade", 7)
	m.AddWrites("trade_data", 3, 1, 2)
	m.ObserveRefresh(0.2, nil)
	m.ObserveRefresh(0.1, errors.New("boom"))
	m.SetSubscriberState(2)
	m.IncReconnects()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Envelopes.WithLabelValues("ticker", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Envelopes.WithLabelValues("market_trades", "parse_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueDropped.WithLabelValues("ticker")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("trade")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WriterInserts.WithLabelValues("trade_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriterConflicts.WithLabelValues("trade_data")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WriterErrors.WithLabelValues("trade_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollupRefresh.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RollupRefresh.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubscriberState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEnvelope("ticker", "ok")
		m.IncDropped("ticker")
		m.SetQueueDepth("ticker", 1)
		m.AddWrites("ticker_data", 1, 0, 0)
		m.ObserveRefresh(1, nil)
		m.SetSubscriberState(1)
		m.IncReconnects()
	})
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.ObserveEnvelope("heartbeats", "ignored")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `coinbase_feed_envelopes_total{channel="heartbeats",result="ignored"} 1`)
}
