package metrics_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/evetabi/wagerbot/internal/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	// none of these may panic
	m.WalletDerived()
	m.CacheHit()
	m.BetPlaced()
	m.BetRejected("INSUFFICIENT_FUNDS")
	m.ObserveLedgerCall("balance", 0.1, errors.New("x"))
	m.Transfer("user", "ok")
	m.Intent("help", "success")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.BetPlaced()
	m.BetPlaced()
	m.BetRejected("INSUFFICIENT_FUNDS")
	m.ObserveLedgerCall("balance", 0.2, errors.New("timeout"))

	if got := testutil.ToFloat64(m.BetsPlaced); got != 2 {
		t.Errorf("BetsPlaced = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BetsRejected.WithLabelValues("INSUFFICIENT_FUNDS")); got != 1 {
		t.Errorf("BetsRejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LedgerErrors.WithLabelValues("balance")); got != 1 {
		t.Errorf("LedgerErrors = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.MarketCreated()

	healthy := true
	h := metrics.Handler(reg, func(context.Context) error {
		if !healthy {
			return errors.New("store down")
		}
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "ledger_markets_created_total 1") {
		t.Errorf("/metrics missing counter:\n%s", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", rec.Code)
	}

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/healthz unhealthy = %d, want 503", rec.Code)
	}
}
