// Package metrics holds the prometheus collectors for custody and the ledger
// and the small /metrics + /healthz server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, so services can run without instrumentation in tests.
type Metrics struct {
	WalletsDerived    prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	IndexCollisions   prometheus.Counter
	LedgerCalls       *prometheus.HistogramVec
	LedgerErrors      *prometheus.CounterVec
	Transfers         *prometheus.CounterVec
	MarketsCreated    prometheus.Counter
	MarketTransitions *prometheus.CounterVec
	BetsPlaced        prometheus.Counter
	BetsRejected      *prometheus.CounterVec
	IntegrityFailures prometheus.Counter
	EventPublishFails prometheus.Counter
	Intents           *prometheus.CounterVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WalletsDerived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custody_wallets_derived_total", Help: "wallet records derived from the master secret",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custody_cache_hits_total", Help: "wallet lookups served from the cache",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custody_cache_misses_total", Help: "wallet lookups that went to the store",
		}),
		IndexCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "custody_index_collisions_total", Help: "derivation indices already owned by another identifier",
		}),
		LedgerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "custody_ledger_call_seconds", Help: "network ledger round trip latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		LedgerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_ledger_errors_total", Help: "network ledger failures by operation",
		}, []string{"op"}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_transfers_total", Help: "transfers by source and result",
		}, []string{"source", "result"}),
		MarketsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_markets_created_total", Help: "markets created",
		}),
		MarketTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_market_transitions_total", Help: "market status transitions",
		}, []string{"to"}),
		BetsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_bets_placed_total", Help: "bets recorded",
		}),
		BetsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_bets_rejected_total", Help: "bets rejected by error code",
		}, []string{"code"}),
		IntegrityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_integrity_failures_total", Help: "pool totals that disagree with their bets",
		}),
		EventPublishFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_event_publish_failures_total", Help: "events that could not be delivered",
		}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_intents_total", Help: "intents handled by action and outcome",
		}, []string{"action", "outcome"}),
	}
	reg.MustRegister(
		m.WalletsDerived, m.CacheHits, m.CacheMisses, m.IndexCollisions,
		m.LedgerCalls, m.LedgerErrors, m.Transfers,
		m.MarketsCreated, m.MarketTransitions, m.BetsPlaced, m.BetsRejected,
		m.IntegrityFailures, m.EventPublishFails, m.Intents,
	)
	return m
}

// ── nil-safe helpers ─────────────────────────────────────────────────────────

func (m *Metrics) WalletDerived() {
	if m != nil {
		m.WalletsDerived.Inc()
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) IndexCollision() {
	if m != nil {
		m.IndexCollisions.Inc()
	}
}

func (m *Metrics) MarketCreated() {
	if m != nil {
		m.MarketsCreated.Inc()
	}
}

func (m *Metrics) BetPlaced() {
	if m != nil {
		m.BetsPlaced.Inc()
	}
}

func (m *Metrics) IntegrityFailed() {
	if m != nil {
		m.IntegrityFailures.Inc()
	}
}

func (m *Metrics) PublishFailed() {
	if m != nil {
		m.EventPublishFails.Inc()
	}
}

// ObserveLedgerCall records one network round trip for op.
func (m *Metrics) ObserveLedgerCall(op string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.LedgerCalls.WithLabelValues(op).Observe(seconds)
	if err != nil {
		m.LedgerErrors.WithLabelValues(op).Inc()
	}
}

// Transfer counts a transfer attempt from source ("user" or "master").
func (m *Metrics) Transfer(source, result string) {
	if m != nil {
		m.Transfers.WithLabelValues(source, result).Inc()
	}
}

// MarketTransition counts a status change into to.
func (m *Metrics) MarketTransition(to string) {
	if m != nil {
		m.MarketTransitions.WithLabelValues(to).Inc()
	}
}

// BetRejected counts a refused bet by error code.
func (m *Metrics) BetRejected(code string) {
	if m != nil {
		m.BetsRejected.WithLabelValues(code).Inc()
	}
}

// Intent counts a handled intent.
func (m *Metrics) Intent(action, outcome string) {
	if m != nil {
		m.Intents.WithLabelValues(action, outcome).Inc()
	}
}
