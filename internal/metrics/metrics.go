// Package metrics holds the run counters. A CLI run is short-lived, so the
// registry is pushed to a Pushgateway at exit instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics methods are safe to call on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	TxSubmitted    *prometheus.CounterVec
	TxOutcomes     *prometheus.CounterVec
	ProxyRetries   prometheus.Counter
	ProxyFallbacks prometheus.Counter
	ConfirmSeconds *prometheus.HistogramVec
	GasSpentWei    *prometheus.CounterVec
}

func New(network string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"network": network}, reg))
	return &Metrics{
		Registry: reg,
		TxSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landing_tx_submitted_total",
			Help: "Transactions accepted by the node.",
		}, []string{"kind"}),
		TxOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landing_tx_outcomes_total",
			Help: "Terminal transaction outcomes.",
		}, []string{"kind", "status"}),
		ProxyRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "landing_proxy_retries_total",
			Help: "RPC attempts through the proxy that failed.",
		}),
		ProxyFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "landing_proxy_fallbacks_total",
			Help: "Times the proxy was abandoned for a direct connection.",
		}),
		ConfirmSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landing_confirm_seconds",
			Help:    "Time from broadcast to terminal receipt status.",
			Buckets: []float64{5, 10, 20, 30, 60, 90, 120},
		}, []string{"kind"}),
		GasSpentWei: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landing_gas_spent_wei_total",
			Help: "gasUsed * effectiveGasPrice of mined transactions.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ProxyRetry() {
	if m != nil {
		m.ProxyRetries.Inc()
	}
}

func (m *Metrics) ProxyFallback() {
	if m != nil {
		m.ProxyFallbacks.Inc()
	}
}

func (m *Metrics) Submitted(kind string) {
	if m != nil {
		m.TxSubmitted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Outcome(kind, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TxOutcomes.WithLabelValues(kind, status).Inc()
	m.ConfirmSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// GasSpent takes wei as float64; precision loss above 2^53 wei is acceptable
// for a counter.
func (m *Metrics) GasSpent(kind string, wei float64) {
	if m != nil && wei > 0 {
		m.GasSpentWei.WithLabelValues(kind).Add(wei)
	}
}

// Push sends the registry to a Pushgateway. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if job == "" {
		job = "landing"
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
