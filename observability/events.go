package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	transfers *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// Ledger returns the metrics registry tracking direct ledger writes made
// through the API.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "staking",
				Subsystem: "ledger",
				Name:      "writes_total",
				Help:      "Count of ledger writes segmented by asset and kind.",
			}, []string{"asset", "kind"}),
		}
		prometheus.MustRegister(ledgerRegistry.transfers)
	})
	return ledgerRegistry
}

// RecordWrite increments the write counter for the supplied asset ticker.
func (m *ledgerMetrics) RecordWrite(asset, kind string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToUpper(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	if kind == "" {
		kind = "transfer"
	}
	m.transfers.WithLabelValues(normalized, kind).Inc()
}
