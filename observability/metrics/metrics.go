package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once
	shared   *VaultMetrics
)

// VaultMetrics aggregates the engine-level instrumentation: operation
// outcomes, the committed oracle price, and liquidation totals.
type VaultMetrics struct {
	operations   *prometheus.CounterVec
	oraclePrice  prometheus.Gauge
	liquidations prometheus.Counter
	writtenOff   prometheus.Counter
}

// Shared returns the process-wide metrics set, registering the collectors on
// first use.
func Shared() *VaultMetrics {
	initOnce.Do(func() {
		vm := &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vaultd_operations_total",
				Help: "Engine operation outcomes by method and result.",
			}, []string{"method", "result"}),
			oraclePrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vaultd_oracle_price",
				Help: "Last committed oracle price.",
			}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vaultd_liquidations_total",
				Help: "Count of completed liquidations.",
			}),
			writtenOff: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vaultd_liquidation_writeoffs_total",
				Help: "Liquidations whose collateral release failed after the vault delete.",
			}),
		}
		prometheus.MustRegister(vm.operations, vm.oraclePrice, vm.liquidations, vm.writtenOff)
		shared = vm
	})
	return shared
}

// ObserveOperation records one engine call outcome. The result label is "ok"
// or the stable error keyword.
func (m *VaultMetrics) ObserveOperation(method, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(method, result).Inc()
}

// SetOraclePrice publishes the committed price. Values beyond float precision
// saturate; the gauge is advisory only.
func (m *VaultMetrics) SetOraclePrice(price float64) {
	if m == nil {
		return
	}
	m.oraclePrice.Set(price)
}

// ObserveLiquidation records a completed liquidation, flagging write-offs
// where the collateral release failed.
func (m *VaultMetrics) ObserveLiquidation(writtenOff bool) {
	if m == nil {
		return
	}
	m.liquidations.Inc()
	if writtenOff {
		m.writtenOff.Inc()
	}
}

// Handler exposes the default prometheus registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
