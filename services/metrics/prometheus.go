package metricsvc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/trezcool/awe-academy/core"
)

const namespace = "awe_academy"

// PrometheusMetrics exposes ledger activity as prometheus collectors.
type PrometheusMetrics struct {
	payments      *prometheus.CounterVec
	collected     *prometheus.CounterVec
	distributions *prometheus.CounterVec
	distributed   *prometheus.CounterVec
	rejected      *prometheus.CounterVec
}

var _ core.LedgerMetrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the ledger collectors on `reg`.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Number of payments recorded, by payment method.",
		}, []string{"method"}),
		collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_amount_total",
			Help:      "Sum of the recorded payment amounts, by payment method.",
		}, []string{"method"}),
		distributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supply_distributions_total",
			Help:      "Number of supply distributions, by supply.",
		}, []string{"supply"}),
		distributed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supply_distributed_quantity_total",
			Help:      "Quantity of supplies distributed, by supply.",
		}, []string{"supply"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_rejected_total",
			Help:      "Number of ledger operations rejected, by operation and reason.",
		}, []string{"operation", "reason"}),
	}

	for _, c := range []prometheus.Collector{m.payments, m.collected, m.distributions, m.distributed, m.rejected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) PaymentRecorded(method string, amount decimal.Decimal) {
	m.payments.WithLabelValues(method).Inc()
	f, _ := amount.Float64()
	m.collected.WithLabelValues(method).Add(f)
}

func (m *PrometheusMetrics) SupplyDistributed(supply string, quantity int) {
	m.distributions.WithLabelValues(supply).Inc()
	m.distributed.WithLabelValues(supply).Add(float64(quantity))
}

func (m *PrometheusMetrics) OperationRejected(op, reason string) {
	m.rejected.WithLabelValues(op, reason).Inc()
}
