package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/satishbabariya/prisma-go-client/runtime/client"
	"github.com/satishbabariya/prisma-go-client/runtime/engine"
	"github.com/satishbabariya/prisma-go-client/runtime/types"
)

// Metrics implements client.Observer with Prometheus collectors.
type Metrics struct {
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	transactions  *prometheus.CounterVec
	txDuration    *prometheus.HistogramVec
	startFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "total",
				Help:      "Counter of operations sent to the engine.",
			}, []string{"model", "action", "result"}),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "query",
				Name:      "duration_seconds",
				Help:      "Bucketed histogram of engine round trip time (s) of operations.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 13),
			}, []string{"action"}),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transaction",
				Name:      "total",
				Help:      "Counter of finished transactions by final status.",
			}, []string{"mode", "status"}),
		txDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "transaction",
				Name:      "duration_seconds",
				Help:      "Bucketed histogram of transaction lifetime (s).",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			}, []string{"mode"}),
		startFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transaction",
				Name:      "start_failures_total",
				Help:      "Counter of transactions that could not be started.",
			}, []string{"mode", "reason"}),
	}
	for _, c := range []prometheus.Collector{m.queries, m.queryDuration, m.transactions, m.txDuration, m.startFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// QueryExecuted implements client.Observer.
func (m *Metrics) QueryExecuted(op types.Operation, d time.Duration, err error) {
	model := op.Model()
	if model == "" {
		model = "$raw"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.queries.WithLabelValues(model, op.Action().String(), result).Inc()
	m.queryDuration.WithLabelValues(op.Action().String()).Observe(d.Seconds())
}

// TransactionFinished implements client.Observer.
func (m *Metrics) TransactionFinished(mode client.Mode, status client.Status, d time.Duration) {
	m.transactions.WithLabelValues(string(mode), status.String()).Inc()
	m.txDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
}

// TransactionStartFailed implements client.Observer.
func (m *Metrics) TransactionStartFailed(mode client.Mode, err error) {
	reason := "error"
	switch {
	case errors.Is(err, client.ErrTransactionAcquisitionTimeout):
		reason = "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "canceled"
	}
	m.startFailures.WithLabelValues(string(mode), reason).Inc()
}

var _ client.Observer = (*Metrics)(nil)

// OpenTransactionsGauge reports the transactions open in an engine.
func OpenTransactionsGauge(i engine.Inspector) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "prisma_engine",
			Name:      "open_transactions",
			Help:      "Number of interactive transactions currently open in the engine.",
		}, func() float64 {
			return float64(len(i.OpenTransactions()))
		})
}
