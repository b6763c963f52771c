package observability

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pool service.
type Metrics struct {
	// --- Engine ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	PayoutsTotal prometheus.Counter

	// Pool state gauges, in ether units for dashboard readability
	PoolTotalAssets    prometheus.Gauge
	PoolTotalShares    prometheus.Gauge
	PoolLockedCoverage prometheus.Gauge

	// --- Event fan-out ---
	PublishDrops prometheus.Counter

	// --- Persistence ---
	PersistErrors        *prometheus.CounterVec
	PersistBatchDur      prometheus.Histogram
	PersistBatchSize     prometheus.Histogram
	PersistEventsWritten prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Oracle ---
	OracleOutcomesSet prometheus.Counter

	// --- HTTP ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	WSClients    prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}
	httpBuckets := []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_pool_ops_applied_total",
			Help: "Pool operations successfully applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_pool_ops_rejected_total",
			Help: "Pool operations rejected, by named condition",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_pool_op_duration_seconds",
			Help:    "Time to apply a single pool operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		PayoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_pool_payouts_total",
			Help: "Coverage payouts executed",
		}),

		PoolTotalAssets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_total_assets_ether",
			Help: "Pool totalAssets in ether",
		}),

		PoolTotalShares: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_total_shares",
			Help: "Pool totalShares in share units",
		}),

		PoolLockedCoverage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_locked_coverage_ether",
			Help: "Sum of coverage across unresolved policies, in ether",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_pool_publish_drops_total",
			Help: "Events dropped from the non-blocking publish channel",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_pool_persist_errors_total",
			Help: "Persistence failures by stage",
		}, []string{"stage"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_pool_persist_batch_duration_seconds",
			Help:    "Time to flush one persistence batch",
			Buckets: httpBuckets,
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cover_pool_persist_batch_size",
			Help:    "Events per persistence batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_pool_persist_events_written_total",
			Help: "Events written to the event log",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_persist_last_sequence",
			Help: "Highest event sequence written to Postgres",
		}),

		OracleOutcomesSet: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cover_pool_oracle_outcomes_set_total",
			Help: "Oracle outcomes recorded",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cover_pool_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cover_pool_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: httpBuckets,
		}, []string{"method", "route"}),

		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cover_pool_ws_clients",
			Help: "Connected websocket subscribers",
		}),
	}
}

// SetPoolGauges updates the pool state gauges from wei amounts.
func (m *Metrics) SetPoolGauges(totalAssets, totalShares, lockedCoverage *big.Int) {
	m.PoolTotalAssets.Set(weiToEther(totalAssets))
	m.PoolTotalShares.Set(weiToEther(totalShares))
	m.PoolLockedCoverage.Set(weiToEther(lockedCoverage))
}

var etherScale = new(big.Float).SetFloat64(1e18)

func weiToEther(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), etherScale).Float64()
	return f
}
