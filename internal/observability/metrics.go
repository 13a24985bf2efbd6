package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the tranche engine.
type Metrics struct {
	// --- Accounting sync ---
	SyncsTotal       *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	JuniorAbsorbed   *prometheus.CounterVec
	SeniorLossExcess *prometheus.CounterVec
	SeniorRecovered  *prometheus.CounterVec
	CoverageRepaid   *prometheus.CounterVec
	CoverageForgiven *prometheus.CounterVec
	FeesAccrued      *prometheus.CounterVec

	// --- Market state ---
	EffectiveNAV   *prometheus.GaugeVec
	RawNAV         *prometheus.GaugeVec
	CoverageDebt   *prometheus.GaugeVec
	Utilization    *prometheus.GaugeVec
	LTV            *prometheus.GaugeVec
	MarketState    *prometheus.GaugeVec
	LedgerVersion  *prometheus.GaugeVec

	// --- Operations ---
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	GatingRejections  *prometheus.CounterVec

	// --- Redemption queue ---
	RedemptionRequests *prometheus.CounterVec
	RedemptionQueueLen *prometheus.GaugeVec
	EscrowedShares     *prometheus.GaugeVec

	// --- Ingestion ---
	MarksApplied    *prometheus.CounterVec
	MarksDropped    *prometheus.CounterVec
	NATSPullLatency *prometheus.HistogramVec
	PublishDrops    prometheus.Counter

	// --- Persistence ---
	PersistBatchDur     prometheus.Histogram
	PersistBatchSize    prometheus.Histogram
	PersistRowsWritten  *prometheus.CounterVec
	PersistErrors       *prometheus.CounterVec
	PersistRetry        prometheus.Counter
	PersistBackpressure prometheus.Counter
	PersistLastVersion  *prometheus.GaugeVec

	// --- Channels ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	syncBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005,
	}

	opBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025,
		0.005, 0.01, 0.025, 0.05, 0.1,
	}

	return &Metrics{
		// Accounting sync
		SyncsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_syncs_total",
			Help: "Accounting syncs committed",
		}, []string{"market_id", "trigger"}),

		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tranche_sync_duration_seconds",
			Help:    "Time to run one accounting sync",
			Buckets: syncBuckets,
		}, []string{"market_id"}),

		JuniorAbsorbed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_junior_absorbed_nav_total",
			Help: "Coverage extended by the junior tranche (NAV units)",
		}, []string{"market_id"}),

		SeniorLossExcess: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_senior_loss_excess_nav_total",
			Help: "Senior impermanent loss beyond junior capacity (NAV units)",
		}, []string{"market_id"}),

		SeniorRecovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_senior_recovered_nav_total",
			Help: "Senior impermanent loss repaid (NAV units)",
		}, []string{"market_id"}),

		CoverageRepaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_coverage_repaid_nav_total",
			Help: "Junior coverage claim repaid from yield (NAV units)",
		}, []string{"market_id"}),

		CoverageForgiven: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_coverage_forgiven_nav_total",
			Help: "Junior coverage claim forgiven at term expiry (NAV units)",
		}, []string{"market_id"}),

		FeesAccrued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_fees_accrued_nav_total",
			Help: "Protocol fees accrued (NAV units)",
		}, []string{"market_id", "tranche"}),

		// Market state
		EffectiveNAV: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_effective_nav",
			Help: "Effective NAV per tranche (NAV units)",
		}, []string{"market_id", "tranche"}),

		RawNAV: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_raw_nav",
			Help: "Last stored raw NAV per tranche (NAV units)",
		}, []string{"market_id", "tranche"}),

		CoverageDebt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_coverage_debt_nav",
			Help: "Outstanding coverage debt per tranche (NAV units)",
		}, []string{"market_id", "tranche"}),

		Utilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_coverage_utilization",
			Help: "Senior use of junior coverage capacity (0.0-1.0)",
		}, []string{"market_id"}),

		LTV: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_ltv",
			Help: "Senior exposure over junior effective NAV",
		}, []string{"market_id"}),

		MarketState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_market_state",
			Help: "0 = PERPETUAL, 1 = FIXED_TERM",
		}, []string{"market_id"}),

		LedgerVersion: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_ledger_version",
			Help: "Current ledger version",
		}, []string{"market_id"}),

		// Operations
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_operations_total",
			Help: "Tranche operations processed",
		}, []string{"market_id", "op", "status"}),

		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tranche_operation_duration_seconds",
			Help:    "End-to-end operation latency, syncs included",
			Buckets: opBuckets,
		}, []string{"market_id", "op"}),

		GatingRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_gating_rejections_total",
			Help: "Operations rejected by a coverage or state gate",
		}, []string{"market_id", "op", "reason"}),

		// Redemption queue
		RedemptionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_redemption_requests_total",
			Help: "Redemption request lifecycle transitions",
		}, []string{"market_id", "transition"}),

		RedemptionQueueLen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_redemption_queue_length",
			Help: "Open redemption requests",
		}, []string{"market_id"}),

		EscrowedShares: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_escrowed_shares",
			Help: "Shares locked behind redemption requests",
		}, []string{"market_id"}),

		// Ingestion
		MarksApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_marks_applied_total",
			Help: "NAV marks applied to a venue",
		}, []string{"venue_id"}),

		MarksDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_marks_dropped_total",
			Help: "NAV marks dropped (stale sequence, parse error)",
		}, []string{"venue_id", "reason"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tranche_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: opBuckets,
		}, []string{"subject"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tranche_publish_drops_total",
			Help: "Outbound states dropped due to full publish channel",
		}),

		// Persistence
		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tranche_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tranche_persist_batch_size",
			Help:    "Updates per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_persist_rows_written_total",
			Help: "Rows written to Postgres",
		}, []string{"table"}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tranche_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tranche_persist_backpressure_total",
			Help: "Times the kernel blocked on the persist channel",
		}),

		PersistLastVersion: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_persist_last_version",
			Help: "Last persisted ledger version",
		}, []string{"market_id"}),

		// Channels
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tranche_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		// HTTP API
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tranche_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"method", "path", "status"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tranche_http_request_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: opBuckets,
		}, []string{"method", "path"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
