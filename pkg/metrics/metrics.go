package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all automation pipeline metrics
type Metrics struct {
	// Run level metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Record level metrics
	RecordsIngested  *prometheus.CounterVec
	RecordsProcessed *prometheus.CounterVec
	RecordsByStatus  *prometheus.GaugeVec

	// External surface metrics
	MarketplaceCalls   *prometheus.CounterVec
	FulfillmentCalls   *prometheus.CounterVec
	ActuatorLatency    prometheus.Histogram
	SessionRefreshes   prometheus.Counter
	SurfaceDriftErrors prometheus.Counter
}

// New creates and registers all automation metrics
func New(namespace string) *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total collector/processor runs by type and outcome",
		}, []string{"run_type", "outcome"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of collector/processor runs",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"run_type"}),
		RecordsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Return records ingested by the collector",
		}, []string{"result"}),
		RecordsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Return records attempted by the processor",
		}, []string{"outcome", "error_kind"}),
		RecordsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_by_status",
			Help:      "Current record counts by processing status",
		}, []string{"status"}),
		MarketplaceCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marketplace_calls_total",
			Help:      "Calls to the source marketplace return-query API",
		}, []string{"status"}),
		FulfillmentCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_calls_total",
			Help:      "Calls to the fulfillment platform surface",
		}, []string{"operation", "status"}),
		ActuatorLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "actuator_action_duration_seconds",
			Help:      "Time spent executing the return action per record",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30},
		}),
		SessionRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_session_refreshes_total",
			Help:      "Fulfillment platform session re-establishments",
		}),
		SurfaceDriftErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_drift_errors_total",
			Help:      "Errors caused by missing interaction points on the platform surface",
		}),
	}
}
