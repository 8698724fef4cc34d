package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReportsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journey_position_reports_total",
		Help: "Position reports received, by source type",
	}, []string{"source_type"})
	ReportsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journey_position_reports_rejected_total",
		Help: "Position reports not applied, by reason",
	}, []string{"reason"})
	CanonicalChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journey_canonical_changes_total",
		Help: "Update cycles triggered by a new canonical position",
	})
	WaypointTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journey_waypoint_transitions_total",
		Help: "Waypoint status transitions, by target status",
	}, []string{"to"})
	GeofenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journey_geofence_failures_total",
		Help: "Waypoint evaluations skipped because of malformed coordinates",
	})
	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journey_persist_failures_total",
		Help: "Update cycles whose atomic persist failed",
	})
	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journey_event_publish_failures_total",
		Help: "Event bundles that could not be delivered, by sink",
	}, []string{"sink"})
	StaleJourneys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "journey_stale_journeys",
		Help: "Running journeys whose canonical position is older than the stale threshold",
	})
	CycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "journey_cycle_latency_seconds",
		Help:    "Latency of a full update cycle including persistence",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveCycleLatency(start time.Time) {
	CycleLatency.Observe(time.Since(start).Seconds())
}
