// Package metrics implements Prometheus metrics for the connection
// agent, media engine and session coordinators.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesParsedTotal counts MRCP messages successfully parsed off
	// a connection, by kind (request/response/event).
	MessagesParsedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrcpd_messages_parsed_total",
			Help: "Total number of MRCP messages parsed",
		},
		[]string{"kind"},
	)

	// MessagesInvalidTotal counts messages rejected by the parser.
	MessagesInvalidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrcpd_messages_invalid_total",
			Help: "Total number of MRCP messages rejected as invalid",
		},
		[]string{"reason"},
	)

	// ConnectionsActive tracks the number of live connections per role.
	ConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mrcpd_connections_active",
			Help: "Number of active connections",
		},
		[]string{"role"},
	)

	// ConnectionRefCount tracks the per-connection channel reference
	// count (§4.8's reuse-by-(ip,port) policy).
	ConnectionRefCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mrcpd_connection_refcount",
			Help:    "Distribution of channels sharing a connection",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
		[]string{"role"},
	)

	// SendFailuresTotal counts outbound writes that failed and were
	// converted into a synthesized MethodFailed response.
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mrcpd_send_failures_total",
			Help: "Total number of outbound sends that failed",
		},
	)

	// MediaEngineTickSeconds measures one media engine tick's wall time.
	MediaEngineTickSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mrcpd_media_engine_tick_seconds",
			Help:    "Duration of one media engine tick",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// MediaContextsActive tracks the number of live media contexts.
	MediaContextsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mrcpd_media_contexts_active",
			Help: "Number of active media contexts",
		},
	)

	// SessionStateTransitionsTotal counts session state machine
	// transitions (§4.9).
	SessionStateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrcpd_session_state_transitions_total",
			Help: "Total number of session state machine transitions",
		},
		[]string{"from", "to"},
	)

	// SessionOfferFailuresTotal counts composite offer acknowledgement
	// failures aggregated by the session (never abandons in-flight).
	SessionOfferFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mrcpd_session_offer_failures_total",
			Help: "Total number of failed offer acknowledgements",
		},
		[]string{"collaborator"},
	)

	// TaskStatus mirrors a task's running state (0=stopped, 1=running,
	// 2=error) for every named task in the composite tree.
	TaskStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mrcpd_task_status",
			Help: "Current status of tasks (0=stopped, 1=running, 2=error)",
		},
		[]string{"task"},
	)
)
