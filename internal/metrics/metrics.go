// Package metrics provides Prometheus metrics for the message engine.
// It tracks message throughput, queue depth and the cost of mode switches
// so operators can see how long producers and consumers are paused.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "pmengine"
)

// Message metrics track producer and consumer traffic.
var (
	// MessagesPutTotal counts messages accepted by Put.
	MessagesPutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_put_total",
			Help:      "Total number of messages inserted into the engine",
		},
		[]string{"ordering"}, // ordering: timestamp, priority
	)

	// MessagesGetTotal counts Get calls, labeled by outcome.
	MessagesGetTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_get_total",
			Help:      "Total number of get calls by result",
		},
		[]string{"result"}, // result: message, empty, canceled
	)

	// MessageWaitLatency measures time from message timestamp to delivery.
	MessageWaitLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_wait_seconds",
			Help:      "Time between message timestamp and delivery to a consumer in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
	)
)

// Queue metrics track engine state.
var (
	// QueueDepth tracks the current number of pending messages. It is set
	// from the store length after every change, so with several engines in
	// one process it reports the one that changed last.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of messages in the engine",
		},
	)

	// InFlightOperations tracks put/get calls currently holding the gate.
	InFlightOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_operations",
			Help:      "Current number of put/get operations registered with the gate",
		},
	)

	// HighPriorityMode is 1 while priority ordering is active.
	HighPriorityMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "high_priority_mode",
			Help:      "1 when priority ordering is active, 0 for timestamp ordering",
		},
	)
)

// Mode switch metrics track the swap protocol.
var (
	// ModeSwitchesTotal counts completed switches, labeled by the new ordering.
	ModeSwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_switches_total",
			Help:      "Total number of completed mode switches",
		},
		[]string{"ordering"},
	)

	// ModeSwitchDuration measures how long the gate stayed raised.
	ModeSwitchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mode_switch_duration_seconds",
			Help:      "Time producers and consumers were paused by a mode switch in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// ModeSwitchMovedMessages tracks how many messages each switch re-sorted.
	ModeSwitchMovedMessages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mode_switch_moved_messages",
			Help:      "Number of pending messages re-sorted by a mode switch",
			Buckets:   []float64{0, 10, 100, 1000, 10000, 100000, 1000000},
		},
	)
)

// Storage metrics track mode persistence.
var (
	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"operation", "status"}, // status: success, failure
	)
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
