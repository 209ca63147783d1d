package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pushrelay"

// Metrics holds the counters shared by the gateway session, the watchdog and
// the feedback poller.
type Metrics struct {
	Enqueued       prometheus.Counter
	Written        prometheus.Counter
	EncodeFailures prometheus.Counter
	ErrorResponses *prometheus.CounterVec
	QueueDepth     prometheus.Gauge

	Connects    prometheus.Counter
	Disconnects prometheus.Counter
	Reconnects  prometheus.Counter

	FeedbackPolls            *prometheus.CounterVec
	FeedbackRecords          prometheus.Counter
	FeedbackListenerFailures prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "enqueued_total",
			Help: "Notifications added to the delivery queue.",
		}),
		Written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "written_total",
			Help: "Notification frames written to the gateway, including replays.",
		}),
		EncodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "encode_failures_total",
			Help: "Notifications dropped because they could not be encoded.",
		}),
		ErrorResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "error_responses_total",
			Help: "Error responses received from the gateway, by status.",
		}, []string{"status"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "queue_depth",
			Help: "Notifications waiting for a successful write.",
		}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watchdog", Name: "connects_total",
			Help: "Successful gateway connections.",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watchdog", Name: "disconnects_total",
			Help: "Gateway connections lost or failed.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "watchdog", Name: "reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a disconnect.",
		}),
		FeedbackPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feedback", Name: "polls_total",
			Help: "Feedback poll ticks, by outcome.",
		}, []string{"outcome"}),
		FeedbackRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feedback", Name: "records_total",
			Help: "Feedback records decoded.",
		}),
		FeedbackListenerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feedback", Name: "listener_failures_total",
			Help: "Feedback listener calls that returned an error or panicked.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Enqueued, m.Written, m.EncodeFailures, m.ErrorResponses, m.QueueDepth,
			m.Connects, m.Disconnects, m.Reconnects,
			m.FeedbackPolls, m.FeedbackRecords, m.FeedbackListenerFailures,
		)
	}
	return m
}
