// Package observability exposes the Prometheus collectors shared by the
// forwarding core. Labels are kept low-cardinality on purpose: direction,
// captcha result, and error kind are small closed sets; user identifiers
// never become labels.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// ForwardedMessages counts successfully forwarded messages by direction
	// ("user_to_group" / "group_to_user").
	ForwardedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "betterforward_forwarded_messages_total",
			Help: "Total number of messages forwarded between users and the group.",
		},
		[]string{"direction"},
	)

	// SpamDropped counts inbound messages dropped by the keyword filter.
	// There is no per-message persistence for these; this counter is the
	// only record.
	SpamDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "betterforward_spam_dropped_total",
			Help: "Total number of inbound messages dropped by the spam filter.",
		},
	)

	// CaptchaOutcomes counts answer submissions by result
	// ("accepted" / "rejected" / "locked_out" / "still_locked").
	CaptchaOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "betterforward_captcha_outcomes_total",
			Help: "Total number of captcha answer submissions by outcome.",
		},
		[]string{"result"},
	)

	// RoutingErrors counts forwarding failures surfaced for operator
	// attention, by kind ("routing" / "unknown_thread" / "invariant").
	RoutingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "betterforward_routing_errors_total",
			Help: "Total number of forwarding failures by kind.",
		},
		[]string{"kind"},
	)

	// ThreadsCreated counts freshly created group topics.
	ThreadsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "betterforward_threads_created_total",
			Help: "Total number of group topics created for first-contact users.",
		},
	)

	// QueueDepth gauges updates accepted by the dispatcher but not yet
	// finished processing.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "betterforward_dispatch_queue_depth",
			Help: "Number of updates currently queued or in flight in the dispatcher.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ForwardedMessages,
		SpamDropped,
		CaptchaOutcomes,
		RoutingErrors,
		ThreadsCreated,
		QueueDepth,
	)
}
