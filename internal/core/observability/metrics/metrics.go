// Package metrics holds the prometheus collectors shared by the routing,
// queueing and dispatching components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "joynr"

// Drop reasons used as the "reason" label of MessagesDropped.
const (
	ReasonExpired        = "expired"
	ReasonUnknownReplyTo = "unknown_recipient"
	ReasonQueueFull      = "queue_full"
	ReasonNoStub         = "no_stub"
	ReasonTransmitFailed = "transmit_failed"
	ReasonParseFailed    = "parse_failed"
	ReasonUnknownType    = "unknown_type"
)

type Metrics struct {
	MessagesRouted     *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	MessagesQueued     prometheus.Counter
	QueueSizeBytes     prometheus.Gauge
	MessagesSent       *prometheus.CounterVec
	MessagesReceived   *prometheus.CounterVec
	PendingReplies     prometheus.Gauge
	RepliesExpired     prometheus.Counter
	OrphanReplies      prometheus.Counter
	RoutingTableSize   prometheus.Gauge
	MulticastReceivers prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered, which is what tests and embedded runtimes without an exporter use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_routed_total",
			Help:      "Messages handed to a messaging stub, by message type.",
		}, []string{"type"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped without delivery, by reason.",
		}, []string{"reason"}),
		MessagesQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_queued_total",
			Help:      "Messages buffered for participants that are not yet known.",
		}),
		QueueSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "size_bytes",
			Help:      "Payload bytes currently held by the message queue.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "messages_sent_total",
			Help:      "Envelopes built and transmitted by the dispatcher, by message type.",
		}, []string{"type"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "messages_received_total",
			Help:      "Envelopes received by the dispatcher, by message type.",
		}, []string{"type"}),
		PendingReplies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "requestreply",
			Name:      "pending_replies",
			Help:      "Outbound requests waiting for a reply.",
		}),
		RepliesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requestreply",
			Name:      "replies_expired_total",
			Help:      "Pending requests rejected by the ttl sweep.",
		}),
		OrphanReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requestreply",
			Name:      "orphan_replies_total",
			Help:      "Replies that arrived for an unknown or already completed request.",
		}),
		RoutingTableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "routing_table_entries",
			Help:      "Entries in the in-memory routing table.",
		}),
		MulticastReceivers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "multicast_patterns",
			Help:      "Multicast id patterns with at least one local receiver.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.MessagesRouted,
			m.MessagesDropped,
			m.MessagesQueued,
			m.QueueSizeBytes,
			m.MessagesSent,
			m.MessagesReceived,
			m.PendingReplies,
			m.RepliesExpired,
			m.OrphanReplies,
			m.RoutingTableSize,
			m.MulticastReceivers,
		)
	}
	return m
}

// NewNop returns unregistered collectors.
func NewNop() *Metrics {
	return New(nil)
}
