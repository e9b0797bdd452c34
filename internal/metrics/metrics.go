// Package metrics defines the Prometheus instruments of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook metrics
var (
	// WebhooksTotal tracks received EventSub deliveries by message type and result.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_webhooks_total",
			Help: "EventSub webhook deliveries by message type and result",
		},
		[]string{"type", "result"},
	)

	// WebhookReplaysTotal tracks deliveries suppressed by message-id dedup.
	WebhookReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_webhook_replays_total",
			Help: "EventSub deliveries suppressed as replays",
		},
	)
)

// Game metrics
var (
	// ActiveSessions tracks the number of channels with an open game session.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raid_active_sessions",
			Help: "Number of channels with an open raid battle session",
		},
	)

	// RaidsStartedTotal tracks raid entries successfully attached to sessions.
	RaidsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raid_entries_started_total",
			Help: "Raid entries attached to game sessions",
		},
	)

	// VotesTotal tracks viewer support clicks by attributed side and result.
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raid_votes_total",
			Help: "Viewer support clicks by attributed side and result",
		},
		[]string{"side", "result"},
	)

	// OutcomesTotal tracks computed game outcomes.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raid_outcomes_total",
			Help: "Computed game outcomes by verdict",
		},
		[]string{"verdict"},
	)
)

// Broadcast metrics
var (
	// BroadcastsTotal tracks outbound pubsub sends by kind (channel/global) and status.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Outbound pubsub broadcasts by kind and status",
		},
		[]string{"kind", "status"},
	)

	// BroadcastsCoalescedTotal tracks dirty notifications merged into a pending send.
	BroadcastsCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcasts_coalesced_total",
			Help: "Dirty-state notifications merged into an already pending send",
		},
	)

	// BroadcastDuration tracks outbound send latency in seconds.
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcast_duration_seconds",
			Help:    "Outbound broadcast send duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// ChatMessagesTotal tracks extension chat messages by status.
	ChatMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Extension chat messages by status",
		},
		[]string{"status"},
	)
)
