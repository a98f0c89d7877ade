// Package services – Prometheus instrumentation for the ticket lifecycle and
// the notification fan-out. Label cardinality is bounded by the fixed set of
// organizer groups.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// ticketsCreated counts created tickets by tasked organizer group.
	ticketsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplybot_tickets_created_total",
			Help: "Total number of tickets created.",
		},
		[]string{"group_tasked"},
	)

	// ticketsResolved counts tickets leaving the live index, by how they left.
	ticketsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplybot_tickets_resolved_total",
			Help: "Total number of tickets closed or revoked.",
		},
		[]string{"outcome"}, // "closed" | "revoked"
	)

	// ticketsOpen gauges the size of the live ticket index.
	ticketsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supplybot_tickets_open",
			Help: "Current number of tickets in the live index.",
		},
	)

	// notifySent counts successful per-recipient deliveries.
	notifySent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supplybot_notifications_sent_total",
			Help: "Total number of messages delivered to group members.",
		},
	)

	// notifyFailed counts per-recipient delivery failures by kind.
	notifyFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supplybot_notifications_failed_total",
			Help: "Total number of failed deliveries to group members.",
		},
		[]string{"kind"}, // "unreachable" | "transient"
	)
)

func init() {
	prometheus.MustRegister(
		ticketsCreated, ticketsResolved, ticketsOpen, notifySent, notifyFailed,
	)
}
