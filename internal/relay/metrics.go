package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	// connsActive gauges open WebSocket sessions.
	connsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Current number of open relay connections.",
		},
	)

	// registryEntries gauges names currently bound to a connection.
	registryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_registry_entries",
			Help: "Current number of presence names in the connection registry.",
		},
	)

	// framesTotal counts inbound frames by outcome type. Labels are bounded:
	// establish, message, error.
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_total",
			Help: "Total number of inbound relay frames by type.",
		},
		[]string{"type"},
	)

	// deliveriesTotal counts delivery attempts by outcome
	// (delivered, echoed, failed).
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total number of relayed messages by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(connsActive, registryEntries, framesTotal, deliveriesTotal)
}
