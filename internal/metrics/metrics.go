package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	DatagramsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanlink_datagrams_sent_total",
			Help: "Total datagrams broadcast",
		},
	)

	DatagramsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanlink_datagrams_received_total",
			Help: "Total datagrams received on the listening socket",
		},
	)

	// Session metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanlink_messages_sent_total",
			Help: "Total chat messages broadcast",
		},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanlink_send_failures_total",
			Help: "Total chat messages that failed to send",
		},
	)

	ParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanlink_parse_failures_total",
			Help: "Total received datagrams shown as raw text",
		},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanlink_commands_total",
			Help: "Total slash commands entered",
		},
		[]string{"command"}, // "nick", "key", "help" or "unknown"
	)
)
