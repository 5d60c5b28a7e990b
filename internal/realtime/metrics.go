package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway/dispatcher instrumentation. A nil *Metrics is
// valid and records nothing, which keeps tests and dev wiring simple.
type Metrics struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge
	messagesSent      prometheus.Counter
	eventsDelivered   prometheus.Counter
	eventsDropped     prometheus.Counter
}

// NewMetrics registers the realtime metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_ws_connections_total",
			Help: "Accepted websocket connections.",
		}),
		connectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "chat_ws_connections_active",
			Help: "Currently open websocket connections.",
		}),
		messagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted via the realtime gateway.",
		}),
		eventsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_events_delivered_total",
			Help: "Envelopes enqueued to client send queues.",
		}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_events_dropped_total",
			Help: "Envelopes dropped due to slow clients.",
		}),
	}
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) messageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) eventDelivered() {
	if m == nil {
		return
	}
	m.eventsDelivered.Inc()
}

func (m *Metrics) eventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
