package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives relay activity for instrumentation.
type Recorder interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()
	Participants(n int)

	// Protocol metrics
	MessageReceived(eventType string)
	AuthAttempt(success bool)
	ProtocolError(reason string)
	StateUpdated()

	// Delivery metrics
	MessageSent(eventType string)
	DeliveryFailed(eventType string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ConnectionOpened()      {}
func (Nop) ConnectionClosed()      {}
func (Nop) Participants(int)       {}
func (Nop) MessageReceived(string) {}
func (Nop) AuthAttempt(bool)       {}
func (Nop) ProtocolError(string)   {}
func (Nop) StateUpdated()          {}
func (Nop) MessageSent(string)     {}
func (Nop) DeliveryFailed(string)  {}

// PrometheusRecorder implements Recorder using Prometheus
type PrometheusRecorder struct {
	activeConnections prometheus.Gauge
	participants      prometheus.Gauge
	connections       prometheus.Counter

	messagesReceived *prometheus.CounterVec
	authAttempts     *prometheus.CounterVec
	protocolErrors   *prometheus.CounterVec
	stateUpdates     prometheus.Counter

	messagesSent     *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewPrometheusRecorder registers the relay collectors with reg.
func NewPrometheusRecorder(reg *prometheus.Registry) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "watchsync_active_connections",
			Help: "Number of open WebSocket connections",
		}),
		participants: factory.NewGauge(prometheus.GaugeOpts{
			Name: "watchsync_participants",
			Help: "Number of authenticated connections in the room",
		}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_connections_total",
			Help: "Total number of accepted WebSocket connections",
		}),
		messagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchsync_messages_received_total",
				Help: "Total number of parsed client messages",
			},
			[]string{"type"},
		),
		authAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchsync_auth_attempts_total",
				Help: "Total number of auth attempts",
			},
			[]string{"result"},
		),
		protocolErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchsync_protocol_errors_total",
				Help: "Total number of error replies sent to clients",
			},
			[]string{"reason"},
		),
		stateUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_state_updates_total",
			Help: "Total number of recorded playback state updates",
		}),
		messagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchsync_messages_sent_total",
				Help: "Total number of messages queued to clients",
			},
			[]string{"type"},
		),
		deliveryFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "watchsync_delivery_failures_total",
				Help: "Total number of messages that could not be queued",
			},
			[]string{"type"},
		),
		gatherer: reg,
	}
}

func (p *PrometheusRecorder) ConnectionOpened() {
	p.connections.Inc()
	p.activeConnections.Inc()
}

func (p *PrometheusRecorder) ConnectionClosed() {
	p.activeConnections.Dec()
}

func (p *PrometheusRecorder) Participants(n int) {
	p.participants.Set(float64(n))
}

func (p *PrometheusRecorder) MessageReceived(eventType string) {
	p.messagesReceived.WithLabelValues(eventType).Inc()
}

func (p *PrometheusRecorder) AuthAttempt(success bool) {
	result := "rejected"
	if success {
		result = "accepted"
	}
	p.authAttempts.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ProtocolError(reason string) {
	p.protocolErrors.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) StateUpdated() {
	p.stateUpdates.Inc()
}

func (p *PrometheusRecorder) MessageSent(eventType string) {
	p.messagesSent.WithLabelValues(eventType).Inc()
}

func (p *PrometheusRecorder) DeliveryFailed(eventType string) {
	p.deliveryFailures.WithLabelValues(eventType).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
