package metrics

import (
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yacall"

// Metrics holds the collectors of the signaling server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	callsActive      prometheus.Gauge
	callsStarted     *prometheus.CounterVec
	callsEnded       *prometheus.CounterVec
	callLifetime     prometheus.Histogram
	memberChanges    *prometheus.CounterVec
	sdpWrites        *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliveryAttempts *prometheus.HistogramVec
	sessions         prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Calls currently held by the registry.",
		}),
		callsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_started_total",
			Help:      "Calls created, by call type.",
		}, []string{"type"}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Calls ended, by call type.",
		}, []string{"type"}),
		callLifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_lifetime_seconds",
			Help:      "Time between creation and end of a call.",
			Buckets:   []float64{5, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		memberChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_member_changes_total",
			Help:      "Members joining or leaving calls.",
		}, []string{"change"}),
		sdpWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sdp_writes_total",
			Help:      "Non-empty SDP blobs stored, by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent to a single user, by method and outcome.",
		}, []string{"method", "outcome"}),
		deliveryAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_attempts",
			Help:      "Attempts needed to settle a notification.",
			Buckets:   []float64{1, 2, 3, 5, 10, 15},
		}, []string{"method"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_sessions",
			Help:      "Open websocket sessions.",
		}),
	}
	reg.MustRegister(
		m.callsActive,
		m.callsStarted,
		m.callsEnded,
		m.callLifetime,
		m.memberChanges,
		m.sdpWrites,
		m.deliveries,
		m.deliveryAttempts,
		m.sessions,
	)
	return m
}

func (m *Metrics) CallStarted(t domain.CallType) {
	if m == nil {
		return
	}
	m.callsActive.Inc()
	m.callsStarted.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) CallEnded(t domain.CallType, lifetime time.Duration) {
	if m == nil {
		return
	}
	m.callsActive.Dec()
	m.callsEnded.WithLabelValues(string(t)).Inc()
	m.callLifetime.Observe(lifetime.Seconds())
}

func (m *Metrics) MemberJoined() {
	if m == nil {
		return
	}
	m.memberChanges.WithLabelValues("joined").Inc()
}

func (m *Metrics) MemberLeft() {
	if m == nil {
		return
	}
	m.memberChanges.WithLabelValues("left").Inc()
}

func (m *Metrics) SDPWritten(kind domain.SDPKind) {
	if m == nil {
		return
	}
	m.sdpWrites.WithLabelValues(string(kind)).Inc()
}

// Delivery records the outcome of a notification to one user.
func (m *Metrics) Delivery(method, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(method, outcome).Inc()
	m.deliveryAttempts.WithLabelValues(method).Observe(float64(attempts))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
