// Package metrics defines the portal's custom Prometheus metrics. HTTP
// request metrics come from echoprometheus; everything here describes the
// session core and the chat relay.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vetclinic/portal/internal/core/service"
)

const namespace = "vetportal"

// ── Session metrics ───────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - outcome: success, invalid_credentials, unauthorized, network, cancelled,
//     rate_limited or error
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// SessionTransitionsTotal counts state changes of tab sessions.
// Label:
//   - to: "authenticated", "anonymous" or "loading"
var SessionTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Total number of tab session state changes, by resulting state.",
	},
	[]string{"to"},
)

// AuthenticatedSessions tracks tabs currently holding an identity.
var AuthenticatedSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "authenticated_sessions",
		Help:      "Current number of tabs with an authenticated identity.",
	},
)

// GuardDecisionsTotal counts route guard outcomes.
// Label:
//   - decision: "loading", "allow" or "redirect_home"
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions.",
	},
	[]string{"decision"},
)

// ── Chat metrics ──────────────────────────────────────────────────────────────

// ChatMessagesTotal counts outbound chat messages.
// Label:
//   - result: "queued", "duplicate", "delivered" or "failed"
var ChatMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chat_messages_total",
		Help:      "Total number of outbound chat messages, by result.",
	},
	[]string{"result"},
)

// ChatQueueDepth tracks pending messages per dispatcher worker.
// Label:
//   - worker_id: numeric worker index
var ChatQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chat_queue_depth",
		Help:      "Current number of chat messages pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ChatDeliveryDuration measures the upstream post of one chat message.
var ChatDeliveryDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chat_delivery_duration_seconds",
		Help:      "Duration of relaying a chat message to the clinic API.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ObserveSession is a service.RegistryOptions.OnChange hook.
func ObserveSession(_ string, prev, next service.State) {
	switch {
	case !prev.Authenticated() && next.Authenticated():
		AuthenticatedSessions.Inc()
	case prev.Authenticated() && !next.Authenticated():
		AuthenticatedSessions.Dec()
	}
	SessionTransitionsTotal.WithLabelValues(stateLabel(next)).Inc()
}

func stateLabel(s service.State) string {
	switch {
	case !s.Resolved:
		return "loading"
	case s.Authenticated():
		return "authenticated"
	default:
		return "anonymous"
	}
}

// ObserveGuard records one guard decision.
func ObserveGuard(d service.Decision) {
	GuardDecisionsTotal.WithLabelValues(d.String()).Inc()
}

// Dispatcher feeds the chat dispatcher's delivery outcomes into Prometheus.
type Dispatcher struct{}

func (Dispatcher) Delivered(_ string, took time.Duration) {
	ChatMessagesTotal.WithLabelValues("delivered").Inc()
	ChatDeliveryDuration.Observe(took.Seconds())
}

func (Dispatcher) Failed(string, error) {
	ChatMessagesTotal.WithLabelValues("failed").Inc()
}

func (Dispatcher) QueueDepth(worker string, depth int) {
	ChatQueueDepth.WithLabelValues(worker).Set(float64(depth))
}
