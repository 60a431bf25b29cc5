// Package metrics holds the Prometheus collectors of the widget and the desk server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Poll tick results.
const (
	ResultNew   = "new"
	ResultEmpty = "empty"
	ResultError = "error"
)

// Presence check results.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	PresenceError   = "error"
)

// Widget counts widget poll activity. A nil *Widget records nothing.
type Widget struct {
	pollTicks      *prometheus.CounterVec
	presence       *prometheus.CounterVec
	received       prometheus.Counter
	notifyFailures prometheus.Counter
}

// NewWidget creates and registers the widget collectors on reg.
func NewWidget(reg prometheus.Registerer) *Widget {
	w := &Widget{
		pollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livechat_widget_poll_ticks_total",
				Help: "Message poll ticks by outcome.",
			},
			[]string{"result"},
		),
		presence: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livechat_widget_presence_checks_total",
				Help: "Agent presence checks by outcome.",
			},
			[]string{"result"},
		),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livechat_widget_agent_messages_total",
			Help: "Agent messages appended to the conversation.",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livechat_widget_notify_failures_total",
			Help: "Notification cues that failed to play.",
		}),
	}
	reg.MustRegister(w.pollTicks, w.presence, w.received, w.notifyFailures)
	return w
}

func (w *Widget) PollTick(result string) {
	if w == nil {
		return
	}
	w.pollTicks.WithLabelValues(result).Inc()
}

func (w *Widget) PresenceCheck(result string) {
	if w == nil {
		return
	}
	w.presence.WithLabelValues(result).Inc()
}

func (w *Widget) MessagesReceived(n int) {
	if w == nil || n <= 0 {
		return
	}
	w.received.Add(float64(n))
}

func (w *Widget) NotifyFailed() {
	if w == nil {
		return
	}
	w.notifyFailures.Inc()
}
