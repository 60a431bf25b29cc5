package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Desk bundles the collectors exposed by the desk server.
type Desk struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	sessions    prometheus.Counter
	messages    *prometheus.CounterVec
	rateLimited prometheus.Counter
	agents      prometheus.Gauge
	gatherer    prometheus.Gatherer
}

// NewDesk creates the desk collectors on a private registry labelled with the listen address.
func NewDesk(listenAddr string) *Desk {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return newDesk(reg, reg, listenAddr)
}

func newDesk(reg prometheus.Registerer, g prometheus.Gatherer, listenAddr string) *Desk {
	labels := prometheus.Labels{"listen_addr": listenAddr}

	d := &Desk{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "livechat_desk_http_requests_total",
				Help:        "Total count of HTTP requests received.",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "livechat_desk_http_request_duration_seconds",
				Help:        "Histogram of request durations.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "livechat_desk_http_inflight_requests",
			Help:        "Number of requests currently being handled.",
			ConstLabels: labels,
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "livechat_desk_sessions_created_total",
			Help:        "Real chat sessions created.",
			ConstLabels: labels,
		}),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "livechat_desk_messages_stored_total",
				Help:        "Chat messages stored by sender type.",
				ConstLabels: labels,
			},
			[]string{"sender"},
		),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "livechat_desk_rate_limited_total",
			Help:        "Visitor requests rejected by the rate limiter.",
			ConstLabels: labels,
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "livechat_desk_agents_online",
			Help:        "Console agents currently marked online.",
			ConstLabels: labels,
		}),
		gatherer: g,
	}

	reg.MustRegister(d.requests, d.duration, d.inFlight, d.sessions, d.messages, d.rateLimited, d.agents)
	return d
}

// Handler exposes the registry in the Prometheus text format.
func (d *Desk) Handler() http.Handler {
	return promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})
}

func (d *Desk) SessionCreated()             { d.sessions.Inc() }
func (d *Desk) MessageStored(sender string) { d.messages.WithLabelValues(sender).Inc() }
func (d *Desk) RateLimited()                { d.rateLimited.Inc() }
func (d *Desk) AgentsOnline(n int)          { d.agents.Set(float64(n)) }

// Instrument wraps next with request counters and histograms.
func (d *Desk) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.inFlight.Inc()
		defer d.inFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start).Seconds()

		labels := []string{r.Method, sanitizePath(r.URL.Path), strconv.Itoa(rec.status)}
		d.requests.WithLabelValues(labels...).Inc()
		d.duration.WithLabelValues(labels...).Observe(elapsed)
	})
}

// sanitizePath keeps at most three path segments to bound label cardinality.
func sanitizePath(p string) string {
	clean := path.Clean("/" + p)
	segments := strings.Split(clean, "/")
	if len(segments) > 4 {
		segments = append(segments[:4], "...")
	}
	return strings.Join(segments, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// Hijack lets websocket upgrades pass through the recorder.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
