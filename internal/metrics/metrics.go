package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	InFlight        prometheus.Gauge
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Logins          *prometheus.CounterVec
	WizardEvents    *prometheus.CounterVec
}

// New builds a private registry so tests can create as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crm",
			Name:      "http_in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "auth_logins_total",
			Help:      "Login outcomes.",
		}, []string{"outcome"}),
		WizardEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "wizard_events_total",
			Help:      "Form wizard actions.",
		}, []string{"event"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.InFlight,
		m.Requests,
		m.RequestDuration,
		m.Logins,
		m.WizardEvents,
	)
	return m
}

// Login outcomes.
const (
	LoginSuccess   = "success"
	LoginChallenge = "challenge"
	LoginFailed    = "failed"
	LoginLocked    = "locked"
)

func (m *Metrics) Login(outcome string) {
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Wizard(event string) {
	m.WizardEvents.WithLabelValues(event).Inc()
}
