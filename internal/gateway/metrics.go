package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the gateway's Prometheus collectors. Each Gateway owns its
// registry so several can coexist in one process (tests).
type metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	tickets      *prometheus.CounterVec
	urlChecks    *prometheus.CounterVec
	scans        *prometheus.CounterVec
	proxyErrors  *prometheus.CounterVec
	backendUp    prometheus.Gauge
	sseClients   prometheus.GaugeFunc
	trackedScans prometheus.GaugeFunc
}

func newMetrics(gw *Gateway) *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deplai_http_requests_total",
			Help: "HTTP requests handled by the gateway.",
		}, []string{"code", "method"}),
		tickets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deplai_ticket_upserts_total",
			Help: "Ticket upserts by outcome (created, updated, invalid, error).",
		}, []string{"outcome"}),
		urlChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deplai_url_checks_total",
			Help: "Deployment URL validations by outcome.",
		}, []string{"outcome"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deplai_scan_submissions_total",
			Help: "Scan submissions by outcome.",
		}, []string{"outcome"}),
		proxyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deplai_backend_proxy_errors_total",
			Help: "Failed status/results/decision calls to the scan backend.",
		}, []string{"endpoint"}),
		backendUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deplai_backend_up",
			Help: "1 if the last scan backend health probe succeeded.",
		}),
	}
	m.sseClients = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "deplai_sse_clients",
		Help: "Connected GET /events subscribers.",
	}, func() float64 { return float64(gw.broadcaster.subscribers()) })
	m.trackedScans = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "deplai_tracked_scans",
		Help: "Scan sessions remembered by the gateway.",
	}, func() float64 { return float64(gw.sessions.count()) })

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.tickets, m.urlChecks, m.scans, m.proxyErrors,
		m.backendUp, m.sseClients, m.trackedScans,
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument counts every request by status code and method.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.requests, next)
}
