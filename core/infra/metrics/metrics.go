package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics defines counters for the governance engine.
type Metrics interface {
	IncRolesValidated()
	IncInvalidStatements(effect string)
	IncPatchResult(status string)
	IncTeamPatchResult(status string)
}

// GatewayMetrics captures request metrics for the artifact gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncRolesValidated()          {}
func (Noop) IncInvalidStatements(string) {}
func (Noop) IncPatchResult(string)       {}
func (Noop) IncTeamPatchResult(string)   {}

// Prom implements Metrics backed by Prometheus counters.
type Prom struct {
	rolesValidated    prometheus.Counter
	invalidStatements *prometheus.CounterVec
	patchResults      *prometheus.CounterVec
	teamPatchResults  *prometheus.CounterVec
	once              sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		rolesValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roles_validated_total",
			Help:      "Roles walked by the policy validator",
		}),
		invalidStatements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_statements_total",
			Help:      "Statements flagged with invalid actions by effect",
		}, []string{"effect"}),
		patchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_patches_total",
			Help:      "Policy patch outcomes by status",
		}, []string{"status"}),
		teamPatchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "team_patches_total",
			Help:      "Team patch composition outcomes by status",
		}, []string{"status"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.rolesValidated, p.invalidStatements, p.patchResults, p.teamPatchResults)
	})
}

func (p *Prom) IncRolesValidated() {
	p.rolesValidated.Inc()
}

func (p *Prom) IncInvalidStatements(effect string) {
	p.invalidStatements.WithLabelValues(effect).Inc()
}

func (p *Prom) IncPatchResult(status string) {
	p.patchResults.WithLabelValues(status).Inc()
}

func (p *Prom) IncTeamPatchResult(status string) {
	p.teamPatchResults.WithLabelValues(status).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}
