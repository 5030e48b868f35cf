package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlanRuns counts design pipeline runs by terminal plan status
	PlanRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_runs_total", Help: "Design plan runs by outcome."},
		[]string{"status"},
	)
	// Solves counts MILP solves by stage and solver status
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "milp_solves_total", Help: "MILP solves by stage and status."},
		[]string{"stage", "status"},
	)
	// SolveDuration records per-stage solve wall time in seconds
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "milp_solve_duration_seconds", Help: "MILP solve duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300}},
		[]string{"stage", "status"},
	)
	// ModelBuilds counts model (re)builds by stage
	ModelBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "design_model_builds_total", Help: "Design model builds by stage."},
		[]string{"stage"},
	)
	// SolveNodes records branch-and-bound nodes explored per solve
	SolveNodes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "milp_solve_nodes", Help: "Nodes explored per MILP solve.", Buckets: prometheus.ExponentialBuckets(16, 4, 10)},
		[]string{"stage"},
	)
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlanRuns)
		Registry.MustRegister(Solves)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(ModelBuilds)
		Registry.MustRegister(SolveNodes)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
