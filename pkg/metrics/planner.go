package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PlannerMetrics counts engine outcomes that operators alert on.
type PlannerMetrics struct {
	violations   *prometheus.CounterVec
	reassigned   *prometheus.CounterVec
	unassignable prometheus.Counter
	oracle       *prometheus.CounterVec
	routes       prometheus.Counter
}

// NewPlannerMetrics registers the planner metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewPlannerMetrics(reg prometheus.Registerer) *PlannerMetrics {
	if reg == nil {
		return &PlannerMetrics{}
	}
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_violations_detected_total",
		Help: "Assignment violations found by detection runs.",
	}, []string{"reason"})
	reassigned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_reassignments_total",
		Help: "Committed reassignments by outcome.",
	}, []string{"result"})
	unassignable := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_unassignable_total",
		Help: "Violations for which no alternative crew was found.",
	})
	oracle := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_oracle_requests_total",
		Help: "Advisory oracle calls by outcome.",
	}, []string{"outcome"})
	routes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_routes_sequenced_total",
		Help: "Crew-day routes sequenced.",
	})
	reg.MustRegister(violations, reassigned, unassignable, oracle, routes)
	return &PlannerMetrics{
		violations:   violations,
		reassigned:   reassigned,
		unassignable: unassignable,
		oracle:       oracle,
		routes:       routes,
	}
}

// AddViolations adds n detected violations for reason.
func (m *PlannerMetrics) AddViolations(reason string, n int) {
	if m == nil || m.violations == nil || n <= 0 {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(reason)).Add(float64(n))
}

// IncReassignment records a commit outcome ("committed" or "failed").
func (m *PlannerMetrics) IncReassignment(result string) {
	if m == nil || m.reassigned == nil {
		return
	}
	m.reassigned.WithLabelValues(normalizeLabel(result)).Inc()
}

// AddUnassignable adds n violations the solver could not place.
func (m *PlannerMetrics) AddUnassignable(n int) {
	if m == nil || m.unassignable == nil || n <= 0 {
		return
	}
	m.unassignable.Add(float64(n))
}

// IncOracle records an oracle outcome such as "accepted", "fallback" or "skipped".
func (m *PlannerMetrics) IncOracle(outcome string) {
	if m == nil || m.oracle == nil {
		return
	}
	m.oracle.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRoutes records one sequenced crew-day.
func (m *PlannerMetrics) IncRoutes() {
	if m == nil || m.routes == nil {
		return
	}
	m.routes.Inc()
}
