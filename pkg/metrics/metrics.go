package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulesGenerated counts full schedule generations by amortization style.
	SchedulesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_schedules_generated_total",
			Help: "Number of loan schedules generated",
		},
		[]string{"style"},
	)

	// SolverRuns counts rate/term/payment solver invocations.
	SolverRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_solver_runs_total",
			Help: "Number of loan variable solver runs",
		},
		[]string{"mode", "status"},
	)

	// ReconciliationOps counts schedule reconciliation operations.
	ReconciliationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_reconciliation_ops_total",
			Help: "Number of schedule reconciliation operations",
		},
		[]string{"op", "status"},
	)
)
