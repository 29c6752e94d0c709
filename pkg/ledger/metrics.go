package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerWrites tracks records written by kind ("task", "run").
	LedgerWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapfetch_ledger_writes_total",
			Help: "Total ledger records written",
		},
		[]string{"kind"},
	)

	// LedgerErrors tracks failed Redis operations.
	LedgerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapfetch_ledger_errors_total",
			Help: "Total number of ledger operation errors",
		},
		[]string{"operation"}, // "record_task", "record_run", "last_run", "runs", "task_state"
	)
)
