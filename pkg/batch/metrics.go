package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapfetch_tasks_total",
		Help: "Total tasks by outcome",
	}, []string{"outcome"}) // "success", "fetch_failed", "write_failed"

	lastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapfetch_last_run_timestamp_seconds",
		Help: "Unix time the last batch finished",
	})

	lastRunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapfetch_last_run_duration_seconds",
		Help: "Duration of the last batch",
	})

	lastRunTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapfetch_last_run_tasks",
		Help: "Task counts of the last batch by result",
	}, []string{"result"}) // "attempts", "successes", "failures"
)
