package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики воркера. Экспортируются через /metrics (promhttp) в бинарниках.
var (
	// TasksTotal — количество завершённых task'ов по финальному статусу.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conveyor_tasks_total",
		Help: "Completed tasks by terminal status.",
	}, []string{"status"})

	// TaskRetriesTotal — количество повторных попыток выполнения.
	TaskRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_task_retries_total",
		Help: "Task execution retries.",
	})

	// TasksActive — количество task'ов, выполняемых прямо сейчас.
	TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conveyor_tasks_active",
		Help: "Tasks currently executing.",
	})

	// TaskDuration — длительность выполнения task'ов (включая retry).
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conveyor_task_duration_seconds",
		Help:    "Task execution duration including retries.",
		Buckets: prometheus.DefBuckets,
	})
)
