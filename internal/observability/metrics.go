package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// sessiond-api metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessiond_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ActiveRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessiond_active_requests",
		Help: "Current in-flight requests",
	})

	// workspace manager metrics
	WorkspacePrepareTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_workspace_prepare_total",
		Help: "Workspace provisioning count",
	}, []string{"type", "outcome"})

	WorkspacePrepareDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessiond_workspace_prepare_duration_seconds",
		Help:    "Workspace provisioning end-to-end duration",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 120, 300},
	}, []string{"type"})

	WorkspaceCleanupTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_workspace_cleanup_total",
		Help: "Workspace cleanup count",
	}, []string{"outcome"})

	WorkspaceCloneBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sessiond_workspace_clone_bytes",
		Help:    "Measured size of completed clones",
		Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8),
	})

	PathRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_path_rejections_total",
		Help: "Paths rejected by the workspace guard",
	}, []string{"reason"})

	GitCommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessiond_git_command_duration_seconds",
		Help:    "git subprocess duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"op"})

	GitCommandFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_git_command_fail_total",
		Help: "git subprocess failure count",
	}, []string{"op", "reason"})

	// optimistic-retry metrics
	RetryAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_retry_attempts_total",
		Help: "Sum of attempts across retried session updates",
	})

	RetryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessiond_retry_outcomes_total",
		Help: "Session update outcomes by retry class",
	}, []string{"outcome"})

	VersionConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_version_conflicts_total",
		Help: "Optimistic lock conflicts observed",
	})

	// sessiond-monitor metrics
	MonitorSweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sessiond_monitor_sweep_duration_seconds",
		Help:    "Monitor sweep duration",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"sweep"})

	SessionsMarkedStaleTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_sessions_marked_stale_total",
		Help: "Sessions transitioned to stale by the monitor",
	})

	SessionsCleanedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessiond_sessions_cleaned_total",
		Help: "Sessions whose workspace and row were reclaimed",
	})

	WorkspaceCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessiond_workspace_count",
		Help: "Top-level entries under the workspace root",
	})

	WorkspaceDiskFreeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessiond_workspace_disk_free_bytes",
		Help: "Free bytes on the workspace volume",
	})
)

func RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, ActiveRequests,
		WorkspacePrepareTotal, WorkspacePrepareDuration, WorkspaceCleanupTotal,
		WorkspaceCloneBytes, PathRejectionsTotal,
		GitCommandDuration, GitCommandFailTotal,
		RetryAttemptsTotal, RetryOutcomesTotal, VersionConflictsTotal,
		MonitorSweepDuration, SessionsMarkedStaleTotal, SessionsCleanedTotal,
		WorkspaceCount, WorkspaceDiskFreeBytes,
	)
}
