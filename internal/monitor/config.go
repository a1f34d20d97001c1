package monitor

import "time"

type Config struct {
	DBDSN           string        `envconfig:"SESSIOND_DB_DSN" required:"true"`
	DBMaxConns      int32         `envconfig:"SESSIOND_DB_MAX_CONNS" default:"10"`
	MetricsAddr     string        `envconfig:"SESSIOND_MONITOR_METRICS_ADDR" default:"0.0.0.0:9091"`
	LogLevel        string        `envconfig:"SESSIOND_LOG_LEVEL" default:"info"`
	Env             string        `envconfig:"SESSIOND_ENV" default:"development"`
	PollInterval    time.Duration `envconfig:"SESSIOND_MONITOR_POLL_INTERVAL" default:"60s"`
	StaleAfter      time.Duration `envconfig:"SESSIOND_STALE_AFTER" default:"30m"`
	CleanupAfter    time.Duration `envconfig:"SESSIOND_CLEANUP_AFTER" default:"24h"`
	SweepLimit      int           `envconfig:"SESSIOND_MONITOR_SWEEP_LIMIT" default:"100"`
	ShutdownTimeout time.Duration `envconfig:"SESSIOND_MONITOR_SHUTDOWN_TIMEOUT" default:"30s"`
}
