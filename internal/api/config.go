package api

import "time"

type Config struct {
	HTTPAddr        string        `envconfig:"SESSIOND_HTTP_ADDR" default:"0.0.0.0:8080"`
	MetricsAddr     string        `envconfig:"SESSIOND_METRICS_ADDR" default:"0.0.0.0:9090"`
	DBDSN           string        `envconfig:"SESSIOND_DB_DSN" required:"true"`
	DBMaxConns      int32         `envconfig:"SESSIOND_DB_MAX_CONNS" default:"20"`
	LogLevel        string        `envconfig:"SESSIOND_LOG_LEVEL" default:"info"`
	Env             string        `envconfig:"SESSIOND_ENV" default:"development"`
	HookSecret      string        `envconfig:"SESSIOND_HOOK_SECRET" default:""`
	ShutdownTimeout time.Duration `envconfig:"SESSIOND_SHUTDOWN_TIMEOUT" default:"10s"`
}
