package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentfoundry/sessiond/internal/monitor"
	"github.com/agentfoundry/sessiond/internal/observability"
	"github.com/agentfoundry/sessiond/internal/pathguard"
	"github.com/agentfoundry/sessiond/internal/retry"
	"github.com/agentfoundry/sessiond/internal/session"
	"github.com/agentfoundry/sessiond/internal/store"
	"github.com/agentfoundry/sessiond/internal/workspace"
)

func main() {
	var cfg monitor.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	var wsCfg workspace.Config
	if err := envconfig.Process("", &wsCfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	var retryOpts retry.Options
	if err := envconfig.Process("", &retryOpts); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel, cfg.Env)
	defer log.Sync()
	zap.ReplaceGlobals(log)

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Env == "development" {
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Fatal("schema bootstrap failed", zap.Error(err))
		}
	}

	guard, err := pathguard.New(wsCfg.Root, wsCfg.AllowedPrefixes, log)
	if err != nil {
		log.Fatal("workspace root invalid", zap.Error(err))
	}
	manager := workspace.New(guard, wsCfg, log)

	queries := store.New(pool)
	sessions := session.New(queries, retryOpts, log)

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}
	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	m := monitor.New(queries, sessions, manager, cfg, log)
	m.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("monitor stopped")
}
