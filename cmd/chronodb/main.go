package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartikbazzad/chronodb/internal/chronodb"
	"github.com/kartikbazzad/chronodb/internal/config"
	"github.com/kartikbazzad/chronodb/internal/ipc"
	"github.com/kartikbazzad/chronodb/internal/logger"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "Directory for database files")
	socketPath := flag.String("socket", "/tmp/chronodb.sock", "Unix socket path")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	pretty := flag.Bool("pretty", false, "Human-readable log output")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus /metrics listen address (empty = disabled)")
	retentionInterval := flag.Duration("retention-interval", time.Hour, "Retention sweep interval")
	noRetention := flag.Bool("no-retention", false, "Disable the background retention sweep")
	syncWrites := flag.Bool("sync-writes", false, "Fsync the record journal on every write")
	flag.Parse()

	cfg := config.DefaultConfig()
	cfg.DataDir = *dataDir
	cfg.IPC.SocketPath = *socketPath
	cfg.Log.Level = *logLevel
	cfg.Log.Pretty = *pretty
	cfg.Retention.Interval = *retentionInterval
	cfg.Retention.Enabled = !*noRetention
	cfg.Store.SyncOnWrite = *syncWrites
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsAddr
	}

	level := logger.ParseLevel(cfg.Log.Level)
	var logr *logger.Logger
	if cfg.Log.Pretty {
		logr = logger.NewConsole(level, "chronodb")
	} else {
		logr = logger.NewLogger("chronodb", level)
	}

	logr.Info("Starting ChronoDB...")
	logr.Info("Data directory: %s", cfg.DataDir)
	logr.Info("Socket: %s", cfg.IPC.SocketPath)

	db, err := chronodb.Open(cfg, logr)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}

	server := ipc.NewServer(db, cfg, logr.With("ipc"))
	if err := server.Start(); err != nil {
		db.Close()
		log.Fatalf("Failed to start server: %v", err)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logr.Info("Metrics listening on %s", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logr.Error("Metrics server error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logr.Info("Shutting down...")

	if metricsSrv != nil {
		metricsSrv.Close()
	}
	if err := server.Stop(); err != nil {
		logr.Error("Error stopping server: %v", err)
	}
	if err := db.Close(); err != nil {
		logr.Error("Error closing engine: %v", err)
	}

	logr.Info("ChronoDB stopped")
	os.Exit(0)
}
