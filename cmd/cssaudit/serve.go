package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/metrics"
	"github.com/yacobolo/cssaudit/internal/server"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audit server with the live dashboard",
	Long: `Serve the HTTP API, the WebSocket event stream and the dashboard.
Scans are started from the API or the dashboard; monitoring rescans the
site on an interval.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, newLogger(os.Stderr))
	},
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", ":8080", "Listen address")
	f.String("store", "memory", "Store driver: memory|sqlite|postgres")
	f.String("dsn", "", "Store DSN (sqlite path or postgres URL)")
	f.String("base-url", "", "Site to audit")
	f.Int("max-pages", 50, "Maximum pages discovered per scan")
	f.StringSlice("exclude", nil, "URL path patterns to skip (doublestar)")
	f.String("ignore-file", ".cssauditignore", "gitignore-style URL path rules")
	f.String("mode", "http", "Fetch mode: http|browser")
	f.Duration("timeout", fetch.DefaultTimeout, "Page load timeout")
	f.Bool("insecure", false, "Skip TLS verification")
	f.Bool("har", false, "Record a HAR file per page (browser mode)")
	f.String("har-dir", "har", "Directory for HAR files when no S3 bucket is configured")
	f.Bool("monitor", false, "Enable monitoring on first start")
	f.Int("interval", 60, "Monitoring interval in minutes")
	f.StringSlice("allowed-origins", nil, "Extra origins allowed to open the WebSocket")
	f.String("nats-url", "", "Publish events to this NATS server")
}

func runServe(ctx context.Context, logger *slog.Logger) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := events.NewHub(logger)
	emitters := events.Multi{hub, m}

	if natsURL := getStringWithFallback("nats-url", "events.nats-url", ""); natsURL != "" {
		pub, err := events.NewNATSPublisher(natsURL,
			getStringWithFallback("nats-subject", "events.nats-subject", "cssaudit"),
			getStringWithFallback("nats-stream", "events.nats-stream", "CSSAUDIT"),
			logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		emitters = append(emitters, pub)
	}

	coord, err := newCoordinator(ctx, st, emitters, logger)
	if err != nil {
		return err
	}
	defer coord.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	settings, err := coord.Settings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if settings.MonitoringEnabled {
		logger.Info("resuming monitoring", "interval_minutes", settings.MonitoringIntervalMinutes)
		if err := coord.StartMonitoring(ctx, settings.MonitoringIntervalMinutes); err != nil {
			logger.Warn("could not resume monitoring", "error", err)
		}
	}

	srv := server.New(server.Config{
		Coordinator:    coord,
		Hub:            hub,
		Metrics:        m,
		Gatherer:       registry,
		AllowedOrigins: getStringsWithFallback("allowed-origins", "server.allowed-origins", nil),
		RateLimit: server.RateLimit{
			RPS:   getFloat64WithFallback("rps", "server.rate-limit.rps", 1),
			Burst: getIntWithFallback("burst", "server.rate-limit.burst", 5),
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              getStringWithFallback("addr", "server.addr", ":8080"),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if coord.IsScanning() {
		logger.Info("waiting for running scan to finish")
	}
	return nil
}
