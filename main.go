package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "go.uber.org/automaxprocs"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	cfg.LogConfig(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	stats := NewStats(NewMetrics(reg))
	hub := NewHub(cfg, logger, stats)
	ObserveRegistry(reg, hub.Registry())
	srv := NewServer(cfg, hub, logger, reg)

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.Addr()).Msg("Failed to bind listener")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub.OnFault(func(err error) {
		logger.Error().Err(err).Msg("Background fault, shutting down")
		cancel()
	})

	go hub.Run(ctx)
	go srv.Run(ctx)

	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("Relay listening")
		if err := srv.Serve(ln); err != nil {
			logger.Error().Err(err).Msg("Server error")
			cancel()
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = NewMetricsServer(cfg.MetricsAddr, reg)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	// Force exit if the graceful path stalls.
	abort := time.AfterFunc(cfg.ShutdownTimeout, func() {
		logger.Error().Dur("timeout", cfg.ShutdownTimeout).Msg("Graceful shutdown timed out, forcing exit")
		os.Exit(1)
	})
	defer abort.Stop()

	hub.Shutdown()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown error")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Metrics shutdown error")
		}
	}

	logger.Info().Msg("Shutdown complete")
}
