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

	"github.com/spf13/cobra"

	"sql-guard/internal/auditor"
	"sql-guard/internal/config"
	"sql-guard/internal/gate"
	"sql-guard/internal/logging"
	"sql-guard/internal/routes"
	"sql-guard/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the validation HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		level := cfg.LogLevel
		if cmd.Flag("log-level").Changed {
			level = logLevel
		}
		return runServe(cmd.Context(), level)
	},
}

func init() {
	serveCmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "Port to listen on")
}

func runServe(ctx context.Context, level string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := telemetry.Noop(cfg.OTelServiceName)
	if cfg.OTelEnabled {
		var err error
		tp, err = telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelEndpoint, cfg.Environment)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
	}

	logger := logging.Init(logging.Options{
		Service:     cfg.OTelServiceName,
		Environment: cfg.Environment,
		Level:       level,
		Format:      cfg.LogFormat,
		Output:      os.Stderr,
	})

	metrics, err := telemetry.NewGuardMetrics(tp.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := config.NewPolicyStore(policyPath, logger)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	if cfg.WatchPolicy && policyPath != "" {
		go func() {
			if err := store.Watch(ctx); err != nil {
				logger.Error("policy watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	g := &gate.Gate{
		Auditor: auditor.New(),
		Store:   store,
		Tracer:  tp.Tracer,
		Metrics: metrics,
		Logger:  logger,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      routes.NewRouter(cfg.OTelServiceName, g, store, int64(cfg.MaxRequestBytes)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownSeconds)*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}
