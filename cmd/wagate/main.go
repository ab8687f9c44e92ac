package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"wagate/internal/broadcast"
	"wagate/internal/config"
	"wagate/internal/logging"
	"wagate/internal/provider"
	"wagate/internal/registry"
	"wagate/internal/server/app"
	httpserver "wagate/internal/server/http"
	"wagate/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "wagate",
		Short: "Multi-account WhatsApp messaging gateway",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	root.AddCommand(serve)
	return root
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewComponentLogger("Server")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	factory, err := provider.NewWhatsmeowFactory(ctx, cfg.DatabaseDriver, cfg.SessionDSN, db.DB(), logger)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	broadcaster := broadcast.New(broadcast.WithMetrics(metrics))

	reg := registry.New(factory, broadcaster,
		registry.WithAccountStore(db),
		registry.WithReconnectPolicy(reconnectPolicy(cfg.Reconnect)),
	)
	defer reg.Shutdown()

	accounts := app.NewAccountService(reg, app.WithAccountDirectory(db))
	messages := app.NewMessageService(reg,
		app.WithMessageLog(db),
		app.WithDefaultCountryCode(cfg.DefaultCountryCode),
	)
	bulk := app.NewBulkService(messages, app.BulkConfig{
		Concurrency: cfg.Bulk.Concurrency,
		MinDelay:    cfg.Bulk.MinDelay,
		MaxDelay:    cfg.Bulk.MaxDelay,
	})
	templates := app.NewTemplateService(db)

	handler := httpserver.NewRouter(httpserver.RouterConfig{
		Accounts:       accounts,
		Messages:       messages,
		Bulk:           bulk,
		Templates:      templates,
		Broadcaster:    broadcaster,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout stays zero so SSE connections are never cut off.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Forced shutdown: %v", err)
	}
	return nil
}

func reconnectPolicy(cfg config.ReconnectConfig) *registry.ReconnectPolicy {
	if cfg.MaxAttempts == 0 && cfg.InitialBackoff == 0 {
		return registry.DefaultReconnectPolicy()
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 5 * time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < initial {
		maxBackoff = initial
	}
	return &registry.ReconnectPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff: func(attempt int) time.Duration {
			delay := initial << (attempt - 1)
			if delay > maxBackoff || delay <= 0 {
				delay = maxBackoff
			}
			return delay
		},
	}
}
