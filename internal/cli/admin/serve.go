package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/jobs"
	"github.com/cloo-solutions/docqa/internal/server"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docqa API server and the index replication worker",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DOCQA_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

// traceSampleRate samples 10% of traces in prod and all of them elsewhere.
func traceSampleRate(environment string) float64 {
	if environment == "prod" {
		return 0.1
	}
	return 1.0
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: traceSampleRate(cfg.Environment),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer shutdownTelemetry()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	a, err := newApp(ctx, cfg, log, appOptions{migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer a.Close()

	chain := a.keyChain()
	if len(chain) == 0 {
		return errors.New("no API keys configured: set DOCQA_API_KEYS or DOCQA_DATABASE_URL")
	}

	routerCfg := server.RouterConfig{
		Logger:          log,
		AuthValidator:   chain,
		DocumentHandler: handlers.NewDocumentHandler(a.uploads),
		AskHandler:      handlers.NewAskHandler(a.query),
		MaxBodyBytes:    cfg.MaxUploadBytes,
	}
	if auth := a.authService(); auth != nil {
		routerCfg.AuthHandler = handlers.NewAuthHandler(auth)
		routerCfg.HistoryHandler = handlers.NewHistoryHandler(a.queryLogs)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	replicator := jobs.NewWorker(jobs.NewReplicationWorker(a.store, log.Named("replication")), cfg.ReplicationInterval, log.Named("worker"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		replicator.Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server exited")
	return nil
}
