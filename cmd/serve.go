package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"inboxt_server/config"
	"inboxt_server/internal/bootstrap"
	"inboxt_server/pkg/logger"
	"inboxt_server/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

const (
	modeAPI    = "api"
	modeWorker = "worker"
	modeAll    = "all"
)

func newServeCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, the worker or both",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateMode(mode); err != nil {
				return err
			}
			cfg, err := loadConfig("inboxt-" + mode)
			if err != nil {
				return err
			}
			if mode == modeWorker {
				err = cfg.Validate()
			} else {
				err = cfg.ValidateAPI()
			}
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, mode)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", modeAll, "run mode: api, worker or all")
	return cmd
}

func validateMode(mode string) error {
	switch mode {
	case modeAPI, modeWorker, modeAll:
		return nil
	default:
		return fmt.Errorf("unknown mode %q (want api, worker or all)", mode)
	}
}

func serve(ctx context.Context, cfg *config.Config, mode string) error {
	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer cleanup()

	g, ctx := errgroup.WithContext(ctx)

	// The API serves /metrics itself; a worker-only process gets a dedicated port.
	if cfg.MetricsEnabled && mode == modeWorker {
		srv := metrics.NewServer(cfg.MetricsAddr)
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if mode == modeWorker || mode == modeAll {
		w := bootstrap.NewWorker(deps)
		g.Go(func() error { return w.Run(ctx, shutdownTimeout) })
	}

	if mode == modeAPI || mode == modeAll {
		app := bootstrap.NewAPI(deps)
		addr := ":" + cfg.Port
		g.Go(func() error {
			logger.Info("API listening on %s", addr)
			return app.Listen(addr)
		})
		g.Go(func() error {
			<-ctx.Done()
			logger.Info("shutting down API server (timeout %v)", shutdownTimeout)
			return app.ShutdownWithTimeout(shutdownTimeout)
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
