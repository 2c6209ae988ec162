package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"trailblazer_ai/internal/httpapi"
	"trailblazer_ai/internal/utils"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		logger := utils.NewLogger("serve")

		deps, err := httpapi.BuildDependencies(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "build dependencies")
		}

		port := servePort
		if port == "" {
			port = cfg.HTTP.Port
		}
		srv := &http.Server{
			Addr:         ":" + port,
			Handler:      httpapi.NewRouter(deps, cfg),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		}

		return runServer(ctx, srv, cfg.HTTP.ShutdownTimeout, logger, deps.Close)
	},
}

// runServer serves until ctx is done, then drains in-flight requests and
// runs cleanup with the same deadline.
func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger *utils.Logger, cleanup func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	logger.Info("Shutting down")
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if cleanup != nil {
		if err := cleanup(sctx); err != nil {
			logger.Error("Cleanup failed", "error", err)
		}
	}
	logger.Info("Server exited")

	if serveErr != nil {
		return eris.Wrap(serveErr, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
