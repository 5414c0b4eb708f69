package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ineyio/quoterouter/httpapi"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API on QUOTEROUTER_LISTEN_ADDR.

Expired cache entries and old quota periods are purged every
QUOTEROUTER_HOUSEKEEP_INTERVAL. SIGINT or SIGTERM drain in-flight requests
and queued leads before exit.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("close", zap.Error(err))
		}
		_ = a.Logger.Sync()
	}()

	srv := &http.Server{
		Addr:              a.Env.ListenAddr,
		Handler:           httpapi.NewRouter(a.Orchestrator, httpapi.WithLogger(a.Logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go a.RunHousekeeping(ctx, a.Env.HousekeepInterval)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
