package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chukul/webidctl/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var (
	serveListen    string
	serveAuthToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve credentials on a local container credentials endpoint",
	Long: `Starts an HTTP server whose /credentials path returns the cached credentials in
the container credentials format. Point AWS SDKs at it with
AWS_CONTAINER_CREDENTIALS_FULL_URI=http://<listen>/credentials (and
AWS_CONTAINER_AUTHORIZATION_TOKEN if --auth-token is set). Every request is one
cache lookup; the token is exchanged again only when the cached credentials
are within the expiry window. /metrics exposes Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := internal.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}

		cache, _, err := newCache(ctx, metrics)
		if err != nil {
			return err
		}

		// Fail fast on a bad role or token before accepting connections.
		if _, err := cache.Get(ctx); err != nil {
			return fmt.Errorf("initial credential fetch: %w", err)
		}

		srv := &http.Server{
			Addr:              serveListen,
			Handler:           internal.NewServeMux(cache, serveAuthToken, reg, logger.WithName("endpoint")),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("serving credentials", "addr", serveListen, "roleARN", cache.Config().RoleARN)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			logger.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "127.0.0.1:9911", "Address to listen on")
	serveCmd.Flags().StringVar(&serveAuthToken, "auth-token", os.Getenv("WEBIDCTL_AUTH_TOKEN"), "Required Authorization header value (default $WEBIDCTL_AUTH_TOKEN)")
	rootCmd.AddCommand(serveCmd)
}
