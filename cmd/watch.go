package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chukul/webidctl/internal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	watchInterval time.Duration
	watchWorkers  int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Fetch credentials on an interval, as a connection pool would",
	Long: `Calls the credential cache every --interval from --workers concurrent workers,
the way a connection pool authenticates new connections, and logs the access
key each worker received. Useful for checking that refreshes happen once and
in time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchWorkers < 1 {
			return fmt.Errorf("--workers must be at least 1")
		}
		if watchInterval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cache, _, err := newCache(ctx, nil)
		if err != nil {
			return err
		}

		logger.Info("watch started", "roleARN", cache.Config().RoleARN, "interval", watchInterval, "workers", watchWorkers)

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		for {
			runWatchTick(ctx, cache, watchWorkers)

			select {
			case <-ctx.Done():
				logger.Info("watch stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}

// runWatchTick has every worker fetch credentials once. Failures are logged,
// not returned, so the loop keeps going.
func runWatchTick(ctx context.Context, cache *internal.CredentialCache, workers int) {
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			creds, err := cache.Get(ctx)
			if err != nil {
				logger.Error(err, "fetching credentials", "worker", i)
				return nil
			}
			logger.Info("credentials ok", "worker", i, "accessKeyID", creds.AccessKeyID)
			return nil
		})
	}
	_ = g.Wait()
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", time.Minute, "Time between fetches")
	watchCmd.Flags().IntVarP(&watchWorkers, "workers", "w", 1, "Concurrent workers per tick")
	rootCmd.AddCommand(watchCmd)
}
