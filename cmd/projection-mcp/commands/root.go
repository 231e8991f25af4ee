package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"usage-projection/internal/config"
	"usage-projection/internal/logging"
	"usage-projection/internal/mcp"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "projection-mcp",
	Short: "Conditional usage projection and risk-gate MCP server",
	Long: `An MCP server that projects a player's performance class at a hypothetical usage rate,
then caps the projection with a tiered hierarchy of calibrated risk gates and places it in a
performance/dependence risk quadrant.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(verbose); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("projection-mcp starting")
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.installThresholds(ctx); err != nil {
			return err
		}

		mcp.Version = Version
		server := mcp.NewServer(cfg, a.engine, a.provider)

		g, gctx := errgroup.WithContext(ctx)
		if cfg.MetricsAddr != "" {
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(a)}
			g.Go(func() error {
				log.Info().Str("addr", cfg.MetricsAddr).Msg("Serving metrics")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}
		g.Go(func() error {
			defer stop()
			if err := server.Serve(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		return g.Wait()
	},
}

func metricsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(calibrateCmd, predictCmd, importCmd)
}
