package watch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoosonics/sawcall-go/internal/analysis"
	"github.com/zoosonics/sawcall-go/internal/conf"
	"github.com/zoosonics/sawcall-go/internal/datastore"
	"github.com/zoosonics/sawcall-go/internal/logging"
	"github.com/zoosonics/sawcall-go/internal/observability"
)

// Command creates the watch command for running the background scheduler.
func Command(settings *conf.Settings) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the background processing scheduler",
		Long: `Run the polling scheduler as a long-lived service. Pending recordings are
processed as they appear and recent failures are retried once the queue has
been idle. The service stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), settings, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for the Prometheus metrics endpoint, e.g. :9090")
	return cmd
}

func runWatch(ctx context.Context, settings *conf.Settings, metricsAddr string) error {
	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database backend enabled in configuration")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	pipeline := analysis.NewPipeline(store, settings, metrics)
	scheduler := analysis.NewScheduler(pipeline, settings, metrics)

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		metrics.RegisterHandlers(mux)
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logging.Info("metrics endpoint listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	scheduler.Start()
	logging.Info("watch service running", "status", scheduler.Status())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logging.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	scheduler.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("metrics endpoint shutdown failed", "error", err)
		}
	}
	return nil
}
