package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arach/transcribe-dispatch/internal/logging"
)

var logger = logging.ForService("observability")

// shutdownTimeout bounds how long Serve waits for in-flight scrapes to
// finish once ctx is cancelled.
const shutdownTimeout = 5 * time.Second

// Serve exposes registry's metrics at /metrics on addr until ctx is
// cancelled. Intended to run in its own goroutine from the daemon's startup.
func Serve(ctx context.Context, addr string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
