package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/mqttbridge/infra/logger"
)

// Mount adds extra routes next to /metrics.
type Mount func(mux *http.ServeMux)

// StartPromServer serves the default Prometheus registry on addr until ctx
// is cancelled.
func StartPromServer(ctx context.Context, addr string, mounts ...Mount) error {
	return ServeMetrics(ctx, addr, prometheus.DefaultGatherer, mounts...)
}

// ServeMetrics exposes g on /metrics using a dedicated ServeMux.
func ServeMetrics(ctx context.Context, addr string, g prometheus.Gatherer, mounts ...Mount) error {
	log := logger.New("metrics_http")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	for _, m := range mounts {
		m(mux)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("prom server shutdown: %v", err)
		}
	}()
	log.Infof("serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
