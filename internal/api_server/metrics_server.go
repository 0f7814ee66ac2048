package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cortap/cortap-rpt/pkg/metrics"
)

// MetricServer exposes the prometheus registry and a liveness probe on a
// port kept apart from the public API.
type MetricServer struct {
	listener net.Listener
	srv      *http.Server
}

func NewMetricServer(bindAddress string, listener net.Listener) *MetricServer {
	return &MetricServer{
		listener: listener,
		srv: &http.Server{
			Addr:              bindAddress,
			Handler:           metricsRouter(),
			ReadHeaderTimeout: gracefulShutdownTimeout,
		},
	}
}

func metricsRouter() http.Handler {
	router := chi.NewRouter()
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router
}

func (m *MetricServer) Run(ctx context.Context) error {
	logger := zap.S().Named("metrics_server")

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gracefulShutdownTimeout)
		defer cancel()
		m.srv.SetKeepAlivesEnabled(false)
		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("metrics server shutdown", "error", err)
		}
	}()

	logger.Infof("serving metrics on %s", m.listener.Addr())
	err := m.srv.Serve(m.listener)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		<-stopped
		logger.Info("metrics server terminated")
		return nil
	}
	return err
}
