package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cortap/cortap-rpt/internal/auth"
	"github.com/cortap/cortap-rpt/internal/config"
	handlers "github.com/cortap/cortap-rpt/internal/handlers/v1"
	"github.com/cortap/cortap-rpt/internal/jobs"
	"github.com/cortap/cortap-rpt/internal/service"
	"github.com/cortap/cortap-rpt/internal/store"
	"github.com/cortap/cortap-rpt/pkg/metrics"
	"github.com/cortap/cortap-rpt/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	dispatcherStopTimeout   = 30 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	listener net.Listener
}

// New returns a new instance of a cortap report server.
func New(
	cfg *config.Config,
	store store.Store,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	authenticator, err := auth.NewAuthenticator(ctx, s.cfg.Service.Auth)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}

	orchestrator, err := NewOrchestrator(ctx, s.cfg, s.store)
	if err != nil {
		return err
	}

	dispatcher, stopDispatcher, err := s.startDispatcher(ctx, orchestrator)
	if err != nil {
		return err
	}
	defer stopDispatcher()

	go jobs.NewJanitor(s.store.Job(), s.cfg.Service.JanitorInterval).Run(ctx)

	requestValidator, err := NewRequestValidator()
	if err != nil {
		return err
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegister(nil)

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	h := handlers.NewServiceHandler(
		service.NewReportJobService(s.store, dispatcher, s.cfg.Service.JobRetention),
		s.cfg.Service.BaseUrl,
	)
	router.Get("/health", h.Health)
	router.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticator, requestValidator)
		h.RegisterRoutes(r)
	})

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// startDispatcher starts the configured dispatcher. The returned func stops it
// once in-flight jobs are done.
func (s *Server) startDispatcher(ctx context.Context, runner jobs.Runner) (jobs.Dispatcher, func(), error) {
	switch s.cfg.Service.Dispatcher {
	case config.DispatcherRiver:
		pool, err := NewPgxPool(ctx, s.cfg)
		if err != nil {
			return nil, nil, err
		}

		worker := jobs.NewReportWorker(runner, s.cfg.Report.Timeout+WebhookBudget(s.cfg))
		dispatcher, err := jobs.NewRiverDispatcher(pool, worker, s.cfg.Service.Workers)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to create river client: %w", err)
		}
		if err := dispatcher.Start(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to start river: %w", err)
		}

		return dispatcher, func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), dispatcherStopTimeout)
			defer cancel()
			if err := dispatcher.Stop(stopCtx); err != nil {
				zap.S().Named("api_server").Warnw("failed to stop river client", "error", err)
			}
			pool.Close()
		}, nil
	default:
		dispatcher := jobs.NewLocalDispatcher(runner, s.cfg.Service.Workers)
		dispatcher.Start(ctx)
		return dispatcher, dispatcher.Stop, nil
	}
}
