package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/tensord/internal/backend"
	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/engine"
	"github.com/seantiz/tensord/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router    *chi.Mux
	backend   *backend.Backend
	store     store.Store
	broker    *engine.EventBroker
	devices   *compute.DeviceRegistry
	logger    *slog.Logger
	addr      string
	modelRoot string
	started   time.Time
}

// NewServer creates and configures a new HTTP server. modelRoot, when
// non-empty, anchors relative model paths in load requests.
func NewServer(addr string, b *backend.Backend, st store.Store, broker *engine.EventBroker, devices *compute.DeviceRegistry, modelRoot string, logger *slog.Logger) *Server {
	srv := &Server{
		router:    chi.NewRouter(),
		backend:   b,
		store:     st,
		broker:    broker,
		devices:   devices,
		logger:    logger,
		addr:      addr,
		modelRoot: modelRoot,
		started:   time.Now(),
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/devices", s.handleListDevices)
	s.router.Get("/v1/stats", s.handleGetStats)

	s.router.Route("/v1/tensors", func(r chi.Router) {
		r.Post("/", s.handleCreateTensor)
		r.Get("/{id}", s.handleGetTensor)
		r.Delete("/{id}", s.handleDeleteTensor)
	})

	s.router.Post("/v1/ops", s.handleExecuteOp)

	s.router.Route("/v1/models", func(r chi.Router) {
		r.Post("/", s.handleLoadModel)
		r.Get("/", s.handleModelCount)
		r.Delete("/{id}", s.handleDeleteModel)
		r.Post("/{id}/runs", s.handleCreateRun)
	})

	s.router.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/events", s.handleRunEvents)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
func (s *Server) Run() error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.devices.List())
}
