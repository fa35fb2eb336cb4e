package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/rustplay/internal/config"
	"github.com/michaelbrown/rustplay/internal/limiter"
	"github.com/michaelbrown/rustplay/internal/queue"
	"github.com/michaelbrown/rustplay/internal/worker"
)

// limiterSweepInterval is how often idle rate-limit entries are dropped.
const limiterSweepInterval = 10 * time.Minute

// Server is the HTTP front end of the playground.
type Server struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	queue   *queue.Manager
	pool    *worker.Pool
	limiter *limiter.RateLimiter
	conns   *ConnManager
	router  chi.Router
	http    *http.Server

	stopWorkers context.CancelFunc
}

// New creates a Server that runs submissions through exec.
func New(cfg *config.Config, exec worker.Executor, logger *zerolog.Logger) *Server {
	q := queue.NewManager(cfg.Execution.QueueSize)
	s := &Server{
		cfg:    cfg,
		logger: logger,
		queue:  q,
		pool:   worker.NewPool(cfg.Execution.Workers, exec, q, logger),
		conns:  NewConnManager(),
		router: chi.NewRouter(),
	}
	if cfg.RateLimit.Enabled {
		s.limiter = limiter.NewRateLimiter(cfg.RateLimit.GlobalRPS, cfg.RateLimit.PerIPRPS, cfg.RateLimit.PerIPBurst)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		MaxAge:         3600,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}

		r.With(jsonContentType).Post("/execute", s.handleExecute)

		// WebSocket (no JSON content-type)
		r.Get("/ws", s.handleWebSocket)
	})
}

// jsonContentType sets Content-Type to application/json.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWorkers = cancel
	s.pool.Start(ctx)
	if s.limiter != nil {
		s.limiter.StartCleanup(ctx, limiterSweepInterval)
	}
}

// Start launches the worker pool and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.startWorkers()
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info().
		Str("addr", s.cfg.Server.Addr).
		Str("backend", s.cfg.Execution.Backend).
		Int("workers", s.pool.Size()).
		Int("queue_size", s.queue.Cap()).
		Msg("rustplay server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, lets in-flight executions finish within
// the configured grace period, then stops the workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")
	s.conns.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var err error
	if s.http != nil {
		err = s.http.Shutdown(shutdownCtx)
	}
	if s.stopWorkers != nil {
		s.stopWorkers()
		s.pool.Wait()
	}
	return err
}
