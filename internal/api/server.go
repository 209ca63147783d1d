package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/shohag/pushrelay/internal/config"
	"github.com/shohag/pushrelay/internal/storage"
)

type Server struct {
	cfg      config.ServerConfig
	pusher   Pusher
	store    storage.Storage
	gatherer prometheus.Gatherer
	router   *chi.Mux
	log      zerolog.Logger
	http     *http.Server
}

// NewServer builds the HTTP control surface. A nil gatherer leaves /metrics
// unmounted.
func NewServer(cfg config.ServerConfig, pusher Pusher, store storage.Storage, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		pusher:   pusher,
		store:    store,
		gatherer: gatherer,
		log:      log.With().Str("component", "api").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	notifHandler := NewNotificationHandler(s.pusher)
	fbHandler := NewFeedbackHandler(s.store)
	statusHandler := NewStatusHandler(s.pusher)

	r.Get("/health", statusHandler.Health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey))

		r.Post("/notifications", notifHandler.Send)
		r.Get("/status", statusHandler.Status)

		r.Get("/feedback", fbHandler.List)
		r.Get("/feedback/stats", fbHandler.Stats)
		r.Get("/feedback/{token}", fbHandler.Get)
		r.Delete("/feedback/{token}", fbHandler.Delete)
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
