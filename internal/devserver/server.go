// Package devserver is a local stand-in for the platform's auth and log
// stream endpoints.
package devserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/your-username/ehr-console/internal/config"
	"github.com/your-username/ehr-console/internal/monitoring"
)

type Server struct {
	cfg       config.DevServerConfig
	sessions  *Sessions
	hub       *Hub
	generator *Generator
	metrics   *monitoring.MetricsCollector
}

func New(cfg config.DevServerConfig) (*Server, error) {
	sessions, err := NewSessions(cfg.JWTSecret, cfg.OperatorEmail, cfg.OperatorPassword, cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	metrics := monitoring.NewMetricsCollector()
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		hub:       NewHub(metrics),
		generator: NewGenerator(cfg.Rate, time.Now().UnixNano()),
		metrics:   metrics,
	}, nil
}

// Router builds the HTTP routes; streamPath is the SSE endpoint and its
// websocket mirror lives next to it at .../ws
func (s *Server) Router(streamPath string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Cache-Control"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// streams are long lived and stay out of the request timeout
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.sessions))
		r.Get(streamPath, StreamSSE(s.hub))
		r.Get(wsPath(streamPath), StreamWebSocket(s.hub))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/login", Login(s.sessions))
		r.Post("/refresh", Refresh(s.sessions))
		r.Get("/metrics", monitoring.Handler(s.metrics))
		r.Get("/metrics.json", GetMetrics(s.metrics))

		r.With(RequireAuth(s.sessions)).Get("/me", Me())
	})

	return r
}

// Run serves on addr until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr, streamPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	go s.generator.Run(ctx, s.hub)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Router(streamPath),
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down dev server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown failed")
		}
		close(done)
	}()

	log.Info().
		Str("addr", addr).
		Str("stream", streamPath).
		Str("operator", s.cfg.OperatorEmail).
		Dur("access_ttl", s.sessions.accessTTL).
		Msg("Dev server started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-done
	log.Info().Msg("Dev server stopped")
	return nil
}

func wsPath(streamPath string) string {
	return strings.TrimSuffix(streamPath, "/stream") + "/ws"
}
