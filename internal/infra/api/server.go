package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/config"
	"telegram-group-subscription/internal/infra/metrics"
)

const WebhookPath = "/webhook/airwallex"

// Server is the public HTTP surface: gateway webhook, health, metrics and
// the admin API.
type Server struct {
	cfg     config.HTTPConfig
	webhook http.Handler
	health  http.Handler
	admin   http.Handler
	log     *zerolog.Logger
	server  *http.Server
}

// NewServer wires the handlers; admin may be nil to disable the admin API.
func NewServer(cfg config.HTTPConfig, webhook, health, admin http.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http_server").Logger()
	return &Server{cfg: cfg, webhook: webhook, health: health, admin: admin, log: &l}
}

// Router builds the chi router; exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log), TraceID(s.log), RequestLog(s.log))

	r.With(Timeout(s.cfg.RequestTimeout)).Post(WebhookPath, s.webhook.ServeHTTP)
	r.Get("/health", s.health.ServeHTTP)
	r.Handle("/metrics", metrics.Handler())
	if s.admin != nil {
		r.With(Timeout(s.cfg.RequestTimeout)).Mount("/admin", s.admin)
	}
	return r
}

// Start blocks until the server stops; http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
