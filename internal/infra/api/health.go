package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain/ports/repository"
	"telegram-group-subscription/internal/infra/worker"
)

// Check reports one component's health; a nil error is healthy.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks   map[string]Check
	info     map[string]string
	sessions repository.SessionStore
	events   repository.ProcessedEventStore
	pool     *worker.Pool
	log      *zerolog.Logger
	now      func() time.Time
}

func NewHealthHandler(sessions repository.SessionStore, events repository.ProcessedEventStore, pool *worker.Pool, logger *zerolog.Logger) *HealthHandler {
	l := logger.With().Str("component", "health").Logger()
	return &HealthHandler{
		checks:   map[string]Check{},
		info:     map[string]string{},
		sessions: sessions,
		events:   events,
		pool:     pool,
		log:      &l,
		now:      time.Now,
	}
}

// AddCheck registers a component probe; a failing probe degrades the status.
func (h *HealthHandler) AddCheck(name string, c Check) *HealthHandler {
	h.checks[name] = c
	return h
}

// AddInfo registers a static component state such as "disabled".
func (h *HealthHandler) AddInfo(name, state string) *HealthHandler {
	h.info[name] = state
	return h
}

type healthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
	Stats      map[string]int    `json:"stats"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:     "healthy",
		Timestamp:  h.now().UTC(),
		Components: make(map[string]string, len(h.checks)+len(h.info)),
		Stats:      map[string]int{},
	}
	for name, state := range h.info {
		resp.Components[name] = state
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("health check failed")
			resp.Components[name] = "error"
			resp.Status = "degraded"
			continue
		}
		resp.Components[name] = "ok"
	}

	if h.events != nil {
		if n, err := h.events.Len(ctx); err == nil {
			resp.Stats["processed_webhooks_count"] = n
		}
	}
	if h.sessions != nil {
		if n, err := h.sessions.Count(ctx); err == nil {
			resp.Stats["payment_sessions"] = n
		}
	}
	if h.pool != nil {
		resp.Stats["worker_queue"] = h.pool.Pending()
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
