package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/usecase"
)

// SchedulerRunner triggers one lifecycle run outside the daily schedule.
type SchedulerRunner interface {
	RunOnce(ctx context.Context) error
}

// Server is the admin API, mounted under /admin.
type Server struct {
	statsUC     usecase.StatsUseCase
	subUC       usecase.SubscriptionUseCase
	payUC       usecase.PaymentUseCase
	broadcastUC usecase.BroadcastUseCase
	scheduler   SchedulerRunner
	auth        *AuthManager
	log         *zerolog.Logger
}

func NewServer(
	statsUC usecase.StatsUseCase,
	subUC usecase.SubscriptionUseCase,
	payUC usecase.PaymentUseCase,
	broadcastUC usecase.BroadcastUseCase,
	scheduler SchedulerRunner,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "admin_api").Logger()
	return &Server{
		statsUC:     statsUC,
		subUC:       subUC,
		payUC:       payUC,
		broadcastUC: broadcastUC,
		scheduler:   scheduler,
		auth:        auth,
		log:         &l,
	}
}

// Routes returns the admin router. Everything except token exchange is
// behind the JWT middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/token", s.tokenHandler)
	r.Post("/logout", s.logoutHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.statsHandler)
		r.Get("/whitelist", s.whitelistListHandler)
		r.Post("/whitelist/bulk", s.bulkWhitelistHandler)
		r.Post("/scheduler/run", s.schedulerRunHandler)
		r.Post("/broadcast", s.broadcastHandler)
		r.Get("/sessions/{session_id}", s.sessionStatusHandler)

		r.Route("/users/{telegram_id}", func(r chi.Router) {
			r.Get("/", s.userGetHandler)
			r.Post("/whitelist", s.whitelistHandler)
			r.Delete("/whitelist", s.unwhitelistHandler)
			r.Post("/extend", s.extendHandler)
			r.Post("/cancel", s.cancelHandler)
			r.Post("/refund", s.refundHandler)
		})
	})
	return r
}

// authMiddleware accepts a JWT minted by /admin/token, as bearer or cookie.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			s.log.Error().Msg("Admin API credentials are not configured")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
