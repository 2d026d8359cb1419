package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeUCError maps domain errors; anything unknown is a 500 without detail.
func (s *Server) writeUCError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownPlan):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Str("op", op).Msg("admin operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func telegramIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "telegram_id"), 10, 64)
	return id, err == nil && id > 0
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) tokenHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.auth.Enabled() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if !s.auth.CheckAPIKey(req.APIKey) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("admin token exchange rejected")
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	token, exp, err := s.auth.Mint(w)
	if err != nil {
		s.writeUCError(w, err, "mint_token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": exp.UTC()})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// statsHandler serves subscription, payment and session figures.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}
	report, err := s.statsUC.Report(r.Context(), days)
	if err != nil {
		s.writeUCError(w, err, "stats")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type userView struct {
	TelegramID      int64                     `json:"telegram_id"`
	Username        string                    `json:"username"`
	Status          model.SubscriptionStatus  `json:"subscription_status"`
	PaymentMethod   model.PaymentMethod       `json:"payment_method,omitempty"`
	NextPaymentDate string                    `json:"next_payment_date,omitempty"`
	Active          bool                      `json:"active"`
	DaysLeft        int                       `json:"days_left"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
	Activity        []*model.ActivityLogEntry `json:"activity,omitempty"`
}

func newUserView(u *model.User, now time.Time) userView {
	v := userView{
		TelegramID:    u.TelegramID,
		Username:      u.Username,
		Status:        u.Status,
		PaymentMethod: u.PaymentMethod,
		Active:        u.IsActive(now),
		DaysLeft:      u.DaysUntilExpiry(now),
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	if u.NextPaymentDate != nil {
		v.NextPaymentDate = u.NextPaymentDate.Format("2006-01-02")
	}
	return v
}

func (s *Server) userGetHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := telegramIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	u, err := s.subUC.GetUser(r.Context(), id)
	if err != nil {
		s.writeUCError(w, err, "get_user")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("activity_limit"))
	if limit <= 0 {
		limit = 20
	}
	view := newUserView(u, time.Now())
	view.Activity, err = s.subUC.Activity(r.Context(), id, model.ActivityAction(r.URL.Query().Get("action")), limit)
	if err != nil {
		s.writeUCError(w, err, "user_activity")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) whitelistListHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.subUC.ListWhitelisted(r.Context())
	if err != nil {
		s.writeUCError(w, err, "list_whitelisted")
		return
	}
	now := time.Now()
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, newUserView(u, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "total": len(out)})
}

func (s *Server) whitelistHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := telegramIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	var req struct {
		Username string `json:"username"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.subUC.Whitelist(r.Context(), id, req.Username); err != nil {
		s.writeUCError(w, err, "whitelist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"telegram_id": id, "subscription_status": model.SubscriptionWhitelisted})
}

func (s *Server) unwhitelistHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := telegramIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	if err := s.subUC.RemoveFromWhitelist(r.Context(), id); err != nil {
		s.writeUCError(w, err, "remove_from_whitelist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"telegram_id": id, "subscription_status": model.SubscriptionExpired})
}

func (s *Server) bulkWhitelistHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramIDs []int64 `json:"telegram_ids"`
	}
	if err := decode(r, &req); err != nil || len(req.TelegramIDs) == 0 {
		writeError(w, http.StatusBadRequest, "telegram_ids is required")
		return
	}
	n, err := s.subUC.BulkWhitelist(r.Context(), req.TelegramIDs)
	if err != nil {
		s.writeUCError(w, err, "bulk_whitelist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"whitelisted": n})
}

func (s *Server) extendHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := telegramIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	var req struct {
		Days int `json:"days"`
	}
	if err := decode(r, &req); err != nil || req.Days <= 0 {
		writeError(w, http.StatusBadRequest, "days must be positive")
		return
	}
	exp, err := s.subUC.Extend(r.Context(), id, req.Days)
	if err != nil {
		s.writeUCError(w, err, "extend")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"telegram_id": id, "next_payment_date": exp.Format("2006-01-02")})
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := telegramIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "admin"
	}
	if err := s.subUC.Cancel(r.Context(), id, req.Reason); err != nil {
		s.writeUCError(w, err, "cancel")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"telegram_id": id, "subscription_status": model.SubscriptionExpired})
}

func (s *Server) refundHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := telegramIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid telegram_id")
		return
	}
	var req struct {
		ChargeID string              `json:"charge_id"`
		Method   model.PaymentMethod `json:"method"`
	}
	if err := decode(r, &req); err != nil || req.ChargeID == "" {
		writeError(w, http.StatusBadRequest, "charge_id is required")
		return
	}
	if err := s.payUC.Refund(r.Context(), id, req.ChargeID, req.Method); err != nil {
		s.writeUCError(w, err, "refund")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"telegram_id": id, "refunded": req.ChargeID})
}

func (s *Server) sessionStatusHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.payUC.GetSessionStatus(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeUCError(w, err, "session_status")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) schedulerRunHandler(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler disabled")
		return
	}
	// The run outlives the request timeout; it has its own deadline.
	if err := s.scheduler.RunOnce(context.WithoutCancel(r.Context())); err != nil {
		s.writeUCError(w, err, "scheduler_run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) broadcastHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := s.broadcastUC.BroadcastMessage(r.Context(), req.Message)
	if err != nil {
		s.writeUCError(w, err, "broadcast")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"recipients": n})
}
