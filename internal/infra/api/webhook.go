package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain/ports/repository"
	"telegram-group-subscription/internal/infra/logging"
	"telegram-group-subscription/internal/infra/metrics"
	"telegram-group-subscription/internal/infra/worker"
	"telegram-group-subscription/internal/usecase"
)

const (
	HeaderTimestamp = "x-timestamp"
	HeaderSignature = "x-signature"

	maxWebhookBody = 1 << 20
	eventLockTTL   = 30 * time.Second
)

// SignatureVerifier checks the raw body against the signature headers.
type SignatureVerifier interface {
	Verify(body []byte, timestamp, signature string) error
}

// WebhookHandler answers gateway deliveries quickly and runs the event
// handler on the worker pool.
type WebhookHandler struct {
	verifier SignatureVerifier
	events   repository.ProcessedEventStore
	locker   repository.Locker
	uc       usecase.WebhookUseCase
	pool     *worker.Pool
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewWebhookHandler(
	verifier SignatureVerifier,
	events repository.ProcessedEventStore,
	locker repository.Locker,
	uc usecase.WebhookUseCase,
	pool *worker.Pool,
	timeout time.Duration,
	logger *zerolog.Logger,
) *WebhookHandler {
	l := logger.With().Str("component", "webhook_receiver").Logger()
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &WebhookHandler{verifier: verifier, events: events, locker: locker, uc: uc, pool: pool, timeout: timeout, log: &l}
}

// ServeHTTP applies the checks in a fixed order: headers, raw body,
// signature, JSON, event id, de-duplication, dispatch, mark, respond.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), h.log)

	ts, sig := r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature)
	if ts == "" || sig == "" {
		metrics.IncWebhookEvent("unknown", "rejected")
		l.Warn().Msg("webhook missing signature headers")
		writeStatus(w, http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		l.Warn().Err(err).Msg("webhook body read failed")
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(body, ts, sig); err != nil {
		metrics.IncWebhookEvent("unknown", "rejected")
		l.Warn().Err(err).Msg("webhook signature rejected")
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	var ev usecase.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.IncWebhookEvent("unknown", "rejected")
		l.Warn().Err(err).Msg("webhook body is not valid JSON")
		writeStatus(w, http.StatusBadRequest)
		return
	}
	if ev.ID == "" {
		metrics.IncWebhookEvent(ev.Name, "rejected")
		l.Warn().Str("event", ev.Name).Msg("webhook event without id")
		writeStatus(w, http.StatusBadRequest)
		return
	}
	l = logging.With(logging.WithEventID(r.Context(), ev.ID), h.log)

	// Serializes concurrent deliveries of one event id.
	key := "webhook_event:" + ev.ID
	token, err := h.locker.TryLock(r.Context(), key, eventLockTTL)
	if err != nil {
		l.Error().Err(err).Msg("webhook event lock failed")
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	defer func() { _ = h.locker.Unlock(context.Background(), key, token) }()

	seen, err := h.events.Seen(r.Context(), ev.ID)
	if err != nil {
		l.Warn().Err(err).Msg("webhook de-dup lookup failed; processing anyway")
	}
	if seen {
		metrics.IncWebhookEvent(ev.Name, "duplicate")
		l.Info().Str("event", ev.Name).Msg("duplicate webhook event")
		writeStatus(w, http.StatusOK)
		return
	}

	if !h.uc.Supports(ev.Name) {
		metrics.IncWebhookEvent(ev.Name, "ignored")
		l.Info().Str("event", ev.Name).Msg("unknown webhook event acknowledged")
	} else if err := h.dispatch(&ev); err != nil {
		// Not marked, so the gateway's retry gets another chance.
		l.Error().Err(err).Str("event", ev.Name).Msg("webhook dispatch failed")
		writeStatus(w, http.StatusInternalServerError)
		return
	} else {
		metrics.IncWebhookEvent(ev.Name, "accepted")
	}

	if err := h.events.Mark(r.Context(), ev.ID); err != nil {
		l.Warn().Err(err).Msg("webhook event could not be recorded")
	}
	writeStatus(w, http.StatusOK)
}

func (h *WebhookHandler) dispatch(ev *usecase.WebhookEvent) error {
	if h.pool == nil {
		return errors.New("no worker pool")
	}
	return h.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(logging.WithEventID(ctx, ev.ID), h.timeout)
		defer cancel()
		if err := h.uc.Handle(ctx, ev); err != nil {
			metrics.IncWebhookEvent(ev.Name, "failed")
			h.log.Error().Err(err).Str("event_id", ev.ID).Str("event", ev.Name).Msg("webhook handler failed")
			return err
		}
		return nil
	})
}

func writeStatus(w http.ResponseWriter, code int) {
	writeJSON(w, code, map[string]string{"status": http.StatusText(code)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
