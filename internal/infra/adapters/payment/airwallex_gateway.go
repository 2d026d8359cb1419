// File: internal/infra/adapters/payment/airwallex_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/config"
	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*AirwallexGateway)(nil)

const (
	loginPath        = "/api/v1/authentication/login"
	paymentLinksPath = "/api/v1/pa/payment_links"

	// tokens are refreshed this long before their stated expiry
	tokenRefreshMargin = 5 * time.Minute
	defaultTokenTTL    = 30 * time.Minute
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("airwallex %s: status %d: %s", e.Op, e.Status, e.Body)
}

// AirwallexGateway implements adapter.PaymentGateway against the hosted
// payment-link API. Calls retry transient failures with exponential backoff
// and re-authenticate once on 401.
type AirwallexGateway struct {
	baseURL     string
	clientID    string
	apiKey      string
	client      *http.Client
	maxAttempts int
	retryDelay  time.Duration
	log         *zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewAirwallexGateway(cfg config.GatewayConfig, logger *zerolog.Logger) *AirwallexGateway {
	l := logger.With().Str("component", "airwallex").Logger()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return &AirwallexGateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		clientID:    cfg.ClientID,
		apiKey:      cfg.APIKey,
		client:      &http.Client{Timeout: timeout},
		maxAttempts: attempts,
		retryDelay:  cfg.RetryDelay,
		log:         &l,
		now:         time.Now,
	}
}

func (g *AirwallexGateway) Name() string { return "airwallex" }

func (g *AirwallexGateway) Configured() bool { return g.clientID != "" && g.apiKey != "" }

// Authenticate exchanges client credentials for a bearer token and caches it.
func (g *AirwallexGateway) Authenticate(ctx context.Context) error {
	_, err := g.bearer(ctx, true)
	return err
}

func (g *AirwallexGateway) bearer(ctx context.Context, force bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !force && g.token != "" && g.now().Before(g.tokenExp.Add(-tokenRefreshMargin)) {
		return g.token, nil
	}
	if !g.Configured() {
		return "", fmt.Errorf("%w: credentials not configured", domain.ErrGatewayUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+loginPath, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", g.clientID)
	req.Header.Set("x-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	metrics.ObserveGateway("login", err)
	if err != nil {
		return "", fmt.Errorf("%w: login: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		g.token = ""
		return "", fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, &APIError{Op: "login", Status: resp.StatusCode, Body: string(body)})
	}

	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		return "", fmt.Errorf("%w: login: malformed token response", domain.ErrGatewayUnavailable)
	}
	g.token = out.Token
	g.tokenExp = parseExpiry(out.ExpiresAt, g.now().Add(defaultTokenTTL))
	g.log.Debug().Time("expires_at", g.tokenExp).Msg("gateway token refreshed")
	return g.token, nil
}

func parseExpiry(s string, fallback time.Time) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700", "2006-01-02T15:04:05.000-0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return fallback
}

func (g *AirwallexGateway) invalidate(token string) {
	g.mu.Lock()
	if g.token == token {
		g.token = ""
	}
	g.mu.Unlock()
}

// do performs one JSON API call with retries.
func (g *AirwallexGateway) do(ctx context.Context, op, method, path string, payload any, out any) error {
	var raw []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}

	reauthed := false
	call := func() error {
		tok, err := g.bearer(ctx, false)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return backoff.Permanent(err)
			}
			return err
		}

		var body io.Reader = http.NoBody
		if raw != nil {
			body = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := g.client.Do(req)
		metrics.ObserveGateway(op, err)
		if err != nil {
			g.log.Warn().Err(err).Str("op", op).Msg("gateway request failed")
			return err
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		switch {
		case resp.StatusCode == http.StatusUnauthorized && !reauthed:
			reauthed = true
			g.invalidate(tok)
			return &APIError{Op: op, Status: resp.StatusCode, Body: "token rejected"}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &APIError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
		case resp.StatusCode >= 400:
			return backoff.Permanent(&APIError{Op: op, Status: resp.StatusCode, Body: string(respBody)})
		}

		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("airwallex %s: decode: %w", op, err))
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	if g.retryDelay > 0 {
		eb.InitialInterval = g.retryDelay
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.maxAttempts-1)), ctx)
	if err := backoff.Retry(call, policy); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests && apiErr.Status != http.StatusUnauthorized {
			return err
		}
		if errors.Is(err, domain.ErrGatewayUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return nil
}

type linkResponse struct {
	ID              string         `json:"id"`
	URL             string         `json:"url"`
	Status          string         `json:"status"`
	ExpiresAt       string         `json:"expires_at"`
	PaymentIntentID string         `json:"payment_intent_id"`
	Metadata        map[string]any `json:"metadata"`
}

// CreatePaymentLink creates a single-use hosted link.
func (g *AirwallexGateway) CreatePaymentLink(ctx context.Context, req adapter.PaymentLinkRequest) (*adapter.PaymentLink, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	payload := map[string]any{
		"amount":      req.Amount,
		"currency":    req.Currency,
		"title":       req.Title,
		"description": req.Description,
		"reusable":    false,
		"status":      "ACTIVE",
		"metadata":    req.Metadata,
		"expires_at":  g.now().Add(expiresIn).UTC().Format(time.RFC3339),
	}
	if req.CustomerName != "" {
		payload["customer_name"] = req.CustomerName
	}
	if req.CustomerEmail != "" {
		payload["customer_email"] = req.CustomerEmail
	}
	if req.WebhookURL != "" {
		payload["notification_url"] = req.WebhookURL
	}

	var out linkResponse
	if err := g.do(ctx, "create_link", http.MethodPost, paymentLinksPath+"/create", payload, &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.URL == "" {
		return nil, fmt.Errorf("%w: create_link: empty link in response", domain.ErrGatewayUnavailable)
	}
	return &adapter.PaymentLink{
		ID:        out.ID,
		URL:       out.URL,
		ExpiresAt: parseExpiry(out.ExpiresAt, g.now().Add(expiresIn)),
	}, nil
}

func (g *AirwallexGateway) GetPaymentLinkStatus(ctx context.Context, linkID string) (*adapter.PaymentLinkStatus, error) {
	if linkID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out linkResponse
	if err := g.do(ctx, "get_link", http.MethodGet, paymentLinksPath+"/"+url.PathEscape(linkID), nil, &out); err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(out.Metadata))
	for k, v := range out.Metadata {
		meta[k] = fmt.Sprint(v)
	}
	id := out.ID
	if id == "" {
		id = linkID
	}
	return &adapter.PaymentLinkStatus{
		ID:              id,
		Status:          strings.ToUpper(out.Status),
		PaymentIntentID: out.PaymentIntentID,
		Metadata:        meta,
	}, nil
}

func (g *AirwallexGateway) CancelPaymentLink(ctx context.Context, linkID string) error {
	if linkID == "" {
		return domain.ErrInvalidArgument
	}
	return g.do(ctx, "cancel_link", http.MethodPatch, paymentLinksPath+"/"+url.PathEscape(linkID), map[string]any{"status": "INACTIVE"}, nil)
}
