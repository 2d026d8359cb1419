//go:build !integration

package api_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-group-subscription/internal/infra/adapters/payment"
	"telegram-group-subscription/internal/infra/api"
	"telegram-group-subscription/internal/infra/memory"
	"telegram-group-subscription/internal/infra/worker"
	"telegram-group-subscription/internal/usecase"
)

const secret = "whsec_test"

type mockWebhookUC struct {
	mu      sync.Mutex
	handled []string
	done    chan string
}

func newMockWebhookUC() *mockWebhookUC { return &mockWebhookUC{done: make(chan string, 8)} }

func (m *mockWebhookUC) Supports(name string) bool {
	return name == "payment_link.paid" || name == "payment_intent.succeeded"
}

func (m *mockWebhookUC) Handle(ctx context.Context, ev *usecase.WebhookEvent) error {
	m.mu.Lock()
	m.handled = append(m.handled, ev.ID)
	m.mu.Unlock()
	m.done <- ev.ID
	return nil
}

func (m *mockWebhookUC) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.handled...)
}

func silent() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type webhookFixture struct {
	handler *api.WebhookHandler
	events  *memory.EventSet
	uc      *mockWebhookUC
	pool    *worker.Pool
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	logger := silent()
	pool := worker.NewPool(1, logger)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	f := &webhookFixture{events: memory.NewEventSet(100), uc: newMockWebhookUC(), pool: pool}
	f.handler = api.NewWebhookHandler(
		payment.NewSignatureVerifier(secret, time.Minute, logger),
		f.events, memory.NewLocker(), f.uc, pool, time.Second, logger,
	)
	return f
}

func signedRequest(body string) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, api.WebhookPath, strings.NewReader(body))
	req.Header.Set(api.HeaderTimestamp, ts)
	req.Header.Set(api.HeaderSignature, payment.Sign([]byte(secret), ts, []byte(body)))
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func (f *webhookFixture) waitHandled(t *testing.T, id string) {
	t.Helper()
	select {
	case got := <-f.uc.done:
		require.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("event %s was not handled", id)
	}
}

func TestWebhookHandler_Rejections(t *testing.T) {
	f := newWebhookFixture(t)

	t.Run("should reject a request without signature headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, api.WebhookPath, strings.NewReader(`{"id":"evt_1"}`))
		assert.Equal(t, http.StatusBadRequest, serve(f.handler, req).Code)
	})

	t.Run("should reject a bad signature", func(t *testing.T) {
		req := signedRequest(`{"id":"evt_1","name":"payment_link.paid"}`)
		req.Header.Set(api.HeaderSignature, strings.Repeat("0", 64))
		assert.Equal(t, http.StatusUnauthorized, serve(f.handler, req).Code)
	})

	t.Run("should reject a stale timestamp even with a matching digest", func(t *testing.T) {
		body := `{"id":"evt_1","name":"payment_link.paid"}`
		ts := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
		req := httptest.NewRequest(http.MethodPost, api.WebhookPath, strings.NewReader(body))
		req.Header.Set(api.HeaderTimestamp, ts)
		req.Header.Set(api.HeaderSignature, payment.Sign([]byte(secret), ts, []byte(body)))
		assert.Equal(t, http.StatusUnauthorized, serve(f.handler, req).Code)
	})

	t.Run("should reject a signed body that is not JSON", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, serve(f.handler, signedRequest("not json")).Code)
	})

	t.Run("should reject an event without id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, serve(f.handler, signedRequest(`{"name":"payment_link.paid"}`)).Code)
	})

	assert.Empty(t, f.uc.calls())
	n, _ := f.events.Len(context.Background())
	assert.Zero(t, n, "rejected deliveries are never recorded")
}

func TestWebhookHandler_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should handle an event once and acknowledge the redelivery", func(t *testing.T) {
		// Arrange
		f := newWebhookFixture(t)
		body := `{"id":"evt_42","name":"payment_link.paid","data":{"object":{"id":"pl_1"}}}`

		// Act
		first := serve(f.handler, signedRequest(body))
		f.waitHandled(t, "evt_42")
		second := serve(f.handler, signedRequest(body))

		// Assert
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, http.StatusOK, second.Code)
		assert.Equal(t, []string{"evt_42"}, f.uc.calls())
		seen, err := f.events.Seen(ctx, "evt_42")
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("should acknowledge and record an unsupported event without handling it", func(t *testing.T) {
		f := newWebhookFixture(t)

		rr := serve(f.handler, signedRequest(`{"id":"evt_7","name":"refund.settled"}`))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, f.uc.calls())
		seen, _ := f.events.Seen(ctx, "evt_7")
		assert.True(t, seen)
	})

	t.Run("should answer 500 and not record the event when dispatch fails", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.pool.Stop()

		rr := serve(f.handler, signedRequest(`{"id":"evt_9","name":"payment_link.paid"}`))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		seen, _ := f.events.Seen(ctx, "evt_9")
		assert.False(t, seen, "the gateway retry must be processed")
	})
}
