package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory link provider for dev mode and tests.
// Links stay ACTIVE until MarkPaid is called.
type NoopPaymentGateway struct {
	mu          sync.Mutex
	seq         int64
	links       map[string]*adapter.PaymentLinkStatus
	cancels     map[string]int
	Unavailable bool
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		links:   make(map[string]*adapter.PaymentLinkStatus),
		cancels: make(map[string]int),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) Configured() bool { return true }

func (g *NoopPaymentGateway) Authenticate(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Unavailable {
		return domain.ErrGatewayUnavailable
	}
	return nil
}

func (g *NoopPaymentGateway) CreatePaymentLink(ctx context.Context, req adapter.PaymentLinkRequest) (*adapter.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Unavailable {
		return nil, domain.ErrGatewayUnavailable
	}
	g.seq++
	id := fmt.Sprintf("noop-link-%d", g.seq)
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	g.links[id] = &adapter.PaymentLinkStatus{ID: id, Status: "ACTIVE", Metadata: meta}
	return &adapter.PaymentLink{
		ID:        id,
		URL:       "https://example.test/pay/" + id,
		ExpiresAt: time.Now().Add(req.ExpiresIn),
	}, nil
}

func (g *NoopPaymentGateway) GetPaymentLinkStatus(ctx context.Context, linkID string) (*adapter.PaymentLinkStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Unavailable {
		return nil, domain.ErrGatewayUnavailable
	}
	st, ok := g.links[linkID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (g *NoopPaymentGateway) CancelPaymentLink(ctx context.Context, linkID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.links[linkID]
	if !ok {
		return domain.ErrNotFound
	}
	st.Status = "INACTIVE"
	g.cancels[linkID]++
	return nil
}

// MarkPaid simulates the customer completing the hosted checkout.
func (g *NoopPaymentGateway) MarkPaid(linkID, intentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.links[linkID]
	if !ok {
		return false
	}
	st.Status = adapter.LinkStatusPaid
	st.PaymentIntentID = intentID
	return true
}

func (g *NoopPaymentGateway) CancelCount(linkID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancels[linkID]
}
