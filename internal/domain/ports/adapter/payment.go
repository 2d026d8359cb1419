package adapter

import (
	"context"
	"time"
)

// LinkStatusPaid is the remote status of a settled payment link.
const LinkStatusPaid = "PAID"

// PaymentLinkRequest describes a hosted card-payment link.
// Metadata travels with the link and comes back in webhook events.
type PaymentLinkRequest struct {
	Amount        float64
	Currency      string
	Title         string
	Description   string
	CustomerName  string
	CustomerEmail string
	Metadata      map[string]string
	ExpiresIn     time.Duration
	WebhookURL    string
}

type PaymentLink struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

type PaymentLinkStatus struct {
	ID              string
	Status          string
	PaymentIntentID string
	Metadata        map[string]string
}

func (s *PaymentLinkStatus) Paid() bool { return s != nil && s.Status == LinkStatusPaid }

// PaymentGateway is the hex port for the card-payment link provider.
type PaymentGateway interface {
	Name() string
	// Configured reports whether credentials are present at all.
	Configured() bool
	Authenticate(ctx context.Context) error
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
	GetPaymentLinkStatus(ctx context.Context, linkID string) (*PaymentLinkStatus, error)
	CancelPaymentLink(ctx context.Context, linkID string) error
}
