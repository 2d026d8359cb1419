package model

import (
	"time"

	"telegram-group-subscription/internal/domain"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
	SessionExpired    SessionStatus = "expired"
)

// Terminal statuses never transition again.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled, SessionExpired:
		return true
	}
	return false
}

const (
	AttemptStarted  = "started"
	AttemptFailed   = "failed"
	AttemptPaid     = "paid"
	AttemptExpired  = "expired"
	AttemptCanceled = "cancelled"
)

type SessionAttempt struct {
	Method  PaymentMethod `json:"method"`
	At      time.Time     `json:"at"`
	Outcome string        `json:"outcome"`
	Detail  string        `json:"detail,omitempty"`
}

// SubscriptionResult is what a successful confirmation hands back to callers.
type SubscriptionResult struct {
	TelegramID    int64         `json:"telegram_id"`
	PlanName      string        `json:"plan_name"`
	ExpiresAt     time.Time     `json:"expires_at"`
	TransactionID string        `json:"transaction_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Renewed       bool          `json:"renewed"`
	Duplicate     bool          `json:"duplicate,omitempty"`
}

// PaymentSession tracks one attempt by one user to pay for one plan.
// Plan is a snapshot taken at creation and never changes afterwards.
type PaymentSession struct {
	ID            string              `json:"id"`
	TelegramID    int64               `json:"telegram_id"`
	Username      string              `json:"username,omitempty"`
	Plan          Plan                `json:"plan"`
	Status        SessionStatus       `json:"status"`
	Method        PaymentMethod       `json:"payment_method,omitempty"`
	ExternalRef   string              `json:"external_reference,omitempty"`
	PaymentURL    string              `json:"payment_url,omitempty"`
	TransactionID string              `json:"transaction_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	ProcessingAt  time.Time           `json:"processing_at,omitempty"`
	ExpiresAt     time.Time           `json:"expires_at"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	Attempts      []SessionAttempt    `json:"attempts"`
	Result        *SubscriptionResult `json:"result,omitempty"`
}

func NewPaymentSession(id string, tgID int64, username string, plan Plan, now time.Time, ttl time.Duration) (*PaymentSession, error) {
	if id == "" || tgID <= 0 || plan.IsZero() || ttl <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PaymentSession{
		ID:         id,
		TelegramID: tgID,
		Username:   username,
		Plan:       plan,
		Status:     SessionPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Attempts:   []SessionAttempt{},
	}, nil
}

func (s *PaymentSession) IsZero() bool { return s == nil || s.ID == "" }

func (s *PaymentSession) IsExpired(now time.Time) bool {
	return !s.Status.Terminal() && now.After(s.ExpiresAt)
}

// StartProcessing binds the session to a rail. A processing session may
// switch rails; terminal sessions are closed for good.
func (s *PaymentSession) StartProcessing(method PaymentMethod, ref string, now time.Time) error {
	if s.Status.Terminal() {
		return domain.ErrSessionClosed
	}
	s.Status = SessionProcessing
	s.Method = method
	s.ExternalRef = ref
	s.ProcessingAt = now
	s.Attempts = append(s.Attempts, SessionAttempt{Method: method, At: now, Outcome: AttemptStarted})
	return nil
}

// RecordAttempt appends an outcome without changing the status.
func (s *PaymentSession) RecordAttempt(outcome, detail string, now time.Time) error {
	if s.Status.Terminal() {
		return domain.ErrSessionClosed
	}
	s.Attempts = append(s.Attempts, SessionAttempt{Method: s.Method, At: now, Outcome: outcome, Detail: detail})
	return nil
}

// Close moves the session into a terminal status and records the outcome.
func (s *PaymentSession) Close(status SessionStatus, outcome, detail string, now time.Time) error {
	if !status.Terminal() {
		return domain.ErrInvalidArgument
	}
	if s.Status.Terminal() {
		return domain.ErrSessionClosed
	}
	s.Status = status
	s.ClosedAt = &now
	s.Attempts = append(s.Attempts, SessionAttempt{Method: s.Method, At: now, Outcome: outcome, Detail: detail})
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (s *PaymentSession) Clone() *PaymentSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Attempts = append([]SessionAttempt(nil), s.Attempts...)
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		cp.ClosedAt = &t
	}
	if s.Result != nil {
		r := *s.Result
		cp.Result = &r
	}
	return &cp
}
