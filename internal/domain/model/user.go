package model

import (
	"time"

	"telegram-group-subscription/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionActive      SubscriptionStatus = "active"
	SubscriptionExpired     SubscriptionStatus = "expired"
	SubscriptionWhitelisted SubscriptionStatus = "whitelisted"
)

type PaymentMethod string

const (
	PaymentMethodNone        PaymentMethod = ""
	PaymentMethodCard        PaymentMethod = "card"
	PaymentMethodStars       PaymentMethod = "stars"
	PaymentMethodWhitelisted PaymentMethod = "whitelisted"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodStars, PaymentMethodWhitelisted:
		return true
	}
	return false
}

// User is one row per Telegram account in the subscription store.
// NextPaymentDate is a calendar date (UTC midnight); nil for whitelisted
// or never-subscribed users.
type User struct {
	TelegramID         int64
	Username           string
	Status             SubscriptionStatus
	PaymentMethod      PaymentMethod
	NextPaymentDate    *time.Time
	CardPaymentID      string
	StarsTransactionID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewUser(tgID int64, username string) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &User{
		TelegramID: tgID,
		Username:   username,
		Status:     SubscriptionExpired,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.TelegramID == 0 }

// IsActive reports actual access: whitelisted, or active with a payment
// date that has not passed yet. An active row with a past date is not
// active here; the scheduler repairs the status.
func (u *User) IsActive(today time.Time) bool {
	if u == nil {
		return false
	}
	if u.Status == SubscriptionWhitelisted {
		return true
	}
	if u.Status != SubscriptionActive || u.NextPaymentDate == nil {
		return false
	}
	return !u.NextPaymentDate.Before(DateOf(today))
}

// DaysUntilExpiry returns -1 when there is no expiry date.
func (u *User) DaysUntilExpiry(today time.Time) int {
	if u == nil || u.NextPaymentDate == nil {
		return -1
	}
	return DaysBetween(DateOf(today), *u.NextPaymentDate)
}

// TransactionRef returns the stored external reference for the given rail.
func (u *User) TransactionRef(m PaymentMethod) string {
	if u == nil {
		return ""
	}
	switch m {
	case PaymentMethodCard:
		return u.CardPaymentID
	case PaymentMethodStars:
		return u.StarsTransactionID
	}
	return ""
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DaysBetween(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}

// NextExpiry stacks active renewals onto the current expiry and restarts
// lapsed (or first) purchases from today.
func NextExpiry(current *time.Time, today time.Time, days int) time.Time {
	base := DateOf(today)
	if current != nil {
		if cur := DateOf(*current); cur.After(base) {
			base = cur
		}
	}
	return base.AddDate(0, 0, days)
}
