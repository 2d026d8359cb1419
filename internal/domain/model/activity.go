package model

import "time"

type ActivityAction string

const (
	ActionSubscriptionStarted   ActivityAction = "subscription_started"
	ActionSubscriptionRenewed   ActivityAction = "subscription_renewed"
	ActionSubscriptionExpired   ActivityAction = "subscription_expired"
	ActionSubscriptionCancelled ActivityAction = "subscription_cancelled"
	ActionSubscriptionExtended  ActivityAction = "subscription_extended"
	ActionPaymentSuccessful     ActivityAction = "payment_successful"
	ActionPaymentFailed         ActivityAction = "payment_failed"
	ActionPaymentRefunded       ActivityAction = "payment_refunded"
	ActionUserJoinedGroup       ActivityAction = "user_joined_group"
	ActionUserRemovedFromGroup  ActivityAction = "user_removed_from_group"
	ActionUserWhitelisted       ActivityAction = "user_whitelisted"
	ActionUserUnwhitelisted     ActivityAction = "user_unwhitelisted"
	ActionUserCreated           ActivityAction = "user_created"
	ActionReminderSent          ActivityAction = "reminder_sent"
)

// ActivityLogEntry is an append-only audit row.
type ActivityLogEntry struct {
	ID         int64
	TelegramID int64
	Action     ActivityAction
	Details    map[string]any
	Timestamp  time.Time
}

func NewActivity(tgID int64, action ActivityAction, details map[string]any) *ActivityLogEntry {
	if details == nil {
		details = map[string]any{}
	}
	return &ActivityLogEntry{
		TelegramID: tgID,
		Action:     action,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}
}

// SubscriptionStats is a point-in-time count of store rows.
type SubscriptionStats struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	Expired        int `json:"expired"`
	Whitelisted    int `json:"whitelisted"`
	ExpiringInWeek int `json:"expiring_in_week"`
}

// PaymentStats aggregates payment activity over a window.
type PaymentStats struct {
	Days        int     `json:"days"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	CardCount   int     `json:"card_count"`
	CardUSD     float64 `json:"card_usd"`
	StarsCount  int     `json:"stars_count"`
	StarsTotal  int64   `json:"stars_total"`
	CardPercent float64 `json:"card_percentage"`
}
