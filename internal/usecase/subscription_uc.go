// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/domain/ports/repository"
	"telegram-group-subscription/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// ActivateRequest converts a confirmed payment into subscription time.
type ActivateRequest struct {
	TelegramID    int64
	Username      string
	Method        model.PaymentMethod
	TransactionID string
	Plan          model.Plan
	AmountUSD     float64
	SessionID     string
}

type SubscriptionUseCase interface {
	// Activate extends (or starts) the subscription and writes exactly one
	// activity entry. A transaction id already recorded on the user is a
	// duplicate and returns the stored expiry without extending again.
	Activate(ctx context.Context, req ActivateRequest) (*model.SubscriptionResult, error)
	// GrantAccess creates an invite link and tells the user the subscription is live.
	GrantAccess(ctx context.Context, res *model.SubscriptionResult) (string, error)

	GetUser(ctx context.Context, tgID int64) (*model.User, error)
	GetOrCreateUser(ctx context.Context, tgID int64, username string) (*model.User, error)

	// Lifecycle sweeps, run by the scheduler.
	ExpireOverdue(ctx context.Context) (int, error)
	SendReminders(ctx context.Context, leadDays []int) (int, error)
	CleanupAudit(ctx context.Context, retentionDays int) (int64, error)
	Stats(ctx context.Context) (*model.SubscriptionStats, error)
	PaymentStats(ctx context.Context, days int) (*model.PaymentStats, error)

	// Admin operations.
	Cancel(ctx context.Context, tgID int64, reason string) error
	Extend(ctx context.Context, tgID int64, days int) (time.Time, error)
	Whitelist(ctx context.Context, tgID int64, username string) error
	BulkWhitelist(ctx context.Context, tgIDs []int64) (int, error)
	RemoveFromWhitelist(ctx context.Context, tgID int64) error
	ListWhitelisted(ctx context.Context) ([]*model.User, error)
	Activity(ctx context.Context, tgID int64, action model.ActivityAction, limit int) ([]*model.ActivityLogEntry, error)
	LogActivity(ctx context.Context, tgID int64, action model.ActivityAction, details map[string]any) error
}

const bulkBatchSize = 100

type subscriptionUC struct {
	users    repository.UserRepository
	activity repository.ActivityLogRepository
	tm       repository.TransactionManager
	group    adapter.GroupManager
	notifier adapter.Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionUseCase(
	users repository.UserRepository,
	activity repository.ActivityLogRepository,
	tm repository.TransactionManager,
	group adapter.GroupManager,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "subscription_uc").Logger()
	return &subscriptionUC{
		users:    users,
		activity: activity,
		tm:       tm,
		group:    group,
		notifier: notifier,
		log:      &l,
		now:      time.Now,
	}
}

// withTx runs fn in a transaction when a manager is wired, else directly.
func (uc *subscriptionUC) withTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if uc.tm == nil {
		return fn(ctx, repository.NoTX)
	}
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, fn)
}

func (uc *subscriptionUC) today() time.Time { return model.DateOf(uc.now()) }

func (uc *subscriptionUC) Activate(ctx context.Context, req ActivateRequest) (*model.SubscriptionResult, error) {
	if req.TelegramID <= 0 || req.Plan.Days <= 0 || !req.Method.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	today := uc.today()

	existing, err := uc.users.FindByTelegramID(ctx, repository.NoTX, req.TelegramID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			uc.log.Warn().Err(err).Int64("tg_id", req.TelegramID).Msg("user fetch failed; treating as new user")
		}
		existing = nil
	}
	if dup := duplicateResult(existing, req); dup != nil {
		uc.log.Info().Int64("tg_id", req.TelegramID).Str("tx", req.TransactionID).Msg("transaction already applied")
		return dup, nil
	}
	renewed := existing != nil && existing.IsActive(today) && existing.Status == model.SubscriptionActive

	details := map[string]any{
		"plan_id":        req.Plan.ID,
		"plan_name":      req.Plan.Name,
		"days":           req.Plan.Days,
		"method":         string(req.Method),
		"transaction_id": req.TransactionID,
		"session_id":     req.SessionID,
		"renewed":        renewed,
	}
	switch req.Method {
	case model.PaymentMethodCard:
		details["amount_usd"] = req.AmountUSD
	case model.PaymentMethodStars:
		details["stars"] = req.Plan.Stars
	}

	expiry, err := uc.users.ExtendSubscription(ctx, repository.NoTX, repository.ExtendRequest{
		TelegramID:    req.TelegramID,
		Username:      req.Username,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		Days:          req.Plan.Days,
		Today:         today,
		Details:       details,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if !errors.Is(err, domain.ErrProcedureUnavailable) {
			uc.log.Warn().Err(err).Msg("extend_subscription procedure failed; using manual path")
		}
		var dup *model.SubscriptionResult
		expiry, dup, err = uc.manualExtend(ctx, req, today, details)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			return dup, nil
		}
	}

	uc.log.Info().
		Int64("tg_id", req.TelegramID).
		Str("method", string(req.Method)).
		Str("plan", req.Plan.ID).
		Time("expires_at", expiry).
		Bool("renewed", renewed).
		Msg("subscription activated")

	return &model.SubscriptionResult{
		TelegramID:    req.TelegramID,
		PlanName:      req.Plan.Name,
		ExpiresAt:     expiry,
		TransactionID: req.TransactionID,
		PaymentMethod: req.Method,
		Renewed:       renewed,
	}, nil
}

func duplicateResult(u *model.User, req ActivateRequest) *model.SubscriptionResult {
	if u == nil || req.TransactionID == "" || u.NextPaymentDate == nil {
		return nil
	}
	if u.TransactionRef(req.Method) != req.TransactionID {
		return nil
	}
	return &model.SubscriptionResult{
		TelegramID:    u.TelegramID,
		PlanName:      req.Plan.Name,
		ExpiresAt:     *u.NextPaymentDate,
		TransactionID: req.TransactionID,
		PaymentMethod: req.Method,
		Duplicate:     true,
	}
}

// manualExtend is fetch -> compute -> update -> log under a per-user lock.
// The transaction guard is re-checked under the lock.
func (uc *subscriptionUC) manualExtend(ctx context.Context, req ActivateRequest, today time.Time, details map[string]any) (time.Time, *model.SubscriptionResult, error) {
	var (
		expiry time.Time
		dup    *model.SubscriptionResult
	)
	err := uc.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.users.LockUser(ctx, tx, req.TelegramID); err != nil {
			return err
		}
		u, err := uc.users.FindByTelegramID(ctx, tx, req.TelegramID)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				uc.log.Warn().Err(err).Int64("tg_id", req.TelegramID).Msg("fetch inside extension failed; treating as new user")
			}
			u = nil
		}
		if dup = duplicateResult(u, req); dup != nil {
			return nil
		}
		if u == nil {
			if u, err = model.NewUser(req.TelegramID, req.Username); err != nil {
				return err
			}
		}
		var current *time.Time
		if u.Status == model.SubscriptionActive {
			current = u.NextPaymentDate
		}
		expiry = model.NextExpiry(current, today, req.Plan.Days)

		if req.Username != "" {
			u.Username = req.Username
		}
		u.Status = model.SubscriptionActive
		u.PaymentMethod = req.Method
		u.NextPaymentDate = &expiry
		switch req.Method {
		case model.PaymentMethodCard:
			u.CardPaymentID = req.TransactionID
		case model.PaymentMethodStars:
			u.StarsTransactionID = req.TransactionID
		}
		u.UpdatedAt = uc.now().UTC()

		if err := uc.users.Save(ctx, tx, u); err != nil {
			return err
		}
		return uc.activity.Append(ctx, tx, model.NewActivity(req.TelegramID, model.ActionPaymentSuccessful, details))
	})
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("manual extend: %w", err)
	}
	return expiry, dup, nil
}

func (uc *subscriptionUC) GrantAccess(ctx context.Context, res *model.SubscriptionResult) (string, error) {
	if res == nil {
		return "", domain.ErrInvalidArgument
	}
	link, err := uc.group.CreateInviteLink(ctx, res.TelegramID)
	if err != nil {
		metrics.IncGroupOp("invite", "error")
		uc.log.Error().Err(err).Int64("tg_id", res.TelegramID).Msg("invite link creation failed")
	} else {
		metrics.IncGroupOp("invite", "ok")
	}
	if nerr := uc.notifier.NotifySubscriptionActivated(ctx, res.TelegramID, res, link); nerr != nil {
		uc.log.Warn().Err(nerr).Int64("tg_id", res.TelegramID).Msg("activation notice failed")
	}
	return link, err
}

func (uc *subscriptionUC) GetUser(ctx context.Context, tgID int64) (*model.User, error) {
	return uc.users.FindByTelegramID(ctx, repository.NoTX, tgID)
}

func (uc *subscriptionUC) GetOrCreateUser(ctx context.Context, tgID int64, username string) (*model.User, error) {
	u, err := uc.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err == nil {
		if username != "" && u.Username != username {
			u.Username = username
			u.UpdatedAt = uc.now().UTC()
			if err := uc.users.Save(ctx, repository.NoTX, u); err != nil {
				uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("username refresh failed")
			}
		}
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	u, err = model.NewUser(tgID, username)
	if err != nil {
		return nil, err
	}
	err = uc.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.users.Save(ctx, tx, u); err != nil {
			return err
		}
		return uc.activity.Append(ctx, tx, model.NewActivity(tgID, model.ActionUserCreated, map[string]any{"username": username}))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// evict removes the user from the group; not being a member is success.
func (uc *subscriptionUC) evict(ctx context.Context, tgID int64) bool {
	err := uc.group.RemoveMember(ctx, tgID)
	switch {
	case err == nil:
		metrics.IncGroupOp("remove", "ok")
		return true
	case errors.Is(err, domain.ErrNotInGroup):
		metrics.IncGroupOp("remove", "not_member")
		return false
	default:
		metrics.IncGroupOp("remove", "error")
		uc.log.Warn().Err(err).Int64("tg_id", tgID).Msg("group eviction failed")
		return false
	}
}

func (uc *subscriptionUC) ExpireOverdue(ctx context.Context) (int, error) {
	today := uc.today()
	overdue, err := uc.users.ListOverdue(ctx, repository.NoTX, today)
	if err != nil {
		return 0, fmt.Errorf("list overdue: %w", err)
	}

	expired := 0
	for _, u := range overdue {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		removed := uc.evict(ctx, u.TelegramID)

		changed := false
		err := uc.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if err := uc.users.LockUser(ctx, tx, u.TelegramID); err != nil {
				return err
			}
			cur, err := uc.users.FindByTelegramID(ctx, tx, u.TelegramID)
			if err != nil {
				return err
			}
			// a renewal may have landed since the list query
			if cur.Status != model.SubscriptionActive || cur.NextPaymentDate == nil || !cur.NextPaymentDate.Before(today) {
				return nil
			}
			prev := *cur.NextPaymentDate
			cur.Status = model.SubscriptionExpired
			cur.UpdatedAt = uc.now().UTC()
			if err := uc.users.Save(ctx, tx, cur); err != nil {
				return err
			}
			changed = true
			if err := uc.activity.Append(ctx, tx, model.NewActivity(cur.TelegramID, model.ActionSubscriptionExpired, map[string]any{
				"expired_on": prev.Format("2006-01-02"),
				"method":     string(cur.PaymentMethod),
			})); err != nil {
				return err
			}
			if removed {
				return uc.activity.Append(ctx, tx, model.NewActivity(cur.TelegramID, model.ActionUserRemovedFromGroup, map[string]any{"reason": "expired"}))
			}
			return nil
		})
		if err != nil {
			uc.log.Error().Err(err).Int64("tg_id", u.TelegramID).Msg("expire subscription failed")
			continue
		}
		if !changed {
			continue
		}
		expired++
		metrics.IncSubscriptionExpired()
		if err := uc.notifier.NotifySubscriptionExpired(ctx, u.TelegramID); err != nil {
			uc.log.Warn().Err(err).Int64("tg_id", u.TelegramID).Msg("expiry notice failed")
		}
	}
	return expired, nil
}

func (uc *subscriptionUC) SendReminders(ctx context.Context, leadDays []int) (int, error) {
	today := uc.today()
	sent := 0
	var firstErr error
	for _, d := range leadDays {
		if d < 0 {
			continue
		}
		target := today.AddDate(0, 0, d)
		users, err := uc.users.ListExpiringBetween(ctx, repository.NoTX, target, target)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("list expiring in %d days: %w", d, err)
			}
			continue
		}
		for _, u := range users {
			already, err := uc.activity.ExistsSince(ctx, repository.NoTX, u.TelegramID, model.ActionReminderSent, today)
			if err != nil {
				uc.log.Warn().Err(err).Int64("tg_id", u.TelegramID).Msg("reminder lookup failed; skipping")
				continue
			}
			if already {
				continue
			}
			if err := uc.notifier.NotifyExpiryReminder(ctx, u.TelegramID, d, target); err != nil {
				uc.log.Warn().Err(err).Int64("tg_id", u.TelegramID).Msg("reminder delivery failed")
				continue
			}
			if err := uc.activity.Append(ctx, repository.NoTX, model.NewActivity(u.TelegramID, model.ActionReminderSent, map[string]any{
				"days_left":  d,
				"expires_on": target.Format("2006-01-02"),
			})); err != nil {
				uc.log.Warn().Err(err).Int64("tg_id", u.TelegramID).Msg("reminder log failed")
			}
			sent++
			metrics.IncReminder(d)
		}
	}
	return sent, firstErr
}

func (uc *subscriptionUC) CleanupAudit(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	return uc.activity.DeleteOlderThan(ctx, repository.NoTX, uc.now().UTC().AddDate(0, 0, -retentionDays))
}

func (uc *subscriptionUC) Stats(ctx context.Context) (*model.SubscriptionStats, error) {
	counts, err := uc.users.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	today := uc.today()
	soon, err := uc.users.ListExpiringBetween(ctx, repository.NoTX, today, today.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	st := &model.SubscriptionStats{
		Active:         counts[model.SubscriptionActive],
		Expired:        counts[model.SubscriptionExpired],
		Whitelisted:    counts[model.SubscriptionWhitelisted],
		ExpiringInWeek: len(soon),
	}
	st.Total = st.Active + st.Expired + st.Whitelisted
	return st, nil
}

func (uc *subscriptionUC) PaymentStats(ctx context.Context, days int) (*model.PaymentStats, error) {
	if days <= 0 {
		days = 30
	}
	st, err := uc.activity.PaymentStatsSince(ctx, repository.NoTX, uc.now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	st.Days = days
	if total := st.CardCount + st.StarsCount; total > 0 {
		st.CardPercent = float64(st.CardCount) * 100 / float64(total)
	}
	return st, nil
}

// mutateUser loads, changes and saves one user under its lock, with one activity entry.
func (uc *subscriptionUC) mutateUser(ctx context.Context, tgID int64, username string, create bool, action model.ActivityAction, details map[string]any, fn func(u *model.User) error) error {
	return uc.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.users.LockUser(ctx, tx, tgID); err != nil {
			return err
		}
		u, err := uc.users.FindByTelegramID(ctx, tx, tgID)
		if err != nil {
			if !create || !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if u, err = model.NewUser(tgID, username); err != nil {
				return err
			}
		}
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = uc.now().UTC()
		if err := uc.users.Save(ctx, tx, u); err != nil {
			return err
		}
		return uc.activity.Append(ctx, tx, model.NewActivity(tgID, action, details))
	})
}

func (uc *subscriptionUC) Cancel(ctx context.Context, tgID int64, reason string) error {
	err := uc.mutateUser(ctx, tgID, "", false, model.ActionSubscriptionCancelled, map[string]any{"reason": reason}, func(u *model.User) error {
		u.Status = model.SubscriptionExpired
		u.NextPaymentDate = nil
		return nil
	})
	if err != nil {
		return err
	}
	uc.evict(ctx, tgID)
	return nil
}

func (uc *subscriptionUC) Extend(ctx context.Context, tgID int64, days int) (time.Time, error) {
	if days <= 0 {
		return time.Time{}, domain.ErrInvalidArgument
	}
	var expiry time.Time
	today := uc.today()
	err := uc.mutateUser(ctx, tgID, "", false, model.ActionSubscriptionExtended, map[string]any{"days": days, "source": "admin"}, func(u *model.User) error {
		if u.Status == model.SubscriptionWhitelisted {
			return fmt.Errorf("%w: whitelisted users have no expiry", domain.ErrInvalidArgument)
		}
		var current *time.Time
		if u.Status == model.SubscriptionActive {
			current = u.NextPaymentDate
		}
		expiry = model.NextExpiry(current, today, days)
		u.Status = model.SubscriptionActive
		u.NextPaymentDate = &expiry
		return nil
	})
	return expiry, err
}

func whitelist(u *model.User) error {
	u.Status = model.SubscriptionWhitelisted
	u.PaymentMethod = model.PaymentMethodWhitelisted
	u.NextPaymentDate = nil
	return nil
}

func (uc *subscriptionUC) Whitelist(ctx context.Context, tgID int64, username string) error {
	if tgID <= 0 {
		return domain.ErrInvalidArgument
	}
	return uc.mutateUser(ctx, tgID, username, true, model.ActionUserWhitelisted, map[string]any{"username": username}, whitelist)
}

func (uc *subscriptionUC) BulkWhitelist(ctx context.Context, tgIDs []int64) (int, error) {
	now := uc.now().UTC()
	seen := make(map[int64]struct{}, len(tgIDs))
	users := make([]*model.User, 0, len(tgIDs))
	for _, id := range tgIDs {
		if _, dup := seen[id]; dup || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		u := &model.User{TelegramID: id, CreatedAt: now, UpdatedAt: now}
		_ = whitelist(u)
		users = append(users, u)
	}
	if len(users) == 0 {
		return 0, nil
	}
	n, err := uc.users.SaveMany(ctx, repository.NoTX, users, bulkBatchSize)
	if err != nil {
		return n, err
	}
	for _, u := range users {
		if err := uc.activity.Append(ctx, repository.NoTX, model.NewActivity(u.TelegramID, model.ActionUserWhitelisted, map[string]any{"bulk": true})); err != nil {
			uc.log.Warn().Err(err).Int64("tg_id", u.TelegramID).Msg("bulk whitelist log failed")
		}
	}
	return n, nil
}

func (uc *subscriptionUC) RemoveFromWhitelist(ctx context.Context, tgID int64) error {
	err := uc.mutateUser(ctx, tgID, "", false, model.ActionUserUnwhitelisted, nil, func(u *model.User) error {
		if u.Status != model.SubscriptionWhitelisted {
			return fmt.Errorf("%w: user is not whitelisted", domain.ErrInvalidArgument)
		}
		u.Status = model.SubscriptionExpired
		u.PaymentMethod = model.PaymentMethodNone
		return nil
	})
	if err != nil {
		return err
	}
	uc.evict(ctx, tgID)
	return nil
}

func (uc *subscriptionUC) ListWhitelisted(ctx context.Context) ([]*model.User, error) {
	return uc.users.ListByStatus(ctx, repository.NoTX, model.SubscriptionWhitelisted)
}

func (uc *subscriptionUC) Activity(ctx context.Context, tgID int64, action model.ActivityAction, limit int) ([]*model.ActivityLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return uc.activity.ListByUser(ctx, repository.NoTX, tgID, action, limit)
}

func (uc *subscriptionUC) LogActivity(ctx context.Context, tgID int64, action model.ActivityAction, details map[string]any) error {
	return uc.activity.Append(ctx, repository.NoTX, model.NewActivity(tgID, action, details))
}
