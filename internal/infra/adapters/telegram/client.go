package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-group-subscription/internal/domain"
	"telegram-group-subscription/internal/domain/model"
	"telegram-group-subscription/internal/domain/ports/adapter"
	"telegram-group-subscription/internal/infra/i18n"
	"telegram-group-subscription/internal/usecase"
)

// Compile-time checks
var (
	_ adapter.TelegramBotAdapter = (*Client)(nil)
	_ adapter.GroupManager       = (*Client)(nil)
	_ adapter.Notifier           = (*Client)(nil)
	_ adapter.StarsRefunder      = (*Client)(nil)
)

const inviteLinkTTL = 30 * time.Minute

// BotClient is the subset of *tgbotapi.BotAPI the adapter uses.
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Client sends messages, manages group membership and talks to the
// payments part of the Bot API. It has no use-case dependencies, so it can
// be built before the use cases that need it.
type Client struct {
	api     BotClient
	groupID int64
	tr      *i18n.Translator
	log     *zerolog.Logger
	now     func() time.Time
}

func NewClient(api BotClient, groupID int64, tr *i18n.Translator, logger *zerolog.Logger) *Client {
	l := logger.With().Str("component", "telegram_client").Logger()
	return &Client{api: api, groupID: groupID, tr: tr, log: &l, now: time.Now}
}

func (c *Client) SendMessage(ctx context.Context, tgID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.Send(tgbotapi.NewMessage(tgID, text))
	return err
}

// SendButtons sends a message with an inline keyboard. A button with URL
// opens a link, otherwise it sends its Data (or its label) as callback data.
func (c *Client) SendButtons(ctx context.Context, tgID int64, text string, rows [][]adapter.InlineButton) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(tgID, text)
	if kb := keyboard(rows); len(kb) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kb...)
	}
	_, err := c.api.Send(msg)
	return err
}

func keyboard(rows [][]adapter.InlineButton) [][]tgbotapi.InlineKeyboardButton {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				r = append(r, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		out = append(out, r)
	}
	return out
}

// ===== Group membership =====

// CreateInviteLink returns a single-use link that expires in 30 minutes.
func (c *Client) CreateInviteLink(ctx context.Context, tgID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := c.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: c.groupID},
		Name:        fmt.Sprintf("sub-%d", tgID),
		ExpireDate:  int(c.now().Add(inviteLinkTTL).Unix()),
		MemberLimit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", errors.New("telegram returned an empty invite link")
	}
	return link.InviteLink, nil
}

// RemoveMember bans and immediately unbans, which kicks the user while
// letting them rejoin after a renewal.
func (c *Client) RemoveMember(ctx context.Context, tgID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	member := tgbotapi.ChatMemberConfig{ChatID: c.groupID, UserID: tgID}
	_, err := c.api.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: member,
		UntilDate:        c.now().Add(time.Minute).Unix(),
	})
	if err != nil {
		if isNotMember(err) {
			return domain.ErrNotInGroup
		}
		return fmt.Errorf("ban chat member: %w", err)
	}
	if _, err := c.api.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true}); err != nil {
		// the user is out of the group either way
		c.log.Warn().Err(err).Int64("tg_id", tgID).Msg("unban after removal failed")
	}
	return nil
}

func isNotMember(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"user not found", "participant_id_invalid", "user_not_participant", "not a member", "member not found"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ===== Notifier =====

func (c *Client) NotifySubscriptionActivated(ctx context.Context, tgID int64, res *model.SubscriptionResult, inviteLink string) error {
	key := "notify_activated"
	if res.Renewed {
		key = "notify_renewed"
	}
	text := c.tr.T(key, res.PlanName, res.ExpiresAt.Format("2006-01-02"))
	if inviteLink == "" {
		return c.SendMessage(ctx, tgID, text+"\n\n"+c.tr.T("notify_invite_failed"))
	}
	return c.SendMessage(ctx, tgID, text+"\n\n"+c.tr.T("notify_invite", inviteLink))
}

func (c *Client) NotifyPaymentFailed(ctx context.Context, tgID int64, reason string) error {
	if reason == "" {
		reason = "declined"
	}
	return c.SendMessage(ctx, tgID, c.tr.T("notify_payment_failed", reason))
}

func (c *Client) NotifyLinkExpired(ctx context.Context, tgID int64) error {
	return c.SendMessage(ctx, tgID, c.tr.T("notify_link_expired"))
}

func (c *Client) NotifySubscriptionExpired(ctx context.Context, tgID int64) error {
	return c.SendMessage(ctx, tgID, c.tr.T("notify_expired"))
}

func (c *Client) NotifyExpiryReminder(ctx context.Context, tgID int64, daysLeft int, expiresAt time.Time) error {
	return c.SendMessage(ctx, tgID, c.tr.T("notify_reminder", expiresAt.Format("2006-01-02"), daysLeft))
}

func (c *Client) NotifyRefund(ctx context.Context, tgID int64, amount string) error {
	return c.SendMessage(ctx, tgID, c.tr.T("notify_refund", amount))
}

// ===== Stars payments =====

// SendStarsInvoice sends a native XTR invoice; Stars need no provider token.
func (c *Client) SendStarsInvoice(ctx context.Context, tgID int64, inv *usecase.StarsPaymentResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prices := []tgbotapi.LabeledPrice{{Label: inv.Title, Amount: inv.Stars}}
	cfg := tgbotapi.NewInvoice(tgID, inv.Title, inv.Description, inv.Payload, "", "", inv.Currency, prices)
	// a nil slice is sent as null, which the API rejects
	cfg.SuggestedTipAmounts = []int{}
	_, err := c.api.Send(cfg)
	return err
}

func (c *Client) AnswerPreCheckout(queryID string, ok bool, errMsg string) error {
	_, err := c.api.Request(tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: queryID, OK: ok, ErrorMessage: errMsg})
	return err
}

func (c *Client) RefundStarPayment(ctx context.Context, tgID int64, chargeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("user_id", tgID)
	params.AddNonEmpty("telegram_payment_charge_id", chargeID)
	if _, err := c.api.MakeRequest("refundStarPayment", params); err != nil {
		return fmt.Errorf("refund star payment: %w", err)
	}
	return nil
}

func (c *Client) answerCallback(id, text string) {
	if _, err := c.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		c.log.Debug().Err(err).Msg("callback answer failed")
	}
}

func (c *Client) setCommands() error {
	_, err := c.api.Request(tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Welcome"},
		tgbotapi.BotCommand{Command: "subscribe", Description: "Choose a plan"},
		tgbotapi.BotCommand{Command: "status", Description: "Your subscription"},
	))
	return err
}
