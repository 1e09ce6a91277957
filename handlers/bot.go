// handlers/bot.go
package handlers

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gifts-auction-bot/config"
	"gifts-auction-bot/middleware"
	"gifts-auction-bot/models"
	"gifts-auction-bot/services"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotHandler owns the Telegram command surface and the outbound send
// capabilities (welcome flow, unsubscription reaction, prompts). All sends are
// best-effort: failures are logged, never propagated to the stimulus source.
type BotHandler struct {
	API      *tgbotapi.BotAPI
	Repo     services.UserRepository
	Settings config.Settings
}

func NewBotHandler(api *tgbotapi.BotAPI, repo services.UserRepository, settings config.Settings) *BotHandler {
	return &BotHandler{API: api, Repo: repo, Settings: settings}
}

// AnswerCallback sends an empty callback answer so the client clears the
// loading spinner.
func (h *BotHandler) AnswerCallback(callbackID string) error {
	_, err := h.API.Request(tgbotapi.NewCallback(callbackID, ""))
	return err
}

// HandleInteraction routes an admitted interaction to its command handler.
func (h *BotHandler) HandleInteraction(ctx context.Context, in middleware.Interaction) {
	if in.IsCallback {
		if err := h.AnswerCallback(in.CallbackID); err != nil {
			log.Printf("[BOT] ⚠️ Failed to answer callback from user %d: %v", in.UserID, err)
		}
		return
	}

	text := strings.TrimSpace(in.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		var referrer *int64
		if ref, ok := services.ParseReferralCode(text); ok {
			referrer = &ref
		}
		if err := h.RunWelcomeFlow(ctx, in.UserID, in.ChatID, in.Username, referrer); err != nil {
			log.Printf("[BOT] ⚠️ /start flow failed for user %d: %v", in.UserID, err)
		}
	case strings.HasPrefix(text, "/balance"):
		h.handleBalance(ctx, in)
	case strings.HasPrefix(text, "/ref"):
		h.handleInviteLink(in)
	}
}

// RunWelcomeFlow is the onboarding sequence shared by the /start command, the
// verification gate and the webhook path. Creating the record, assigning the
// referrer and crediting the referral bonus are all individually idempotent,
// so re-running the flow after a duplicated stimulus is safe.
func (h *BotHandler) RunWelcomeFlow(ctx context.Context, telegramID, chatID int64, username *string, referrer *int64) error {
	user, err := h.Repo.Get(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", telegramID, err)
	}
	if user == nil {
		if err := h.Repo.Create(ctx, telegramID, h.Settings.StartBonus, nil, username); err != nil {
			return fmt.Errorf("failed to create user %d: %w", telegramID, err)
		}
	}

	if referrer != nil {
		if _, err := h.Repo.AssignReferrer(ctx, telegramID, *referrer); err != nil {
			log.Printf("[BOT] ⚠️ Failed to assign referrer %d → %d: %v", *referrer, telegramID, err)
		}
	}

	// Credit the referral bonus exactly once, keyed on is_subscribed: only a
	// verified, attributed, not-yet-credited user activates it.
	user, err = h.Repo.Get(ctx, telegramID)
	if err != nil {
		return fmt.Errorf("failed to reload user %d: %w", telegramID, err)
	}
	if user != nil && user.FlyerVerified && user.ReferredBy != nil && !user.IsSubscribed {
		if err := h.Repo.SetSubscribed(ctx, telegramID, true); err != nil {
			log.Printf("[BOT] ❌ Failed to mark user %d subscribed: %v", telegramID, err)
		} else {
			if err := h.Repo.AddBalance(ctx, *user.ReferredBy, h.Settings.ReferralBonus); err != nil {
				log.Printf("[BOT] ❌ Failed to credit referral bonus to %d: %v", *user.ReferredBy, err)
			} else {
				log.Printf("[BOT] 🎁 Referral bonus credited: %d → %d (+%d)", telegramID, *user.ReferredBy, h.Settings.ReferralBonus)
				h.notifyReferrer(*user.ReferredBy, username)
			}
		}
	}

	msg := tgbotapi.NewMessage(chatID,
		"Привет! Добро пожаловать в аукцион подарков 🎁\n\n"+
			"Участвуй в аукционах, приглашай друзей и получай бонусы.")
	msg.ReplyMarkup = mainKeyboard()
	if _, err := h.API.Send(msg); err != nil {
		return fmt.Errorf("failed to send welcome message to chat %d: %w", chatID, err)
	}
	return nil
}

// HandleUnsubscription reverts the referral credit when a previously
// subscribed user drops the sponsor channels. The reset also makes the next
// completion a fresh first transition.
func (h *BotHandler) HandleUnsubscription(ctx context.Context, user *models.User) error {
	if user == nil || !user.IsSubscribed {
		return nil
	}
	if err := h.Repo.SetSubscribed(ctx, user.TelegramID, false); err != nil {
		return fmt.Errorf("failed to clear subscription flag for %d: %w", user.TelegramID, err)
	}
	if user.ReferredBy != nil {
		if err := h.Repo.AddBalance(ctx, *user.ReferredBy, -h.Settings.ReferralBonus); err != nil {
			return fmt.Errorf("failed to revoke referral bonus from %d: %w", *user.ReferredBy, err)
		}
		log.Printf("[BOT] ↩️ Referral bonus revoked: %d → %d (-%d)", user.TelegramID, *user.ReferredBy, h.Settings.ReferralBonus)
	}
	return nil
}

// SendResubscribePrompt asks an unsubscribed user to rejoin the sponsor
// channel.
func (h *BotHandler) SendResubscribePrompt(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID,
		"Мы заметили, что вы отписались от обязательных каналов. "+
			"Подпишитесь снова, чтобы продолжить пользоваться ботом.")
	msg.ReplyMarkup = subscribeKeyboard(h.Settings.ChannelUsername)
	_, err := h.API.Send(msg)
	return err
}

func (h *BotHandler) handleBalance(ctx context.Context, in middleware.Interaction) {
	user, err := h.Repo.Get(ctx, in.UserID)
	if err != nil || user == nil {
		log.Printf("[BOT] ⚠️ Failed to load balance for user %d: %v", in.UserID, err)
		return
	}
	msg := tgbotapi.NewMessage(in.ChatID,
		fmt.Sprintf("💰 Ваш баланс: %d\nМинимальная сумма вывода: %d", user.Balance, h.Settings.MinWithdrawal))
	if _, err := h.API.Send(msg); err != nil {
		log.Printf("[BOT] ⚠️ Failed to send balance to chat %d: %v", in.ChatID, err)
	}
}

func (h *BotHandler) handleInviteLink(in middleware.Interaction) {
	link := services.InviteLink(h.API.Self.UserName, in.UserID)
	msg := tgbotapi.NewMessage(in.ChatID,
		fmt.Sprintf("👥 Приглашайте друзей и получайте +%d за каждого:\n%s", h.Settings.ReferralBonus, link))
	if _, err := h.API.Send(msg); err != nil {
		log.Printf("[BOT] ⚠️ Failed to send invite link to chat %d: %v", in.ChatID, err)
	}
}

func (h *BotHandler) notifyReferrer(referrerID int64, refereeUsername *string) {
	who := "Ваш друг"
	if refereeUsername != nil && *refereeUsername != "" {
		who = "@" + *refereeUsername
	}
	msg := tgbotapi.NewMessage(referrerID,
		fmt.Sprintf("🎉 %s присоединился по вашей ссылке! Бонус +%d зачислен.", who, h.Settings.ReferralBonus))
	if _, err := h.API.Send(msg); err != nil {
		log.Printf("[BOT] ⚠️ Failed to notify referrer %d: %v", referrerID, err)
	}
}

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("🎁 Аукционы"),
			tgbotapi.NewKeyboardButton("💰 Баланс"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("👥 Пригласить друзей"),
		),
	)
}

func subscribeKeyboard(channelUsername string) tgbotapi.InlineKeyboardMarkup {
	url := "https://t.me/" + strings.TrimPrefix(channelUsername, "@")
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📢 Подписаться", url),
		),
	)
}
