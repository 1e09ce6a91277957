package handlers

import (
	"context"
	"log"

	"gifts-auction-bot/middleware"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Dispatcher runs the long-poll update loop: throttle → verification gate →
// command routing. One goroutine per update; the loop itself only exits on
// context cancellation.
type Dispatcher struct {
	API      *tgbotapi.BotAPI
	Throttle *middleware.Throttle
	Gate     *middleware.VerificationGate
	Bot      *BotHandler
}

func NewDispatcher(api *tgbotapi.BotAPI, throttle *middleware.Throttle, gate *middleware.VerificationGate, bot *BotHandler) *Dispatcher {
	return &Dispatcher{API: api, Throttle: throttle, Gate: gate, Bot: bot}
}

func (d *Dispatcher) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := d.API.GetUpdatesChan(cfg)

	log.Println("🔁 Update dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.API.StopReceivingUpdates()
			log.Println("⏹️ Update dispatcher stopped")
			return
		case update, ok := <-updates:
			if !ok {
				log.Println("⏹️ Updates channel closed")
				return
			}
			in, ok := interactionFrom(update)
			if !ok {
				continue
			}
			go d.handle(ctx, in)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, in middleware.Interaction) {
	if !d.Throttle.Allow(in.UserID) {
		// Dropped silently, no reply.
		return
	}
	if !d.Gate.Admit(ctx, in) {
		return
	}
	d.Bot.HandleInteraction(ctx, in)
}

// interactionFrom flattens a Telegram update into the transport-neutral shape
// the gate consumes. Updates without an originating user are skipped.
func interactionFrom(update tgbotapi.Update) (middleware.Interaction, bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		m := update.Message
		return middleware.Interaction{
			UserID:       m.From.ID,
			ChatID:       m.Chat.ID,
			Username:     optionalString(m.From.UserName),
			LanguageCode: m.From.LanguageCode,
			Text:         m.Text,
		}, true
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cb := update.CallbackQuery
		in := middleware.Interaction{
			UserID:       cb.From.ID,
			Username:     optionalString(cb.From.UserName),
			LanguageCode: cb.From.LanguageCode,
			Text:         cb.Data,
			IsCallback:   true,
			CallbackID:   cb.ID,
		}
		if cb.Message != nil {
			in.ChatID = cb.Message.Chat.ID
		}
		return in, true
	}
	return middleware.Interaction{}, false
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
