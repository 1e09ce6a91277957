package middleware

import (
	"context"
	"log"
	"strings"

	"gifts-auction-bot/services"
)

// Interaction is a transport-neutral view of one inbound user event (message
// or callback query).
type Interaction struct {
	UserID       int64
	ChatID       int64
	Username     *string
	LanguageCode string
	Text         string
	IsCallback   bool
	CallbackID   string
}

// IsStartCommand reports whether the interaction is itself a /start message.
func (in Interaction) IsStartCommand() bool {
	return !in.IsCallback && strings.HasPrefix(strings.TrimSpace(in.Text), "/start")
}

// Acknowledger answers a callback query so the client stops showing a spinner.
// Denied callbacks still get an empty ack; denied messages get nothing.
type Acknowledger interface {
	AnswerCallback(callbackID string) error
}

// WelcomeRunner executes the welcome flow for a user-chat pair.
type WelcomeRunner interface {
	RunWelcomeFlow(ctx context.Context, telegramID, chatID int64, username *string, referrer *int64) error
}

// VerificationGate is the synchronous interception point in front of every
// business handler.
type VerificationGate struct {
	verifier *services.VerificationService
	ack      Acknowledger
	welcome  WelcomeRunner
}

func NewVerificationGate(verifier *services.VerificationService, ack Acknowledger, welcome WelcomeRunner) *VerificationGate {
	return &VerificationGate{verifier: verifier, ack: ack, welcome: welcome}
}

// Admit runs the shared transition core for the interaction and executes the
// side effects it produced. Returns false when the interaction must be
// suppressed.
func (g *VerificationGate) Admit(ctx context.Context, in Interaction) bool {
	eval := services.Evaluation{
		UserID:       in.UserID,
		LanguageCode: in.LanguageCode,
		Username:     in.Username,
	}
	if ref, ok := services.ParseReferralCode(in.Text); ok && in.IsStartCommand() {
		eval.Referrer = &ref
	}

	decision := g.verifier.Evaluate(ctx, eval)

	if !decision.Admit {
		// Silent denial. Callbacks need the ack so the client-side spinner
		// clears; the denial itself carries no messaging.
		if in.IsCallback && in.CallbackID != "" {
			if err := g.ack.AnswerCallback(in.CallbackID); err != nil {
				log.Printf("[GATE] ⚠️ Failed to ack denied callback for user %d: %v", in.UserID, err)
			}
		}
		return false
	}

	// Never double-invoke the start flow when the admitted interaction is
	// itself /start — the command handler will run it. And never trigger it
	// without a chat to deliver into.
	if decision.TriggerWelcome && !in.IsStartCommand() && in.ChatID != 0 && in.UserID != 0 {
		if err := g.welcome.RunWelcomeFlow(ctx, in.UserID, in.ChatID, in.Username, nil); err != nil {
			log.Printf("[GATE] ⚠️ Welcome flow failed for user %d: %v", in.UserID, err)
		}
	}

	return true
}
