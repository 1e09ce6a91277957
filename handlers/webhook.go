// handlers/webhook.go
//
// Inbound push channel from the verification provider. The provider retries
// indefinitely on non-success and may duplicate or reorder deliveries, so
// every request is acknowledged with the fixed success body no matter what —
// malformed JSON, missing ids and unknown event types all degrade to a logged
// no-op. Reactions run as background tasks with their own error boundary,
// never on the request/response path.
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"

	"gifts-auction-bot/models"
	"gifts-auction-bot/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type webhookEvent int

const (
	eventUnknown webhookEvent = iota
	eventTest
	eventCompleted
	eventAborted
)

var successResponse = fiber.Map{"status": true}

type WebhookHandler struct {
	Verifier *services.VerificationService
	Bot      *BotHandler
	DB       *gorm.DB

	// baseCtx scopes the fire-and-forget reactions to the process lifetime
	// instead of the request lifetime; wg lets shutdown drain them.
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewWebhookHandler(baseCtx context.Context, verifier *services.VerificationService, bot *BotHandler, db *gorm.DB) *WebhookHandler {
	return &WebhookHandler{
		Verifier: verifier,
		Bot:      bot,
		DB:       db,
		baseCtx:  baseCtx,
	}
}

func SetupWebhookRoutes(app *fiber.App, h *WebhookHandler) {
	app.Post("/flyer_webhook", h.Handle)
}

// Drain blocks until all in-flight background reactions finish.
func (h *WebhookHandler) Drain() {
	h.wg.Wait()
}

func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	eventID := uuid.NewString()

	var payload map[string]any
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		log.Printf("[WEBHOOK] ⚠️ %s: invalid JSON payload: %v", eventID, err)
		return c.JSON(successResponse)
	}

	eventType, _ := payload["type"].(string)
	if eventType == "test" {
		// Liveness probe from the provider.
		return c.JSON(successResponse)
	}

	telegramID := extractTelegramID(payload)
	h.recordEvent(eventID, eventType, telegramID, c.Body())

	if telegramID == nil {
		// Not recoverable by retrying the same payload.
		log.Printf("[WEBHOOK] ⚠️ %s: event %q without telegram id", eventID, eventType)
		return c.JSON(successResponse)
	}

	username := extractUsername(payload)
	chatID := extractChatID(payload, *telegramID)

	switch normalizeEvent(eventType, payload) {
	case eventCompleted:
		h.handleCompleted(eventID, *telegramID, chatID, username)
	case eventAborted:
		h.handleAborted(eventID, *telegramID, chatID, username)
	default:
		log.Printf("[WEBHOOK] ℹ️ %s: unhandled event type %q for user %d", eventID, eventType, *telegramID)
	}

	return c.JSON(successResponse)
}

func (h *WebhookHandler) handleCompleted(eventID string, telegramID, chatID int64, username *string) {
	decision := h.Verifier.ApplyCompleted(h.baseCtx, telegramID, username)
	if !decision.TriggerWelcome {
		log.Printf("[WEBHOOK] ✅ %s: user %d already verified, no-op", eventID, telegramID)
		return
	}
	log.Printf("[WEBHOOK] ✅ %s: user %d verified via push", eventID, telegramID)

	// The ack must not wait on the welcome flow; its failure is logged, never
	// surfaced to the provider.
	h.runAsync(eventID, "welcome flow", func(ctx context.Context) error {
		return h.Bot.RunWelcomeFlow(ctx, telegramID, chatID, username, nil)
	})
}

func (h *WebhookHandler) handleAborted(eventID string, telegramID, chatID int64, username *string) {
	if err := h.Verifier.ApplyAborted(h.baseCtx, telegramID, username); err != nil {
		log.Printf("[WEBHOOK] ❌ %s: failed to reset verification for user %d: %v", eventID, telegramID, err)
		return
	}
	log.Printf("[WEBHOOK] ↩️ %s: user %d unsubscribed, verification reset", eventID, telegramID)

	user, err := h.Bot.Repo.Get(h.baseCtx, telegramID)
	if err != nil {
		log.Printf("[WEBHOOK] ⚠️ %s: failed to load user %d for unsubscription reaction: %v", eventID, telegramID, err)
		user = nil
	}

	// Both reactions are best-effort and fault-isolated from each other.
	h.runAsync(eventID, "unsubscription reaction", func(ctx context.Context) error {
		return h.Bot.HandleUnsubscription(ctx, user)
	})
	h.runAsync(eventID, "resubscribe prompt", func(ctx context.Context) error {
		return h.Bot.SendResubscribePrompt(chatID)
	})
}

// runAsync launches a reaction on the process-scoped context with its own
// error boundary. No new reaction starts after shutdown is requested.
func (h *WebhookHandler) runAsync(eventID, name string, fn func(ctx context.Context) error) {
	if h.baseCtx.Err() != nil {
		log.Printf("[WEBHOOK] ⏹️ %s: shutdown in progress, skipping %s", eventID, name)
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := fn(h.baseCtx); err != nil {
			log.Printf("[WEBHOOK] ⚠️ %s: %s failed: %v", eventID, name, err)
		}
	}()
}

// recordEvent writes the audit row. Best effort: a failed insert never affects
// event processing or the acknowledgment.
func (h *WebhookHandler) recordEvent(eventID, eventType string, telegramID *int64, body []byte) {
	if h.DB == nil {
		return
	}
	row := models.WebhookEvent{
		ID:         eventID,
		EventType:  eventType,
		TelegramID: telegramID,
		Payload:    string(body),
	}
	if err := h.DB.Create(&row).Error; err != nil {
		log.Printf("[WEBHOOK] ⚠️ %s: failed to record event: %v", eventID, err)
	}
}

// normalizeEvent maps the provider's heterogeneous wire formats onto the
// canonical events. Both the legacy names (sub_completed, new_status+abort)
// and the self-describing ones are accepted.
func normalizeEvent(eventType string, payload map[string]any) webhookEvent {
	switch eventType {
	case "test":
		return eventTest
	case "sub_completed", "subscription_completed":
		return eventCompleted
	case "subscription_aborted":
		return eventAborted
	case "new_status":
		if status, ok := extractFirst(payload, [][]string{{"data", "status"}, {"status"}}).(string); ok && status == "abort" {
			return eventAborted
		}
	}
	return eventUnknown
}

// extractFirst walks an ordered list of candidate field paths; first full
// match wins.
func extractFirst(payload map[string]any, paths [][]string) any {
	for _, path := range paths {
		var current any = payload
		matched := true
		for _, key := range path {
			obj, ok := current.(map[string]any)
			if !ok {
				matched = false
				break
			}
			current, ok = obj[key]
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			return current
		}
	}
	return nil
}

// coerceInt64 accepts both native numeric and numeric-string encodings.
func coerceInt64(value any) *int64 {
	switch v := value.(type) {
	case float64:
		n := int64(v)
		return &n
	case int64:
		return &v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return &n
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

func extractTelegramID(payload map[string]any) *int64 {
	return coerceInt64(extractFirst(payload, [][]string{
		{"telegram_id"},
		{"chat_id"},
		{"user_id"},
		{"data", "telegram_id"},
		{"data", "chat_id"},
		{"data", "user_id"},
		{"data", "user", "id"},
	}))
}

func extractChatID(payload map[string]any, fallback int64) int64 {
	id := coerceInt64(extractFirst(payload, [][]string{
		{"chat_id"},
		{"data", "chat_id"},
	}))
	if id == nil {
		return fallback
	}
	return *id
}

func extractUsername(payload map[string]any) *string {
	raw := extractFirst(payload, [][]string{
		{"username"},
		{"data", "username"},
		{"data", "user", "username"},
	})
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if s != "" {
			return &s
		}
	}
	return nil
}
