package models

import "time"

// WebhookEvent is a best-effort audit row per inbound provider push. The
// webhook channel is unordered and may duplicate; keeping the raw payloads
// around is the only way to reconstruct what the provider actually sent.
type WebhookEvent struct {
	ID         string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	EventType  string    `gorm:"index;not null" json:"event_type"`
	TelegramID *int64    `gorm:"index" json:"telegram_id,omitempty"`
	Payload    string    `gorm:"type:text" json:"payload"`
	ReceivedAt time.Time `json:"received_at" gorm:"autoCreateTime"`
}
