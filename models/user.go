package models

import "time"

// User is one row per distinct Telegram identity. Created on the first
// observed interaction or the first webhook event referencing an unknown id.
type User struct {
	TelegramID int64   `gorm:"primaryKey" json:"telegram_id"`
	Balance    int     `gorm:"not null;default:0" json:"balance"`
	Username   *string `gorm:"index" json:"username,omitempty"`

	// ReferredBy is write-once: assigned at most once, never overwritten,
	// never equal to TelegramID.
	ReferredBy *int64 `gorm:"index" json:"referred_by,omitempty"`

	// FlyerVerified flips false→true when the provider confirms the
	// sponsor-subscription task. The only legitimate true→false transition
	// is an explicit abort event from the provider.
	FlyerVerified bool `gorm:"not null;default:false" json:"flyer_verified"`

	// IsSubscribed marks that the referral bonus tied to verification has
	// already been credited for this user.
	IsSubscribed bool `gorm:"not null;default:false" json:"is_subscribed"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
