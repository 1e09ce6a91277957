package services

import (
	"context"
	"errors"

	"gifts-auction-bot/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository is the persistence capability for user records. The store is
// the single source of truth; callers re-read right before deciding instead of
// caching records in process.
type UserRepository interface {
	// Get returns (nil, nil) when the user is unknown.
	Get(ctx context.Context, telegramID int64) (*models.User, error)
	// Create is idempotent: creating an id that already exists is a no-op.
	Create(ctx context.Context, telegramID int64, balance int, referredBy *int64, username *string) error
	SetFlyerVerified(ctx context.Context, telegramID int64, verified bool) error
	UpdateUsername(ctx context.Context, telegramID int64, username string) error
	// AssignReferrer writes referred_by at most once. Returns true only when
	// the assignment happened on this call; an already-assigned referrer is a
	// no-op, not an error.
	AssignReferrer(ctx context.Context, telegramID, referrerID int64) (bool, error)
	AddBalance(ctx context.Context, telegramID int64, delta int) error
	SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error
	ListAll(ctx context.Context) ([]models.User, error)
}

type GormUserRepository struct {
	DB *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{DB: db}
}

func (r *GormUserRepository) Get(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) Create(ctx context.Context, telegramID int64, balance int, referredBy *int64, username *string) error {
	user := models.User{
		TelegramID: telegramID,
		Balance:    balance,
		ReferredBy: referredBy,
		Username:   username,
	}
	// Concurrent create-if-absent races resolve here: the loser's insert
	// silently does nothing.
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoNothing: true,
	}).Create(&user).Error
}

func (r *GormUserRepository) SetFlyerVerified(ctx context.Context, telegramID int64, verified bool) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("flyer_verified", verified).Error
}

func (r *GormUserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("username", username).Error
}

func (r *GormUserRepository) AssignReferrer(ctx context.Context, telegramID, referrerID int64) (bool, error) {
	if referrerID == telegramID {
		// Self-referral is discarded, not an error.
		return false, nil
	}
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ? AND referred_by IS NULL", telegramID).
		Update("referred_by", referrerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormUserRepository) AddBalance(ctx context.Context, telegramID int64, delta int) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("balance", gorm.Expr("balance + ?", delta)).Error
}

func (r *GormUserRepository) SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("is_subscribed", subscribed).Error
}

func (r *GormUserRepository) ListAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
