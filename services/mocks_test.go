package services

import (
	"context"
	"sync"

	"gifts-auction-bot/models"
)

// MockUserRepository is an in-memory UserRepository honoring the same
// idempotency contracts as the GORM implementation.
type MockUserRepository struct {
	mu    sync.Mutex
	Users map[int64]*models.User

	GetErr         error
	CreateErr      error
	SetVerifiedErr error

	GetCalls    []int64
	CreateCalls int
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{Users: make(map[int64]*models.User)}
}

func (m *MockUserRepository) Get(ctx context.Context, telegramID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls = append(m.GetCalls, telegramID)
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	u, ok := m.Users[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) Create(ctx context.Context, telegramID int64, balance int, referredBy *int64, username *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if _, ok := m.Users[telegramID]; ok {
		return nil // idempotent
	}
	m.Users[telegramID] = &models.User{
		TelegramID: telegramID,
		Balance:    balance,
		ReferredBy: referredBy,
		Username:   username,
	}
	return nil
}

func (m *MockUserRepository) SetFlyerVerified(ctx context.Context, telegramID int64, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetVerifiedErr != nil {
		return m.SetVerifiedErr
	}
	if u, ok := m.Users[telegramID]; ok {
		u.FlyerVerified = verified
	}
	return nil
}

func (m *MockUserRepository) UpdateUsername(ctx context.Context, telegramID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[telegramID]; ok {
		u.Username = &username
	}
	return nil
}

func (m *MockUserRepository) AssignReferrer(ctx context.Context, telegramID, referrerID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if referrerID == telegramID {
		return false, nil
	}
	u, ok := m.Users[telegramID]
	if !ok || u.ReferredBy != nil {
		return false, nil
	}
	u.ReferredBy = &referrerID
	return true, nil
}

func (m *MockUserRepository) AddBalance(ctx context.Context, telegramID int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[telegramID]; ok {
		u.Balance += delta
	}
	return nil
}

func (m *MockUserRepository) SetSubscribed(ctx context.Context, telegramID int64, subscribed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.Users[telegramID]; ok {
		u.IsSubscribed = subscribed
	}
	return nil
}

func (m *MockUserRepository) ListAll(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.Users))
	for _, u := range m.Users {
		out = append(out, *u)
	}
	return out, nil
}

// MockChecker is a scripted VerificationChecker.
type MockChecker struct {
	mu      sync.Mutex
	Allowed bool
	Err     error
	Calls   int
	LastID  int64
}

func (m *MockChecker) Check(ctx context.Context, userID int64, languageCode string, message map[string]string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastID = userID
	if m.Err != nil {
		return false, m.Err
	}
	return m.Allowed, nil
}
