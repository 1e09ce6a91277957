package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"gifts-auction-bot/models"
	"gifts-auction-bot/services"
)

type auditRepo struct {
	mu       sync.Mutex
	users    map[int64]*models.User
	getCalls []int64
}

func newAuditRepo(users ...*models.User) *auditRepo {
	r := &auditRepo{users: make(map[int64]*models.User)}
	for _, u := range users {
		r.users[u.TelegramID] = u
	}
	return r
}

func (r *auditRepo) Get(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls = append(r.getCalls, id)
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *auditRepo) Create(ctx context.Context, id int64, balance int, referredBy *int64, username *string) error {
	return nil
}

func (r *auditRepo) SetFlyerVerified(ctx context.Context, id int64, v bool) error { return nil }

func (r *auditRepo) UpdateUsername(ctx context.Context, id int64, username string) error { return nil }

func (r *auditRepo) AssignReferrer(ctx context.Context, id, referrerID int64) (bool, error) {
	return false, nil
}

func (r *auditRepo) AddBalance(ctx context.Context, id int64, delta int) error { return nil }

func (r *auditRepo) SetSubscribed(ctx context.Context, id int64, v bool) error { return nil }

func (r *auditRepo) ListAll(ctx context.Context) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

type auditChecker struct {
	mu    sync.Mutex
	calls []int64
}

func (c *auditChecker) Check(ctx context.Context, userID int64, languageCode string, message map[string]string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, userID)
	return false, nil
}

func idRef(n int64) *int64 { return &n }

func TestSweepRechecksOnlyCreditedReferredUsers(t *testing.T) {
	repo := newAuditRepo(
		&models.User{TelegramID: 1},                                                          // no referrer
		&models.User{TelegramID: 2, ReferredBy: idRef(5)},                                    // not credited yet
		&models.User{TelegramID: 3, ReferredBy: idRef(9), IsSubscribed: true, FlyerVerified: true}, // the one that matters
	)
	checker := &auditChecker{}
	verifier := services.NewVerificationService(repo, checker)
	w := NewReferralAuditWorker(repo, verifier, nil, time.Hour)

	w.RunSweep(context.Background())

	if len(repo.getCalls) != 1 || repo.getCalls[0] != 3 {
		t.Errorf("expected exactly user 3 to be re-evaluated, got %v", repo.getCalls)
	}
	// User 3 is still verified, so the re-check short-circuits before the
	// provider call and no welcome fires.
	if len(checker.calls) != 0 {
		t.Errorf("verified user must not hit the provider, got calls for %v", checker.calls)
	}
}

func TestSweepSurvivesFailedCheckWithoutStateChange(t *testing.T) {
	repo := newAuditRepo(
		&models.User{TelegramID: 7, ReferredBy: idRef(9), IsSubscribed: true},
	)
	checker := &auditChecker{}
	verifier := services.NewVerificationService(repo, checker)
	w := NewReferralAuditWorker(repo, verifier, nil, time.Hour)

	w.RunSweep(context.Background())

	if len(checker.calls) != 1 || checker.calls[0] != 7 {
		t.Errorf("expected one provider re-check for user 7, got %v", checker.calls)
	}
	if repo.users[7].FlyerVerified {
		t.Error("a denied re-check must not mutate state")
	}
}

func TestSweepStopsOnCancellation(t *testing.T) {
	repo := newAuditRepo(
		&models.User{TelegramID: 1, ReferredBy: idRef(5), IsSubscribed: true, FlyerVerified: true},
		&models.User{TelegramID: 2, ReferredBy: idRef(5), IsSubscribed: true, FlyerVerified: true},
	)
	verifier := services.NewVerificationService(repo, &auditChecker{})
	w := NewReferralAuditWorker(repo, verifier, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.RunSweep(ctx)

	if len(repo.getCalls) != 0 {
		t.Errorf("cancelled sweep must not evaluate users, got %v", repo.getCalls)
	}
}
