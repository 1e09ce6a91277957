// services/verification.go
//
// Shared transition core for the verification state machine. All three
// stimulus channels — the interactive gate, the webhook ingestor and the
// referral audit sweep — go through this service, so the transition rules are
// identical regardless of where a stimulus came from.
package services

import (
	"context"
	"log"
	"sync"
)

// Evaluation is the input for one pass through the transition core. Candidate
// values are what the current stimulus happens to know; nil means unknown.
type Evaluation struct {
	UserID       int64
	LanguageCode string
	Username     *string
	// Referrer is the candidate from the current stimulus (a parsed
	// "/start ref<id>" payload). Candidates observed on denied attempts are
	// carried forward internally until a successful attempt can apply them.
	Referrer *int64
}

// Decision is the outcome of one evaluation. Side effects are described, not
// executed: the caller owns delivery so the core stays testable in isolation.
type Decision struct {
	Admit bool
	// TriggerWelcome is set exactly once per record lifetime, on the
	// false→true flyer_verified transition.
	TriggerWelcome   bool
	ReferrerAssigned bool
}

// pendingCandidate remembers username/referrer values observed on an attempt
// the checker rejected, so a later successful attempt can still apply them.
type pendingCandidate struct {
	Username *string
	Referrer *int64
}

type VerificationService struct {
	repo    UserRepository
	checker VerificationChecker

	// Task-list prompt forwarded to the provider on every check call.
	messageTemplate map[string]string

	mu      sync.Mutex
	locks   map[int64]*sync.Mutex
	pending map[int64]pendingCandidate
}

func NewVerificationService(repo UserRepository, checker VerificationChecker) *VerificationService {
	return &VerificationService{
		repo:    repo,
		checker: checker,
		messageTemplate: map[string]string{
			"text": "Чтобы продолжить работу с ботом, выполните задания ниже.",
		},
		locks:   make(map[int64]*sync.Mutex),
		pending: make(map[int64]pendingCandidate),
	}
}

// userLock returns the per-user mutex, creating it on first use. Single-flight
// per user: concurrent evaluations for the same id serialize here so
// first-transition side effects cannot double-fire.
func (s *VerificationService) userLock(telegramID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[telegramID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[telegramID] = l
	}
	return l
}

func (s *VerificationService) rememberPending(telegramID int64, username *string, referrer *int64) {
	if username == nil && referrer == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[telegramID]
	if username != nil {
		p.Username = username
	}
	if referrer != nil {
		p.Referrer = referrer
	}
	s.pending[telegramID] = p
}

func (s *VerificationService) takePending(telegramID int64) pendingCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending[telegramID]
	delete(s.pending, telegramID)
	return p
}

// Evaluate decides whether a stimulus for the given user is admitted and which
// transitions it causes.
//
// The checker is only consulted while the record is unverified; a transient
// provider failure fails open (admit without mutating state) so provider
// outages never lock users out. Referral attribution and the welcome trigger
// happen only at the false→true transition point.
func (s *VerificationService) Evaluate(ctx context.Context, in Evaluation) Decision {
	lock := s.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.repo.Get(ctx, in.UserID)
	if err != nil {
		log.Printf("[GATE] ⚠️ Failed to load user %d, admitting without check: %v", in.UserID, err)
		return Decision{Admit: true}
	}

	if user != nil && user.FlyerVerified {
		return Decision{Admit: true}
	}

	allowed, err := s.checker.Check(ctx, in.UserID, in.LanguageCode, s.messageTemplate)
	if err != nil {
		// Fail open: availability over strictness during provider outages.
		log.Printf("[GATE] ⚠️ Flyer check failed for user %d, admitting: %v", in.UserID, err)
		return Decision{Admit: true}
	}

	if !allowed {
		// No persistent state change on denial; the candidates survive until
		// the user eventually passes the check.
		s.rememberPending(in.UserID, in.Username, in.Referrer)
		return Decision{Admit: false}
	}

	return s.applyVerified(ctx, in.UserID, in.Username, in.Referrer)
}

// ApplyCompleted handles a provider push confirming the subscription. Same
// transition point as a successful interactive check, minus the checker call:
// the event itself is the confirmation.
func (s *VerificationService) ApplyCompleted(ctx context.Context, telegramID int64, username *string) Decision {
	lock := s.userLock(telegramID)
	lock.Lock()
	defer lock.Unlock()
	return s.applyVerified(ctx, telegramID, username, nil)
}

// ApplyAborted handles the provider's unsubscribed signal — the one legitimate
// true→false transition. The record is created if absent so a later completion
// has something to transition.
func (s *VerificationService) ApplyAborted(ctx context.Context, telegramID int64, username *string) error {
	lock := s.userLock(telegramID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.ensureUser(ctx, telegramID, username); err != nil {
		return err
	}
	return s.repo.SetFlyerVerified(ctx, telegramID, false)
}

// applyVerified is the transition point shared by the interactive and webhook
// paths. Caller must hold the user lock.
func (s *VerificationService) applyVerified(ctx context.Context, telegramID int64, username *string, referrer *int64) Decision {
	pending := s.takePending(telegramID)
	if username == nil {
		username = pending.Username
	}
	if referrer == nil {
		referrer = pending.Referrer
	}

	user, err := s.repo.Get(ctx, telegramID)
	if err != nil {
		log.Printf("[GATE] ⚠️ Failed to reload user %d at transition point: %v", telegramID, err)
		return Decision{Admit: true}
	}

	if user == nil {
		if err := s.repo.Create(ctx, telegramID, 0, nil, username); err != nil {
			// Admit stands, but nothing actually changed — skip side effects.
			log.Printf("[GATE] ❌ Failed to create user %d: %v", telegramID, err)
			return Decision{Admit: true}
		}
	}

	decision := Decision{Admit: true}

	alreadyVerified := user != nil && user.FlyerVerified
	if !alreadyVerified {
		if err := s.repo.SetFlyerVerified(ctx, telegramID, true); err != nil {
			log.Printf("[GATE] ❌ Failed to mark user %d verified: %v", telegramID, err)
			return decision
		}
		// First false→true transition for this record: the welcome flow fires
		// exactly once off this flag.
		decision.TriggerWelcome = true
	}

	if username != nil && (user == nil || user.Username == nil || *user.Username != *username) {
		if user != nil {
			if err := s.repo.UpdateUsername(ctx, telegramID, *username); err != nil {
				log.Printf("[GATE] ⚠️ Failed to refresh username for user %d: %v", telegramID, err)
			}
		}
	}

	if referrer != nil && *referrer != telegramID && (user == nil || user.ReferredBy == nil) {
		assigned, err := s.repo.AssignReferrer(ctx, telegramID, *referrer)
		if err != nil {
			log.Printf("[GATE] ⚠️ Failed to assign referrer %d → %d: %v", *referrer, telegramID, err)
		}
		decision.ReferrerAssigned = assigned
	}

	return decision
}

func (s *VerificationService) ensureUser(ctx context.Context, telegramID int64, username *string) error {
	user, err := s.repo.Get(ctx, telegramID)
	if err != nil {
		return err
	}
	if user == nil {
		return s.repo.Create(ctx, telegramID, 0, nil, username)
	}
	if username != nil && (user.Username == nil || *user.Username != *username) {
		if err := s.repo.UpdateUsername(ctx, telegramID, *username); err != nil {
			log.Printf("[GATE] ⚠️ Failed to refresh username for user %d: %v", telegramID, err)
		}
	}
	return nil
}
