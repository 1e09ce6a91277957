// workers/referral_audit_worker.go
package workers

import (
	"context"
	"log"
	"time"

	"gifts-auction-bot/handlers"
	"gifts-auction-bot/services"

	"github.com/go-co-op/gocron/v2"
)

// ReferralAuditWorker periodically re-validates verification state for users
// who already received referral credit, correcting drift from missed or
// unreliable webhook deliveries so the leaderboard stays honest.
type ReferralAuditWorker struct {
	Repo     services.UserRepository
	Verifier *services.VerificationService
	Bot      *handlers.BotHandler
	Interval time.Duration
}

func NewReferralAuditWorker(repo services.UserRepository, verifier *services.VerificationService, bot *handlers.BotHandler, interval time.Duration) *ReferralAuditWorker {
	return &ReferralAuditWorker{
		Repo:     repo,
		Verifier: verifier,
		Bot:      bot,
		Interval: interval,
	}
}

// Start schedules the sweep and blocks until the context is cancelled. Sweep
// failures never terminate the loop; only cancellation does.
func (w *ReferralAuditWorker) Start(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[AUDIT] ❌ Failed to create scheduler: %v", err)
		return
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(w.Interval),
		gocron.NewTask(func() { w.RunSweep(ctx) }),
	); err != nil {
		log.Printf("[AUDIT] ❌ Failed to schedule referral audit: %v", err)
		return
	}

	sched.Start()
	log.Printf("🔁 Referral audit running (every %s)", w.Interval)

	<-ctx.Done()
	log.Println("⏹️ Referral audit stopped")
	if err := sched.Shutdown(); err != nil {
		log.Printf("[AUDIT] ⚠️ Scheduler shutdown error: %v", err)
	}
}

// RunSweep enumerates all users and re-checks those with an assigned referrer
// and a credited bonus. Per-user failures are isolated; a failed enumeration
// just waits for the next interval.
func (w *ReferralAuditWorker) RunSweep(ctx context.Context) {
	users, err := w.Repo.ListAll(ctx)
	if err != nil {
		log.Printf("[AUDIT] ❌ Failed to enumerate users: %v", err)
		return
	}

	var checked int
	for i := range users {
		select {
		case <-ctx.Done():
			log.Println("[AUDIT] ⏹️ Sweep interrupted by shutdown")
			return
		default:
		}

		user := &users[i]
		if user.ReferredBy == nil || !user.IsSubscribed {
			continue
		}

		decision := w.Verifier.Evaluate(ctx, services.Evaluation{
			UserID:   user.TelegramID,
			Username: user.Username,
		})
		checked++

		if decision.TriggerWelcome {
			// Missed completion event recovered; private chat id equals the
			// user id on Telegram.
			if err := w.Bot.RunWelcomeFlow(ctx, user.TelegramID, user.TelegramID, user.Username, nil); err != nil {
				log.Printf("[AUDIT] ⚠️ Welcome flow failed for user %d: %v", user.TelegramID, err)
			}
		}
	}

	log.Printf("[AUDIT] ✅ Sweep complete: %d user(s) re-checked of %d total", checked, len(users))
}
