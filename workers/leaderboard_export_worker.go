package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"gifts-auction-bot/services"
	"gifts-auction-bot/utils"

	"github.com/gosimple/slug"
)

const leaderboardSize = 25

// LeaderboardEntry is one row of the exported referral leaderboard snapshot.
type LeaderboardEntry struct {
	TelegramID int64   `json:"telegram_id"`
	Username   *string `json:"username,omitempty"`
	Balance    int     `json:"balance"`
	Referrals  int     `json:"referrals"`
}

type leaderboardSnapshot struct {
	Channel     string             `json:"channel"`
	GeneratedAt time.Time          `json:"generated_at"`
	Entries     []LeaderboardEntry `json:"entries"`
}

// LeaderboardExportWorker periodically uploads a referral-leaderboard snapshot
// to R2 so the channel admins can publish standings without touching the DB.
type LeaderboardExportWorker struct {
	Repo    services.UserRepository
	Channel string
}

func NewLeaderboardExportWorker(repo services.UserRepository, channelUsername string) *LeaderboardExportWorker {
	return &LeaderboardExportWorker{Repo: repo, Channel: channelUsername}
}

// Poll exports on a fixed interval until the context is cancelled. Failed
// exports are retried on the next tick.
func (w *LeaderboardExportWorker) Poll(ctx context.Context, interval time.Duration) {
	log.Printf("🔁 Leaderboard export running (every %s)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Leaderboard export stopped")
			return
		case <-ticker.C:
			if err := w.exportOnce(ctx); err != nil {
				log.Printf("[EXPORT] ❌ Snapshot export failed: %v", err)
			}
		}
	}
}

func (w *LeaderboardExportWorker) exportOnce(ctx context.Context) error {
	users, err := w.Repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate users: %w", err)
	}

	referralCounts := make(map[int64]int)
	for _, u := range users {
		if u.ReferredBy != nil && u.IsSubscribed {
			referralCounts[*u.ReferredBy]++
		}
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, LeaderboardEntry{
			TelegramID: u.TelegramID,
			Username:   u.Username,
			Balance:    u.Balance,
			Referrals:  referralCounts[u.TelegramID],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Referrals != entries[j].Referrals {
			return entries[i].Referrals > entries[j].Referrals
		}
		return entries[i].Balance > entries[j].Balance
	})
	if len(entries) > leaderboardSize {
		entries = entries[:leaderboardSize]
	}

	snapshot := leaderboardSnapshot{
		Channel:     w.Channel,
		GeneratedAt: time.Now().UTC(),
		Entries:     entries,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("leaderboards/%s/%s.json",
		slug.Make(w.Channel), snapshot.GeneratedAt.Format("2006-01-02T15-04"))
	url, err := utils.UploadBytesToR2(ctx, key, data, "application/json")
	if err != nil {
		return err
	}

	log.Printf("[EXPORT] ✅ Uploaded leaderboard snapshot (%d entries): %s", len(entries), url)
	return nil
}
