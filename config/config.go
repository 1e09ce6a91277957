package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds everything the bot reads from the environment.
// Load fails fast on the values the process cannot run without.
type Settings struct {
	BotToken        string
	ChannelUsername string
	AdminIDs        []int64
	FlyerAPIKey     string
	FlyerBaseURL    string
	DatabaseURL     string
	WebhookAddr     string

	MinWithdrawal int
	StartBonus    int
	ReferralBonus int
	DailyBonus    int

	ThrottleInterval time.Duration
	AuditInterval    time.Duration
	ExportInterval   time.Duration
}

func Load() Settings {
	s := Settings{
		BotToken:         mustGetenv("BOT_TOKEN"),
		ChannelUsername:  getenvDefault("CHANNEL_USERNAME", "@giftsauctionsru"),
		AdminIDs:         parseAdminIDs(os.Getenv("ADMIN_IDS")),
		FlyerAPIKey:      mustGetenv("FLYER_API_KEY"),
		FlyerBaseURL:     getenvDefault("FLYER_BASE_URL", "https://api.flyerservice.io"),
		DatabaseURL:      mustGetenv("DATABASE_URL"),
		WebhookAddr:      getenvDefault("WEBHOOK_ADDR", ":8080"),
		MinWithdrawal:    getenvInt("MIN_WITHDRAWAL", 15),
		StartBonus:       getenvInt("START_BONUS", 3),
		ReferralBonus:    getenvInt("REFERRAL_BONUS", 3),
		DailyBonus:       getenvInt("DAILY_BONUS", 1),
		ThrottleInterval: getenvDuration("THROTTLE_INTERVAL", 500*time.Millisecond),
		AuditInterval:    getenvDuration("AUDIT_INTERVAL", time.Hour),
		ExportInterval:   getenvDuration("EXPORT_INTERVAL", 6*time.Hour),
	}
	return s
}

func mustGetenv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("❌ %s environment variable not set", key)
	}
	return v
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}

func parseAdminIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("⚠️  Skipping non-numeric admin id %q", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
