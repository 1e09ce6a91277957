package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gifts-auction-bot/config"
	"gifts-auction-bot/handlers"
	"gifts-auction-bot/middleware"
	"gifts-auction-bot/models"
	"gifts-auction-bot/services"
	"gifts-auction-bot/utils"
	"gifts-auction-bot/workers"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	settings := config.Load()
	log.Printf("🔑 Flyer key loaded: %s", utils.MaskSensitive(settings.FlyerAPIKey))

	db, err := gorm.Open(postgres.Open(settings.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.WebhookEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	api, err := tgbotapi.NewBotAPI(settings.BotToken)
	if err != nil {
		log.Fatal("failed to connect to Telegram:", err)
	}
	log.Printf("🤖 Authorized as @%s", api.Self.UserName)

	repo := services.NewGormUserRepository(db)
	flyer := services.NewFlyerClient(settings.FlyerBaseURL, settings.FlyerAPIKey)
	verifier := services.NewVerificationService(repo, flyer)

	botHandler := handlers.NewBotHandler(api, repo, settings)
	throttle := middleware.NewThrottle(settings.ThrottleInterval)
	gate := middleware.NewVerificationGate(verifier, botHandler, botHandler)
	dispatcher := handlers.NewDispatcher(api, throttle, gate, botHandler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webhookHandler := handlers.NewWebhookHandler(ctx, verifier, botHandler, db)
	handlers.SetupWebhookRoutes(app, webhookHandler)

	auditWorker := workers.NewReferralAuditWorker(repo, verifier, botHandler, settings.AuditInterval)
	exportWorker := workers.NewLeaderboardExportWorker(repo, settings.ChannelUsername)

	go auditWorker.Start(ctx)
	go exportWorker.Poll(ctx, settings.ExportInterval)
	go dispatcher.Run(ctx)

	go func() {
		if err := app.Listen(settings.WebhookAddr); err != nil {
			log.Printf("Webhook server error: %v", err)
		}
	}()

	log.Printf("✅ Webhook server running on %s", settings.WebhookAddr)
	log.Printf("✅ Referral audit running (every %s)", settings.AuditInterval)
	log.Println("✅ Update dispatcher running")

	<-ctx.Done()
	log.Println("Shutting down...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Webhook server shutdown error: %v", err)
	}
	webhookHandler.Drain()
}
