// cmd/bot/main.go
package main

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/adboard-backend/internal/config"
	"github.com/adboardhq/adboard-backend/internal/db"
	"github.com/adboardhq/adboard-backend/internal/handler"
	"github.com/adboardhq/adboard-backend/internal/queue"
	"github.com/adboardhq/adboard-backend/internal/repository"
	"github.com/adboardhq/adboard-backend/internal/scheduler"
	"github.com/adboardhq/adboard-backend/internal/service"
	"github.com/adboardhq/adboard-backend/internal/session"
	"github.com/adboardhq/adboard-backend/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Init(cfg.DBUrl)
	if err != nil {
		logrus.Fatalf("failed to init database: %v", err)
	}
	defer database.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logrus.Fatalf("failed to init telegram bot: %v", err)
	}
	logrus.Infof("✅ Bot authorized as @%s", bot.Self.UserName)
	tg := transport.NewTelegramTransport(bot)

	sessions, err := session.NewStore(cfg.RedisAddr, time.Duration(cfg.SessionTTLHours)*time.Hour)
	if err != nil {
		logrus.Fatalf("failed to connect to redis: %v", err)
	}
	defer sessions.Close()

	q := queue.NewInMemoryQueue()
	queue.StartNotificationSubscriber(q, tg)

	userRepo := &repository.UserRepository{DB: database}
	ledgerRepo := &repository.LedgerRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	channelRepo := &repository.ChannelRepository{DB: database}
	escrowRepo := &repository.EscrowRepository{DB: database}

	notifier := &service.NotificationService{Queue: q, Users: userRepo}
	ledgerService := &service.LedgerService{Repo: ledgerRepo}
	escrowService := &service.EscrowService{
		Ledger:    ledgerService,
		Holds:     escrowRepo,
		Campaigns: campaignRepo,
		Channels:  channelRepo,
	}
	campaignService := &service.CampaignService{
		Campaigns: campaignRepo,
		Channels:  channelRepo,
		Users:     userRepo,
		Escrow:    escrowService,
		Notify:    notifier,
		Config:    cfg,
	}
	verificationService := &service.VerificationService{
		Channels:  channelRepo,
		Users:     userRepo,
		Campaigns: campaignService,
		Poster:    tg,
		Config:    cfg,
		Notify:    notifier,
	}

	sched := scheduler.New()
	defer sched.Stop()

	postingService := &service.PostingService{
		Campaigns: campaignRepo,
		Channels:  channelRepo,
		Lifecycle: campaignService,
		Poster:    tg,
		Sched:     sched,
		Config:    cfg,
	}
	campaignService.OnAccepted = postingService.Enqueue
	campaignService.OnStopped = postingService.Abort

	sched.Every("expiry-sweep", time.Duration(cfg.ExpirySweepMin)*time.Minute, func(ctx context.Context) {
		if _, err := campaignService.SweepExpired(time.Now()); err != nil {
			logrus.Errorf("expiry sweep failed: %v", err)
		}
	})
	sched.Every("verification-recheck", time.Duration(cfg.VerifyRecheckMin)*time.Minute, func(ctx context.Context) {
		verificationService.RecheckVerified(ctx)
	})

	botHandler := &handler.BotHandler{
		Bot:          bot,
		Users:        userRepo,
		Channels:     channelRepo,
		Campaigns:    campaignService,
		Verification: verificationService,
		Ledger:       ledgerService,
		Sessions:     sessions,
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := bot.GetUpdatesChan(u)

	logrus.Info("🚀 Bot is running...")

	ctx := context.Background()
	for update := range updates {
		botHandler.HandleUpdate(ctx, update)
	}
}
