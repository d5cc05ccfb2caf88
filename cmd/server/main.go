// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/adboardhq/adboard-backend/internal/config"
	"github.com/adboardhq/adboard-backend/internal/controller"
	"github.com/adboardhq/adboard-backend/internal/db"
	"github.com/adboardhq/adboard-backend/internal/queue"
	"github.com/adboardhq/adboard-backend/internal/repository"
	"github.com/adboardhq/adboard-backend/internal/scheduler"
	"github.com/adboardhq/adboard-backend/internal/service"
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
	tg := &transport.TelegramTransport{Bot: bot}

	q := queue.NewInMemoryQueue()
	queue.StartNotificationSubscriber(q, tg)

	var amqpChannel *amqp.Channel
	if cfg.AmqpURL != "" {
		conn, err := amqp.Dial(cfg.AmqpURL)
		if err != nil {
			logrus.Warnf("⚠️ AMQP unavailable, notifications stay in-process: %v", err)
		} else {
			defer conn.Close()
			amqpChannel, err = conn.Channel()
			if err != nil {
				logrus.Warnf("⚠️ failed to open AMQP channel: %v", err)
			} else {
				defer amqpChannel.Close()
				if _, err := amqpChannel.QueueDeclare(queue.NotificationsTopic, true, false, false, false, nil); err != nil {
					logrus.Warnf("⚠️ failed to declare AMQP queue: %v", err)
					amqpChannel = nil
				}
			}
		}
	}

	userRepo := &repository.UserRepository{DB: database}
	ledgerRepo := &repository.LedgerRepository{DB: database}
	campaignRepo := &repository.CampaignRepository{DB: database}
	channelRepo := &repository.ChannelRepository{DB: database}
	escrowRepo := &repository.EscrowRepository{DB: database}

	notifier := &service.NotificationService{Queue: q, Users: userRepo, AMQP: amqpChannel}
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

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	walletController := &controller.WalletController{LedgerService: ledgerService}
	channelController := &controller.ChannelController{VerificationService: verificationService}

	r := chi.NewRouter()

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/fund", campaignController.FundCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/accept", campaignController.AcceptOffer)
	r.Get("/offers", campaignController.ListOffers)

	r.Get("/users/{id}/balance", walletController.GetBalance)
	r.Post("/users/{id}/topup", walletController.TopUp)
	r.Get("/users/{id}/transactions", walletController.GetHistory)

	r.Post("/channels", channelController.RegisterChannel)
	r.Post("/channels/{id}/verify", channelController.VerifyChannel)

	logrus.Infof("🚀 Server running on :%s", cfg.Port)
	logrus.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
