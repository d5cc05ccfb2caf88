// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/adboardhq/adboard-backend/internal/config"
	"github.com/adboardhq/adboard-backend/internal/queue"
	"github.com/adboardhq/adboard-backend/internal/transport"
)

const maxDeliveryAttempts = 3

// The worker drains the AMQP notifications queue and delivers each message
// through the bot, so user-facing delivery survives server restarts.
func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	if cfg.AmqpURL == "" {
		logrus.Fatal("AMQP_URL is required for the notification worker")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logrus.Fatalf("failed to init telegram bot: %v", err)
	}
	messenger := transport.NewTelegramTransport(bot)

	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		logrus.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logrus.Fatalf("failed to open a channel: %v", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		queue.NotificationsTopic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		logrus.Fatalf("failed to declare queue: %v", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logrus.Fatalf("failed to register consumer: %v", err)
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			var note queue.Notification
			if err := json.Unmarshal(d.Body, &note); err != nil {
				logrus.Warnf("invalid notification payload: %v", err)
				d.Ack(false)
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := messenger.Send(ctx, note.TelegramID, note.Text)
			cancel()

			if err != nil {
				logrus.WithField("telegram_id", note.TelegramID).Warnf("delivery failed: %v", err)
				var retryCount int32
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retryCount = v
				}
				if retryCount < maxDeliveryAttempts {
					d.Nack(false, true) // requeue
					continue
				}
				logrus.WithField("telegram_id", note.TelegramID).Error("notification dropped after retries")
			}

			d.Ack(false)
		}
	}()

	logrus.Info("📨 Notification worker running, waiting for messages...")
	<-forever
}
