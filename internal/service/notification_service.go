// internal/service/notification_service.go
package service

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"github.com/adboardhq/adboard-backend/internal/queue"
	"github.com/adboardhq/adboard-backend/internal/repository"
)

// Notifier is what the engine sees: fire-and-forget messages keyed by the
// internal user id. Failures never roll back a transition.
type Notifier interface {
	Notify(userID int64, text string)
}

// NotificationService fans user notifications out to the in-process queue
// and, when an AMQP channel is configured, mirrors them to the standalone
// delivery worker.
type NotificationService struct {
	Queue queue.Queue
	Users repository.UserRepositoryInterface
	AMQP  *amqp.Channel // optional
}

func (s *NotificationService) Notify(userID int64, text string) {
	user, err := s.Users.GetByID(userID)
	if err != nil || user == nil {
		logrus.WithField("user_id", userID).Warnf("cannot notify unknown user: %v", err)
		return
	}

	note := queue.Notification{TelegramID: user.TelegramID, Text: text}

	if err := s.Queue.Publish(queue.NotificationsTopic, note); err != nil {
		logrus.WithField("user_id", userID).Warnf("failed to enqueue notification: %v", err)
	}

	if s.AMQP != nil {
		body, err := json.Marshal(note)
		if err != nil {
			logrus.Warnf("failed to encode notification: %v", err)
			return
		}
		err = s.AMQP.Publish(
			"",
			queue.NotificationsTopic,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			},
		)
		if err != nil {
			logrus.Warnf("failed to publish notification to AMQP: %v", err)
		}
	}
}

var _ Notifier = (*NotificationService)(nil)
