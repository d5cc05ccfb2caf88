package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adboardhq/adboard-backend/internal/transport"
)

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// Notification is the payload carried on the notifications topic.
type Notification struct {
	TelegramID int64  `json:"telegram_id"`
	Text       string `json:"text"`
}

// InMemoryQueue is an in-process queue with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: 3,
	}

	for _, handler := range handlers {
		go q.processJob(topic, handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		logrus.WithFields(logrus.Fields{
			"topic":   topic,
			"attempt": job.RetryCount,
			"max":     job.MaxRetries,
		}).Warnf("job failed: %v", err)

		if job.RetryCount > job.MaxRetries {
			logrus.WithField("topic", topic).Errorf("job permanently failed after %d attempts", job.MaxRetries)
			return // No requeue
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(job.RetryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// NotificationsTopic is consumed in-process by the messenger subscriber and
// mirrored to AMQP for the standalone delivery worker.
const NotificationsTopic = "notifications"

// StartNotificationSubscriber delivers queued notifications through the
// messenger. Delivery is best-effort; the queue's retry policy is the only
// recovery.
func StartNotificationSubscriber(q Queue, messenger transport.Messenger) {
	err := q.Subscribe(NotificationsTopic, func(payload any) error {
		note, ok := payload.(Notification)
		if !ok {
			logrus.Warn("invalid notification payload type")
			return nil // no retry
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := messenger.Send(ctx, note.TelegramID, note.Text); err != nil {
			logrus.WithField("telegram_id", note.TelegramID).Warnf("failed to send notification: %v", err)
			return err // triggers retry in queue
		}
		return nil
	})
	if err != nil {
		logrus.Errorf("failed to start notification subscriber: %v", err)
	}
}
