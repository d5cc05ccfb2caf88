// internal/service/posting_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adboardhq/adboard-backend/internal/config"
	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/repository"
	"github.com/adboardhq/adboard-backend/internal/scheduler"
	"github.com/adboardhq/adboard-backend/internal/transport"
)

// PostingService publishes accepted campaigns to their channels and later
// confirms the placement survived the agreed window. Each campaign gets at
// most one in-flight posting goroutine; Abort cancels it.
type PostingService struct {
	Campaigns repository.CampaignRepositoryInterface
	Channels  repository.ChannelRepositoryInterface
	Lifecycle *CampaignService
	Poster    transport.Poster
	Sched     *scheduler.Scheduler
	Config    *config.Config

	mu       sync.Mutex
	inflight map[int64]context.CancelFunc
}

func confirmTaskID(campaignID int64) string {
	return fmt.Sprintf("confirm-campaign-%d", campaignID)
}

// Enqueue starts the posting pipeline for an accepted campaign in the
// background. Wired to CampaignService.OnAccepted.
func (s *PostingService) Enqueue(campaignID int64) {
	ctx := s.track(campaignID)
	go func() {
		defer s.untrack(campaignID, ctx)
		if err := s.Post(ctx, campaignID); err != nil {
			logrus.WithField("campaign_id", campaignID).Errorf("posting pipeline failed: %v", err)
		}
	}()
}

// Abort cancels any in-flight posting work and pending confirmation for the
// campaign. Wired to CampaignService.OnStopped.
func (s *PostingService) Abort(campaignID int64) {
	s.mu.Lock()
	if cancel, ok := s.inflight[campaignID]; ok {
		cancel()
		delete(s.inflight, campaignID)
	}
	s.mu.Unlock()

	if s.Sched != nil {
		s.Sched.Cancel(confirmTaskID(campaignID))
	}
}

func (s *PostingService) track(campaignID int64) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == nil {
		s.inflight = make(map[int64]context.CancelFunc)
	}
	if cancel, ok := s.inflight[campaignID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.inflight[campaignID] = cancel
	return ctx
}

func (s *PostingService) untrack(campaignID int64, ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Only remove our own entry; Abort or a re-enqueue may have replaced it,
	// in which case our ctx is already cancelled.
	if cancel, ok := s.inflight[campaignID]; ok && ctx.Err() == nil {
		cancel()
		delete(s.inflight, campaignID)
	}
}

// Post publishes the campaign's ad with bounded retries. Success records the
// placement and schedules confirmation; exhaustion returns the campaign to
// the offer board and reports ErrPlacementFailed.
func (s *PostingService) Post(ctx context.Context, campaignID int64) error {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign.ChannelID == nil {
		return fmt.Errorf("campaign %d has no channel to post to", campaignID)
	}
	channel, err := s.Channels.GetByID(*campaign.ChannelID)
	if err != nil {
		return err
	}

	backoff := time.Duration(s.Config.PostBackoffBaseMs) * time.Millisecond
	maxBackoff := time.Duration(s.Config.PostBackoffCapMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= s.Config.PostMaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(s.Config.PostTimeoutSec)*time.Second)
		ref, err := s.Poster.Publish(attemptCtx, channel.TelegramChannelID, campaign.AdText)
		cancel()

		if err == nil {
			if err := s.Lifecycle.MarkPosted(campaignID, ref); err != nil {
				return err
			}
			s.scheduleConfirmation(campaign.ID, campaign.DurationHours)
			return nil
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{
			"campaign_id": campaignID,
			"attempt":     attempt,
			"max":         s.Config.PostMaxAttempts,
		}).Warnf("publish attempt failed: %v", err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == s.Config.PostMaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	if err := s.Lifecycle.FailPlacement(campaignID); err != nil {
		logrus.WithField("campaign_id", campaignID).Errorf("failed to re-offer after placement failure: %v", err)
	}
	return &appErrors.ErrPlacementFailed{
		CampaignID: campaignID,
		Attempts:   s.Config.PostMaxAttempts,
		Last:       lastErr,
	}
}

func (s *PostingService) scheduleConfirmation(campaignID int64, durationHours int) {
	window := time.Duration(durationHours) * time.Hour
	if s.Config.ConfirmWindowHours > 0 {
		window = time.Duration(s.Config.ConfirmWindowHours) * time.Hour
	}

	s.Sched.After(confirmTaskID(campaignID), window, func(ctx context.Context) {
		if err := s.ConfirmCompletion(ctx, campaignID); err != nil {
			logrus.WithField("campaign_id", campaignID).Errorf("confirmation failed: %v", err)
		}
	})
}

// ConfirmCompletion checks that the placement is still up once the window
// has elapsed, settling the escrow one way or the other.
func (s *PostingService) ConfirmCompletion(ctx context.Context, campaignID int64) error {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign.ChannelID == nil || campaign.PlacementRef == nil {
		return fmt.Errorf("campaign %d has no placement to confirm", campaignID)
	}
	channel, err := s.Channels.GetByID(*campaign.ChannelID)
	if err != nil {
		return err
	}

	var exists bool
	var lastErr error
	for attempt := 1; attempt <= s.Config.PostMaxAttempts; attempt++ {
		checkCtx, cancel := context.WithTimeout(ctx, time.Duration(s.Config.PostTimeoutSec)*time.Second)
		exists, lastErr = s.Poster.Exists(checkCtx, channel.TelegramChannelID, *campaign.PlacementRef)
		cancel()
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(s.Config.PostBackoffBaseMs) * time.Millisecond)
	}
	if lastErr != nil {
		// Cannot reach the channel at all. Leave the campaign posted; the
		// next sweep or a manual confirm will settle it.
		return fmt.Errorf("placement check for campaign %d failed: %w", campaignID, lastErr)
	}

	if exists {
		return s.Lifecycle.Confirm(campaignID)
	}
	return s.Lifecycle.RefundMissingPlacement(campaignID)
}
