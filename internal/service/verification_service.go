// internal/service/verification_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adboardhq/adboard-backend/internal/config"
	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
	"github.com/adboardhq/adboard-backend/internal/repository"
	"github.com/adboardhq/adboard-backend/internal/transport"
)

// VerificationResult is the outcome of a single verification probe.
type VerificationResult struct {
	ChannelID   int64  `json:"channel_id"`
	State       string `json:"state"`
	Subscribers int    `json:"subscribers"`
	Reason      string `json:"reason,omitempty"`
}

// VerificationService proves channel ownership and keeps verified channels
// honest with periodic rechecks. A channel is verified when the posting bot
// is an administrator and the audience clears the minimum size.
type VerificationService struct {
	Channels  repository.ChannelRepositoryInterface
	Users     repository.UserRepositoryInterface
	Campaigns *CampaignService
	Poster    transport.Poster
	Config    *config.Config
	Notify    Notifier
}

// RegisterChannel records a channel in pending state awaiting its first
// verification probe.
func (s *VerificationService) RegisterChannel(ownerID, telegramChannelID int64, name string) (*model.Channel, error) {
	owner, err := s.Users.GetByID(ownerID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, appErrors.NewUserNotFound(ownerID)
	}
	if !owner.CanOwnChannels() {
		return nil, fmt.Errorf("user %d cannot register channels with role %s", ownerID, owner.Role)
	}

	existing, err := s.Channels.GetByTelegramID(telegramChannelID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("channel %d is already registered", telegramChannelID)
	}

	channel := &model.Channel{
		OwnerID:           ownerID,
		TelegramChannelID: telegramChannelID,
		Name:              name,
		Verification:      model.ChannelPending,
		TrustScore:        s.Config.DefaultTrustScore,
	}
	if err := s.Channels.Create(channel); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"channel_id": channel.ID,
		"owner_id":   ownerID,
	}).Info("📺 channel registered, verification pending")
	return channel, nil
}

// Verify probes the channel and records the outcome. Transient transport
// failures leave the channel in pending; a verified channel that fails the
// admin check is revoked and its accepted campaigns are released.
func (s *VerificationService) Verify(ctx context.Context, channelID int64) (*VerificationResult, error) {
	channel, err := s.Channels.GetByID(channelID)
	if err != nil {
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(s.Config.VerifyTimeoutSec)*time.Second)
	defer cancel()

	isAdmin, err := s.Poster.AdminStatus(probeCtx, channel.TelegramChannelID)
	if err != nil {
		// Cannot reach the channel; keep whatever state we had unless it
		// was never verified, in which case it stays pending.
		if channel.Verification != model.ChannelVerified {
			_ = s.Channels.UpdateVerification(channelID, model.ChannelPending, channel.SubscriberCount)
		}
		return &VerificationResult{
			ChannelID:   channelID,
			State:       channel.Verification,
			Subscribers: channel.SubscriberCount,
			Reason:      fmt.Sprintf("probe failed: %v", err),
		}, nil
	}

	if !isAdmin {
		if channel.Verification == model.ChannelVerified {
			return s.revoke(channel, "bot lost administrator rights")
		}
		if uerr := s.Channels.UpdateVerification(channelID, model.ChannelPending, channel.SubscriberCount); uerr != nil {
			return nil, uerr
		}
		return &VerificationResult{
			ChannelID:   channelID,
			State:       model.ChannelPending,
			Subscribers: channel.SubscriberCount,
			Reason:      "bot is not an administrator of the channel",
		}, nil
	}

	subscribers, err := s.Poster.SubscriberCount(probeCtx, channel.TelegramChannelID)
	if err != nil {
		return &VerificationResult{
			ChannelID:   channelID,
			State:       channel.Verification,
			Subscribers: channel.SubscriberCount,
			Reason:      fmt.Sprintf("subscriber count unavailable: %v", err),
		}, nil
	}

	if subscribers < s.Config.MinSubscribers {
		if channel.Verification == model.ChannelVerified {
			return s.revoke(channel, fmt.Sprintf("audience dropped below %d subscribers", s.Config.MinSubscribers))
		}
		if uerr := s.Channels.UpdateVerification(channelID, model.ChannelPending, subscribers); uerr != nil {
			return nil, uerr
		}
		return &VerificationResult{
			ChannelID:   channelID,
			State:       model.ChannelPending,
			Subscribers: subscribers,
			Reason:      fmt.Sprintf("needs at least %d subscribers, has %d", s.Config.MinSubscribers, subscribers),
		}, nil
	}

	if err := s.Channels.UpdateVerification(channelID, model.ChannelVerified, subscribers); err != nil {
		return nil, err
	}
	if channel.Verification != model.ChannelVerified {
		logrus.WithField("channel_id", channelID).Info("✅ channel verified")
		if s.Notify != nil {
			s.Notify.Notify(channel.OwnerID, fmt.Sprintf("Channel %q is verified and can accept offers.", channel.Name))
		}
	}
	return &VerificationResult{
		ChannelID:   channelID,
		State:       model.ChannelVerified,
		Subscribers: subscribers,
	}, nil
}

func (s *VerificationService) revoke(channel *model.Channel, reason string) (*VerificationResult, error) {
	if err := s.Channels.UpdateVerification(channel.ID, model.ChannelRevoked, channel.SubscriberCount); err != nil {
		return nil, err
	}

	// Accepted campaigns bound to this channel must not stay stranded.
	if s.Campaigns != nil {
		if err := s.Campaigns.HandleChannelRevoked(channel.ID); err != nil {
			logrus.WithField("channel_id", channel.ID).Errorf("failed to release campaigns of revoked channel: %v", err)
		}
	}

	if s.Notify != nil {
		s.Notify.Notify(channel.OwnerID, fmt.Sprintf("Channel %q lost verification: %s.", channel.Name, reason))
	}
	logrus.WithFields(logrus.Fields{
		"channel_id": channel.ID,
		"reason":     reason,
	}).Warn("channel verification revoked")
	return &VerificationResult{
		ChannelID:   channel.ID,
		State:       model.ChannelRevoked,
		Subscribers: channel.SubscriberCount,
		Reason:      reason,
	}, nil
}

// RecheckVerified re-probes every verified channel. Wired to the scheduler's
// periodic job.
func (s *VerificationService) RecheckVerified(ctx context.Context) {
	channels, err := s.Channels.ListByVerification(model.ChannelVerified)
	if err != nil {
		logrus.Errorf("failed to list verified channels: %v", err)
		return
	}
	for _, channel := range channels {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Verify(ctx, channel.ID); err != nil {
			logrus.WithField("channel_id", channel.ID).Errorf("recheck failed: %v", err)
		}
	}
}
