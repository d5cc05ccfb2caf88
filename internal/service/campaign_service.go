// internal/service/campaign_service.go
package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/adboardhq/adboard-backend/internal/config"
	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
	"github.com/adboardhq/adboard-backend/internal/repository"
)

const (
	adTextMinLength = 10
	adTextMaxLength = 1000
	adTextMaxLinks  = 2
)

// Content moderation mirrors the placement rules enforced at intake.
var forbiddenWords = []string{"scam", "casino", "porn", "drugs"}

var linkPattern = regexp.MustCompile(`(?i)(https?://|t\.me/)\S+`)

// CampaignService drives the campaign lifecycle. Every status change in the
// system goes through this service, which pairs each transition with its
// escrow movement and keeps concurrent actors to a single winner.
type CampaignService struct {
	Campaigns repository.CampaignRepositoryInterface
	Channels  repository.ChannelRepositoryInterface
	Users     repository.UserRepositoryInterface
	Escrow    *EscrowService
	Notify    Notifier
	Config    *config.Config

	locks keyedMutex // per-campaign serialization

	// OnAccepted is invoked after a channel owner wins an offer; wiring
	// hands the campaign to the posting pipeline. OnStopped fires when a
	// campaign leaves the active lifecycle so in-flight work can be aborted.
	OnAccepted func(campaignID int64)
	OnStopped  func(campaignID int64)
}

func validateAdContent(text string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < adTextMinLength {
		return fmt.Errorf("ad text too short: need at least %d characters", adTextMinLength)
	}
	if len(trimmed) > adTextMaxLength {
		return fmt.Errorf("ad text too long: at most %d characters", adTextMaxLength)
	}
	lower := strings.ToLower(trimmed)
	for _, word := range forbiddenWords {
		if strings.Contains(lower, word) {
			return fmt.Errorf("ad text contains forbidden word %q", word)
		}
	}
	if n := len(linkPattern.FindAllString(trimmed, -1)); n > adTextMaxLinks {
		return fmt.Errorf("ad text has %d links, at most %d allowed", n, adTextMaxLinks)
	}
	return nil
}

// CreateCampaign validates the ad and opens a campaign awaiting funding.
func (s *CampaignService) CreateCampaign(advertiserID int64, adText string, budget int64, durationHours int) (*model.Campaign, error) {
	user, err := s.Users.GetByID(advertiserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.NewUserNotFound(advertiserID)
	}
	if !user.CanAdvertise() {
		return nil, fmt.Errorf("user %d cannot create campaigns with role %s", advertiserID, user.Role)
	}

	if err := validateAdContent(adText); err != nil {
		return nil, err
	}
	if budget <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %d", budget)
	}
	if budget > s.Config.MaxBudget {
		return nil, fmt.Errorf("budget %d exceeds the maximum of %d", budget, s.Config.MaxBudget)
	}
	if durationHours <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %d", durationHours)
	}

	campaign := &model.Campaign{
		AdvertiserID:  advertiserID,
		AdText:        strings.TrimSpace(adText),
		Budget:        budget,
		DurationHours: durationHours,
		Status:        model.CampaignDraft,
		ExpiresAt:     time.Now().Add(time.Duration(s.Config.CampaignTTLHours) * time.Hour),
	}
	if err := s.Campaigns.Create(campaign); err != nil {
		return nil, err
	}

	// Intake validation passed, so the draft advances immediately.
	if _, err := s.Campaigns.UpdateStatus(campaign.ID, model.CampaignDraft, model.CampaignPendingFunding); err != nil {
		return nil, err
	}
	campaign.Status = model.CampaignPendingFunding

	logrus.WithFields(logrus.Fields{
		"campaign_id":   campaign.ID,
		"advertiser_id": advertiserID,
		"budget":        budget,
	}).Info("📣 campaign created")
	return campaign, nil
}

// Fund moves the budget into escrow and publishes the campaign to the offer
// board. On insufficient funds the campaign stays in pending_funding.
func (s *CampaignService) Fund(campaignID, advertiserID int64) (*model.Campaign, error) {
	unlock := s.locks.lock(campaignID)
	defer unlock()

	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.AdvertiserID != advertiserID {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}

	if _, err := s.Escrow.HoldFunds(campaignID); err != nil {
		return nil, err
	}

	swapped, err := s.Campaigns.UpdateStatus(campaignID, model.CampaignFunded, model.CampaignOffered)
	if err != nil {
		return nil, err
	}
	if !swapped {
		current, gerr := s.Campaigns.GetByID(campaignID)
		status := "unknown"
		if gerr == nil {
			status = current.Status
		}
		return nil, appErrors.NewInvalidTransition(campaignID, status, "offer")
	}

	if s.Notify != nil {
		s.Notify.Notify(advertiserID, fmt.Sprintf("Your campaign #%d is funded and visible to channel owners.", campaignID))
	}
	logrus.WithField("campaign_id", campaignID).Info("💰 campaign funded and offered")
	return s.Campaigns.GetByID(campaignID)
}

// ListOffers returns the offers a given channel may still accept: open,
// unexpired, and not excluded for that channel.
func (s *CampaignService) ListOffers(channelID int64) ([]*model.Campaign, error) {
	offered, err := s.Campaigns.ListOffered()
	if err != nil {
		return nil, err
	}

	eligible := make([]*model.Campaign, 0, len(offered))
	for _, c := range offered {
		excluded, err := s.Campaigns.IsChannelExcluded(c.ID, channelID)
		if err != nil {
			return nil, err
		}
		if !excluded {
			eligible = append(eligible, c)
		}
	}
	return eligible, nil
}

// Accept claims an offered campaign for a channel. Exactly one channel wins;
// all concurrent losers get ErrAlreadyClaimed.
func (s *CampaignService) Accept(campaignID, channelID, ownerID int64) (*model.Campaign, error) {
	unlock := s.locks.lock(campaignID)
	defer unlock()

	channel, err := s.Channels.GetByID(channelID)
	if err != nil {
		return nil, err
	}
	if channel.OwnerID != ownerID {
		return nil, appErrors.NewChannelNotFound(channelID)
	}
	if !channel.ReadyForAds() {
		return nil, appErrors.ErrVerificationFailed
	}

	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if time.Now().After(campaign.ExpiresAt) {
		return nil, appErrors.ErrExpired
	}

	claimed, err := s.Campaigns.ClaimOffer(campaignID, channelID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Either another channel won, the campaign left offered, or this
		// channel is excluded after a failed placement. All look the same
		// to the caller: the offer is gone.
		return nil, appErrors.ErrAlreadyClaimed
	}

	if s.Notify != nil {
		s.Notify.Notify(campaign.AdvertiserID, fmt.Sprintf("Channel %q accepted your campaign #%d.", channel.Name, campaignID))
	}
	if s.OnAccepted != nil {
		s.OnAccepted(campaignID)
	}
	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"channel_id":  channelID,
	}).Info("🤝 offer accepted")
	return s.Campaigns.GetByID(campaignID)
}

// Cancel stops a campaign before any channel has accepted it, refunding the
// escrow when funds are held.
func (s *CampaignService) Cancel(campaignID, advertiserID int64) (*model.Campaign, error) {
	unlock := s.locks.lock(campaignID)
	defer unlock()

	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.AdvertiserID != advertiserID {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	if !campaign.CanBeCancelled() {
		return nil, appErrors.NewInvalidTransition(campaignID, campaign.Status, "cancel")
	}

	swapped, err := s.Campaigns.UpdateStatus(campaignID, campaign.Status, model.CampaignCancelled)
	if err != nil {
		return nil, err
	}
	if !swapped {
		current, gerr := s.Campaigns.GetByID(campaignID)
		status := "unknown"
		if gerr == nil {
			status = current.Status
		}
		return nil, appErrors.NewInvalidTransition(campaignID, status, "cancel")
	}

	if campaign.HoldsFunds() {
		if _, err := s.Escrow.Refund(campaignID); err != nil {
			return nil, err
		}
	}

	if s.OnStopped != nil {
		s.OnStopped(campaignID)
	}
	if s.Notify != nil {
		s.Notify.Notify(advertiserID, fmt.Sprintf("Campaign #%d cancelled.", campaignID))
	}
	logrus.WithField("campaign_id", campaignID).Info("campaign cancelled")
	return s.Campaigns.GetByID(campaignID)
}

// SweepExpired moves overdue fund-holding campaigns to expired and refunds
// them. Safe to run concurrently with user actions: each campaign's CAS
// decides a single outcome.
func (s *CampaignService) SweepExpired(now time.Time) (int, error) {
	overdue, err := s.Campaigns.ListExpired(now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, campaign := range overdue {
		if err := s.expireOne(campaign); err != nil {
			logrus.WithField("campaign_id", campaign.ID).Errorf("failed to expire campaign: %v", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		logrus.WithField("count", expired).Info("🧹 expired campaigns swept")
	}
	return expired, nil
}

func (s *CampaignService) expireOne(campaign *model.Campaign) error {
	unlock := s.locks.lock(campaign.ID)
	defer unlock()

	swapped, err := s.Campaigns.UpdateStatus(campaign.ID, campaign.Status, model.CampaignExpired)
	if err != nil {
		return err
	}
	if !swapped {
		// Someone else transitioned it first; their transition owns the
		// escrow outcome.
		return nil
	}

	if _, err := s.Escrow.Refund(campaign.ID); err != nil {
		return err
	}

	if s.OnStopped != nil {
		s.OnStopped(campaign.ID)
	}
	if s.Notify != nil {
		s.Notify.Notify(campaign.AdvertiserID, fmt.Sprintf("Campaign #%d expired without completion; your budget was refunded.", campaign.ID))
	}
	return nil
}

// MarkPosted records a successful placement.
func (s *CampaignService) MarkPosted(campaignID int64, placementRef string) error {
	unlock := s.locks.lock(campaignID)
	defer unlock()

	swapped, err := s.Campaigns.UpdateStatus(campaignID, model.CampaignAccepted, model.CampaignPosted)
	if err != nil {
		return err
	}
	if !swapped {
		campaign, gerr := s.Campaigns.GetByID(campaignID)
		status := "unknown"
		if gerr == nil {
			status = campaign.Status
		}
		return appErrors.NewInvalidTransition(campaignID, status, "mark posted")
	}
	if err := s.Campaigns.SetPlacementRef(campaignID, placementRef); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id":   campaignID,
		"placement_ref": placementRef,
	}).Info("📬 ad posted")
	return nil
}

// Confirm settles a posted campaign: payout to the channel owner, terminal
// confirmed state, both parties notified.
func (s *CampaignService) Confirm(campaignID int64) error {
	unlock := s.locks.lock(campaignID)
	defer unlock()

	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}

	swapped, err := s.Campaigns.UpdateStatus(campaignID, model.CampaignPosted, model.CampaignConfirmed)
	if err != nil {
		return err
	}
	if !swapped {
		return appErrors.NewInvalidTransition(campaignID, campaign.Status, "confirm")
	}

	if _, err := s.Escrow.Release(campaignID); err != nil {
		return err
	}

	if s.Notify != nil {
		s.Notify.Notify(campaign.AdvertiserID, fmt.Sprintf("Campaign #%d completed. The placement stayed up for the full window.", campaignID))
		if campaign.ChannelID != nil {
			if channel, cerr := s.Channels.GetByID(*campaign.ChannelID); cerr == nil {
				s.Notify.Notify(channel.OwnerID, fmt.Sprintf("Payout for campaign #%d has been credited to your balance.", campaignID))
			}
		}
	}
	logrus.WithField("campaign_id", campaignID).Info("✅ campaign confirmed, escrow released")
	return nil
}

// FailPlacement handles exhausted posting attempts: the campaign goes back on
// the offer board, the failing channel is excluded from it and penalized.
func (s *CampaignService) FailPlacement(campaignID int64) error {
	unlock := s.locks.lock(campaignID)
	defer unlock()

	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignAccepted || campaign.ChannelID == nil {
		return appErrors.NewInvalidTransition(campaignID, campaign.Status, "fail placement")
	}
	channelID := *campaign.ChannelID

	released, err := s.Campaigns.ReleaseChannel(campaignID, model.CampaignOffered)
	if err != nil {
		return err
	}
	if !released {
		return appErrors.NewInvalidTransition(campaignID, campaign.Status, "fail placement")
	}

	if err := s.Campaigns.ExcludeChannel(campaignID, channelID); err != nil {
		return err
	}
	if err := s.Channels.AdjustTrustScore(channelID, -s.Config.TrustPenalty); err != nil {
		logrus.WithField("channel_id", channelID).Warnf("failed to apply trust penalty: %v", err)
	}

	if s.Notify != nil {
		if channel, cerr := s.Channels.GetByID(channelID); cerr == nil {
			s.Notify.Notify(channel.OwnerID, fmt.Sprintf("Posting for campaign #%d failed; the offer was returned to the board.", campaignID))
		}
		s.Notify.Notify(campaign.AdvertiserID, fmt.Sprintf("Placement for campaign #%d failed; it is offered to other channels again.", campaignID))
	}
	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"channel_id":  channelID,
	}).Warn("placement failed, campaign re-offered")
	return nil
}

// RefundMissingPlacement handles a placement that disappeared before the
// confirmation window closed: advertiser refunded, channel penalized.
func (s *CampaignService) RefundMissingPlacement(campaignID int64) error {
	unlock := s.locks.lock(campaignID)
	defer unlock()

	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return err
	}

	swapped, err := s.Campaigns.UpdateStatus(campaignID, model.CampaignPosted, model.CampaignRefunded)
	if err != nil {
		return err
	}
	if !swapped {
		return appErrors.NewInvalidTransition(campaignID, campaign.Status, "refund missing placement")
	}

	if _, err := s.Escrow.Refund(campaignID); err != nil {
		return err
	}

	if campaign.ChannelID != nil {
		if err := s.Channels.AdjustTrustScore(*campaign.ChannelID, -s.Config.TrustPenalty); err != nil {
			logrus.WithField("channel_id", *campaign.ChannelID).Warnf("failed to apply trust penalty: %v", err)
		}
		if s.Notify != nil {
			if channel, cerr := s.Channels.GetByID(*campaign.ChannelID); cerr == nil {
				s.Notify.Notify(channel.OwnerID, fmt.Sprintf("The placement for campaign #%d was removed early; the payout was forfeited.", campaignID))
			}
		}
	}
	if s.Notify != nil {
		s.Notify.Notify(campaign.AdvertiserID, fmt.Sprintf("Campaign #%d: the ad disappeared before the window closed. Your budget was refunded.", campaignID))
	}
	logrus.WithField("campaign_id", campaignID).Warn("placement missing, advertiser refunded")
	return nil
}

// HandleChannelRevoked reacts to a channel losing its verification while it
// holds accepted campaigns: unexpired campaigns go back on the offer board,
// overdue ones are cancelled and refunded.
func (s *CampaignService) HandleChannelRevoked(channelID int64) error {
	affected, err := s.Campaigns.ListByChannel(channelID, []string{model.CampaignAccepted})
	if err != nil {
		return err
	}

	now := time.Now()
	for _, campaign := range affected {
		unlock := s.locks.lock(campaign.ID)

		if now.Before(campaign.ExpiresAt) {
			released, rerr := s.Campaigns.ReleaseChannel(campaign.ID, model.CampaignOffered)
			if rerr == nil && released {
				if eerr := s.Campaigns.ExcludeChannel(campaign.ID, channelID); eerr != nil {
					logrus.WithField("campaign_id", campaign.ID).Warnf("failed to exclude revoked channel: %v", eerr)
				}
				if s.OnStopped != nil {
					s.OnStopped(campaign.ID)
				}
				if s.Notify != nil {
					s.Notify.Notify(campaign.AdvertiserID, fmt.Sprintf("The channel for campaign #%d lost verification; the offer is open again.", campaign.ID))
				}
			} else if rerr != nil {
				logrus.WithField("campaign_id", campaign.ID).Errorf("failed to re-offer campaign: %v", rerr)
			}
		} else {
			released, rerr := s.Campaigns.ReleaseChannel(campaign.ID, model.CampaignCancelled)
			if rerr == nil && released {
				if _, ferr := s.Escrow.Refund(campaign.ID); ferr != nil {
					logrus.WithField("campaign_id", campaign.ID).Errorf("failed to refund cancelled campaign: %v", ferr)
				}
				if s.OnStopped != nil {
					s.OnStopped(campaign.ID)
				}
				if s.Notify != nil {
					s.Notify.Notify(campaign.AdvertiserID, fmt.Sprintf("Campaign #%d was cancelled because its channel lost verification past the deadline. Budget refunded.", campaign.ID))
				}
			} else if rerr != nil {
				logrus.WithField("campaign_id", campaign.ID).Errorf("failed to cancel campaign: %v", rerr)
			}
		}

		unlock()
	}
	return nil
}

// Get fetches a campaign for a given advertiser.
func (s *CampaignService) Get(campaignID, advertiserID int64) (*model.Campaign, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.AdvertiserID != advertiserID {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	return campaign, nil
}

// ListByAdvertiser returns all campaigns owned by the advertiser.
func (s *CampaignService) ListByAdvertiser(advertiserID int64) ([]*model.Campaign, error) {
	return s.Campaigns.ListByAdvertiser(advertiserID)
}
