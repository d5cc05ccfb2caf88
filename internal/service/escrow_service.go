// internal/service/escrow_service.go
package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
	"github.com/adboardhq/adboard-backend/internal/repository"
)

// EscrowService holds advertiser funds against a campaign until settlement.
// Every multi-step operation here is either atomic at the repository level or
// compensated, and every ledger movement uses a deterministic reference so a
// crashed operation can be re-driven without double movement.
type EscrowService struct {
	Ledger    *LedgerService
	Holds     repository.EscrowRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Channels  repository.ChannelRepositoryInterface
}

func holdReference(campaignID int64) string {
	return fmt.Sprintf("hold-%d", campaignID)
}

func releaseReference(holdID int64) string {
	return fmt.Sprintf("release-%d", holdID)
}

func refundReference(holdID int64) string {
	return fmt.Sprintf("refund-%d", holdID)
}

// HoldFunds debits the advertiser and creates the escrow hold, paired with
// the campaign's pending_funding -> funded transition. On InsufficientFunds
// the campaign stays in pending_funding and nothing moves.
func (s *EscrowService) HoldFunds(campaignID int64) (*model.EscrowHold, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignPendingFunding {
		return nil, appErrors.NewInvalidTransition(campaignID, campaign.Status, "fund")
	}

	hold, err := s.Holds.GetByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if hold != nil && hold.IsFinalized() {
		// A previous hold was already settled; this campaign cannot be
		// funded again through the same hold.
		return nil, appErrors.NewInvalidTransition(campaignID, campaign.Status, "re-fund a settled campaign")
	}

	if hold == nil {
		// The debit reference is derived from the campaign, so a re-driven
		// call after a crash finds the original transaction instead of
		// debiting twice.
		if _, err := s.Ledger.Debit(campaign.AdvertiserID, campaign.Budget, model.KindDebitEscrow, holdReference(campaignID), &campaignID); err != nil {
			return nil, err
		}

		hold, err = s.Holds.CreateHold(campaignID, campaign.Budget)
		if err != nil {
			// Debit landed but the hold did not: give the money back.
			s.compensateDebit(campaign, "hold creation failed")
			return nil, err
		}
	}

	swapped, err := s.Campaigns.UpdateStatus(campaignID, model.CampaignPendingFunding, model.CampaignFunded)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// The campaign left pending_funding underneath us (e.g. cancelled).
		// No funded campaign without a hold, and no orphaned hold either.
		if _, ferr := s.Holds.Finalize(hold.ID, model.HoldRefunded); ferr == nil {
			s.compensateDebit(campaign, "campaign left pending_funding")
		}
		current, gerr := s.Campaigns.GetByID(campaignID)
		status := "unknown"
		if gerr == nil {
			status = current.Status
		}
		return nil, appErrors.NewInvalidTransition(campaignID, status, "fund")
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"hold_id":     hold.ID,
		"amount":      hold.Amount,
	}).Info("funds held in escrow")
	return hold, nil
}

func (s *EscrowService) compensateDebit(campaign *model.Campaign, reason string) {
	ref := fmt.Sprintf("hold-compensate-%d", campaign.ID)
	if _, err := s.Ledger.Credit(campaign.AdvertiserID, campaign.Budget, model.KindRefund, ref, &campaign.ID); err != nil {
		logrus.WithField("campaign_id", campaign.ID).Errorf("failed to compensate debit (%s): %v", reason, err)
	}
}

// Release credits the channel owner. Callable only on the posted/confirmed
// path; calling it twice has the same effect as calling it once.
func (s *EscrowService) Release(campaignID int64) (*model.Transaction, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignPosted && campaign.Status != model.CampaignConfirmed {
		return nil, appErrors.NewInvalidTransition(campaignID, campaign.Status, "release escrow")
	}
	if campaign.ChannelID == nil {
		return nil, fmt.Errorf("campaign %d has no bound channel to pay", campaignID)
	}

	channel, err := s.Channels.GetByID(*campaign.ChannelID)
	if err != nil {
		return nil, err
	}

	hold, err := s.Holds.GetByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, appErrors.NewHoldNotFound(campaignID)
	}

	switch hold.Status {
	case model.HoldRefunded:
		return nil, fmt.Errorf("hold %d already refunded, cannot release", hold.ID)
	case model.HoldReleased:
		// Idempotent no-op; re-drive the credit if a crash interrupted it.
		return s.settle(channel.OwnerID, hold, model.KindCreditPayout, releaseReference(hold.ID), campaignID)
	}

	swapped, err := s.Holds.Finalize(hold.ID, model.HoldReleased)
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Lost a race: re-read and treat like the settled cases above.
		return s.Release(campaignID)
	}

	entry, err := s.settle(channel.OwnerID, hold, model.KindCreditPayout, releaseReference(hold.ID), campaignID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"hold_id":     hold.ID,
		"recipient":   channel.OwnerID,
		"amount":      hold.Amount,
	}).Info("escrow released to channel owner")
	return entry, nil
}

// Refund credits the advertiser back. Callable only from the
// cancelled/expired/refunded path; idempotent like Release.
func (s *EscrowService) Refund(campaignID int64) (*model.Transaction, error) {
	campaign, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	switch campaign.Status {
	case model.CampaignCancelled, model.CampaignExpired, model.CampaignRefunded:
	default:
		return nil, appErrors.NewInvalidTransition(campaignID, campaign.Status, "refund escrow")
	}

	hold, err := s.Holds.GetByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, appErrors.NewHoldNotFound(campaignID)
	}

	switch hold.Status {
	case model.HoldReleased:
		return nil, fmt.Errorf("hold %d already released, cannot refund", hold.ID)
	case model.HoldRefunded:
		return s.settle(campaign.AdvertiserID, hold, model.KindRefund, refundReference(hold.ID), campaignID)
	}

	swapped, err := s.Holds.Finalize(hold.ID, model.HoldRefunded)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return s.Refund(campaignID)
	}

	entry, err := s.settle(campaign.AdvertiserID, hold, model.KindRefund, refundReference(hold.ID), campaignID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"hold_id":     hold.ID,
		"amount":      hold.Amount,
	}).Info("escrow refunded to advertiser")
	return entry, nil
}

// settle credits the recipient with the hold amount, idempotently: if the
// credit already exists it is returned as-is.
func (s *EscrowService) settle(recipientID int64, hold *model.EscrowHold, kind, reference string, campaignID int64) (*model.Transaction, error) {
	existing, err := s.Ledger.FindByReference(kind, reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return s.Ledger.Credit(recipientID, hold.Amount, kind, reference, &campaignID)
}

// HeldAmount reports the active hold amount for a campaign, or zero.
func (s *EscrowService) HeldAmount(campaignID int64) (int64, error) {
	hold, err := s.Holds.GetByCampaign(campaignID)
	if err != nil {
		return 0, err
	}
	if hold == nil || hold.IsFinalized() {
		return 0, nil
	}
	return hold.Amount, nil
}
