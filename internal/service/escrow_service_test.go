package service

import (
	"errors"
	"testing"
	"time"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
)

const testAdText = "Premium coffee beans, freshly roasted and delivered to your door."

// fundedCampaign creates an advertiser with the given balance and walks a
// campaign through create + fund.
func fundedCampaign(t *testing.T, e *engine, balance, budget int64) (*model.User, *model.Campaign) {
	t.Helper()
	advertiser := e.users.add(model.RoleAdvertiser, balance)
	campaign, err := e.svc.CreateCampaign(advertiser.ID, testAdText, budget, 24)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	campaign, err = e.svc.Fund(campaign.ID, advertiser.ID)
	if err != nil {
		t.Fatalf("fund campaign: %v", err)
	}
	return advertiser, campaign
}

// acceptedCampaign additionally has a verified channel claim the offer.
func acceptedCampaign(t *testing.T, e *engine, balance, budget int64) (*model.User, *model.User, *model.Channel, *model.Campaign) {
	t.Helper()
	advertiser, campaign := fundedCampaign(t, e, balance, budget)
	owner := e.users.add(model.RoleChannelOwner, 0)
	channel := e.channels.add(owner.ID, model.ChannelVerified)

	campaign, err := e.svc.Accept(campaign.ID, channel.ID, owner.ID)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	return advertiser, owner, channel, campaign
}

func TestHoldFundsMovesBudgetIntoEscrow(t *testing.T) {
	e := newEngine()
	advertiser, campaign := fundedCampaign(t, e, 1000, 400)

	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 600 {
		t.Fatalf("expected advertiser balance 600, got %d", balance)
	}
	held, err := e.escrow.HeldAmount(campaign.ID)
	if err != nil {
		t.Fatalf("held amount: %v", err)
	}
	if held != 400 {
		t.Fatalf("expected 400 held, got %d", held)
	}
	if campaign.Status != model.CampaignOffered {
		t.Fatalf("expected campaign offered, got %s", campaign.Status)
	}
}

func TestHoldFundsInsufficientBalance(t *testing.T) {
	e := newEngine()
	advertiser := e.users.add(model.RoleAdvertiser, 100)
	campaign, err := e.svc.CreateCampaign(advertiser.ID, testAdText, 500, 24)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	_, err = e.svc.Fund(campaign.ID, advertiser.ID)
	if !errors.Is(err, appErrors.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Nothing moved, campaign still fundable.
	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 100 {
		t.Fatalf("expected untouched balance 100, got %d", balance)
	}
	current, _ := e.campaigns.GetByID(campaign.ID)
	if current.Status != model.CampaignPendingFunding {
		t.Fatalf("expected pending_funding, got %s", current.Status)
	}
}

func TestCancelRefundsEscrow(t *testing.T) {
	e := newEngine()
	advertiser, campaign := fundedCampaign(t, e, 1000, 400)

	if _, err := e.svc.Cancel(campaign.ID, advertiser.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 1000 {
		t.Fatalf("expected full refund to 1000, got %d", balance)
	}
	hold, _ := e.holds.GetByCampaign(campaign.ID)
	if hold.Status != model.HoldRefunded {
		t.Fatalf("expected hold refunded, got %s", hold.Status)
	}
}

func TestReleasePaysChannelOwnerOnce(t *testing.T) {
	e := newEngine()
	advertiser, owner, _, campaign := acceptedCampaign(t, e, 1000, 500)

	if err := e.svc.MarkPosted(campaign.ID, "msg-1"); err != nil {
		t.Fatalf("mark posted: %v", err)
	}
	if err := e.svc.Confirm(campaign.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	ownerBalance, _ := e.ledgerSvc.Balance(owner.ID)
	if ownerBalance != 500 {
		t.Fatalf("expected owner paid 500, got %d", ownerBalance)
	}
	advBalance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if advBalance != 500 {
		t.Fatalf("expected advertiser at 500, got %d", advBalance)
	}

	// A second release is a no-op, not a second payout.
	if _, err := e.escrow.Release(campaign.ID); err != nil {
		t.Fatalf("repeat release errored: %v", err)
	}
	ownerBalance, _ = e.ledgerSvc.Balance(owner.ID)
	if ownerBalance != 500 {
		t.Fatalf("double payout: owner balance %d", ownerBalance)
	}
}

func TestReleaseAfterRefundFails(t *testing.T) {
	e := newEngine()
	_, _, _, campaign := acceptedCampaign(t, e, 1000, 500)

	if err := e.svc.MarkPosted(campaign.ID, "msg-1"); err != nil {
		t.Fatalf("mark posted: %v", err)
	}
	if err := e.svc.RefundMissingPlacement(campaign.ID); err != nil {
		t.Fatalf("refund missing placement: %v", err)
	}

	if _, err := e.escrow.Release(campaign.ID); err == nil {
		t.Fatal("expected release after refund to fail")
	}
}

func TestRefundIdempotent(t *testing.T) {
	e := newEngine()
	advertiser, campaign := fundedCampaign(t, e, 1000, 300)

	if _, err := e.svc.Cancel(campaign.ID, advertiser.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Re-driving the refund after a crash must not double-credit.
	if _, err := e.escrow.Refund(campaign.ID); err != nil {
		t.Fatalf("repeat refund errored: %v", err)
	}

	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 1000 {
		t.Fatalf("expected 1000 after idempotent refund, got %d", balance)
	}
}

func TestFundTwiceIsRejected(t *testing.T) {
	e := newEngine()
	advertiser, campaign := fundedCampaign(t, e, 1000, 200)

	_, err := e.svc.Fund(campaign.ID, advertiser.ID)
	if !appErrors.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition on double fund, got %v", err)
	}
	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 800 {
		t.Fatalf("double fund moved money: balance %d", balance)
	}
}

func TestEscrowScenarioEndToEnd(t *testing.T) {
	e := newEngine()
	advertiser := e.users.add(model.RoleAdvertiser, 0)

	if _, err := e.ledgerSvc.TopUp(advertiser.ID, 1000, "dep-1"); err != nil {
		t.Fatalf("topup: %v", err)
	}

	campaign, err := e.svc.CreateCampaign(advertiser.ID, testAdText, 500, 24)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.Fund(campaign.ID, advertiser.ID); err != nil {
		t.Fatalf("fund: %v", err)
	}

	owner := e.users.add(model.RoleChannelOwner, 0)
	channel := e.channels.add(owner.ID, model.ChannelVerified)
	if _, err := e.svc.Accept(campaign.ID, channel.ID, owner.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.svc.MarkPosted(campaign.ID, "msg-9"); err != nil {
		t.Fatalf("post: %v", err)
	}
	if err := e.svc.Confirm(campaign.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	advBalance, _ := e.ledgerSvc.Balance(advertiser.ID)
	ownerBalance, _ := e.ledgerSvc.Balance(owner.ID)
	if advBalance != 500 || ownerBalance != 500 {
		t.Fatalf("expected 500/500 split, got advertiser %d owner %d", advBalance, ownerBalance)
	}

	final, _ := e.campaigns.GetByID(campaign.ID)
	if final.Status != model.CampaignConfirmed {
		t.Fatalf("expected confirmed, got %s", final.Status)
	}
	if final.ExpiresAt.Before(time.Now()) {
		t.Fatal("campaign expired during the test")
	}
}
