package service

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	appErrors "github.com/adboardhq/adboard-backend/internal/errors"
	"github.com/adboardhq/adboard-backend/internal/model"
)

func TestCreateCampaignValidation(t *testing.T) {
	e := newEngine()
	advertiser := e.users.add(model.RoleAdvertiser, 1000)

	cases := []struct {
		name     string
		adText   string
		budget   int64
		duration int
	}{
		{"too short", "short", 100, 24},
		{"too long", strings.Repeat("x", 1001), 100, 24},
		{"forbidden word", "Best casino bonuses in town, join now!", 100, 24},
		{"too many links", "Deals at https://a.example https://b.example https://c.example today", 100, 24},
		{"zero budget", testAdText, 0, 24},
		{"budget over cap", testAdText, 2_000_000, 24},
		{"zero duration", testAdText, 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.svc.CreateCampaign(advertiser.ID, tc.adText, tc.budget, tc.duration); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateCampaignRoleCheck(t *testing.T) {
	e := newEngine()
	owner := e.users.add(model.RoleChannelOwner, 1000)

	if _, err := e.svc.CreateCampaign(owner.ID, testAdText, 100, 24); err == nil {
		t.Fatal("expected role check to reject channel owner")
	}

	both := e.users.add(model.RoleBoth, 1000)
	campaign, err := e.svc.CreateCampaign(both.ID, testAdText, 100, 24)
	if err != nil {
		t.Fatalf("role both should create campaigns: %v", err)
	}
	if campaign.Status != model.CampaignPendingFunding {
		t.Fatalf("expected pending_funding after create, got %s", campaign.Status)
	}
}

func TestAcceptRequiresVerifiedChannel(t *testing.T) {
	e := newEngine()
	_, campaign := fundedCampaign(t, e, 1000, 200)

	owner := e.users.add(model.RoleChannelOwner, 0)
	channel := e.channels.add(owner.ID, model.ChannelPending)

	_, err := e.svc.Accept(campaign.ID, channel.ID, owner.ID)
	if !errors.Is(err, appErrors.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestAcceptExpiredOffer(t *testing.T) {
	e := newEngine()
	_, campaign := fundedCampaign(t, e, 1000, 200)

	// Force the deadline into the past.
	e.campaigns.mu.Lock()
	e.campaigns.campaigns[campaign.ID].ExpiresAt = time.Now().Add(-time.Hour)
	e.campaigns.mu.Unlock()

	owner := e.users.add(model.RoleChannelOwner, 0)
	channel := e.channels.add(owner.ID, model.ChannelVerified)

	_, err := e.svc.Accept(campaign.ID, channel.ID, owner.ID)
	if !errors.Is(err, appErrors.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	e := newEngine()
	_, campaign := fundedCampaign(t, e, 1000, 200)

	const contenders = 10
	type entry struct {
		channelID int64
		ownerID   int64
	}
	var entries []entry
	for i := 0; i < contenders; i++ {
		owner := e.users.add(model.RoleChannelOwner, 0)
		channel := e.channels.add(owner.ID, model.ChannelVerified)
		entries = append(entries, entry{channelID: channel.ID, ownerID: owner.ID})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	claimed := 0

	for _, en := range entries {
		wg.Add(1)
		go func(en entry) {
			defer wg.Done()
			_, err := e.svc.Accept(campaign.ID, en.channelID, en.ownerID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, appErrors.ErrAlreadyClaimed):
				claimed++
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}(en)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if claimed != contenders-1 {
		t.Fatalf("expected %d ErrAlreadyClaimed, got %d", contenders-1, claimed)
	}

	final, _ := e.campaigns.GetByID(campaign.ID)
	if final.Status != model.CampaignAccepted || final.ChannelID == nil {
		t.Fatalf("expected accepted with bound channel, got %s", final.Status)
	}
}

func TestAcceptExcludedChannel(t *testing.T) {
	e := newEngine()
	_, campaign := fundedCampaign(t, e, 1000, 200)

	owner := e.users.add(model.RoleChannelOwner, 0)
	channel := e.channels.add(owner.ID, model.ChannelVerified)

	if err := e.campaigns.ExcludeChannel(campaign.ID, channel.ID); err != nil {
		t.Fatalf("exclude: %v", err)
	}

	_, err := e.svc.Accept(campaign.ID, channel.ID, owner.ID)
	if !errors.Is(err, appErrors.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed for excluded channel, got %v", err)
	}

	offers, _ := e.svc.ListOffers(channel.ID)
	for _, o := range offers {
		if o.ID == campaign.ID {
			t.Fatal("excluded channel still sees the offer")
		}
	}
}

func TestCancelAfterAcceptRejected(t *testing.T) {
	e := newEngine()
	advertiser, _, _, campaign := acceptedCampaign(t, e, 1000, 200)

	_, err := e.svc.Cancel(campaign.ID, advertiser.ID)
	if !appErrors.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestCancelWrongOwner(t *testing.T) {
	e := newEngine()
	_, campaign := fundedCampaign(t, e, 1000, 200)
	stranger := e.users.add(model.RoleAdvertiser, 0)

	_, err := e.svc.Cancel(campaign.ID, stranger.ID)
	if !appErrors.IsNotFound(err) {
		t.Fatalf("expected not found for foreign campaign, got %v", err)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	e := newEngine()
	_, campaign := fundedCampaign(t, e, 1000, 200)

	// Offered campaign cannot be confirmed or marked posted.
	if err := e.svc.Confirm(campaign.ID); !appErrors.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition for confirm, got %v", err)
	}
	if err := e.svc.MarkPosted(campaign.ID, "ref"); !appErrors.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition for mark posted, got %v", err)
	}
	if err := e.svc.RefundMissingPlacement(campaign.ID); !appErrors.IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition for refund, got %v", err)
	}
}

func TestSweepExpiredRefundsAdvertiser(t *testing.T) {
	e := newEngine()
	advertiser, campaign := fundedCampaign(t, e, 1000, 300)

	stopped := make([]int64, 0, 1)
	e.svc.OnStopped = func(id int64) { stopped = append(stopped, id) }

	// Not yet due: sweep is a no-op.
	if n, err := e.svc.SweepExpired(time.Now()); err != nil || n != 0 {
		t.Fatalf("early sweep: n=%d err=%v", n, err)
	}

	n, err := e.svc.SweepExpired(campaign.ExpiresAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired campaign, got %d", n)
	}

	final, _ := e.campaigns.GetByID(campaign.ID)
	if final.Status != model.CampaignExpired {
		t.Fatalf("expected expired, got %s", final.Status)
	}
	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 1000 {
		t.Fatalf("expected refund to 1000, got %d", balance)
	}
	if len(stopped) != 1 || stopped[0] != campaign.ID {
		t.Fatalf("expected OnStopped for campaign %d, got %v", campaign.ID, stopped)
	}

	// Re-running the sweep finds nothing.
	if n, _ := e.svc.SweepExpired(campaign.ExpiresAt.Add(time.Hour)); n != 0 {
		t.Fatalf("second sweep expired %d campaigns", n)
	}
}

func TestFailPlacementReOffersAndPenalizes(t *testing.T) {
	e := newEngine()
	_, _, channel, campaign := acceptedCampaign(t, e, 1000, 200)

	if err := e.svc.FailPlacement(campaign.ID); err != nil {
		t.Fatalf("fail placement: %v", err)
	}

	final, _ := e.campaigns.GetByID(campaign.ID)
	if final.Status != model.CampaignOffered || final.ChannelID != nil {
		t.Fatalf("expected re-offered unbound campaign, got %s", final.Status)
	}

	excluded, _ := e.campaigns.IsChannelExcluded(campaign.ID, channel.ID)
	if !excluded {
		t.Fatal("failing channel was not excluded")
	}

	ch, _ := e.channels.GetByID(channel.ID)
	if ch.TrustScore != 90 {
		t.Fatalf("expected trust score 90 after penalty, got %d", ch.TrustScore)
	}
}

func TestHandleChannelRevokedBeforeExpiry(t *testing.T) {
	e := newEngine()
	advertiser, _, channel, campaign := acceptedCampaign(t, e, 1000, 200)

	if err := e.svc.HandleChannelRevoked(channel.ID); err != nil {
		t.Fatalf("handle revoked: %v", err)
	}

	final, _ := e.campaigns.GetByID(campaign.ID)
	if final.Status != model.CampaignOffered {
		t.Fatalf("expected campaign back on offer, got %s", final.Status)
	}
	excluded, _ := e.campaigns.IsChannelExcluded(campaign.ID, channel.ID)
	if !excluded {
		t.Fatal("revoked channel can still claim the re-offered campaign")
	}

	// Escrow stays held for the next channel.
	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 800 {
		t.Fatalf("escrow should stay held, advertiser balance %d", balance)
	}
}

func TestHandleChannelRevokedPastExpiry(t *testing.T) {
	e := newEngine()
	advertiser, _, channel, campaign := acceptedCampaign(t, e, 1000, 200)

	e.campaigns.mu.Lock()
	e.campaigns.campaigns[campaign.ID].ExpiresAt = time.Now().Add(-time.Hour)
	e.campaigns.mu.Unlock()

	if err := e.svc.HandleChannelRevoked(channel.ID); err != nil {
		t.Fatalf("handle revoked: %v", err)
	}

	final, _ := e.campaigns.GetByID(campaign.ID)
	if final.Status != model.CampaignCancelled {
		t.Fatalf("expected cancelled past expiry, got %s", final.Status)
	}
	balance, _ := e.ledgerSvc.Balance(advertiser.ID)
	if balance != 1000 {
		t.Fatalf("expected full refund, got %d", balance)
	}
}

func TestOnAcceptedHookFires(t *testing.T) {
	e := newEngine()
	_, campaign := fundedCampaign(t, e, 1000, 200)

	var got int64
	e.svc.OnAccepted = func(id int64) { got = id }

	owner := e.users.add(model.RoleChannelOwner, 0)
	channel := e.channels.add(owner.ID, model.ChannelVerified)
	if _, err := e.svc.Accept(campaign.ID, channel.ID, owner.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got != campaign.ID {
		t.Fatalf("OnAccepted got %d, want %d", got, campaign.ID)
	}
}
