// internal/model/campaign.go
package model

import "time"

const (
    CampaignDraft          = "draft"
    CampaignPendingFunding = "pending_funding"
    CampaignFunded         = "funded"
    CampaignOffered        = "offered"
    CampaignAccepted       = "accepted"
    CampaignPosted         = "posted"
    CampaignConfirmed      = "confirmed"
    CampaignCancelled      = "cancelled"
    CampaignRefunded       = "refunded"
    CampaignExpired        = "expired"
)

type Campaign struct {
    ID           int64      `db:"id" json:"id"`
    AdvertiserID int64      `db:"advertiser_id" json:"advertiser_id"`
    // ChannelID is set when a channel owner claims the offer and cleared on
    // re-offer.
    ChannelID     *int64     `db:"channel_id" json:"channel_id,omitempty"`
    AdText        string     `db:"ad_text" json:"ad_text"`
    Budget        int64      `db:"budget" json:"budget"`
    DurationHours int        `db:"duration_hours" json:"duration_hours"`
    Status        string     `db:"status" json:"status"`
    PlacementRef  *string    `db:"placement_ref" json:"placement_ref,omitempty"`
    CreatedAt     time.Time  `db:"created_at" json:"created_at"`
    ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
    UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

func (c *Campaign) IsTerminal() bool {
    switch c.Status {
    case CampaignConfirmed, CampaignCancelled, CampaignRefunded, CampaignExpired:
        return true
    }
    return false
}

// Cancellable states: anything non-terminal before a channel owner accepts.
func (c *Campaign) CanBeCancelled() bool {
    switch c.Status {
    case CampaignDraft, CampaignPendingFunding, CampaignFunded, CampaignOffered:
        return true
    }
    return false
}

// Funded states carry an active escrow hold.
func (c *Campaign) HoldsFunds() bool {
    switch c.Status {
    case CampaignFunded, CampaignOffered, CampaignAccepted, CampaignPosted:
        return true
    }
    return false
}
