// internal/model/channel.go
package model

import "time"

const (
    ChannelUnverified = "unverified"
    ChannelPending    = "pending"
    ChannelVerified   = "verified"
    ChannelRevoked    = "revoked"
)

type Channel struct {
    ID                int64      `db:"id" json:"id"`
    OwnerID           int64      `db:"owner_id" json:"owner_id"`
    TelegramChannelID int64      `db:"telegram_channel_id" json:"telegram_channel_id"`
    Name              string     `db:"name" json:"name"`
    Verification      string     `db:"verification" json:"verification"`
    SubscriberCount   int        `db:"subscriber_count" json:"subscriber_count"`
    TrustScore        int        `db:"trust_score" json:"trust_score"`
    LastCheckedAt     *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
    CreatedAt         time.Time  `db:"created_at" json:"created_at"`
    UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// ReadyForAds reports whether the channel may accept campaign offers.
func (c *Channel) ReadyForAds() bool {
    return c.Verification == ChannelVerified
}
