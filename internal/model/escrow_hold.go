// internal/model/escrow_hold.go
package model

import "time"

const (
    HoldHeld     = "held"
    HoldReleased = "released"
    HoldRefunded = "refunded"
)

// EscrowHold pairs one-to-one with a campaign in funded states. Its status is
// the guard for settlement: held moves to exactly one of released/refunded.
type EscrowHold struct {
    ID          int64      `db:"id" json:"id"`
    CampaignID  int64      `db:"campaign_id" json:"campaign_id"`
    Amount      int64      `db:"amount" json:"amount"`
    Status      string     `db:"status" json:"status"`
    CreatedAt   time.Time  `db:"created_at" json:"created_at"`
    FinalizedAt *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`
}

func (h *EscrowHold) IsFinalized() bool {
    return h.Status != HoldHeld
}
