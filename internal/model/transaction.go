// internal/model/transaction.go
package model

import "time"

const (
    KindDebitEscrow  = "debit-escrow"
    KindCreditPayout = "credit-payout"
    KindRefund       = "refund"
    KindTopup        = "topup"
)

// Transaction is an immutable ledger entry. Amount is signed: debits are
// negative, credits positive. (Kind, Reference) is unique so duplicate
// submissions are no-ops returning the original row.
type Transaction struct {
    ID         int64     `db:"id" json:"id"`
    UserID     int64     `db:"user_id" json:"user_id"`
    CampaignID *int64    `db:"campaign_id" json:"campaign_id,omitempty"`
    Kind       string    `db:"kind" json:"kind"`
    Amount     int64     `db:"amount" json:"amount"`
    Reference  string    `db:"reference" json:"reference"`
    CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
