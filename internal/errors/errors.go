// internal/errors/errors.go
package appErrors

import (
    "errors"
    "fmt"
)

// Sentinel errors for guard failures that carry no extra context.
var (
    ErrInsufficientFunds  = errors.New("insufficient funds")
    ErrAlreadyClaimed     = errors.New("offer already claimed")
    ErrVerificationFailed = errors.New("channel verification failed")
    ErrExpired            = errors.New("campaign expired")
)

func IsInsufficientFunds(err error) bool { return errors.Is(err, ErrInsufficientFunds) }
func IsAlreadyClaimed(err error) bool    { return errors.Is(err, ErrAlreadyClaimed) }
func IsExpired(err error) bool           { return errors.Is(err, ErrExpired) }

// ErrNotFound reports a missing record of any kind.
type ErrNotFound struct {
    Kind string
    ID   int64
}

func (e *ErrNotFound) Error() string {
    return fmt.Sprintf("%s with ID %d not found", e.Kind, e.ID)
}

// Helper constructors
func NewCampaignNotFound(id int64) error {
    return &ErrNotFound{Kind: "campaign", ID: id}
}

func NewUserNotFound(id int64) error {
    return &ErrNotFound{Kind: "user", ID: id}
}

func NewChannelNotFound(id int64) error {
    return &ErrNotFound{Kind: "channel", ID: id}
}

func NewHoldNotFound(id int64) error {
    return &ErrNotFound{Kind: "escrow hold", ID: id}
}

func IsNotFound(err error) bool {
    var nf *ErrNotFound
    return errors.As(err, &nf)
}

// ErrInvalidTransition reports an action that is illegal in the campaign's
// current state.
type ErrInvalidTransition struct {
    CampaignID int64
    Status     string
    Action     string
}

func (e *ErrInvalidTransition) Error() string {
    return fmt.Sprintf("campaign %d: cannot %s in status %q", e.CampaignID, e.Action, e.Status)
}

func NewInvalidTransition(campaignID int64, status, action string) error {
    return &ErrInvalidTransition{CampaignID: campaignID, Status: status, Action: action}
}

func IsInvalidTransition(err error) bool {
    var it *ErrInvalidTransition
    return errors.As(err, &it)
}

// ErrPlacementFailed reports that posting gave up after the retry ceiling.
type ErrPlacementFailed struct {
    CampaignID int64
    Attempts   int
    Last       error
}

func (e *ErrPlacementFailed) Error() string {
    return fmt.Sprintf("campaign %d: placement failed after %d attempts: %v", e.CampaignID, e.Attempts, e.Last)
}

func (e *ErrPlacementFailed) Unwrap() error { return e.Last }

func IsPlacementFailed(err error) bool {
    var pf *ErrPlacementFailed
    return errors.As(err, &pf)
}
