// Package transport defines the capability contracts the engine consumes.
// The engine never talks to Telegram directly; it is handed a Messenger and
// a Poster so tests can substitute fakes.
package transport

import "context"

// Messenger delivers best-effort notifications to users. Failures are logged
// by callers and never roll back a state transition.
type Messenger interface {
	Send(ctx context.Context, userTelegramID int64, text string) error
}

// Poster places ads on channels and answers questions about placements and
// channel control.
type Poster interface {
	// Publish places the ad and returns an opaque placement reference.
	Publish(ctx context.Context, channelTelegramID int64, text string) (string, error)
	// Exists reports whether the placement is still live.
	Exists(ctx context.Context, channelTelegramID int64, placementRef string) (bool, error)
	// AdminStatus reports whether the bot has administrative control.
	AdminStatus(ctx context.Context, channelTelegramID int64) (bool, error)
	SubscriberCount(ctx context.Context, channelTelegramID int64) (int, error)
}
