package beacon

import "context"

// Notifier delivers a short text message back to a bridge user. The
// manager and sweeper use it for session lifecycle announcements.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}
