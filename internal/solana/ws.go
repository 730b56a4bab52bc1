package solana

import "context"

// WSClient is a logs subscription feed. Subscriptions outlive reconnects.
type WSClient interface {
	SubscribeLogs(ctx context.Context, filter LogsFilter) (*LogSubscription, error)

	// Unsubscribe drops sub and closes sub.C.
	Unsubscribe(ctx context.Context, sub *LogSubscription) error

	Close() error
}

// LogsFilter selects which transactions produce notifications.
// Nodes accept a single Mentions address per subscription.
type LogsFilter struct {
	Mentions []string
}

// LogSubscription delivers notifications on C until unsubscribed or closed.
// ID is local to the client; the node's own subscription id changes on every reconnect.
type LogSubscription struct {
	ID     uint64
	Filter LogsFilter
	C      <-chan LogNotification
}

// LogNotification reports a transaction that mentioned the filtered address.
type LogNotification struct {
	Signature string
	Slot      int64
	Err       interface{} // set when the transaction failed
	Logs      []string
}
