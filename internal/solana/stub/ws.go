package stub

import (
	"context"
	"sync"

	"solana-whale-tracker/internal/solana"
)

// WSClient implements solana.WSClient in memory.
type WSClient struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan solana.LogNotification
	byAddr map[string]uint64
	closed bool

	// SubscribeErr, when set, fails every SubscribeLogs call.
	SubscribeErr error
}

// Compile-time interface check.
var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{
		subs:   make(map[uint64]chan solana.LogNotification),
		byAddr: make(map[string]uint64),
	}
}

// SubscribeLogs registers a subscription for the first mentioned address.
func (c *WSClient) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (*solana.LogSubscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, solana.ErrWSClosed
	}
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}

	c.nextID++
	ch := make(chan solana.LogNotification, 16)
	c.subs[c.nextID] = ch
	if len(filter.Mentions) > 0 {
		c.byAddr[filter.Mentions[0]] = c.nextID
	}
	return &solana.LogSubscription{ID: c.nextID, Filter: filter, C: ch}, nil
}

// Unsubscribe closes the subscription channel.
func (c *WSClient) Unsubscribe(_ context.Context, sub *solana.LogSubscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.subs[sub.ID]
	if !ok {
		return nil
	}
	close(ch)
	delete(c.subs, sub.ID)
	for addr, id := range c.byAddr {
		if id == sub.ID {
			delete(c.byAddr, addr)
		}
	}
	return nil
}

// Close closes every open subscription.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.byAddr = make(map[string]uint64)
	return nil
}

// Emit delivers a notification to the subscription of address.
// Returns false when the address has no subscription.
func (c *WSClient) Emit(address string, n solana.LogNotification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.byAddr[address]
	if !ok {
		return false
	}
	select {
	case c.subs[id] <- n:
	default:
	}
	return true
}

// Subscribed returns the addresses with an open subscription.
func (c *WSClient) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.byAddr))
	for addr := range c.byAddr {
		out = append(out, addr)
	}
	return out
}
