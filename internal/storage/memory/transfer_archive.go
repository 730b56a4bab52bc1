package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

// TransferArchive is an in-memory implementation of storage.TransferArchive.
type TransferArchive struct {
	mu     sync.RWMutex
	events map[archiveKey]*domain.TransferEvent
}

type archiveKey struct {
	signature    string
	accountIndex int
}

// NewTransferArchive creates a new in-memory transfer archive.
func NewTransferArchive() *TransferArchive {
	return &TransferArchive{
		events: make(map[archiveKey]*domain.TransferEvent),
	}
}

// InsertBulk appends events, replacing rows with the same (signature, account_index).
func (a *TransferArchive) InsertBulk(_ context.Context, events []*domain.TransferEvent) error {
	for _, e := range events {
		if e == nil || e.Signature == "" || !e.Direction.IsValid() {
			return storage.ErrInvalidInput
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range events {
		eventCopy := *e
		a.events[archiveKey{e.Signature, e.AccountIndex}] = &eventCopy
	}
	return nil
}

// Summary aggregates transfers of a wallet with block time >= since.
func (a *TransferArchive) Summary(_ context.Context, address string, since time.Time) (*domain.TransferSummary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	summary := &domain.TransferSummary{
		WalletAddress: address,
		Received:      decimal.Zero,
		Sent:          decimal.Zero,
	}
	sinceUnix := since.Unix()
	for _, e := range a.events {
		if e.WalletAddress != address || e.BlockTime < sinceUnix {
			continue
		}
		switch e.Direction {
		case domain.DirectionReceive:
			summary.Received = summary.Received.Add(e.Amount)
			summary.ReceiveCount++
		case domain.DirectionSend:
			summary.Sent = summary.Sent.Add(e.Amount)
			summary.SendCount++
		}
	}
	return summary, nil
}

var _ storage.TransferArchive = (*TransferArchive)(nil)
