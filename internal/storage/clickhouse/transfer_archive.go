package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/observability"
	"solana-whale-tracker/internal/storage"
)

// TransferArchive implements storage.TransferArchive using ClickHouse.
// transfer_events is a ReplacingMergeTree keyed by (wallet_address, signature, account_index),
// so replays collapse on merge and reads use FINAL.
type TransferArchive struct {
	conn *Conn
}

// NewTransferArchive creates a new TransferArchive.
func NewTransferArchive(conn *Conn) *TransferArchive {
	return &TransferArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TransferArchive = (*TransferArchive)(nil)

// InsertBulk appends events in a single batch.
func (a *TransferArchive) InsertBulk(ctx context.Context, events []*domain.TransferEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e == nil || e.Signature == "" || !e.Direction.IsValid() {
			return storage.ErrInvalidInput
		}
	}
	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "transfer_events.insert", time.Since(start).Seconds(), err)
	}(time.Now())

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO transfer_events (
			wallet_address, signature, account_index, owner, direction, amount, slot, block_time
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.WalletAddress, e.Signature, uint32(e.AccountIndex), e.Owner,
			e.Direction.String(), e.Amount, e.Slot, time.Unix(e.BlockTime, 0).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Summary aggregates transfers of a wallet with block time >= since.
func (a *TransferArchive) Summary(ctx context.Context, address string, since time.Time) (summary *domain.TransferSummary, err error) {
	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "transfer_events.summary", time.Since(start).Seconds(), err)
	}(time.Now())

	query := `
		SELECT
			toString(sumIf(amount, direction = 'receive')),
			toString(sumIf(amount, direction = 'send')),
			countIf(direction = 'receive'),
			countIf(direction = 'send')
		FROM transfer_events FINAL
		WHERE wallet_address = ? AND block_time >= ?
	`

	var (
		received, sent           string
		receiveCount, sendCount uint64
	)
	row := a.conn.QueryRow(ctx, query, address, since.UTC())
	if err := row.Scan(&received, &sent, &receiveCount, &sendCount); err != nil {
		return nil, fmt.Errorf("query transfer summary: %w", err)
	}

	summary = &domain.TransferSummary{
		WalletAddress: address,
		ReceiveCount:  int(receiveCount),
		SendCount:     int(sendCount),
	}
	if summary.Received, err = decimal.NewFromString(received); err != nil {
		return nil, fmt.Errorf("parse received sum %q: %w", received, err)
	}
	if summary.Sent, err = decimal.NewFromString(sent); err != nil {
		return nil, fmt.Errorf("parse sent sum %q: %w", sent, err)
	}
	return summary, nil
}
