// Package scanner examines the newest signatures of one wallet and turns unseen
// token transfers into recorded, alerted events.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"solana-whale-tracker/internal/balance"
	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/observability"
	"solana-whale-tracker/internal/solana"
	"solana-whale-tracker/internal/storage"
)

// Defaults.
const (
	DefaultSignatureLimit = 10
	DefaultCallTimeout    = 20 * time.Second
)

// Notifier delivers an alert for a transfer event.
type Notifier interface {
	Dispatch(ctx context.Context, event domain.TransferEvent, wallet *domain.WalletInfo) error
}

// WalletResult summarizes one wallet scan.
type WalletResult struct {
	Address      string
	Listed       int // signatures returned by the ledger
	Skipped      int // already recorded
	Unavailable  int // fetch failed or transaction unknown
	Unparseable  int // balance snapshot could not be parsed
	Recorded     int // newly claimed signatures
	Events       int // transfer events in newly claimed signatures
	AlertsFailed int
}

// Scanner scans wallets one at a time.
type Scanner struct {
	rpc            solana.RPCClient
	signatures     storage.SignatureStore
	archive        storage.TransferArchive
	engine         *balance.Engine
	notifier       Notifier
	signatureLimit int
	callTimeout    time.Duration
	logger         *zap.Logger
}

// Options contains configuration for creating a Scanner.
type Options struct {
	RPC            solana.RPCClient
	Signatures     storage.SignatureStore
	Archive        storage.TransferArchive // optional
	Engine         *balance.Engine
	Notifier       Notifier
	SignatureLimit int           // Default: 10
	CallTimeout    time.Duration // Default: 20s, bounds each ledger call
	Logger         *zap.Logger
}

// New creates a new Scanner.
func New(opts Options) *Scanner {
	limit := opts.SignatureLimit
	if limit <= 0 {
		limit = DefaultSignatureLimit
	}

	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scanner{
		rpc:            opts.RPC,
		signatures:     opts.Signatures,
		archive:        opts.Archive,
		engine:         opts.Engine,
		notifier:       opts.Notifier,
		signatureLimit: limit,
		callTimeout:    callTimeout,
		logger:         logger,
	}
}

// ScanWallet processes the newest signatures of a wallet.
// It returns an error wrapping domain.ErrLedgerUnavailable when the signature list
// cannot be fetched and domain.ErrStoreUnavailable when the ledger of processed
// signatures fails; both abort this wallet only. Per-signature fetch and parse
// failures are logged and counted in the result.
func (s *Scanner) ScanWallet(ctx context.Context, wallet *domain.WalletInfo) (*WalletResult, error) {
	result := &WalletResult{Address: wallet.Address}
	logger := s.logger.With(zap.String("wallet", wallet.Address))

	sigs, err := s.listSignatures(ctx, wallet.Address)
	if err != nil {
		return result, fmt.Errorf("list signatures of %s: %w: %w", wallet.Address, domain.ErrLedgerUnavailable, err)
	}
	result.Listed = len(sigs)

	for _, sig := range sigs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		seen, err := s.signatures.Exists(ctx, sig.Signature)
		if err != nil {
			return result, fmt.Errorf("check signature %s: %w: %w", sig.Signature, domain.ErrStoreUnavailable, err)
		}
		if seen {
			result.Skipped++
			observability.RecordSignature("skipped")
			continue
		}

		tx, err := s.fetchTransaction(ctx, sig.Signature)
		if err != nil || tx == nil || tx.Meta == nil {
			result.Unavailable++
			observability.RecordSignature("unavailable")
			logger.Warn("transaction unavailable, retrying next cycle",
				zap.String("signature", sig.Signature), zap.Error(err))
			continue
		}

		events, err := s.engine.Diff(wallet.Address, tx)
		if err != nil {
			result.Unparseable++
			observability.RecordSignature("unparseable")
			logger.Warn("cannot diff token balances",
				zap.String("signature", sig.Signature), zap.Error(err))
			continue
		}

		claimed, err := s.signatures.Record(ctx, processedRecord(wallet.Address, sig.Signature, events))
		if err != nil {
			return result, fmt.Errorf("record signature %s: %w: %w", sig.Signature, domain.ErrStoreUnavailable, err)
		}
		if !claimed {
			// Another cycle recorded it between Exists and Record.
			result.Skipped++
			observability.RecordSignature("skipped")
			continue
		}
		result.Recorded++

		if len(events) == 0 {
			observability.RecordSignature("no_transfer")
			continue
		}
		observability.RecordSignature("transfer")
		result.Events += len(events)

		s.archiveEvents(ctx, events)

		for _, ev := range events {
			observability.RecordTransfer(ev.Direction.String())
			logger.Info("transfer detected",
				zap.String("signature", ev.Signature),
				zap.String("direction", ev.Direction.String()),
				zap.String("amount", ev.Amount.String()))

			if err := s.notifier.Dispatch(ctx, ev, wallet); err != nil {
				result.AlertsFailed++
				logger.Warn("alert not delivered", zap.String("signature", ev.Signature), zap.Error(err))
			}
		}
	}

	return result, nil
}

func (s *Scanner) listSignatures(ctx context.Context, address string) ([]solana.SignatureInfo, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.rpc.GetSignaturesForAddress(callCtx, address, &solana.SignaturesOpts{Limit: s.signatureLimit})
}

func (s *Scanner) fetchTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	tx, err := s.rpc.GetTransaction(callCtx, signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerUnavailable, err)
	}
	return tx, nil
}

// archiveEvents copies events to the analytics archive. Failures never affect alerting.
func (s *Scanner) archiveEvents(ctx context.Context, events []domain.TransferEvent) {
	if s.archive == nil {
		return
	}

	batch := make([]*domain.TransferEvent, len(events))
	for i := range events {
		batch[i] = &events[i]
	}
	if err := s.archive.InsertBulk(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("archive transfer events", zap.String("signature", events[0].Signature), zap.Error(err))
	}
}

// processedRecord builds the ledger row of a signature.
// A signature without events is recorded with no direction.
func processedRecord(walletAddress, signature string, events []domain.TransferEvent) *domain.ProcessedSignature {
	rec := &domain.ProcessedSignature{
		Signature:     signature,
		WalletAddress: walletAddress,
		ObservedAt:    time.Now().UTC(),
	}
	if len(events) > 0 {
		rec.Direction = events[0].Direction
		rec.Amount = events[0].Amount
	}
	return rec
}
