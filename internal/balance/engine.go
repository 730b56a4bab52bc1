// Package balance turns token balance snapshots of a transaction into transfer events.
package balance

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/solana"
)

// DefaultDustThreshold is the smallest balance change reported, in token units.
var DefaultDustThreshold = decimal.RequireFromString("0.01")

// ErrInvalidAmount is returned when a snapshot amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid token amount")

// Engine computes per-account balance deltas of one mint.
// It holds no state and is safe for concurrent use.
type Engine struct {
	mint          string
	dustThreshold decimal.Decimal
}

// NewEngine creates an engine for mint. A non-positive threshold falls back to the default.
func NewEngine(mint string, dustThreshold decimal.Decimal) *Engine {
	if !dustThreshold.IsPositive() {
		dustThreshold = DefaultDustThreshold
	}
	return &Engine{mint: mint, dustThreshold: dustThreshold}
}

// Mint returns the tracked mint.
func (e *Engine) Mint() string {
	return e.mint
}

// DustThreshold returns the minimum reported change.
func (e *Engine) DustThreshold() decimal.Decimal {
	return e.dustThreshold
}

// Diff returns one event per post-snapshot account of the tracked mint whose balance
// moved by at least the dust threshold, in post-snapshot order.
// An account with no pre entry is diffed against zero.
func (e *Engine) Diff(walletAddress string, tx *solana.Transaction) ([]domain.TransferEvent, error) {
	if tx == nil || tx.Meta == nil {
		return nil, nil
	}

	pre := make(map[int]decimal.Decimal, len(tx.Meta.PreTokenBalances))
	for _, b := range tx.Meta.PreTokenBalances {
		if b.Mint != e.mint {
			continue
		}
		amount, err := ParseAmount(b)
		if err != nil {
			return nil, fmt.Errorf("pre balance of account %d: %w", b.AccountIndex, err)
		}
		pre[b.AccountIndex] = amount
	}

	var events []domain.TransferEvent
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != e.mint {
			continue
		}
		post, err := ParseAmount(b)
		if err != nil {
			return nil, fmt.Errorf("post balance of account %d: %w", b.AccountIndex, err)
		}

		delta := post.Sub(pre[b.AccountIndex])
		if delta.Abs().LessThan(e.dustThreshold) {
			continue
		}

		direction := domain.DirectionReceive
		if delta.IsNegative() {
			direction = domain.DirectionSend
		}

		events = append(events, domain.TransferEvent{
			WalletAddress: walletAddress,
			Signature:     tx.Signature,
			AccountIndex:  b.AccountIndex,
			Owner:         b.Owner,
			Direction:     direction,
			Amount:        delta.Abs(),
			Slot:          tx.Slot,
			BlockTime:     tx.BlockTime,
		})
	}

	return events, nil
}

// ParseAmount returns the token-unit amount of a balance entry.
// The node's decimal string is preferred; otherwise the raw amount is scaled by decimals.
func ParseAmount(b solana.TokenBalance) (decimal.Decimal, error) {
	if b.UIAmountString != "" {
		d, err := decimal.NewFromString(b.UIAmountString)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, b.UIAmountString)
		}
		return d, nil
	}

	if b.Amount == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	raw, err := decimal.NewFromString(b.Amount)
	if err != nil || !raw.Equal(raw.Truncate(0)) {
		return decimal.Zero, fmt.Errorf("%w: raw %q", ErrInvalidAmount, b.Amount)
	}
	if b.Decimals < 0 {
		return decimal.Zero, fmt.Errorf("%w: decimals %d", ErrInvalidAmount, b.Decimals)
	}
	return raw.Shift(int32(-b.Decimals)), nil
}
