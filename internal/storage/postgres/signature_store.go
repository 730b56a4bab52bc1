package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

// SignatureStore implements storage.SignatureStore using PostgreSQL.
// transactions is append-only: no UPDATE or DELETE methods.
type SignatureStore struct {
	pool *Pool
}

// NewSignatureStore creates a new SignatureStore.
func NewSignatureStore(pool *Pool) *SignatureStore {
	return &SignatureStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignatureStore = (*SignatureStore)(nil)

// Exists reports whether the signature has been recorded.
func (s *SignatureStore) Exists(ctx context.Context, signature string) (exists bool, err error) {
	defer func(start time.Time) { observe("transactions.exists", start, err) }(time.Now())

	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE signature = $1)`
	if err := s.pool.QueryRow(ctx, query, signature).Scan(&exists); err != nil {
		return false, fmt.Errorf("check signature: %w", err)
	}
	return exists, nil
}

// Record inserts the signature if absent.
func (s *SignatureStore) Record(ctx context.Context, p *domain.ProcessedSignature) (inserted bool, err error) {
	if p == nil || p.Signature == "" || p.WalletAddress == "" {
		return false, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("transactions.record", start, err) }(time.Now())

	var txType, amount *string
	if p.HasTransfer() {
		d := p.Direction.String()
		a := p.Amount.String()
		txType, amount = &d, &a
	}
	var observedAt *time.Time
	if !p.ObservedAt.IsZero() {
		observedAt = &p.ObservedAt
	}

	query := `
		INSERT INTO transactions (signature, wallet_address, tx_type, amount, observed_at)
		VALUES ($1, $2, $3, $4::numeric, COALESCE($5::timestamptz, NOW()))
		ON CONFLICT (signature) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, p.Signature, p.WalletAddress, txType, amount, observedAt)
	if err != nil {
		return false, fmt.Errorf("record signature: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Count returns the number of recorded signatures.
func (s *SignatureStore) Count(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { observe("transactions.count", start, err) }(time.Now())

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count signatures: %w", err)
	}
	return n, nil
}

// CountTransfers returns the number of recorded signatures that produced a transfer.
func (s *SignatureStore) CountTransfers(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { observe("transactions.count_transfers", start, err) }(time.Now())

	query := `SELECT COUNT(*) FROM transactions WHERE tx_type IS NOT NULL`
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transfers: %w", err)
	}
	return n, nil
}

// RecentByWallet returns the latest transfer records of a wallet, newest first.
func (s *SignatureStore) RecentByWallet(ctx context.Context, address string, limit int) (result []*domain.ProcessedSignature, err error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("transactions.recent", start, err) }(time.Now())

	query := `
		SELECT signature, wallet_address, tx_type, amount::text, observed_at
		FROM transactions
		WHERE wallet_address = $1 AND tx_type IS NOT NULL
		ORDER BY observed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent signatures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      domain.ProcessedSignature
			txType string
			amount string
		)
		if err := rows.Scan(&p.Signature, &p.WalletAddress, &txType, &amount, &p.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		p.Direction = domain.Direction(txType)
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signatures: %w", err)
	}
	return result, nil
}
