package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `
	w.id, w.address, w.label, w.cluster_id, w.is_exchange, w.created_at, c.name
`

// Insert adds a wallet if its address is not tracked yet.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) (inserted bool, err error) {
	if w == nil || w.Address == "" {
		return false, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("wallets.insert", start, err) }(time.Now())

	query := `
		INSERT INTO wallets (address, label, cluster_id, is_exchange)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, w.Address, w.Label, w.ClusterID, w.IsExchange)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return false, storage.ErrInvalidInput
		}
		return false, fmt.Errorf("insert wallet: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertExchange inserts the address as an exchange wallet or flags an existing one.
func (s *WalletStore) UpsertExchange(ctx context.Context, address, label string) (err error) {
	if address == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("wallets.upsert_exchange", start, err) }(time.Now())

	query := `
		INSERT INTO wallets (address, label, is_exchange)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (address) DO UPDATE
		SET label = EXCLUDED.label,
		    is_exchange = TRUE
	`

	if _, err := s.pool.Exec(ctx, query, address, label); err != nil {
		return fmt.Errorf("upsert exchange wallet: %w", err)
	}
	return nil
}

// AssignCluster sets the cluster of a wallet.
func (s *WalletStore) AssignCluster(ctx context.Context, address string, clusterID int64) (err error) {
	defer func(start time.Time) { observe("wallets.assign_cluster", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `UPDATE wallets SET cluster_id = $2 WHERE address = $1`, address, clusterID)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return storage.ErrInvalidInput
		}
		return fmt.Errorf("assign cluster: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a wallet.
func (s *WalletStore) Delete(ctx context.Context, address string) (err error) {
	defer func(start time.Time) { observe("wallets.delete", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE address = $1`, address)
	if err != nil {
		return fmt.Errorf("delete wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Get retrieves a wallet with its cluster name.
func (s *WalletStore) Get(ctx context.Context, address string) (info *domain.WalletInfo, err error) {
	defer func(start time.Time) { observe("wallets.get", start, err) }(time.Now())

	query := `SELECT` + walletColumns + `
		FROM wallets w
		LEFT JOIN clusters c ON c.id = w.cluster_id
		WHERE w.address = $1
	`

	info, err = scanWallet(s.pool.QueryRow(ctx, query, address))
	if err != nil {
		if noRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return info, nil
}

// List retrieves all wallets ordered by creation.
func (s *WalletStore) List(ctx context.Context) (result []*domain.WalletInfo, err error) {
	defer func(start time.Time) { observe("wallets.list", start, err) }(time.Now())

	query := `SELECT` + walletColumns + `
		FROM wallets w
		LEFT JOIN clusters c ON c.id = w.cluster_id
		ORDER BY w.id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		info, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}
	return result, nil
}

// Count returns the number of tracked wallets.
func (s *WalletStore) Count(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { observe("wallets.count", start, err) }(time.Now())

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count wallets: %w", err)
	}
	return n, nil
}

// scanWallet scans a single row into WalletInfo.
func scanWallet(row pgx.Row) (*domain.WalletInfo, error) {
	var info domain.WalletInfo

	err := row.Scan(
		&info.ID,
		&info.Address,
		&info.Label,
		&info.ClusterID,
		&info.IsExchange,
		&info.CreatedAt,
		&info.ClusterName,
	)
	if err != nil {
		return nil, err
	}

	return &info, nil
}
