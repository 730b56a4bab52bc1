package storage

import (
	"context"
	"errors"
	"time"

	"solana-whale-tracker/internal/domain"
)

// Sentinel outcomes every store maps its backend errors onto.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key") // unique name or signature already present
	ErrInvalidInput = errors.New("invalid input") // rejected before or by a constraint
)

// IsExpected reports whether err is one of the sentinel outcomes above, as
// opposed to the backend being unreachable or failing.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrInvalidInput)
}

// WalletStore provides access to wallets storage.
type WalletStore interface {
	// Insert adds a wallet if its address is not tracked yet.
	// Returns inserted=false without error when the address already exists (first insert wins).
	Insert(ctx context.Context, w *domain.Wallet) (bool, error)

	// UpsertExchange inserts the address as an exchange wallet, or flags an existing
	// wallet as exchange and replaces its label. Cluster assignment is preserved.
	UpsertExchange(ctx context.Context, address, label string) error

	// AssignCluster sets the cluster of a wallet. Returns ErrNotFound if the wallet does not exist.
	AssignCluster(ctx context.Context, address string, clusterID int64) error

	// Delete removes a wallet. Returns ErrNotFound if the wallet does not exist.
	Delete(ctx context.Context, address string) error

	// Get retrieves a wallet with its cluster name. Returns ErrNotFound if not exists.
	Get(ctx context.Context, address string) (*domain.WalletInfo, error)

	// List retrieves all wallets with cluster names, ordered by creation.
	List(ctx context.Context) ([]*domain.WalletInfo, error)

	// Count returns the number of tracked wallets.
	Count(ctx context.Context) (int, error)
}

// ClusterStore provides access to clusters storage.
type ClusterStore interface {
	// Create adds a new cluster. Returns ErrDuplicateKey if the name exists.
	Create(ctx context.Context, name string) (*domain.Cluster, error)

	// GetByName retrieves a cluster by name. Returns ErrNotFound if not exists.
	GetByName(ctx context.Context, name string) (*domain.Cluster, error)

	// List retrieves all clusters with wallet counts, ordered by creation.
	List(ctx context.Context) ([]*domain.ClusterSummary, error)

	// Delete removes a cluster; wallets referencing it fall back to no cluster.
	// Returns ErrNotFound if not exists.
	Delete(ctx context.Context, name string) error

	// Count returns the number of clusters.
	Count(ctx context.Context) (int, error)
}

// SignatureStore provides access to the processed signature ledger (transactions table).
// The ledger is append-only: records are never updated or deleted.
type SignatureStore interface {
	// Exists reports whether the signature has been recorded.
	Exists(ctx context.Context, signature string) (bool, error)

	// Record inserts the signature if absent. Returns inserted=false without error
	// when another writer recorded it first.
	Record(ctx context.Context, p *domain.ProcessedSignature) (bool, error)

	// Count returns the number of recorded signatures.
	Count(ctx context.Context) (int, error)

	// CountTransfers returns the number of recorded signatures that produced a transfer.
	CountTransfers(ctx context.Context) (int, error)

	// RecentByWallet returns the latest transfer records of a wallet, newest first.
	RecentByWallet(ctx context.Context, address string, limit int) ([]*domain.ProcessedSignature, error)
}

// SettingsStore provides access to process-wide settings.
type SettingsStore interface {
	// GetRecipient returns the registered alert chat id. Returns ErrNotFound if unset.
	GetRecipient(ctx context.Context) (int64, error)

	// SetRecipient registers the alert chat id, replacing any previous value.
	SetRecipient(ctx context.Context, chatID int64) error
}

// TransferArchive stores every detected transfer for later analysis.
type TransferArchive interface {
	// InsertBulk appends events. Re-inserting the same (signature, account_index) is harmless.
	InsertBulk(ctx context.Context, events []*domain.TransferEvent) error

	// Summary aggregates transfers of a wallet with block time >= since.
	Summary(ctx context.Context, address string, since time.Time) (*domain.TransferSummary, error)
}
