// Package management implements the wallet and cluster operations behind the
// command surface. Every address is validated before the store is touched.
package management

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/solana"
	"solana-whale-tracker/internal/storage"
)

// DefaultExchangeLabel is used by AddExchangeWallet when no label is given.
const DefaultExchangeLabel = "Exchange"

// History limits.
const (
	DefaultHistoryLimit = 5
	MaxHistoryLimit     = 50
)

var (
	// ErrEmptyName is returned when a cluster name is blank.
	ErrEmptyName = errors.New("name is required")

	// ErrArchiveDisabled is returned by Volume when no transfer archive is configured.
	ErrArchiveDisabled = errors.New("transfer archive not configured")
)

// Status holds the counters reported by the status command.
type Status struct {
	Wallets      int
	Clusters     int
	Transactions int // processed signatures
	Transfers    int // processed signatures that produced a transfer
	Recipient    bool
}

// AddResult describes the outcome of adding a wallet.
type AddResult struct {
	Address  string
	Label    string // display name
	Added    bool   // false when the address was already tracked
	OffCurve bool   // program-derived address, never signs transfers itself
}

// Service exposes management operations over the stores.
type Service struct {
	wallets    storage.WalletStore
	clusters   storage.ClusterStore
	signatures storage.SignatureStore
	settings   storage.SettingsStore
	archive    storage.TransferArchive
	logger     *zap.Logger
}

// Options contains configuration for creating a Service.
type Options struct {
	Wallets    storage.WalletStore
	Clusters   storage.ClusterStore
	Signatures storage.SignatureStore
	Settings   storage.SettingsStore
	Archive    storage.TransferArchive // optional
	Logger     *zap.Logger
}

// NewService creates a new management service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		wallets:    opts.Wallets,
		clusters:   opts.Clusters,
		signatures: opts.Signatures,
		settings:   opts.Settings,
		archive:    opts.Archive,
		logger:     logger,
	}
}

// ListWallets returns all tracked wallets with their cluster names.
func (s *Service) ListWallets(ctx context.Context) ([]*domain.WalletInfo, error) {
	wallets, err := s.wallets.List(ctx)
	if err != nil {
		return nil, storeErr("list wallets", err)
	}
	return wallets, nil
}

// ListClusters returns all clusters with wallet counts.
func (s *Service) ListClusters(ctx context.Context) ([]*domain.ClusterSummary, error) {
	clusters, err := s.clusters.List(ctx)
	if err != nil {
		return nil, storeErr("list clusters", err)
	}
	return clusters, nil
}

// AddWallet starts tracking an address. Adding a tracked address keeps the
// existing record and reports Added=false.
func (s *Service) AddWallet(ctx context.Context, address, label string) (*AddResult, error) {
	address = strings.TrimSpace(address)
	if err := solana.ValidateAddress(address); err != nil {
		return nil, err
	}

	w := &domain.Wallet{Address: address}
	if label = strings.TrimSpace(label); label != "" {
		w.Label = &label
	}

	added, err := s.wallets.Insert(ctx, w)
	if err != nil {
		return nil, storeErr("insert wallet", err)
	}

	onCurve, _ := solana.IsOnCurve(address)
	res := &AddResult{
		Address:  address,
		Label:    w.DisplayName(),
		Added:    added,
		OffCurve: !onCurve,
	}
	if !added {
		if existing, err := s.wallets.Get(ctx, address); err == nil {
			res.Label = existing.DisplayName()
		}
	}
	s.logger.Info("wallet added",
		zap.String("address", address),
		zap.Bool("new", added),
		zap.Bool("off_curve", res.OffCurve))
	return res, nil
}

// AddExchangeWallet tracks an address as an exchange wallet, or flags an
// already tracked one. The label defaults to "Exchange".
func (s *Service) AddExchangeWallet(ctx context.Context, address, label string) (string, error) {
	address = strings.TrimSpace(address)
	if err := solana.ValidateAddress(address); err != nil {
		return "", err
	}
	if label = strings.TrimSpace(label); label == "" {
		label = DefaultExchangeLabel
	}

	if err := s.wallets.UpsertExchange(ctx, address, label); err != nil {
		return "", storeErr("upsert exchange wallet", err)
	}
	s.logger.Info("exchange wallet added", zap.String("address", address), zap.String("label", label))
	return label, nil
}

// RemoveWallet stops tracking an address. Its processed signatures are kept.
func (s *Service) RemoveWallet(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if err := solana.ValidateAddress(address); err != nil {
		return err
	}

	err := s.wallets.Delete(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, address)
	}
	if err != nil {
		return storeErr("delete wallet", err)
	}
	s.logger.Info("wallet removed", zap.String("address", address))
	return nil
}

// CreateCluster creates a named cluster.
func (s *Service) CreateCluster(ctx context.Context, name string) (*domain.Cluster, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	c, err := s.clusters.Create(ctx, name)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateCluster, name)
	}
	if err != nil {
		return nil, storeErr("create cluster", err)
	}
	return c, nil
}

// DeleteCluster removes a cluster; its wallets are left without a cluster.
func (s *Service) DeleteCluster(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	err := s.clusters.Delete(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrClusterNotFound, name)
	}
	if err != nil {
		return storeErr("delete cluster", err)
	}
	return nil
}

// AssignCluster moves a wallet into a cluster. A missing cluster or wallet
// leaves the wallet unchanged.
func (s *Service) AssignCluster(ctx context.Context, address, clusterName string) error {
	address = strings.TrimSpace(address)
	if err := solana.ValidateAddress(address); err != nil {
		return err
	}
	clusterName = strings.TrimSpace(clusterName)

	c, err := s.clusters.GetByName(ctx, clusterName)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrClusterNotFound, clusterName)
	}
	if err != nil {
		return storeErr("get cluster", err)
	}

	err = s.wallets.AssignCluster(ctx, address, c.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, address)
	case errors.Is(err, storage.ErrInvalidInput):
		// cluster deleted between lookup and update
		return fmt.Errorf("%w: %s", domain.ErrClusterNotFound, clusterName)
	case err != nil:
		return storeErr("assign cluster", err)
	}
	return nil
}

// CountTransactions returns the number of processed signatures.
func (s *Service) CountTransactions(ctx context.Context) (int, error) {
	n, err := s.signatures.Count(ctx)
	if err != nil {
		return 0, storeErr("count transactions", err)
	}
	return n, nil
}

// Status collects store counters.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	var st Status
	var err error

	if st.Wallets, err = s.wallets.Count(ctx); err != nil {
		return nil, storeErr("count wallets", err)
	}
	if st.Clusters, err = s.clusters.Count(ctx); err != nil {
		return nil, storeErr("count clusters", err)
	}
	if st.Transactions, err = s.signatures.Count(ctx); err != nil {
		return nil, storeErr("count transactions", err)
	}
	if st.Transfers, err = s.signatures.CountTransfers(ctx); err != nil {
		return nil, storeErr("count transfers", err)
	}

	_, err = s.settings.GetRecipient(ctx)
	switch {
	case err == nil:
		st.Recipient = true
	case !errors.Is(err, storage.ErrNotFound):
		return nil, storeErr("read recipient", err)
	}
	return &st, nil
}

// Recipient returns the registered chat id and whether one is set.
func (s *Service) Recipient(ctx context.Context) (int64, bool, error) {
	chatID, err := s.settings.GetRecipient(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeErr("read recipient", err)
	}
	return chatID, true, nil
}

// RegisterRecipient makes chatID the alert recipient.
func (s *Service) RegisterRecipient(ctx context.Context, chatID int64) error {
	if err := s.settings.SetRecipient(ctx, chatID); err != nil {
		return storeErr("set recipient", err)
	}
	s.logger.Info("alert recipient registered", zap.Int64("chat_id", chatID))
	return nil
}

// History returns the latest transfers recorded for a tracked wallet, newest first.
// A non-positive limit uses DefaultHistoryLimit; larger limits are capped.
func (s *Service) History(ctx context.Context, address string, limit int) ([]*domain.ProcessedSignature, error) {
	address = strings.TrimSpace(address)
	if err := solana.ValidateAddress(address); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	if _, err := s.wallet(ctx, address); err != nil {
		return nil, err
	}

	records, err := s.signatures.RecentByWallet(ctx, address, limit)
	if err != nil {
		return nil, storeErr("recent transfers", err)
	}
	return records, nil
}

// Volume aggregates archived transfers of a tracked wallet since the given time.
func (s *Service) Volume(ctx context.Context, address string, since time.Time) (*domain.TransferSummary, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	address = strings.TrimSpace(address)
	if err := solana.ValidateAddress(address); err != nil {
		return nil, err
	}
	if _, err := s.wallet(ctx, address); err != nil {
		return nil, err
	}

	summary, err := s.archive.Summary(ctx, address, since)
	if err != nil {
		return nil, storeErr("transfer summary", err)
	}
	return summary, nil
}

func (s *Service) wallet(ctx context.Context, address string) (*domain.WalletInfo, error) {
	w, err := s.wallets.Get(ctx, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, address)
	}
	if err != nil {
		return nil, storeErr("get wallet", err)
	}
	return w, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
