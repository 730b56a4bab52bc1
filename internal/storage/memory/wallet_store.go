package memory

import (
	"context"
	"sort"
	"time"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	r *Registry
}

// NewWalletStore creates a wallet store backed by its own registry.
func NewWalletStore() *WalletStore {
	return NewRegistry().Wallets()
}

// Insert adds a wallet if its address is not tracked yet.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) (bool, error) {
	if w == nil || w.Address == "" {
		return false, storage.ErrInvalidInput
	}

	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	if _, exists := s.r.wallets[w.Address]; exists {
		return false, nil
	}

	walletCopy := *w
	if w.Label != nil {
		label := *w.Label
		walletCopy.Label = &label
	}
	if w.ClusterID != nil {
		if _, ok := s.r.clusters[*w.ClusterID]; !ok {
			return false, storage.ErrInvalidInput
		}
		id := *w.ClusterID
		walletCopy.ClusterID = &id
	}
	s.r.nextWalletID++
	walletCopy.ID = s.r.nextWalletID
	if walletCopy.CreatedAt.IsZero() {
		walletCopy.CreatedAt = time.Now().UTC()
	}
	s.r.wallets[w.Address] = &walletCopy
	return true, nil
}

// UpsertExchange inserts the address as an exchange wallet or flags an existing one.
func (s *WalletStore) UpsertExchange(_ context.Context, address, label string) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	w, exists := s.r.wallets[address]
	if !exists {
		s.r.nextWalletID++
		w = &domain.Wallet{
			ID:        s.r.nextWalletID,
			Address:   address,
			CreatedAt: time.Now().UTC(),
		}
		s.r.wallets[address] = w
	}
	w.Label = &label
	w.IsExchange = true
	return nil
}

// AssignCluster sets the cluster of a wallet.
func (s *WalletStore) AssignCluster(_ context.Context, address string, clusterID int64) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	w, exists := s.r.wallets[address]
	if !exists {
		return storage.ErrNotFound
	}
	if _, ok := s.r.clusters[clusterID]; !ok {
		return storage.ErrInvalidInput
	}
	w.ClusterID = &clusterID
	return nil
}

// Delete removes a wallet.
func (s *WalletStore) Delete(_ context.Context, address string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	if _, exists := s.r.wallets[address]; !exists {
		return storage.ErrNotFound
	}
	delete(s.r.wallets, address)
	return nil
}

// Get retrieves a wallet with its cluster name.
func (s *WalletStore) Get(_ context.Context, address string) (*domain.WalletInfo, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	w, exists := s.r.wallets[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return s.r.walletInfo(w), nil
}

// List retrieves all wallets ordered by creation.
func (s *WalletStore) List(_ context.Context) ([]*domain.WalletInfo, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	result := make([]*domain.WalletInfo, 0, len(s.r.wallets))
	for _, w := range s.r.wallets {
		result = append(result, s.r.walletInfo(w))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Count returns the number of tracked wallets.
func (s *WalletStore) Count(_ context.Context) (int, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	return len(s.r.wallets), nil
}

var _ storage.WalletStore = (*WalletStore)(nil)
