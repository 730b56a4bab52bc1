package memory

import (
	"sync"

	"solana-whale-tracker/internal/domain"
)

// Registry holds wallets and clusters behind one lock so that joins
// (wallet -> cluster name, cluster -> wallet count) stay consistent.
type Registry struct {
	mu            sync.RWMutex
	wallets       map[string]*domain.Wallet // keyed by address
	clusters      map[int64]*domain.Cluster // keyed by id
	nextWalletID  int64
	nextClusterID int64
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{
		wallets:  make(map[string]*domain.Wallet),
		clusters: make(map[int64]*domain.Cluster),
	}
}

// Wallets returns a storage.WalletStore view of the registry.
func (r *Registry) Wallets() *WalletStore {
	return &WalletStore{r: r}
}

// Clusters returns a storage.ClusterStore view of the registry.
func (r *Registry) Clusters() *ClusterStore {
	return &ClusterStore{r: r}
}

// walletInfo copies a wallet and joins its cluster name. Caller holds r.mu.
func (r *Registry) walletInfo(w *domain.Wallet) *domain.WalletInfo {
	info := &domain.WalletInfo{Wallet: *w}
	if w.Label != nil {
		label := *w.Label
		info.Label = &label
	}
	if w.ClusterID != nil {
		id := *w.ClusterID
		info.ClusterID = &id
		if c, ok := r.clusters[id]; ok {
			name := c.Name
			info.ClusterName = &name
		}
	}
	return info
}
