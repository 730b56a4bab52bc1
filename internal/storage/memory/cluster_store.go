package memory

import (
	"context"
	"sort"
	"time"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

// ClusterStore is an in-memory implementation of storage.ClusterStore.
type ClusterStore struct {
	r *Registry
}

// Create adds a new cluster. Returns ErrDuplicateKey if the name exists.
func (s *ClusterStore) Create(_ context.Context, name string) (*domain.Cluster, error) {
	if name == "" {
		return nil, storage.ErrInvalidInput
	}

	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	if s.findByName(name) != nil {
		return nil, storage.ErrDuplicateKey
	}

	s.r.nextClusterID++
	c := &domain.Cluster{
		ID:        s.r.nextClusterID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.r.clusters[c.ID] = c

	clusterCopy := *c
	return &clusterCopy, nil
}

// GetByName retrieves a cluster by name.
func (s *ClusterStore) GetByName(_ context.Context, name string) (*domain.Cluster, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	c := s.findByName(name)
	if c == nil {
		return nil, storage.ErrNotFound
	}
	clusterCopy := *c
	return &clusterCopy, nil
}

// List retrieves all clusters with wallet counts, ordered by creation.
func (s *ClusterStore) List(_ context.Context) ([]*domain.ClusterSummary, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()

	counts := make(map[int64]int)
	for _, w := range s.r.wallets {
		if w.ClusterID != nil {
			counts[*w.ClusterID]++
		}
	}

	result := make([]*domain.ClusterSummary, 0, len(s.r.clusters))
	for id, c := range s.r.clusters {
		result = append(result, &domain.ClusterSummary{Cluster: *c, WalletCount: counts[id]})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Delete removes a cluster and detaches its wallets.
func (s *ClusterStore) Delete(_ context.Context, name string) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()

	c := s.findByName(name)
	if c == nil {
		return storage.ErrNotFound
	}
	for _, w := range s.r.wallets {
		if w.ClusterID != nil && *w.ClusterID == c.ID {
			w.ClusterID = nil
		}
	}
	delete(s.r.clusters, c.ID)
	return nil
}

// Count returns the number of clusters.
func (s *ClusterStore) Count(_ context.Context) (int, error) {
	s.r.mu.RLock()
	defer s.r.mu.RUnlock()
	return len(s.r.clusters), nil
}

// findByName scans clusters by name. Caller holds r.mu.
func (s *ClusterStore) findByName(name string) *domain.Cluster {
	for _, c := range s.r.clusters {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var _ storage.ClusterStore = (*ClusterStore)(nil)
