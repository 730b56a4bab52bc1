package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

// ClusterStore implements storage.ClusterStore using PostgreSQL.
// wallets.cluster_id references clusters(id) ON DELETE SET NULL.
type ClusterStore struct {
	pool *Pool
}

// NewClusterStore creates a new ClusterStore.
func NewClusterStore(pool *Pool) *ClusterStore {
	return &ClusterStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ClusterStore = (*ClusterStore)(nil)

// Create adds a new cluster. Returns ErrDuplicateKey if the name exists.
func (s *ClusterStore) Create(ctx context.Context, name string) (c *domain.Cluster, err error) {
	if name == "" {
		return nil, storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("clusters.create", start, err) }(time.Now())

	var cluster domain.Cluster
	err = s.pool.QueryRow(ctx, `
		INSERT INTO clusters (name) VALUES ($1)
		RETURNING id, name, created_at
	`, name).Scan(&cluster.ID, &cluster.Name, &cluster.CreatedAt)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert cluster: %w", err)
	}
	return &cluster, nil
}

// GetByName retrieves a cluster by name.
func (s *ClusterStore) GetByName(ctx context.Context, name string) (c *domain.Cluster, err error) {
	defer func(start time.Time) { observe("clusters.get", start, err) }(time.Now())

	var cluster domain.Cluster
	err = s.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM clusters WHERE name = $1
	`, name).Scan(&cluster.ID, &cluster.Name, &cluster.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cluster by name: %w", err)
	}
	return &cluster, nil
}

// List retrieves all clusters with wallet counts, ordered by creation.
func (s *ClusterStore) List(ctx context.Context) (result []*domain.ClusterSummary, err error) {
	defer func(start time.Time) { observe("clusters.list", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.created_at, COUNT(w.id)
		FROM clusters c
		LEFT JOIN wallets w ON w.cluster_id = c.id
		GROUP BY c.id, c.name, c.created_at
		ORDER BY c.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cs domain.ClusterSummary
		if err := rows.Scan(&cs.ID, &cs.Name, &cs.CreatedAt, &cs.WalletCount); err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		result = append(result, &cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clusters: %w", err)
	}
	return result, nil
}

// Delete removes a cluster; the foreign key detaches its wallets.
func (s *ClusterStore) Delete(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { observe("clusters.delete", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM clusters WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Count returns the number of clusters.
func (s *ClusterStore) Count(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { observe("clusters.count", start, err) }(time.Now())

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clusters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clusters: %w", err)
	}
	return n, nil
}
