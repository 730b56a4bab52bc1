package domain

import "time"

// Cluster is a named group of wallets used for reporting.
// Corresponds to clusters table in PostgreSQL.
type Cluster struct {
	ID        int64
	Name      string // unique
	CreatedAt time.Time
}

// ClusterSummary is a cluster with the number of wallets assigned to it.
type ClusterSummary struct {
	Cluster
	WalletCount int
}
