package domain

import "time"

// Wallet is a tracked address.
// Corresponds to wallets table in PostgreSQL.
type Wallet struct {
	ID         int64
	Address    string  // base58 public key, unique
	Label      *string // nullable
	ClusterID  *int64  // nullable, weak reference to clusters.id
	IsExchange bool
	CreatedAt  time.Time
}

// WalletInfo is a wallet joined with the name of its cluster.
type WalletInfo struct {
	Wallet
	ClusterName *string // nil when the wallet has no cluster
}

// DisplayName returns the label, or the shortened address when no label is set.
func (w *Wallet) DisplayName() string {
	if w.Label != nil && *w.Label != "" {
		return *w.Label
	}
	return ShortAddress(w.Address)
}

// ShortAddress formats an address as its first and last four characters.
func ShortAddress(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
