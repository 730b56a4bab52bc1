package domain

import "errors"

// Error taxonomy shared by the engine and the management surface.
var (
	// ErrLedgerUnavailable is returned when the Solana RPC fails or times out.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrInvalidAddress is returned when an address is not a base58 32-byte public key.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrDuplicateCluster is returned when a cluster name is already taken.
	ErrDuplicateCluster = errors.New("cluster already exists")

	// ErrClusterNotFound is returned when a cluster name does not exist.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrWalletNotFound is returned when an address is not tracked.
	ErrWalletNotFound = errors.New("wallet not tracked")

	// ErrDeliveryFailed is returned when the alert channel rejects a message.
	ErrDeliveryFailed = errors.New("alert delivery failed")

	// ErrStoreUnavailable is returned when persistence fails.
	ErrStoreUnavailable = errors.New("store unavailable")
)
