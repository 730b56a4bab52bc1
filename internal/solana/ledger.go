// Package solana talks to a Solana node: JSON-RPC over HTTP for signatures and
// transactions, and a logs subscription over WebSocket for early wake-ups.
package solana

import "context"

// RPCClient is the read-only ledger surface the scanner needs.
type RPCClient interface {
	// GetSignaturesForAddress lists signatures touching address, newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetTransaction fetches one transaction. A (nil, nil) result means the
	// node does not have it yet.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// SignaturesOpts narrows a signature listing. Zero values are omitted.
type SignaturesOpts struct {
	Limit  int
	Before string // exclusive upper bound, newest-first pagination
	Until  string // exclusive lower bound
}

// SignatureInfo is one row of a signature listing.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64      // nil when the node did not record it
	Err       interface{} // non-nil for failed transactions
}

// Transaction is the subset of a confirmed transaction the tracker reads.
type Transaction struct {
	Signature string
	Slot      int64
	BlockTime int64 // unix seconds, 0 when unknown
	Meta      *TransactionMeta
}

// TransactionMeta carries execution status and token balance snapshots.
type TransactionMeta struct {
	Err               interface{}
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// Failed is true when the transaction executed with an error.
func (m *TransactionMeta) Failed() bool {
	return m != nil && m.Err != nil
}

// TokenBalance is the SPL token balance of one account at one point of a transaction.
type TokenBalance struct {
	AccountIndex int    // position in the message account keys
	Mint         string
	Owner        string // empty on transactions older than owner tracking
	Decimals     int

	// Amount is the integer balance in base units. UIAmountString is the same
	// value scaled by Decimals, as rendered by the node.
	Amount         string
	UIAmountString string
}
