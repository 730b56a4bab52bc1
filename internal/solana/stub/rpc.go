package stub

import (
	"context"
	"errors"
	"sync"

	"solana-whale-tracker/internal/solana"
)

// ErrUnavailable is the default injected ledger failure.
var ErrUnavailable = errors.New("stub: ledger unavailable")

// RPCClient implements solana.RPCClient for testing.
// Unknown signatures return nil, matching a node that has not seen the transaction.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo

	// Injected failures keyed by address (listing) or signature (fetch).
	ListErrors  map[string]error
	FetchErrors map[string]error

	ListCalls  map[string]int
	FetchCalls map[string]int
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
		ListErrors:   make(map[string]error),
		FetchErrors:  make(map[string]error),
		ListCalls:    make(map[string]int),
		FetchCalls:   make(map[string]int),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.FetchCalls[signature]++
	if err := c.FetchErrors[signature]; err != nil {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ListCalls[address]++
	if err := c.ListErrors[address]; err != nil {
		return nil, err
	}

	sigs := c.Signatures[address]
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}
	out := make([]solana.SignatureInfo, len(sigs))
	copy(out, sigs)
	return out, nil
}

// AddTransaction adds a transaction and prepends its signature to the address list,
// keeping the newest-first order of the real node.
func (c *RPCClient) AddTransaction(address string, tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transactions[tx.Signature] = tx
	info := solana.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot}
	if tx.BlockTime != 0 {
		bt := tx.BlockTime
		info.BlockTime = &bt
	}
	c.Signatures[address] = append([]solana.SignatureInfo{info}, c.Signatures[address]...)
}

// AddSignatures sets the signature list of an address without transactions.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// FailList makes listing signatures of address fail with err (ErrUnavailable if nil).
func (c *RPCClient) FailList(address string, err error) {
	if err == nil {
		err = ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ListErrors[address] = err
}

// FailFetch makes fetching signature fail with err (ErrUnavailable if nil).
func (c *RPCClient) FailFetch(signature string, err error) {
	if err == nil {
		err = ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FetchErrors[signature] = err
}

// ListCount returns how many times the address was listed.
func (c *RPCClient) ListCount(address string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ListCalls[address]
}

// FetchCount returns how many times the signature was fetched.
func (c *RPCClient) FetchCount(signature string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.FetchCalls[signature]
}
