package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

// SignatureStore is an in-memory implementation of storage.SignatureStore.
type SignatureStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ProcessedSignature // keyed by signature
	seq     map[string]int64                      // insertion order, breaks ObservedAt ties
	next    int64
}

// NewSignatureStore creates a new in-memory signature store.
func NewSignatureStore() *SignatureStore {
	return &SignatureStore{
		records: make(map[string]*domain.ProcessedSignature),
		seq:     make(map[string]int64),
	}
}

// Exists reports whether the signature has been recorded.
func (s *SignatureStore) Exists(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.records[signature]
	return exists, nil
}

// Record inserts the signature if absent.
func (s *SignatureStore) Record(_ context.Context, p *domain.ProcessedSignature) (bool, error) {
	if p == nil || p.Signature == "" || p.WalletAddress == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[p.Signature]; exists {
		return false, nil
	}

	recordCopy := *p
	if recordCopy.ObservedAt.IsZero() {
		recordCopy.ObservedAt = time.Now().UTC()
	}
	s.next++
	s.records[p.Signature] = &recordCopy
	s.seq[p.Signature] = s.next
	return true, nil
}

// Count returns the number of recorded signatures.
func (s *SignatureStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// CountTransfers returns the number of recorded signatures that produced a transfer.
func (s *SignatureStore) CountTransfers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.HasTransfer() {
			n++
		}
	}
	return n, nil
}

// RecentByWallet returns the latest transfer records of a wallet, newest first.
func (s *SignatureStore) RecentByWallet(_ context.Context, address string, limit int) ([]*domain.ProcessedSignature, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ProcessedSignature
	for _, r := range s.records {
		if r.WalletAddress != address || !r.HasTransfer() {
			continue
		}
		recordCopy := *r
		result = append(result, &recordCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].ObservedAt.Equal(result[j].ObservedAt) {
			return result[i].ObservedAt.After(result[j].ObservedAt)
		}
		return s.seq[result[i].Signature] > s.seq[result[j].Signature]
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.SignatureStore = (*SignatureStore)(nil)
