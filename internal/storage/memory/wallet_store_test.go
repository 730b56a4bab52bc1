package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/storage"
)

func strPtr(s string) *string { return &s }

func TestWalletStore_InsertFirstWins(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	inserted, err := store.Insert(ctx, &domain.Wallet{Address: "addr1", Label: strPtr("first")})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to succeed")
	}

	inserted, err = store.Insert(ctx, &domain.Wallet{Address: "addr1", Label: strPtr("second")})
	if err != nil {
		t.Fatalf("second Insert failed: %v", err)
	}
	if inserted {
		t.Error("expected second insert to be a no-op")
	}

	got, err := store.Get(ctx, "addr1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Label == nil || *got.Label != "first" {
		t.Errorf("label mismatch: got %v, want first", got.Label)
	}

	count, _ := store.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 wallet, got %d", count)
	}
}

func TestWalletStore_InvalidInput(t *testing.T) {
	store := NewWalletStore()

	_, err := store.Insert(context.Background(), &domain.Wallet{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWalletStore_UpsertExchangeKeepsCluster(t *testing.T) {
	reg := NewRegistry()
	wallets, clusters := reg.Wallets(), reg.Clusters()
	ctx := context.Background()

	c, err := clusters.Create(ctx, "whales")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := wallets.Insert(ctx, &domain.Wallet{Address: "addr1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := wallets.AssignCluster(ctx, "addr1", c.ID); err != nil {
		t.Fatalf("AssignCluster failed: %v", err)
	}

	if err := wallets.UpsertExchange(ctx, "addr1", "Binance"); err != nil {
		t.Fatalf("UpsertExchange failed: %v", err)
	}

	got, err := wallets.Get(ctx, "addr1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsExchange {
		t.Error("expected exchange flag")
	}
	if got.Label == nil || *got.Label != "Binance" {
		t.Errorf("label mismatch: got %v", got.Label)
	}
	if got.ClusterName == nil || *got.ClusterName != "whales" {
		t.Errorf("cluster lost after exchange upsert: %v", got.ClusterName)
	}

	// Unknown address is inserted
	if err := wallets.UpsertExchange(ctx, "addr2", "Kraken"); err != nil {
		t.Fatalf("UpsertExchange new failed: %v", err)
	}
	count, _ := wallets.Count(ctx)
	if count != 2 {
		t.Errorf("expected 2 wallets, got %d", count)
	}
}

func TestWalletStore_AssignClusterNotFound(t *testing.T) {
	store := NewWalletStore()

	err := store.AssignCluster(context.Background(), "missing", 1)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWalletStore_Delete(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, &domain.Wallet{Address: "addr1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Delete(ctx, "addr1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "addr1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.Get(ctx, "addr1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on get, got %v", err)
	}
}

func TestWalletStore_ListOrderedByCreation(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	for _, addr := range []string{"c", "a", "b"} {
		if _, err := store.Insert(ctx, &domain.Wallet{Address: addr}); err != nil {
			t.Fatalf("Insert %s failed: %v", addr, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 wallets, got %d", len(list))
	}
	want := []string{"c", "a", "b"}
	for i, w := range list {
		if w.Address != want[i] {
			t.Errorf("position %d: got %s, want %s", i, w.Address, want[i])
		}
	}
}

func TestWalletStore_GetReturnsCopy(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, &domain.Wallet{Address: "addr1", Label: strPtr("orig")}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.Get(ctx, "addr1")
	*got.Label = "mutated"

	again, _ := store.Get(ctx, "addr1")
	if *again.Label != "orig" {
		t.Errorf("store state mutated through returned value: %s", *again.Label)
	}
}

func TestWalletStore_ConcurrentInsert(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := store.Insert(ctx, &domain.Wallet{Address: "same"})
			if err != nil {
				t.Errorf("Insert failed: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning insert, got %d", wins)
	}
}
