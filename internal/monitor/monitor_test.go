package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-whale-tracker/internal/balance"
	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/scanner"
	"solana-whale-tracker/internal/solana"
	"solana-whale-tracker/internal/solana/stub"
	"solana-whale-tracker/internal/storage/memory"
)

const (
	mint    = "3ag1Mj9AKz9FAkCQ6gAEhpLSX8B2pUbPdkb9iBsDLZNB"
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
)

type countingNotifier struct {
	mu     sync.Mutex
	events []domain.TransferEvent
}

func (n *countingNotifier) Dispatch(_ context.Context, ev domain.TransferEvent, _ *domain.WalletInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// blockingScanner parks every scan until released.
type blockingScanner struct {
	started chan string
	release chan struct{}
	mu      sync.Mutex
	scanned []string
}

func newBlockingScanner() *blockingScanner {
	return &blockingScanner{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (s *blockingScanner) ScanWallet(ctx context.Context, w *domain.WalletInfo) (*scanner.WalletResult, error) {
	s.started <- w.Address
	select {
	case <-s.release:
	case <-ctx.Done():
		return &scanner.WalletResult{Address: w.Address}, ctx.Err()
	}
	s.mu.Lock()
	s.scanned = append(s.scanned, w.Address)
	s.mu.Unlock()
	return &scanner.WalletResult{Address: w.Address}, nil
}

func transferTx(signature, pre, post string) *solana.Transaction {
	return &solana.Transaction{
		Signature: signature,
		Slot:      100,
		BlockTime: 1700000000,
		Meta: &solana.TransactionMeta{
			PreTokenBalances:  []solana.TokenBalance{{AccountIndex: 1, Mint: mint, UIAmountString: pre}},
			PostTokenBalances: []solana.TokenBalance{{AccountIndex: 1, Mint: mint, UIAmountString: post}},
		},
	}
}

func trackWallets(t *testing.T, wallets *memory.WalletStore, addresses ...string) {
	t.Helper()
	for _, addr := range addresses {
		_, err := wallets.Insert(context.Background(), &domain.Wallet{Address: addr})
		require.NoError(t, err)
	}
}

func TestRunCycle_WalletFailureDoesNotStopCycle(t *testing.T) {
	wallets := memory.NewWalletStore()
	trackWallets(t, wallets, walletA, walletB)

	rpc := stub.NewRPCClient()
	rpc.FailList(walletA, nil)
	rpc.AddTransaction(walletB, transferTx("sigB", "0", "2500"))

	notifier := &countingNotifier{}
	m := New(Options{
		Wallets: wallets,
		Scanner: scanner.New(scanner.Options{
			RPC:        rpc,
			Signatures: memory.NewSignatureStore(),
			Engine:     balance.NewEngine(mint, decimal.Zero),
			Notifier:   notifier,
		}),
		WalletPacing: -1,
	})

	res, err := m.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, CycleCompleted, res.Status)
	assert.Equal(t, 2, res.Wallets)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Events)
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, 1, rpc.ListCount(walletB))
	assert.Equal(t, StateIdle, m.State())

	last := m.LastCycle()
	require.NotNil(t, last)
	assert.Equal(t, SourceManual, last.Source)
}

func TestRunCycle_NoWallets(t *testing.T) {
	m := New(Options{Wallets: memory.NewWalletStore(), Scanner: newBlockingScanner()})

	res, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Wallets)
	assert.Equal(t, CycleCompleted, res.Status)
}

func TestRunCycle_RejectsReentry(t *testing.T) {
	wallets := memory.NewWalletStore()
	trackWallets(t, wallets, walletA)
	sc := newBlockingScanner()
	m := New(Options{Wallets: wallets, Scanner: sc, WalletPacing: -1})

	done := make(chan error, 1)
	go func() {
		_, err := m.RunCycle(context.Background())
		done <- err
	}()

	<-sc.started
	assert.Equal(t, StateScanning, m.State())

	_, err := m.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(sc.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, m.State())

	sc.mu.Lock()
	defer sc.mu.Unlock()
	assert.Equal(t, []string{walletA}, sc.scanned)
}

func TestRunCycle_CancelBetweenWallets(t *testing.T) {
	wallets := memory.NewWalletStore()
	trackWallets(t, wallets, walletA, walletB)
	sc := newBlockingScanner()
	m := New(Options{Wallets: wallets, Scanner: sc, WalletPacing: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *CycleResult, 1)
	go func() {
		res, _ := m.RunCycle(ctx)
		done <- res
	}()

	assert.Equal(t, walletA, <-sc.started)
	close(sc.release)
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, CycleCanceled, res.Status)
		assert.LessOrEqual(t, res.Scanned, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not stop after cancellation")
	}
	assert.Len(t, sc.started, 0, "second wallet must not be scanned")
}

type failingWalletStore struct {
	*memory.WalletStore
}

func (failingWalletStore) List(context.Context) ([]*domain.WalletInfo, error) {
	return nil, errors.New("connection refused")
}

func TestRunCycle_WalletListFailure(t *testing.T) {
	m := New(Options{
		Wallets: failingWalletStore{memory.NewWalletStore()},
		Scanner: newBlockingScanner(),
	})

	res, err := m.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, CycleFailed, res.Status)
	assert.Equal(t, StateIdle, m.State())
}

func TestTrigger_MinGap(t *testing.T) {
	m := New(Options{Wallets: memory.NewWalletStore(), Scanner: newBlockingScanner(), TriggerMinGap: time.Hour})

	assert.True(t, m.Trigger(SourceWebsocket))
	assert.False(t, m.Trigger(SourceWebsocket), "second trigger inside the gap is dropped")
}

func TestTrigger_DroppedWhileScanning(t *testing.T) {
	wallets := memory.NewWalletStore()
	trackWallets(t, wallets, walletA)
	sc := newBlockingScanner()
	m := New(Options{Wallets: wallets, Scanner: sc, WalletPacing: -1, TriggerMinGap: time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := m.RunCycle(context.Background())
		done <- err
	}()

	<-sc.started
	assert.False(t, m.Trigger(SourceWebsocket))
	assert.Empty(t, m.triggers)

	close(sc.release)
	require.NoError(t, <-done)
	assert.True(t, m.Trigger(SourceWebsocket), "idle monitor accepts wake-ups")
}

func TestDiscardTriggers(t *testing.T) {
	m := New(Options{Wallets: memory.NewWalletStore(), Scanner: newBlockingScanner()})

	m.triggers <- SourceWebsocket
	m.discardTriggers()
	assert.Empty(t, m.triggers)

	m.discardTriggers() // empty channel does not block
}

func TestRun_TriggerDuringStartupCycleIsNotQueued(t *testing.T) {
	wallets := memory.NewWalletStore()
	trackWallets(t, wallets, walletA)
	sc := newBlockingScanner()

	m := New(Options{
		Wallets:       wallets,
		Scanner:       sc,
		InitialDelay:  time.Millisecond,
		WalletPacing:  -1,
		TriggerMinGap: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-sc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("startup cycle did not start")
	}
	require.Equal(t, StateScanning, m.State())
	assert.False(t, m.Trigger(SourceWebsocket))

	close(sc.release)
	require.Eventually(t, func() bool {
		return m.State() == StateIdle && m.LastCycle() != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, SourceStartup, m.LastCycle().Source)

	assert.Never(t, func() bool { return len(sc.started) > 0 }, 200*time.Millisecond, 10*time.Millisecond,
		"no second cycle after the startup one")

	cancel()
	require.NoError(t, <-done)
}

func TestRun_StartupCycleAndShutdown(t *testing.T) {
	wallets := memory.NewWalletStore()
	trackWallets(t, wallets, walletA)
	rpc := stub.NewRPCClient()
	rpc.AddTransaction(walletA, transferTx("sig1", "100", "155"))
	notifier := &countingNotifier{}

	m := New(Options{
		Wallets: wallets,
		Scanner: scanner.New(scanner.Options{
			RPC:        rpc,
			Signatures: memory.NewSignatureStore(),
			Engine:     balance.NewEngine(mint, decimal.Zero),
			Notifier:   notifier,
		}),
		InitialDelay: 10 * time.Millisecond,
		WalletPacing: -1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.LastCycle() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, SourceStartup, m.LastCycle().Source)
	assert.Equal(t, 1, notifier.count())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRun_WebsocketTriggersCycle(t *testing.T) {
	wallets := memory.NewWalletStore()
	trackWallets(t, wallets, walletA)
	rpc := stub.NewRPCClient()
	ws := stub.NewWSClient()
	notifier := &countingNotifier{}

	m := New(Options{
		Wallets: wallets,
		Scanner: scanner.New(scanner.Options{
			RPC:        rpc,
			Signatures: memory.NewSignatureStore(),
			Engine:     balance.NewEngine(mint, decimal.Zero),
			Notifier:   notifier,
		}),
		WS:            ws,
		InitialDelay:  time.Millisecond,
		WalletPacing:  -1,
		TriggerMinGap: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// startup cycle subscribes the wallet
	require.Eventually(t, func() bool { return len(ws.Subscribed()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == StateIdle }, 5*time.Second, 10*time.Millisecond)

	rpc.AddTransaction(walletA, transferTx("sig-ws", "10", "20"))
	require.Eventually(t, func() bool {
		ws.Emit(walletA, solana.LogNotification{Signature: "sig-ws"})
		return notifier.count() == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, ws.Subscribed(), "shutdown drops subscriptions")
}
