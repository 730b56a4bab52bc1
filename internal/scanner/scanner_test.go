package scanner

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
	"solana-whale-tracker/internal/solana"
	"solana-whale-tracker/internal/solana/stub"
	"solana-whale-tracker/internal/storage/memory"
)

const (
	mint    = "3ag1Mj9AKz9FAkCQ6gAEhpLSX8B2pUbPdkb9iBsDLZNB"
	walletA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

// recordingNotifier captures dispatched events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.TransferEvent
	err    error
}

func (n *recordingNotifier) Dispatch(_ context.Context, ev domain.TransferEvent, _ *domain.WalletInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// failingSignatureStore fails every call.
type failingSignatureStore struct {
	*memory.SignatureStore
}

func (failingSignatureStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
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

type fixture struct {
	rpc        *stub.RPCClient
	signatures *memory.SignatureStore
	archive    *memory.TransferArchive
	notifier   *recordingNotifier
	scanner    *Scanner
	wallet     *domain.WalletInfo
}

func newFixture() *fixture {
	f := &fixture{
		rpc:        stub.NewRPCClient(),
		signatures: memory.NewSignatureStore(),
		archive:    memory.NewTransferArchive(),
		notifier:   &recordingNotifier{},
		wallet:     &domain.WalletInfo{Wallet: domain.Wallet{ID: 1, Address: walletA}},
	}
	f.scanner = New(Options{
		RPC:        f.rpc,
		Signatures: f.signatures,
		Archive:    f.archive,
		Engine:     balance.NewEngine(mint, decimal.Zero),
		Notifier:   f.notifier,
	})
	return f
}

func TestScanWallet_DetectsReceive(t *testing.T) {
	f := newFixture()
	f.rpc.AddTransaction(walletA, transferTx("sig1", "100.0", "155.0"))
	ctx := context.Background()

	result, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Listed)
	assert.Equal(t, 1, result.Recorded)
	assert.Equal(t, 1, result.Events)

	require.Equal(t, 1, f.notifier.count())
	ev := f.notifier.events[0]
	assert.Equal(t, domain.DirectionReceive, ev.Direction)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("55")))

	recent, err := f.signatures.RecentByWallet(ctx, walletA, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "sig1", recent[0].Signature)
	assert.Equal(t, domain.DirectionReceive, recent[0].Direction)

	summary, err := f.archive.Summary(ctx, walletA, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ReceiveCount)
}

func TestScanWallet_Idempotent(t *testing.T) {
	f := newFixture()
	f.rpc.AddTransaction(walletA, transferTx("sig1", "100", "155"))
	ctx := context.Background()

	_, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)

	result, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Recorded)
	assert.Equal(t, 1, f.notifier.count(), "second scan must not alert again")

	n, err := f.signatures.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.rpc.FetchCount("sig1"), "recorded signature must not be fetched again")
}

func TestScanWallet_LostClaimDoesNotAlert(t *testing.T) {
	f := newFixture()
	f.rpc.AddTransaction(walletA, transferTx("sig1", "100", "155"))
	ctx := context.Background()

	// Simulate a concurrent cycle that recorded the signature after our Exists check.
	racing := &racingSignatureStore{SignatureStore: f.signatures}
	f.scanner.signatures = racing

	result, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Recorded)
	assert.Equal(t, 0, f.notifier.count())
}

// racingSignatureStore reports signatures as unseen, then loses every claim.
type racingSignatureStore struct {
	*memory.SignatureStore
}

func (r *racingSignatureStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}

func (r *racingSignatureStore) Record(ctx context.Context, p *domain.ProcessedSignature) (bool, error) {
	if _, err := r.SignatureStore.Record(ctx, p); err != nil {
		return false, err
	}
	return false, nil
}

func TestScanWallet_DustIsRecordedWithoutAlert(t *testing.T) {
	f := newFixture()
	f.rpc.AddTransaction(walletA, transferTx("dust", "10.0", "10.005"))
	ctx := context.Background()

	result, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Recorded)
	assert.Equal(t, 0, result.Events)
	assert.Equal(t, 0, f.notifier.count())

	exists, err := f.signatures.Exists(ctx, "dust")
	require.NoError(t, err)
	assert.True(t, exists)

	transfers, err := f.signatures.CountTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, transfers)
}

func TestScanWallet_FetchFailureContinues(t *testing.T) {
	f := newFixture()
	f.rpc.AddTransaction(walletA, transferTx("good", "0", "20"))
	f.rpc.AddTransaction(walletA, transferTx("bad", "0", "30")) // newest
	f.rpc.FailFetch("bad", nil)
	ctx := context.Background()

	result, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Unavailable)
	assert.Equal(t, 1, result.Recorded)
	assert.Equal(t, 1, f.notifier.count())

	exists, err := f.signatures.Exists(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, exists, "unavailable signature must be retried next cycle")
}

func TestScanWallet_UnknownTransactionNotRecorded(t *testing.T) {
	f := newFixture()
	f.rpc.AddSignatures(walletA, []solana.SignatureInfo{{Signature: "ghost"}})

	result, err := f.scanner.ScanWallet(context.Background(), f.wallet)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unavailable)
	assert.Equal(t, 0, result.Recorded)
}

func TestScanWallet_UnparseableSkipped(t *testing.T) {
	f := newFixture()
	f.rpc.AddTransaction(walletA, transferTx("broken", "1", "not-a-number"))

	result, err := f.scanner.ScanWallet(context.Background(), f.wallet)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unparseable)
	assert.Equal(t, 0, result.Recorded)
}

func TestScanWallet_ListFailure(t *testing.T) {
	f := newFixture()
	f.rpc.FailList(walletA, nil)

	_, err := f.scanner.ScanWallet(context.Background(), f.wallet)
	assert.ErrorIs(t, err, domain.ErrLedgerUnavailable)
	assert.ErrorIs(t, err, stub.ErrUnavailable)
}

func TestScanWallet_StoreFailure(t *testing.T) {
	f := newFixture()
	f.rpc.AddTransaction(walletA, transferTx("sig1", "0", "20"))
	f.scanner.signatures = failingSignatureStore{memory.NewSignatureStore()}

	_, err := f.scanner.ScanWallet(context.Background(), f.wallet)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 0, f.notifier.count())
}

func TestScanWallet_DeliveryFailureStillRecorded(t *testing.T) {
	f := newFixture()
	f.notifier.err = domain.ErrDeliveryFailed
	f.rpc.AddTransaction(walletA, transferTx("sig1", "0", "20"))
	ctx := context.Background()

	result, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsFailed)

	exists, err := f.signatures.Exists(ctx, "sig1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestScanWallet_MultipleEventsOneRecord(t *testing.T) {
	f := newFixture()
	tx := &solana.Transaction{
		Signature: "multi",
		Meta: &solana.TransactionMeta{
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: mint, UIAmountString: "100"},
				{AccountIndex: 2, Mint: mint, UIAmountString: "0"},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: mint, UIAmountString: "40"},
				{AccountIndex: 2, Mint: mint, UIAmountString: "60"},
			},
		},
	}
	f.rpc.AddTransaction(walletA, tx)
	ctx := context.Background()

	result, err := f.scanner.ScanWallet(ctx, f.wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, 2, f.notifier.count())

	n, err := f.signatures.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanWallet_RespectsSignatureLimit(t *testing.T) {
	f := newFixture()
	for _, sig := range []string{"s1", "s2", "s3"} {
		f.rpc.AddTransaction(walletA, transferTx(sig, "0", "1"))
	}
	f.scanner.signatureLimit = 2

	result, err := f.scanner.ScanWallet(context.Background(), f.wallet)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Listed)
	assert.Equal(t, 0, f.rpc.FetchCount("s1"), "oldest signature is beyond the limit")
}
