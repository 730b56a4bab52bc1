package monitor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/solana"
)

// Watcher keeps one logs subscription per tracked wallet and turns
// notifications into cycle triggers. Notifications carry no transfer data;
// the triggered cycle finds the transfers.
type Watcher struct {
	ws      solana.WSClient
	trigger func(source string) bool
	logger  *zap.Logger

	mu   sync.Mutex
	subs map[string]*solana.LogSubscription // keyed by wallet address
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher that calls trigger on every notification.
func NewWatcher(ws solana.WSClient, trigger func(source string) bool, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		ws:      ws,
		trigger: trigger,
		logger:  logger.Named("watcher"),
		subs:    make(map[string]*solana.LogSubscription),
	}
}

// Sync subscribes new wallets and unsubscribes wallets no longer tracked.
// Subscription failures are logged; the next Sync retries them.
func (w *Watcher) Sync(ctx context.Context, wallets []*domain.WalletInfo) {
	want := make(map[string]struct{}, len(wallets))
	for _, wi := range wallets {
		want[wi.Address] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for addr, sub := range w.subs {
		if _, ok := want[addr]; ok {
			continue
		}
		if err := w.ws.Unsubscribe(ctx, sub); err != nil {
			w.logger.Warn("unsubscribe failed", zap.String("wallet", addr), zap.Error(err))
		}
		delete(w.subs, addr)
	}

	for addr := range want {
		if _, ok := w.subs[addr]; ok {
			continue
		}
		sub, err := w.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{addr}})
		if err != nil {
			w.logger.Warn("subscribe failed", zap.String("wallet", addr), zap.Error(err))
			continue
		}
		w.subs[addr] = sub
		w.wg.Add(1)
		go w.listen(addr, sub)
	}
}

// Subscribed returns the number of live subscriptions.
func (w *Watcher) Subscribed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

func (w *Watcher) listen(addr string, sub *solana.LogSubscription) {
	defer w.wg.Done()
	for n := range sub.C {
		// failed transactions do not move balances
		if n.Err != nil {
			continue
		}
		if w.trigger(SourceWebsocket) {
			w.logger.Debug("wake-up",
				zap.String("wallet", addr),
				zap.String("signature", n.Signature))
		}
	}
}

// Close drops every subscription and waits for the listeners to exit.
func (w *Watcher) Close() {
	w.mu.Lock()
	for addr, sub := range w.subs {
		if err := w.ws.Unsubscribe(context.Background(), sub); err != nil {
			w.logger.Debug("unsubscribe failed", zap.String("wallet", addr), zap.Error(err))
		}
		delete(w.subs, addr)
	}
	w.mu.Unlock()

	w.wg.Wait()
}
