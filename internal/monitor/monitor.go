// Package monitor schedules scan cycles over every tracked wallet.
//
// A cycle is started by the interval timer, by the delayed first run, or by a
// wake-up trigger. At most one cycle runs at a time; a trigger that arrives while
// a cycle is in progress is dropped rather than queued behind it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"solana-whale-tracker/internal/domain"
	"solana-whale-tracker/internal/logging"
	"solana-whale-tracker/internal/observability"
	"solana-whale-tracker/internal/scanner"
	"solana-whale-tracker/internal/solana"
	"solana-whale-tracker/internal/storage"
)

// Defaults.
const (
	DefaultInterval      = 300 * time.Second
	DefaultInitialDelay  = 30 * time.Second
	DefaultWalletPacing  = 500 * time.Millisecond
	DefaultTriggerMinGap = 10 * time.Second
)

// Trigger sources.
const (
	SourceInterval  = "interval"
	SourceStartup   = "startup"
	SourceWebsocket = "websocket"
	SourceManual    = "manual"
)

// Cycle status labels.
const (
	CycleCompleted = "completed"
	CycleCanceled  = "canceled"
	CycleFailed    = "failed"
)

// ErrCycleInProgress is returned by RunCycle when another cycle is running.
var ErrCycleInProgress = errors.New("scan cycle already in progress")

// State is the scheduler state.
type State int32

const (
	StateIdle State = iota
	StateScanning
)

// String returns the string representation of State.
func (s State) String() string {
	if s == StateScanning {
		return "scanning"
	}
	return "idle"
}

// WalletScanner scans one wallet.
type WalletScanner interface {
	ScanWallet(ctx context.Context, wallet *domain.WalletInfo) (*scanner.WalletResult, error)
}

// CycleResult summarizes one scan cycle.
type CycleResult struct {
	Source       string
	StartedAt    time.Time
	Duration     time.Duration
	Status       string
	Wallets      int // wallets in the snapshot
	Scanned      int // wallets scanned without error
	Failed       int // wallets aborted by a ledger or store failure
	Recorded     int // newly recorded signatures
	Events       int // transfer events detected
	AlertsFailed int
}

// Options contains configuration for creating a Monitor.
type Options struct {
	Wallets       storage.WalletStore
	Scanner       WalletScanner
	WS            solana.WSClient // optional, enables websocket wake-ups
	Interval      time.Duration   // Default: 300s
	InitialDelay  time.Duration   // Default: 30s
	WalletPacing  time.Duration   // Default: 500ms between scan starts; negative disables pacing
	TriggerMinGap time.Duration   // Default: 10s
	Logger        *zap.Logger
}

// Monitor runs scan cycles.
type Monitor struct {
	wallets      storage.WalletStore
	scanner      WalletScanner
	watcher      *Watcher
	interval     time.Duration
	initialDelay time.Duration
	pacing       rate.Limit
	logger       *zap.Logger

	state    atomic.Int32
	triggers chan string
	gap      *rate.Limiter

	mu   sync.RWMutex
	last *CycleResult
}

// New creates a new Monitor.
func New(opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	initialDelay := opts.InitialDelay
	if initialDelay < 0 {
		initialDelay = 0
	} else if initialDelay == 0 {
		initialDelay = DefaultInitialDelay
	}

	pacing := rate.Every(DefaultWalletPacing)
	switch {
	case opts.WalletPacing < 0:
		pacing = rate.Inf
	case opts.WalletPacing > 0:
		pacing = rate.Every(opts.WalletPacing)
	}

	minGap := opts.TriggerMinGap
	if minGap <= 0 {
		minGap = DefaultTriggerMinGap
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		wallets:      opts.Wallets,
		scanner:      opts.Scanner,
		interval:     interval,
		initialDelay: initialDelay,
		pacing:       pacing,
		logger:       logger,
		triggers:     make(chan string, 1),
		gap:          rate.NewLimiter(rate.Every(minGap), 1),
	}
	if opts.WS != nil {
		m.watcher = NewWatcher(opts.WS, m.Trigger, logger)
	}
	return m
}

// State returns the current scheduler state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Interval returns the cycle interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// LastCycle returns the result of the most recent cycle, or nil.
func (m *Monitor) LastCycle() *CycleResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return nil
	}
	cp := *m.last
	return &cp
}

// Trigger requests a cycle from an external wake-up source.
// A wake-up that arrives while a cycle is running or pending, or inside the
// minimum gap, is dropped and Trigger returns false.
func (m *Monitor) Trigger(source string) bool {
	if m.State() == StateScanning || !m.gap.Allow() {
		observability.RecordTriggerDropped(source)
		return false
	}
	select {
	case m.triggers <- source:
		return true
	default:
		observability.RecordTriggerDropped(source)
		return false
	}
}

// Run schedules cycles until ctx is done, then waits for the in-flight cycle.
func (m *Monitor) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLogger(logging.CronLogger(m.logger)),
		cron.WithChain(cron.Recover(logging.CronLogger(m.logger))),
	)
	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := c.AddFunc(spec, func() { m.runFrom(ctx, SourceInterval) }); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	c.Start()

	m.logger.Info("monitor started",
		zap.Duration("interval", m.interval),
		zap.Duration("initial_delay", m.initialDelay),
		zap.Bool("websocket", m.watcher != nil))

	first := time.NewTimer(m.initialDelay)
	defer first.Stop()

	for {
		select {
		case <-ctx.Done():
			stopped := c.Stop()
			<-stopped.Done()
			if m.watcher != nil {
				m.watcher.Close()
			}
			m.logger.Info("monitor stopped")
			return nil
		case <-first.C:
			m.runFrom(ctx, SourceStartup)
			m.discardTriggers()
		case source := <-m.triggers:
			m.runFrom(ctx, source)
			m.discardTriggers()
		}
	}
}

// discardTriggers drops a wake-up accepted while the last cycle was starting.
func (m *Monitor) discardTriggers() {
	select {
	case source := <-m.triggers:
		observability.RecordTriggerDropped(source)
	default:
	}
}

func (m *Monitor) runFrom(ctx context.Context, source string) {
	if ctx.Err() != nil {
		return
	}
	res, err := m.runCycle(ctx, source)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		observability.RecordTriggerDropped(source)
		m.logger.Debug("cycle skipped, previous still running", zap.String("source", source))
	case err != nil:
		m.logger.Error("cycle failed", zap.String("source", source), zap.Error(err))
	default:
		m.logger.Info("cycle finished",
			zap.String("source", source),
			zap.String("status", res.Status),
			zap.Int("wallets", res.Wallets),
			zap.Int("failed", res.Failed),
			zap.Int("events", res.Events),
			zap.Duration("duration", res.Duration))
	}
}

// RunCycle scans every tracked wallet once.
// Returns ErrCycleInProgress without doing anything when a cycle is already running,
// and an error wrapping domain.ErrStoreUnavailable when the wallet list cannot be read.
// Wallet-level failures are logged and counted; they never abort the cycle.
func (m *Monitor) RunCycle(ctx context.Context) (*CycleResult, error) {
	return m.runCycle(ctx, SourceManual)
}

func (m *Monitor) runCycle(ctx context.Context, source string) (*CycleResult, error) {
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
		return nil, ErrCycleInProgress
	}
	defer m.state.Store(int32(StateIdle))

	observability.SetCycleInProgress(true)
	defer observability.SetCycleInProgress(false)

	res := &CycleResult{Source: source, StartedAt: time.Now()}
	defer func() {
		res.Duration = time.Since(res.StartedAt)
		observability.RecordCycle(res.Status, res.Duration.Seconds(), time.Now().Unix())
		m.mu.Lock()
		cp := *res
		m.last = &cp
		m.mu.Unlock()
	}()

	wallets, err := m.wallets.List(ctx)
	if err != nil {
		res.Status = CycleFailed
		return res, fmt.Errorf("list wallets: %w: %w", domain.ErrStoreUnavailable, err)
	}
	res.Wallets = len(wallets)
	observability.SetTrackedWallets(len(wallets))

	if m.watcher != nil {
		m.watcher.Sync(ctx, wallets)
	}

	// Spaces scan starts; a scan slower than the pacing interval is followed at once.
	limiter := rate.NewLimiter(m.pacing, 1)
	for _, w := range wallets {
		if err := limiter.Wait(ctx); err != nil {
			res.Status = CycleCanceled
			return res, nil
		}

		wr, err := m.scanner.ScanWallet(ctx, w)
		if wr != nil {
			res.Recorded += wr.Recorded
			res.Events += wr.Events
			res.AlertsFailed += wr.AlertsFailed
		}
		if ctx.Err() != nil {
			res.Status = CycleCanceled
			return res, nil
		}
		if err != nil {
			res.Failed++
			observability.RecordWalletScan("failed")
			m.logger.Warn("wallet scan failed",
				zap.String("wallet", w.Address),
				zap.Error(err))
			continue
		}
		res.Scanned++
		observability.RecordWalletScan("ok")
	}

	res.Status = CycleCompleted
	return res, nil
}
