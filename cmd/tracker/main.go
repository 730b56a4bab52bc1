// Package main runs the whale tracker: the scan scheduler, the Telegram
// command surface and the health/metrics HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"go.uber.org/zap"

	"solana-whale-tracker/internal/balance"
	"solana-whale-tracker/internal/config"
	"solana-whale-tracker/internal/logging"
	"solana-whale-tracker/internal/management"
	"solana-whale-tracker/internal/monitor"
	"solana-whale-tracker/internal/notify"
	"solana-whale-tracker/internal/observability"
	"solana-whale-tracker/internal/scanner"
	"solana-whale-tracker/internal/solana"
	"solana-whale-tracker/internal/storage"
	chstore "solana-whale-tracker/internal/storage/clickhouse"
	"solana-whale-tracker/internal/storage/memory"
	"solana-whale-tracker/internal/storage/migrations"
	pgstore "solana-whale-tracker/internal/storage/postgres"
	"solana-whale-tracker/internal/telegram"
)

// stores holds every store the tracker uses.
type stores struct {
	wallets    storage.WalletStore
	clusters   storage.ClusterStore
	signatures storage.SignatureStore
	settings   storage.SettingsStore
	archive    storage.TransferArchive // nil when archiving is disabled
}

func main() {
	envFile := flag.String("env-file", "", "Path to a .env file (default: ./.env if present)")
	once := flag.Bool("once", false, "Run a single scan cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, *once, logger); err != nil {
		logger.Fatal("tracker failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, once bool, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", zap.String("signal", sig.String()))
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	st, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	b, err := tgbot.New(cfg.TelegramToken,
		tgbot.WithWorkers(2),
		tgbot.WithErrorsHandler(func(err error) {
			logger.Warn("telegram polling error", zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	formatter := notify.NewFormatter(cfg.TokenSymbol, cfg.ExplorerTxURL)
	dispatcher := notify.NewDispatcher(st.settings, notify.NewTelegramSender(b, logger), formatter, logger.Named("notify"))

	rpc := solana.NewHTTPClient(cfg.SolanaRPCURL,
		solana.WithTimeout(cfg.CallTimeout),
		solana.WithRequestRate(cfg.RPCRateLimit, 1),
	)
	sc := scanner.New(scanner.Options{
		RPC:            rpc,
		Signatures:     st.signatures,
		Archive:        st.archive,
		Engine:         balance.NewEngine(cfg.TrackedMint, cfg.DustThreshold),
		Notifier:       dispatcher,
		SignatureLimit: cfg.SignatureLimit,
		CallTimeout:    cfg.CallTimeout,
		Logger:         logger.Named("scanner"),
	})

	monOpts := monitor.Options{
		Wallets:       st.wallets,
		Scanner:       sc,
		Interval:      cfg.CheckInterval,
		InitialDelay:  cfg.InitialDelay,
		WalletPacing:  cfg.WalletPacing,
		TriggerMinGap: cfg.WSTriggerMinGap,
		Logger:        logger.Named("monitor"),
	}
	if cfg.SolanaWSURL != "" && !once {
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = logger.Named("ws")
		ws, err := solana.NewWSClient(ctx, cfg.SolanaWSURL, wsCfg)
		if err != nil {
			logger.Warn("websocket unavailable, relying on interval scans", zap.Error(err))
		} else {
			defer ws.Close()
			monOpts.WS = ws
		}
	}
	mon := monitor.New(monOpts)

	if once {
		res, err := mon.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("scan cycle: %w", err)
		}
		logger.Info("scan cycle finished",
			zap.String("status", res.Status),
			zap.Int("wallets", res.Wallets),
			zap.Int("failed", res.Failed),
			zap.Int("recorded", res.Recorded),
			zap.Int("events", res.Events))
		return nil
	}

	svc := management.NewService(management.Options{
		Wallets:    st.wallets,
		Clusters:   st.clusters,
		Signatures: st.signatures,
		Settings:   st.settings,
		Archive:    st.archive,
		Logger:     logger.Named("management"),
	})
	telegram.NewCommands(svc, mon, formatter, logger.Named("telegram")).Register(b)

	srv := newHTTPServer(cfg.MetricsAddr, mon)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		b.Start(ctx)
	}()

	logger.Info("whale tracker started",
		zap.String("mint", cfg.TrackedMint),
		zap.String("symbol", cfg.TokenSymbol),
		zap.Bool("archive", st.archive != nil))

	err = mon.Run(ctx)
	cancel()
	<-botDone
	return err
}

// createStores builds the memory or PostgreSQL stores and the optional ClickHouse archive.
func createStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, func(), error) {
	if cfg.UseMemory {
		registry := memory.NewRegistry()
		st := &stores{
			wallets:    registry.Wallets(),
			clusters:   registry.Clusters(),
			signatures: memory.NewSignatureStore(),
			settings:   memory.NewSettingsStore(),
			archive:    memory.NewTransferArchive(),
		}
		logger.Warn("using in-memory storage, state is lost on restart")
		return st, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	applied, err := migrations.RunPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("postgres migrations applied", zap.Strings("versions", applied))
	}

	st := &stores{
		wallets:    pgstore.NewWalletStore(pool),
		clusters:   pgstore.NewClusterStore(pool),
		signatures: pgstore.NewSignatureStore(pool),
		settings:   pgstore.NewSettingsStore(pool),
	}

	if cfg.ClickHouseDSN == "" {
		return st, pool.Close, nil
	}

	conn, err := chstore.Open(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := migrations.RunClickhouse(ctx, conn); err != nil {
		conn.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	st.archive = chstore.NewTransferArchive(conn)

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status    string     `json:"status"`
	Uptime    string     `json:"uptime"`
	State     string     `json:"state"`
	Interval  string     `json:"interval"`
	LastCycle *cycleJSON `json:"last_cycle,omitempty"`
}

type cycleJSON struct {
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Wallets   int       `json:"wallets"`
	Failed    int       `json:"failed"`
	Recorded  int       `json:"recorded"`
	Events    int       `json:"events"`
}

// newHTTPServer serves /health, /metrics and /status.
func newHTTPServer(addr string, mon *monitor.Monitor) *http.Server {
	started := time.Now()
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Status:   "running",
			Uptime:   time.Since(started).Truncate(time.Second).String(),
			State:    mon.State().String(),
			Interval: mon.Interval().String(),
		}
		if last := mon.LastCycle(); last != nil {
			resp.LastCycle = &cycleJSON{
				Source:    last.Source,
				Status:    last.Status,
				StartedAt: last.StartedAt,
				Duration:  last.Duration.String(),
				Wallets:   last.Wallets,
				Failed:    last.Failed,
				Recorded:  last.Recorded,
				Events:    last.Events,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	})

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
