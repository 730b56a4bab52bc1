package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-whale-tracker/internal/observability"
	"solana-whale-tracker/internal/storage"
)

// Pool is the shared connection pool handed to every PostgreSQL store.
type Pool struct {
	*pgxpool.Pool
}

// PoolOption adjusts the parsed pool config before connecting.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps open connections. Non-positive values keep the pgx default.
func WithMaxConns(n int32) PoolOption {
	return func(cfg *pgxpool.Config) {
		if n > 0 {
			cfg.MaxConns = n
		}
	}
}

// NewPool connects to dsn and pings once so misconfiguration surfaces at startup.
func NewPool(ctx context.Context, dsn string, opts ...PoolOption) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	cfg.HealthCheckPeriod = 30 * time.Second
	for _, apply := range opts {
		apply(cfg)
	}

	inner, err := pgxpool.NewWithConfig(ctx, cfg)
	if err == nil {
		err = inner.Ping(ctx)
		if err != nil {
			inner.Close()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Pool{Pool: inner}, nil
}

// SQLSTATE codes mapped onto storage sentinels.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// pgCode returns the SQLSTATE of a server error, or "" for anything else.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func noRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }

// observe records latency under operation. Sentinel outcomes are not counted as errors.
func observe(operation string, start time.Time, err error) {
	if storage.IsExpected(err) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
