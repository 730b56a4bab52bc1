package migrations

import (
	"context"
	"fmt"
)

// Execer runs a single statement. Satisfied by clickhouse-go driver.Conn.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// RunClickhouse applies every embedded ClickHouse migration. The driver accepts
// one statement per Exec, so files are split first. Statements must be idempotent.
func RunClickhouse(ctx context.Context, conn Execer) error {
	files, err := load(clickhouseFS, "clickhouse")
	if err != nil {
		return err
	}

	for _, m := range files {
		for i, stmt := range statements(m.sql) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s statement %d: %w", m.version, i+1, err)
			}
		}
	}
	return nil
}
