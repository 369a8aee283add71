package workflow

import (
	"context"
	"fmt"
	"strings"

	db "github.com/airbusgeo/albedo-inversion/interface/database"
	"github.com/airbusgeo/albedo-inversion/interface/database/pg"
	"github.com/airbusgeo/albedo-inversion/interface/database/sqlite"
)

// IsPostgres returns true if conn looks like a postgres connection string (url or key=value)
func IsPostgres(conn string) bool {
	return strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://") ||
		strings.Contains(conn, "host=") || strings.Contains(conn, "dbname=")
}

// OpenLedger opens the postgres ledger of the connection string conn, or the sqlite ledger stored in the file conn.
// The schema is created if needed.
func OpenLedger(ctx context.Context, conn string) (db.LedgerDBBackend, error) {
	if !IsPostgres(conn) {
		l, err := sqlite.New(ctx, conn)
		if err != nil {
			return nil, fmt.Errorf("OpenLedger.%w", err)
		}
		return l, nil
	}
	l, err := pg.New(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("OpenLedger.%w", err)
	}
	if err := l.CreateSchema(ctx); err != nil {
		l.Close()
		return nil, fmt.Errorf("OpenLedger.%w", err)
	}
	return l, nil
}
