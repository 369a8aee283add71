package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	db "github.com/airbusgeo/albedo-inversion/interface/database"
	"github.com/lib/pq"
)

// BackendTx implements LedgerTxBackend
type BackendTx struct {
	*sql.Tx
	db.SQLLedger
}

// BackendDB implements LedgerDBBackend
type BackendDB struct {
	*sql.DB
	db.SQLLedger
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError           = "00000"
	connectionFailure = "08006"
	uniqueViolation   = "23505"

	notPqError = "X"
)

const schema = `
CREATE TABLE IF NOT EXISTS unit (
	id TEXT PRIMARY KEY,
	tile TEXT NOT NULL,
	date TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PENDING', 'DONE', 'FAILED', 'RETRY')),
	message TEXT NOT NULL DEFAULT '',
	data JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS unit_status_idx ON unit (status);`

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

func isUniqueViolation(err error) bool {
	return pqErrorCode(err) == uniqueViolation
}

func ledger(q db.Querier) db.SQLLedger {
	return db.SQLLedger{Querier: q, Placeholder: db.DollarPlaceholder, IsUniqueViolation: isUniqueViolation}
}

// StartTransaction implements LedgerDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.LedgerTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, ledger(tx)}, nil
}

// CreateSchema implements LedgerDBBackend
func (bdb BackendDB) CreateSchema(ctx context.Context) error {
	if _, err := bdb.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("CreateSchema.exec: %w", err)
	}
	return nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		if code := pqErrorCode(err); code == connectionFailure {
			return nil, fmt.Errorf("sql.ping: connection failure: %w", err)
		}
		return nil, fmt.Errorf("sql.ping: %w", err)
	}
	return &BackendDB{db, ledger(db)}, nil
}
