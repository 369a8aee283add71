// Package sqlite is a local ledger backend, in a single file
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	db "github.com/airbusgeo/albedo-inversion/interface/database"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
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

const schema = `
CREATE TABLE IF NOT EXISTS unit (
	id TEXT PRIMARY KEY,
	tile TEXT NOT NULL,
	date TEXT NOT NULL,
	mode TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PENDING', 'DONE', 'FAILED', 'RETRY')),
	message TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL DEFAULT '{}',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS unit_status_idx ON unit (status);`

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func ledger(q db.Querier) db.SQLLedger {
	return db.SQLLedger{Querier: q, Placeholder: db.QuestionPlaceholder, IsUniqueViolation: isUniqueViolation}
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

// New opens (or creates) the ledger stored in file, and creates its schema
func New(ctx context.Context, file string) (*BackendDB, error) {
	sdb, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	// sqlite does not support concurrent writers
	sdb.SetMaxOpenConns(1)
	bdb := &BackendDB{sdb, ledger(sdb)}
	if err := bdb.CreateSchema(ctx); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("New.%w", err)
	}
	return bdb, nil
}
