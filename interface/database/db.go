package db

import (
	"context"
	"fmt"

	"github.com/airbusgeo/albedo-inversion/common"
)

// Unit is a unit as recorded in the ledger
type Unit struct {
	common.UnitStatus
	ID string `json:"id"`
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s alreay exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type LedgerTxBackend interface {
	LedgerBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type LedgerDBBackend interface {
	LedgerBackend
	StartTransaction(ctx context.Context) (LedgerTxBackend, error)
	// CreateSchema creates the tables if they do not exist
	CreateSchema(ctx context.Context) error
	Close() error
}

type Status struct {
	New, Pending, Done, Retry, Failed int64
}

// Set the number of occurences for a given status
func (s *Status) Set(status common.Status, nb int64) {
	switch status {
	case common.StatusNEW:
		s.New = nb
	case common.StatusPENDING:
		s.Pending = nb
	case common.StatusDONE:
		s.Done = nb
	case common.StatusRETRY:
		s.Retry = nb
	case common.StatusFAILED:
		s.Failed = nb
	}
}

// Total number of units
func (s Status) Total() int64 {
	return s.New + s.Pending + s.Done + s.Retry + s.Failed
}

type LedgerBackend interface {
	// CreateUnit records a new unit with the status NEW. May return ErrAlreadyExists
	CreateUnit(ctx context.Context, unit common.Unit) error
	// Unit returns the unit with the given id (common.Unit.Tag()). May return ErrNotFound
	Unit(ctx context.Context, id string) (Unit, error)
	// Units returns the list of the units fitting the given parameters
	// pattern [optional=""] pattern of the id (* and ? are supported)
	// status [optional=""] status of the unit
	Units(ctx context.Context, pattern, status string, page, limit int) ([]Unit, error)
	// UnitsStatus returns the number of units per status
	// pattern [optional=""] pattern of the id
	UnitsStatus(ctx context.Context, pattern string) (Status, error)
	// UpdateUnit updates the status & message (if != nil) of the unit. May return ErrNotFound
	UpdateUnit(ctx context.Context, id string, status common.Status, message *string) error
	// DeleteUnit deletes a unit from the ledger
	DeleteUnit(ctx context.Context, id string) error
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db LedgerDBBackend, f func(tx LedgerTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
