package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/airbusgeo/albedo-inversion/common"
)

// Querier allows to use either a sql.DB or a sql.Tx
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLLedger implements LedgerBackend on a database/sql connection.
// The table is:
//
//	unit(id, tile, date, mode, status, message, data, updated_at)
type SQLLedger struct {
	Querier
	Placeholder Placeholder
	// IsUniqueViolation returns true if err is raised by a duplicate key
	IsUniqueViolation func(err error) bool
}

const unitColumns = "id, tile, date, mode, status, message, data"

// query formats the n placeholders of the query
func (l SQLLedger) query(format string, n int) string {
	ph := make([]interface{}, n)
	for i := range ph {
		ph[i] = l.Placeholder(i + 1)
	}
	return fmt.Sprintf(format, ph...)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUnit(row scanner) (Unit, error) {
	var (
		u                Unit
		tile, date, mode string
		err              error
	)
	if err = row.Scan(&u.ID, &tile, &date, &mode, &u.Status, &u.Message, &u.Data); err != nil {
		return u, err
	}
	if u.Tile, err = common.ParseTile(tile); err != nil {
		return u, err
	}
	if u.Date, err = common.ParseDate(date); err != nil {
		return u, err
	}
	if u.Mode, err = common.SnowModeString(mode); err != nil {
		return u, err
	}
	return u, nil
}

// CreateUnit implements LedgerBackend
func (l SQLLedger) CreateUnit(ctx context.Context, unit common.Unit) error {
	_, err := l.ExecContext(ctx, l.query("insert into unit(id, tile, date, mode, status, data) values(%s, %s, %s, %s, %s, %s)", 6),
		unit.Tag(), unit.Tile.String(), unit.Date.String(), unit.Mode.String(), common.StatusNEW, unit.Data)
	switch {
	case err == nil:
		return nil
	case l.IsUniqueViolation(err):
		return ErrAlreadyExists{Type: "unit", ID: unit.Tag()}
	default:
		return fmt.Errorf("CreateUnit.exec: %w", err)
	}
}

// Unit implements LedgerBackend
func (l SQLLedger) Unit(ctx context.Context, id string) (Unit, error) {
	u, err := scanUnit(l.QueryRowContext(ctx, l.query("select "+unitColumns+" from unit where id = %s", 1), id))
	switch {
	case err == nil:
		return u, nil
	case errors.Is(err, sql.ErrNoRows):
		return u, ErrNotFound{Type: "unit", ID: id}
	default:
		return u, fmt.Errorf("Unit.Scan: %w", err)
	}
}

// Units implements LedgerBackend
func (l SQLLedger) Units(ctx context.Context, pattern, status string, page, limit int) ([]Unit, error) {
	wc := NewJoinClause(l.Placeholder)
	if pattern != "" {
		wc.AppendLike("id", pattern)
	}
	if status != "" {
		wc.Append("status = %s", status)
	}
	rows, err := l.QueryContext(ctx, "select "+unitColumns+" from unit"+wc.WhereClause()+" ORDER BY id"+LimitOffsetClause(page, limit), wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("Units.QueryContext: %w", err)
	}
	defer rows.Close()
	units := make([]Unit, 0)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("Units.Scan: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Units.rows.err: %w", err)
	}
	return units, nil
}

// UnitsStatus implements LedgerBackend
func (l SQLLedger) UnitsStatus(ctx context.Context, pattern string) (Status, error) {
	s := Status{}
	wc := NewJoinClause(l.Placeholder)
	if pattern != "" {
		wc.AppendLike("id", pattern)
	}
	rows, err := l.QueryContext(ctx, "select status, count(status) from unit"+wc.WhereClause()+" group by status", wc.Parameters...)
	if err != nil {
		return s, fmt.Errorf("UnitsStatus.QueryContext: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status common.Status
		var nb int64
		if err := rows.Scan(&status, &nb); err != nil {
			return s, fmt.Errorf("UnitsStatus.Scan: %w", err)
		}
		s.Set(status, nb)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("UnitsStatus.rows.err: %w", err)
	}
	return s, nil
}

// UpdateUnit implements LedgerBackend
func (l SQLLedger) UpdateUnit(ctx context.Context, id string, status common.Status, message *string) error {
	var (
		res sql.Result
		err error
	)
	if message != nil {
		res, err = l.ExecContext(ctx, l.query("update unit set status = %s, message = %s, updated_at = CURRENT_TIMESTAMP where id = %s", 3), status, *message, id)
	} else {
		res, err = l.ExecContext(ctx, l.query("update unit set status = %s, updated_at = CURRENT_TIMESTAMP where id = %s", 2), status, id)
	}
	if err != nil {
		return fmt.Errorf("UpdateUnit.exec: %w", err)
	}
	if nb, err := res.RowsAffected(); err == nil && nb == 0 {
		return ErrNotFound{Type: "unit", ID: id}
	}
	return nil
}

// DeleteUnit implements LedgerBackend
func (l SQLLedger) DeleteUnit(ctx context.Context, id string) error {
	if _, err := l.ExecContext(ctx, l.query("delete from unit where id = %s", 1), id); err != nil {
		return fmt.Errorf("DeleteUnit.exec: %w", err)
	}
	return nil
}
