package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/albedo-inversion/common"
	db "github.com/airbusgeo/albedo-inversion/interface/database"
	"github.com/airbusgeo/albedo-inversion/interface/database/sqlite"
)

func newLedger(t *testing.T) *sqlite.BackendDB {
	t.Helper()
	ledger, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func unit(doy int, mode common.SnowMode) common.Unit {
	return common.Unit{
		Tile: common.Tile{H: 18, V: 4},
		Date: common.NewDate(2005, doy),
		Mode: mode,
		Data: common.UnitAttrs{Wings: 90, Sensors: []string{"MERIS", "VGT"}, PriorScale: 30},
	}
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)

	u := unit(121, common.SnowModeSnow)
	if err := ledger.CreateUnit(ctx, u); err != nil {
		t.Fatal(err)
	}
	var errExists db.ErrAlreadyExists
	if err := ledger.CreateUnit(ctx, u); !errors.As(err, &errExists) {
		t.Errorf("expecting ErrAlreadyExists, got %v", err)
	}
	if err := ledger.CreateUnit(ctx, unit(129, common.SnowModeNoSnow)); err != nil {
		t.Fatal(err)
	}

	got, err := ledger.Unit(ctx, u.Tag())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "h18v04.2005121.Snow" || got.Tile != u.Tile || got.Date != u.Date || got.Mode != u.Mode || got.Status != common.StatusNEW {
		t.Errorf("unexpected unit: %+v", got)
	}
	if got.Data.Wings != 90 || len(got.Data.Sensors) != 2 || got.Data.PriorScale != 30 {
		t.Errorf("unexpected attributes: %+v", got.Data)
	}
	var errNotFound db.ErrNotFound
	if _, err := ledger.Unit(ctx, "h18v04.2005001.Snow"); !errors.As(err, &errNotFound) {
		t.Errorf("expecting ErrNotFound, got %v", err)
	}

	msg := "singular"
	if err := ledger.UpdateUnit(ctx, u.Tag(), common.StatusFAILED, &msg); err != nil {
		t.Fatal(err)
	}
	if err := ledger.UpdateUnit(ctx, "h18v04.2005001.Snow", common.StatusDONE, nil); !errors.As(err, &errNotFound) {
		t.Errorf("expecting ErrNotFound, got %v", err)
	}
	if got, _ = ledger.Unit(ctx, u.Tag()); got.Status != common.StatusFAILED || got.Message != msg {
		t.Errorf("unexpected unit: %+v", got)
	}

	units, err := ledger.Units(ctx, "h18v04.*", "", 0, 0)
	if err != nil || len(units) != 2 || units[0].ID != u.Tag() {
		t.Errorf("Units: %v %v", units, err)
	}
	if units, err = ledger.Units(ctx, "", common.StatusNEW.String(), 0, 0); err != nil || len(units) != 1 || units[0].Date.DoY != 129 {
		t.Errorf("Units(NEW): %v %v", units, err)
	}
	if units, err = ledger.Units(ctx, "*", "", 1, 1); err != nil || len(units) != 1 || units[0].Date.DoY != 129 {
		t.Errorf("Units(page 1): %v %v", units, err)
	}
	if units, _ = ledger.Units(ctx, "h18v04_2005121*", "", 0, 0); len(units) != 0 {
		t.Errorf("expecting _ to be escaped: %v", units)
	}

	status, err := ledger.UnitsStatus(ctx, "")
	if err != nil || status.New != 1 || status.Failed != 1 || status.Total() != 2 {
		t.Errorf("UnitsStatus: %+v %v", status, err)
	}

	if err := ledger.DeleteUnit(ctx, u.Tag()); err != nil {
		t.Fatal(err)
	}
	if status, _ = ledger.UnitsStatus(ctx, "*.Snow"); status.Total() != 0 {
		t.Errorf("expecting no Snow unit: %+v", status)
	}
}

func TestUnitOfWork(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	u := unit(121, common.SnowModeNoSnow)

	errAbort := errors.New("abort")
	err := db.UnitOfWork(ctx, ledger, func(tx db.LedgerTxBackend) error {
		if err := tx.CreateUnit(ctx, u); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Errorf("expecting errAbort, got %v", err)
	}
	var errNotFound db.ErrNotFound
	if _, err := ledger.Unit(ctx, u.Tag()); !errors.As(err, &errNotFound) {
		t.Errorf("expecting a rollback, got %v", err)
	}

	if err = db.UnitOfWork(ctx, ledger, func(tx db.LedgerTxBackend) error {
		return tx.CreateUnit(ctx, u)
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Unit(ctx, u.Tag()); err != nil {
		t.Errorf("expecting a commit, got %v", err)
	}
}
