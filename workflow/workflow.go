// Package workflow records the processing of the units in a ledger, so that re-runs skip the units already done
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/airbusgeo/albedo-inversion/common"
	db "github.com/airbusgeo/albedo-inversion/interface/database"
	"github.com/airbusgeo/albedo-inversion/service"
	"github.com/airbusgeo/albedo-inversion/service/log"
)

type Workflow struct {
	db.LedgerDBBackend
	dbmu sync.Mutex
}

func NewWorkflow(db db.LedgerDBBackend) *Workflow {
	return &Workflow{LedgerDBBackend: db}
}

// transitions allowed without force
var transitions = map[common.Status][]common.Status{
	common.StatusNEW:     {common.StatusPENDING},
	common.StatusPENDING: {common.StatusDONE, common.StatusRETRY, common.StatusFAILED},
	common.StatusRETRY:   {common.StatusPENDING, common.StatusFAILED},
	common.StatusFAILED:  {common.StatusPENDING},
}

func allowed(from, to common.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Register adds the units that are not in the ledger yet, with the status NEW.
// Returns the number of units added
func (wf *Workflow) Register(ctx context.Context, units ...common.Unit) (int, error) {
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()

	var nb int
	err := db.UnitOfWork(ctx, wf, func(tx db.LedgerTxBackend) error {
		nb = 0
		for _, unit := range units {
			err := tx.CreateUnit(ctx, unit)
			if errors.As(err, &db.ErrAlreadyExists{}) {
				continue
			}
			if err != nil {
				return err
			}
			nb++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("Register.%w", err)
	}
	return nb, nil
}

// Start marks the unit as PENDING, registering it if needed.
// Returns false if the unit is already DONE
func (wf *Workflow) Start(ctx context.Context, unit common.Unit) (bool, error) {
	lg := log.Logger(ctx).Sugar()
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()

	start := true
	err := db.UnitOfWork(ctx, wf, func(tx db.LedgerTxBackend) error {
		u, err := tx.Unit(ctx, unit.Tag())
		if errors.As(err, &db.ErrNotFound{}) {
			if err = tx.CreateUnit(ctx, unit); err != nil {
				return err
			}
			u.Status = common.StatusNEW
		} else if err != nil {
			return err
		}
		if u.Status.Final() {
			start = false
			return nil
		}
		if u.Status == common.StatusPENDING {
			lg.Warnf("unit %s is already pending (interrupted run?): restarting", unit.Tag())
		}
		empty := ""
		return tx.UpdateUnit(ctx, unit.Tag(), common.StatusPENDING, &empty)
	})
	if err != nil {
		return false, fmt.Errorf("Start[%s].%w", unit.Tag(), err)
	}
	return start, nil
}

// Finish records the result of the processing of a pending unit:
// DONE if perr is nil, RETRY if perr is temporary, FAILED otherwise
func (wf *Workflow) Finish(ctx context.Context, unit common.Unit, perr error) error {
	status, message := common.StatusDONE, ""
	if perr != nil {
		status, message = common.StatusFAILED, perr.Error()
		if service.Temporary(perr) {
			status = common.StatusRETRY
		}
	}
	if _, err := wf.UpdateUnitStatus(ctx, unit.Tag(), status, &message, false); err != nil {
		return fmt.Errorf("Finish.%w", err)
	}
	return nil
}

// UpdateUnitStatus updates the status of a unit, if the transition is allowed (or forced).
// Returns true if the status has been updated
func (wf *Workflow) UpdateUnitStatus(ctx context.Context, id string, status common.Status, message *string, force bool) (bool, error) {
	lg := log.Logger(ctx).Sugar()
	wf.dbmu.Lock()
	defer wf.dbmu.Unlock()

	u, err := wf.Unit(ctx, id)
	if err != nil {
		if errors.As(err, &db.ErrNotFound{}) {
			lg.Errorf("update: %v", err)
			return false, nil
		}
		return false, fmt.Errorf("UpdateUnitStatus: %w", err)
	}
	if message == nil {
		message = &u.Message
	}

	lg.Infof("update unit status %s: %s->%s (%s)", id, u.Status, status, *message)

	if !force {
		if u.Status == status {
			lg.Warnf("update unit %s: status already %s", id, status)
			return false, nil
		}
		if !allowed(u.Status, status) {
			lg.Errorf("cannot update unit %s status %s->%s", id, u.Status, status)
			return false, nil
		}
	}
	if err := wf.UpdateUnit(ctx, id, status, message); err != nil {
		return false, fmt.Errorf("UpdateUnitStatus.%w", err)
	}
	return true, nil
}

// Run processes the unit and records the result in the ledger. A DONE unit is skipped.
// Returns the error of process
func (wf *Workflow) Run(ctx context.Context, unit common.Unit, process func(ctx context.Context) error) error {
	start, err := wf.Start(ctx, unit)
	if err != nil {
		return fmt.Errorf("Run.%w", err)
	}
	if !start {
		log.Logger(ctx).Sugar().Infof("unit %s already done: skipped", unit.Tag())
		return nil
	}
	perr := process(ctx)
	if err := wf.Finish(ctx, unit, perr); err != nil {
		return service.MergeErrors(true, perr, fmt.Errorf("Run.%w", err))
	}
	return perr
}
