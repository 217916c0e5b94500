// Package containment reacts to high-severity scan outcomes by invoking an
// external containment executor. It is a policy layer on top of a finalized
// scan: executor failures are recorded, never propagated back into the
// scan's lifecycle.
package containment

import (
	"context"
	"fmt"
	"log"

	"github.com/mlnas/MirrorScan/internal/models"
	"github.com/mlnas/MirrorScan/internal/store"
)

// Executor performs the actual containment action. Supplied by the caller;
// the engine does not own isolation or access-revocation mechanics.
type Executor interface {
	Execute(action *models.ContainmentAction) error
}

// Dispatcher evaluates completed scans against the containment policy.
type Dispatcher struct {
	executor Executor
	store    store.ScanStore
}

// NewDispatcher wires the executor and the store the actions are recorded in.
func NewDispatcher(executor Executor, scanStore store.ScanStore) *Dispatcher {
	return &Dispatcher{
		executor: executor,
		store:    scanStore,
	}
}

// Evaluate applies the policy to one completed scan: containment fires when
// the risk band is critical or any single finding is critical-severity.
// Returns the recorded action, or nil when the policy did not fire.
func (d *Dispatcher) Evaluate(ctx context.Context, rec *models.ScanRecord) (*models.ContainmentAction, error) {
	if rec.State != models.ScanCompleted || rec.Report == nil {
		return nil, nil
	}

	triggerFinding := rec.Report.CriticalFinding()
	bandCritical := rec.Report.Risk != nil && rec.Report.Risk.Band == models.BandCritical

	if triggerFinding == nil && !bandCritical {
		return nil, nil
	}

	var action *models.ContainmentAction
	if triggerFinding != nil {
		action = models.NewContainmentAction(rec.ID, models.ContainIsolateModel,
			triggerFinding.ID,
			fmt.Sprintf("finding %s reached severity %s", triggerFinding.ID, triggerFinding.Severity))
	} else {
		action = models.NewContainmentAction(rec.ID, models.ContainIsolateModel,
			"",
			fmt.Sprintf("risk score %.1f crossed the critical band", rec.Report.Risk.Score))
	}

	log.Printf("Containment triggered for scan %s: %s", rec.ID, action.Reason)

	if d.executor == nil {
		action.Outcome = models.ContainmentFailed
		action.Error = "no containment executor configured"
	} else if err := d.executor.Execute(action); err != nil {
		// Recorded, not retried. The scan is already terminal.
		action.Outcome = models.ContainmentFailed
		action.Error = err.Error()
		log.Printf("Containment executor failed for scan %s: %v", rec.ID, err)
	} else {
		action.Outcome = models.ContainmentExecuted
	}

	if err := d.store.AppendContainmentAction(ctx, action); err != nil {
		return action, fmt.Errorf("failed to record containment action: %w", err)
	}

	return action, nil
}
