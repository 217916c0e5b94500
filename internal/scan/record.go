// Package scan owns the lifecycle state machine for one scan instance.
//
// A Record is the single source of truth for "is this scan done". All
// transitions run under a per-record lock; there is no cross-record locking,
// so independent scans never contend. Reads go through Snapshot and never
// block on in-flight detectors.
package scan

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlnas/MirrorScan/internal/models"
)

// Transition describes one lifecycle state change, published on the events
// stream for observability tooling.
type Transition struct {
	ScanID string           `json:"scan_id"`
	From   models.ScanState `json:"from"`
	To     models.ScanState `json:"to"`
	At     time.Time        `json:"at"`
}

// Record wraps one ScanRecord behind transition commands. The orchestrator
// holds a reference and issues commands; it never mutates fields directly.
type Record struct {
	mu       sync.Mutex
	rec      *models.ScanRecord
	findings map[string][]*models.Finding
}

// NewRecord creates a Pending record with a fresh scan id. The request is
// snapshotted; later mutation of the caller's copy has no effect.
func NewRecord(req models.ScanRequest) *Record {
	return &Record{
		rec: &models.ScanRecord{
			ID:        uuid.NewString(),
			Request:   req,
			State:     models.ScanPending,
			Detectors: make(map[string]*models.DetectorStatus),
			CreatedAt: time.Now().UTC(),
		},
		findings: make(map[string][]*models.Finding),
	}
}

// ID returns the scan id.
func (r *Record) ID() string {
	return r.rec.ID
}

// Start transitions Pending -> Running and registers the dispatched
// detector set, each in sub-state Pending.
func (r *Record) Start(detectors []string) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec.State != models.ScanPending {
		return Transition{}, r.transitionErr(models.ScanRunning)
	}
	if len(detectors) == 0 {
		return Transition{}, fmt.Errorf("%w: cannot start scan %s with no detectors", models.ErrInvalidTransition, r.rec.ID)
	}

	for _, name := range detectors {
		r.rec.Detectors[name] = &models.DetectorStatus{
			Name:  name,
			State: models.DetectorPending,
		}
	}

	now := time.Now().UTC()
	r.rec.StartedAt = &now

	return r.moveTo(models.ScanRunning, now), nil
}

// SetDetectorRunning marks one dispatched detector as in flight.
func (r *Record) SetDetectorRunning(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, err := r.detectorStatus(name)
	if err != nil {
		return err
	}
	if status.State != models.DetectorPending {
		return fmt.Errorf("%w: detector %s is %s, not pending", models.ErrInvalidTransition, name, status.State)
	}

	status.State = models.DetectorRunning
	return nil
}

// SetDetectorSucceeded settles one detector with its findings. Findings are
// held by the record until the scan finalizes or is cancelled.
func (r *Record) SetDetectorSucceeded(name string, findings []*models.Finding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, err := r.settleDetector(name)
	if err != nil {
		return err
	}

	status.State = models.DetectorSucceeded
	status.Findings = len(findings)
	r.findings[name] = findings
	return nil
}

// SetDetectorFailed settles one detector with a failure reason. The failure
// is recorded as sub-state only; it never aborts sibling detectors.
func (r *Record) SetDetectorFailed(name, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, err := r.settleDetector(name)
	if err != nil {
		return err
	}

	status.State = models.DetectorFailed
	status.Error = reason
	return nil
}

// AllSettled reports whether every dispatched detector reached a terminal
// sub-state.
func (r *Record) AllSettled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rec.Detectors) == 0 {
		return false
	}
	for _, status := range r.rec.Detectors {
		if !status.State.Terminal() {
			return false
		}
	}
	return true
}

// Findings returns the union of findings from succeeded detectors, ordered
// by detector name so the result is stable across runs.
func (r *Record) Findings() []*models.Finding {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.findings))
	for name := range r.findings {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*models.Finding
	for _, name := range names {
		out = append(out, r.findings[name]...)
	}
	return out
}

// Finalize derives the terminal state from the detector sub-states:
// Completed when at least one detector succeeded, Failed when all failed.
// The report is attached only on Completed; a Failed scan carries none.
func (r *Record) Finalize(report *models.ScanReport) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec.State != models.ScanRunning {
		return Transition{}, r.transitionErr(models.ScanCompleted)
	}

	succeeded := 0
	for _, status := range r.rec.Detectors {
		if !status.State.Terminal() {
			return Transition{}, fmt.Errorf("%w: detector %s has not settled", models.ErrInvalidTransition, status.Name)
		}
		if status.State == models.DetectorSucceeded {
			succeeded++
		}
	}

	now := time.Now().UTC()
	r.rec.CompletedAt = &now

	if succeeded == 0 {
		return r.moveTo(models.ScanFailed, now), nil
	}

	r.rec.Report = report
	return r.moveTo(models.ScanCompleted, now), nil
}

// Cancel transitions to Cancelled from Pending or Running. Findings already
// collected are discarded; a cancelled scan produces no report.
func (r *Record) Cancel() (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec.State != models.ScanPending && r.rec.State != models.ScanRunning {
		return Transition{}, r.transitionErr(models.ScanCancelled)
	}

	r.findings = make(map[string][]*models.Finding)
	for _, status := range r.rec.Detectors {
		status.Findings = 0
	}

	now := time.Now().UTC()
	r.rec.CompletedAt = &now

	return r.moveTo(models.ScanCancelled, now), nil
}

// Snapshot returns a copy of the current record, safe to read while
// detectors are still running.
func (r *Record) Snapshot() *models.ScanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := *r.rec
	snap.Detectors = make(map[string]*models.DetectorStatus, len(r.rec.Detectors))
	for name, status := range r.rec.Detectors {
		copied := *status
		snap.Detectors[name] = &copied
	}
	return &snap
}

// moveTo performs the state change and returns the transition. Callers must
// hold the lock and have validated the move.
func (r *Record) moveTo(to models.ScanState, at time.Time) Transition {
	from := r.rec.State
	r.rec.State = to
	return Transition{ScanID: r.rec.ID, From: from, To: to, At: at}
}

func (r *Record) transitionErr(to models.ScanState) error {
	return fmt.Errorf("%w: scan %s cannot move %s -> %s", models.ErrInvalidTransition, r.rec.ID, r.rec.State, to)
}

func (r *Record) detectorStatus(name string) (*models.DetectorStatus, error) {
	if r.rec.State != models.ScanRunning {
		return nil, fmt.Errorf("%w: scan %s is %s, detector updates rejected", models.ErrInvalidTransition, r.rec.ID, r.rec.State)
	}
	status, ok := r.rec.Detectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: detector %s was not dispatched for scan %s", models.ErrInvalidTransition, name, r.rec.ID)
	}
	return status, nil
}

func (r *Record) settleDetector(name string) (*models.DetectorStatus, error) {
	status, err := r.detectorStatus(name)
	if err != nil {
		return nil, err
	}
	if status.State.Terminal() {
		return nil, fmt.Errorf("%w: detector %s already settled as %s", models.ErrInvalidTransition, name, status.State)
	}
	return status, nil
}
