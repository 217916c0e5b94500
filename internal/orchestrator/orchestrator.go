// Package orchestrator coordinates scan execution: it accepts requests,
// fans detectors out concurrently, collects results through the scan state
// machine, scores completed scans, and hands the outcome to persistence,
// the event bus, and the containment dispatcher.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/mlnas/MirrorScan/internal/detector"
	"github.com/mlnas/MirrorScan/internal/models"
	"github.com/mlnas/MirrorScan/internal/scan"
	"github.com/mlnas/MirrorScan/internal/scoring"
	"github.com/mlnas/MirrorScan/internal/store"
)

// EventPublisher receives lifecycle events. Nil-safe at the call sites so
// the engine degrades gracefully when NATS is unavailable.
type EventPublisher interface {
	PublishTransition(t scan.Transition) error
	PublishCompleted(rec *models.ScanRecord) error
}

// ContainmentPolicy is evaluated once per completed scan.
type ContainmentPolicy interface {
	Evaluate(ctx context.Context, rec *models.ScanRecord) (*models.ContainmentAction, error)
}

// Metrics are running totals across all scans since startup.
type Metrics struct {
	TotalScans       int64 `json:"total_scans"`
	TotalFindings    int64 `json:"total_findings"`
	CriticalFindings int64 `json:"critical_findings"`
}

// Orchestrator is the top-level scan coordinator.
type Orchestrator struct {
	registry  detector.Registry
	store     store.ScanStore
	publisher EventPublisher
	policy    ContainmentPolicy
	clients   detector.ClientFactory

	detectorTimeout time.Duration

	// Bounds how many scans run detectors at once.
	sem chan struct{}

	mu      sync.RWMutex
	records map[string]*scan.Record
	cancels map[string]context.CancelFunc

	metricsMu sync.Mutex
	metrics   Metrics
}

// New builds an orchestrator. publisher, policy, and clients may be nil;
// persistence is required.
func New(registry detector.Registry, scanStore store.ScanStore, publisher EventPublisher, policy ContainmentPolicy, clients detector.ClientFactory, detectorTimeout time.Duration, maxConcurrentScans int) *Orchestrator {
	if maxConcurrentScans <= 0 {
		maxConcurrentScans = 1
	}

	return &Orchestrator{
		registry:        registry,
		store:           scanStore,
		publisher:       publisher,
		policy:          policy,
		clients:         clients,
		detectorTimeout: detectorTimeout,
		sem:             make(chan struct{}, maxConcurrentScans),
		records:         make(map[string]*scan.Record),
		cancels:         make(map[string]context.CancelFunc),
	}
}

// Submit validates the request and creates a Pending scan record. It returns
// immediately; callers poll Status or subscribe to the events stream. No
// record is created for an invalid request.
func (o *Orchestrator) Submit(ctx context.Context, req models.ScanRequest) (string, error) {
	if req.TargetModel == "" {
		return "", fmt.Errorf("%w: request names no target model", models.ErrValidation)
	}

	if _, err := o.registry.Resolve(req.ScanTypes); err != nil {
		return "", err
	}

	if err := validateOverrides(req.Overrides); err != nil {
		return "", err
	}

	rec := scan.NewRecord(req)

	if err := o.store.CreateScan(ctx, rec.Snapshot()); err != nil {
		return "", fmt.Errorf("failed to persist scan: %w", err)
	}

	o.mu.Lock()
	o.records[rec.ID()] = rec
	o.mu.Unlock()

	log.Printf("Scan %s submitted for model %s (types: %v)", rec.ID(), req.TargetModel, req.ScanTypes)
	return rec.ID(), nil
}

// validateOverrides holds per-scan threshold overrides to the same bounds
// the config layer enforces on the corresponding knobs. A knob no detector
// consults is rejected rather than silently ignored.
func validateOverrides(overrides map[string]float64) error {
	for key, v := range overrides {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: override %s is not a finite number", models.ErrValidation, key)
		}

		switch key {
		case "memory_overlap_threshold":
			if v <= 0 || v >= 1 {
				return fmt.Errorf("%w: override %s must be between 0 and 1 exclusive", models.ErrValidation, key)
			}
		case "embedding_match_threshold", "fingerprint_drift_threshold":
			if v <= 0 {
				return fmt.Errorf("%w: override %s must be positive", models.ErrValidation, key)
			}
		default:
			return fmt.Errorf("%w: unknown override %s", models.ErrValidation, key)
		}
	}
	return nil
}

// Run executes one submitted scan to a terminal state: it resolves the
// detector set, launches each detector concurrently with an independent
// timeout, joins them, scores the surviving findings, and finalizes the
// record. Detector failures are recorded as sub-state and never abort
// sibling detectors.
func (o *Orchestrator) Run(ctx context.Context, scanID string) error {
	rec, err := o.record(scanID)
	if err != nil {
		return err
	}

	snap := rec.Snapshot()
	detectors, err := o.registry.Resolve(snap.Request.ScanTypes)
	if err != nil {
		return err
	}

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-o.sem }()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	o.mu.Lock()
	o.cancels[scanID] = cancelRun
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.cancels, scanID)
		o.mu.Unlock()
	}()

	names := make([]string, len(detectors))
	for i, d := range detectors {
		names[i] = d.Name()
	}

	transition, err := rec.Start(names)
	if err != nil {
		return err
	}
	o.persistAndPublish(rec, transition)

	input := &detector.Input{
		ScanID:      snap.ID,
		TargetModel: snap.Request.TargetModel,
		InputText:   snap.Request.InputText,
		OutputText:  snap.Request.OutputText,
		Embeddings:  snap.Request.Embeddings,
		Overrides:   snap.Request.Overrides,
	}
	if snap.Request.Endpoint != "" && o.clients != nil {
		input.Model = o.clients(snap.Request.Endpoint)
	}

	var wg sync.WaitGroup
	for _, d := range detectors {
		wg.Add(1)
		go func(d detector.Detector) {
			defer wg.Done()
			o.runDetector(runCtx, rec, d, input)
		}(d)
	}
	wg.Wait()

	return o.finalize(ctx, rec)
}

// runDetector drives one detector invocation and settles its sub-state.
func (o *Orchestrator) runDetector(ctx context.Context, rec *scan.Record, d detector.Detector, input *detector.Input) {
	if err := rec.SetDetectorRunning(d.Name()); err != nil {
		// Scan was cancelled before this detector launched.
		log.Printf("Detector %s not started for scan %s: %v", d.Name(), rec.ID(), err)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, o.detectorTimeout)
	defer cancel()

	findings, err := d.Analyze(dctx, input)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		if settleErr := rec.SetDetectorFailed(d.Name(), reason); settleErr != nil {
			log.Printf("Detector %s result dropped for scan %s: %v", d.Name(), rec.ID(), settleErr)
			return
		}
		log.Printf("Detector %s failed for scan %s: %s", d.Name(), rec.ID(), reason)
		return
	}

	if settleErr := rec.SetDetectorSucceeded(d.Name(), findings); settleErr != nil {
		log.Printf("Detector %s result dropped for scan %s: %v", d.Name(), rec.ID(), settleErr)
		return
	}
	log.Printf("Detector %s succeeded for scan %s with %d finding(s)", d.Name(), rec.ID(), len(findings))
}

// finalize scores the settled scan and moves it to its terminal state.
func (o *Orchestrator) finalize(ctx context.Context, rec *scan.Record) error {
	snap := rec.Snapshot()
	if snap.State == models.ScanCancelled {
		// In-flight detectors were abandoned; nothing to score.
		if err := o.store.UpdateScan(context.WithoutCancel(ctx), rec.Snapshot()); err != nil {
			log.Printf("Warning: failed to persist cancelled scan %s: %v", rec.ID(), err)
		}
		return nil
	}

	succeeded := 0
	for _, status := range snap.Detectors {
		if status.State == models.DetectorSucceeded {
			succeeded++
		}
	}

	var report *models.ScanReport
	if succeeded > 0 {
		findings := rec.Findings()
		risk, err := scoring.Score(findings)
		if err != nil {
			// Findings are validated at construction; reaching this is an
			// internal invariant violation.
			return fmt.Errorf("scan %s: %w", rec.ID(), err)
		}
		report = &models.ScanReport{Findings: findings, Risk: risk}
	}

	transition, err := rec.Finalize(report)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			// Cancellation won the race; the cancel path already persisted.
			log.Printf("Scan %s finalization skipped: %v", rec.ID(), err)
			return nil
		}
		return err
	}

	final := rec.Snapshot()
	o.persistAndPublish(rec, transition)
	if o.publisher != nil {
		if err := o.publisher.PublishCompleted(final); err != nil {
			log.Printf("Warning: failed to publish completed scan %s: %v", rec.ID(), err)
		}
	}

	o.recordMetrics(final)

	if final.State == models.ScanCompleted && o.policy != nil {
		if _, err := o.policy.Evaluate(context.WithoutCancel(ctx), final); err != nil {
			log.Printf("Warning: containment evaluation failed for scan %s: %v", rec.ID(), err)
		}
	}

	log.Printf("Scan %s finished as %s", rec.ID(), final.State)
	return nil
}

// Status returns a non-blocking snapshot of the scan's lifecycle state,
// per-detector sub-states, and final report when terminal.
func (o *Orchestrator) Status(scanID string) (*models.ScanRecord, error) {
	rec, err := o.record(scanID)
	if err != nil {
		return nil, err
	}
	return rec.Snapshot(), nil
}

// Report returns the final report once the scan is terminal. Failed and
// cancelled scans yield an empty report.
func (o *Orchestrator) Report(scanID string) (*models.ScanReport, error) {
	snap, err := o.Status(scanID)
	if err != nil {
		return nil, err
	}

	if !snap.State.Terminal() {
		return nil, fmt.Errorf("%w: scan %s is %s", models.ErrReportNotReady, scanID, snap.State)
	}

	if snap.Report == nil {
		return &models.ScanReport{}, nil
	}
	return snap.Report, nil
}

// Cancel requests cancellation. It succeeds from Pending or Running and
// returns ErrInvalidTransition otherwise. In-flight detectors observe the
// cancellation at their next checkpoint, so the scan may remain visible as
// cancelling briefly after this returns.
func (o *Orchestrator) Cancel(scanID string) error {
	rec, err := o.record(scanID)
	if err != nil {
		return err
	}

	transition, err := rec.Cancel()
	if err != nil {
		return err
	}

	o.mu.RLock()
	cancelRun := o.cancels[scanID]
	o.mu.RUnlock()
	if cancelRun != nil {
		cancelRun()
	}

	o.persistAndPublish(rec, transition)
	log.Printf("Scan %s cancelled", scanID)
	return nil
}

// ListScans returns recent scans from the persistence collaborator.
func (o *Orchestrator) ListScans(ctx context.Context, limit int) ([]*models.ScanRecord, error) {
	return o.store.ListScans(ctx, limit)
}

// Metrics returns running totals since startup.
func (o *Orchestrator) Metrics() Metrics {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()
	return o.metrics
}

func (o *Orchestrator) recordMetrics(rec *models.ScanRecord) {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()

	o.metrics.TotalScans++
	if rec.Report == nil {
		return
	}
	o.metrics.TotalFindings += int64(len(rec.Report.Findings))
	for _, f := range rec.Report.Findings {
		if f.Severity == models.SeverityCritical {
			o.metrics.CriticalFindings++
		}
	}
}

func (o *Orchestrator) record(scanID string) (*scan.Record, error) {
	o.mu.RLock()
	rec, ok := o.records[scanID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, scanID)
	}
	return rec, nil
}

// persistAndPublish stores the current snapshot and emits the transition.
// Both are best-effort at this layer; failures are logged, not raised, so a
// flaky store or bus cannot corrupt the state machine.
func (o *Orchestrator) persistAndPublish(rec *scan.Record, transition scan.Transition) {
	if err := o.store.UpdateScan(context.Background(), rec.Snapshot()); err != nil {
		log.Printf("Warning: failed to persist scan %s: %v", rec.ID(), err)
	}

	if o.publisher != nil {
		if err := o.publisher.PublishTransition(transition); err != nil {
			log.Printf("Warning: failed to publish transition for scan %s: %v", rec.ID(), err)
		}
	}
}
