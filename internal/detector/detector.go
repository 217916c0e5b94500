// Package detector holds the pluggable detection algorithms, one per
// vulnerability class. Detectors are stateless between invocations so the
// orchestrator can run them concurrently and retry them independently.
package detector

import (
	"context"
	"fmt"
	"math"

	"github.com/mlnas/MirrorScan/internal/models"
)

// ModelQuerier sends one prompt to the target model and returns its reply.
// Implementations must respect the context deadline.
type ModelQuerier interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// ClientFactory builds a querier for the endpoint named in a scan request.
type ClientFactory func(endpoint string) ModelQuerier

// Input is the per-scan payload handed to each detector. Which fields are
// populated depends on the scan types requested.
type Input struct {
	ScanID      string
	TargetModel string

	// Model queries the target model's endpoint. Nil when the request
	// named no endpoint; detectors that probe the model fail in that case.
	Model ModelQuerier

	InputText  string
	OutputText string
	Embeddings [][]float64

	// Per-scan threshold overrides, keyed by config knob name.
	Overrides map[string]float64
}

// Override returns the per-scan override for a knob, or the fallback.
// Overrides are validated at submission; a non-finite value that slipped in
// anyway is treated as unset so it cannot poison a confidence computation.
func (in *Input) Override(key string, fallback float64) float64 {
	if in.Overrides == nil {
		return fallback
	}
	if v, ok := in.Overrides[key]; ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return fallback
}

// Detector is the capability every detection algorithm implements. Analyze
// returns the findings it observed; an error means the detector failed and
// is recorded as sub-state, never raised into the orchestrator's control
// flow.
type Detector interface {
	Name() string
	Type() models.ScanType
	Analyze(ctx context.Context, in *Input) ([]*models.Finding, error)
}

// Registry is the explicit detector table, keyed by scan type.
type Registry map[models.ScanType]Detector

// Register adds a detector under its scan type.
func (r Registry) Register(d Detector) {
	r[d.Type()] = d
}

// Resolve maps the requested scan types to detectors. Duplicates collapse;
// an unknown type is a validation failure.
func (r Registry) Resolve(types []models.ScanType) ([]Detector, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: request names no scan types", models.ErrValidation)
	}

	var detectors []Detector
	seen := make(map[models.ScanType]struct{})
	for _, t := range types {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}

		d, ok := r[t]
		if !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedScanType, t)
		}
		detectors = append(detectors, d)
	}
	return detectors, nil
}
