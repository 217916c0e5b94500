package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// VulnerabilityCategory groups findings by the weakness class they evidence.
type VulnerabilityCategory string

const (
	CategoryMemorization     VulnerabilityCategory = "memorization"
	CategoryPIILeakage       VulnerabilityCategory = "pii_leakage"
	CategoryReidentification VulnerabilityCategory = "embedding_reidentification"
	CategoryPromptInjection  VulnerabilityCategory = "prompt_injection"
	CategoryJailbreak        VulnerabilityCategory = "jailbreak"
	CategoryDrift            VulnerabilityCategory = "behavioral_drift"
	CategoryPolicyViolation  VulnerabilityCategory = "policy_violation"
)

// Severity indicates how serious a finding is. Values are ordered:
// info < low < medium < high < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Valid reports whether s is a known severity level.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the ordinal position of the severity (info=0 .. critical=4).
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Finding is one detector observation. Findings are immutable once created
// and belong to exactly one scan.
type Finding struct {
	ID           string                 `json:"id"`
	DetectorName string                 `json:"detector_name"`
	Category     VulnerabilityCategory  `json:"category"`
	Severity     Severity               `json:"severity"`
	Confidence   float64                `json:"confidence"`
	Evidence     string                 `json:"evidence"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	DetectedAt   time.Time              `json:"detected_at"`
}

// NewFinding validates severity and confidence before constructing a Finding.
// Out-of-range values are rejected, never clamped.
func NewFinding(detectorName string, category VulnerabilityCategory, severity Severity, confidence float64, evidence string) (*Finding, error) {
	if detectorName == "" {
		return nil, fmt.Errorf("%w: finding requires a detector name", ErrValidation)
	}

	if !severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrValidation, severity)
	}

	// NaN slips past plain range comparisons, so finiteness is checked first.
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return nil, fmt.Errorf("%w: confidence %v is not a finite number", ErrValidation, confidence)
	}

	if confidence < 0.0 || confidence > 1.0 {
		return nil, fmt.Errorf("%w: confidence %.3f outside [0.0, 1.0]", ErrValidation, confidence)
	}

	return &Finding{
		ID:           uuid.NewString(),
		DetectorName: detectorName,
		Category:     category,
		Severity:     severity,
		Confidence:   confidence,
		Evidence:     evidence,
		Payload:      make(map[string]interface{}),
		DetectedAt:   time.Now().UTC(),
	}, nil
}
