package models

import "time"

// RiskBand is the qualitative label derived from the numeric score.
type RiskBand string

const (
	BandSafe     RiskBand = "safe"
	BandWarning  RiskBand = "warning"
	BandCritical RiskBand = "critical"
)

// Contribution records the weight one finding added to a risk score.
type Contribution struct {
	FindingID string  `json:"finding_id"`
	Weight    float64 `json:"weight"`
}

// RiskScore is the aggregate 0-100 score for one completed scan.
// Recomputation over the same finding set is idempotent.
type RiskScore struct {
	Score         float64        `json:"score"`
	Band          RiskBand       `json:"band"`
	Contributions []Contribution `json:"contributions"`
	ComputedAt    time.Time      `json:"computed_at"`
}

// ScanReport is the final report attached to a completed scan. A completed
// scan with zero findings is a legitimate clean result.
type ScanReport struct {
	Findings []*Finding `json:"findings"`
	Risk     *RiskScore `json:"risk,omitempty"`
}

// CriticalFinding returns the first critical-severity finding, if any.
func (r *ScanReport) CriticalFinding() *Finding {
	for _, f := range r.Findings {
		if f.Severity == SeverityCritical {
			return f
		}
	}
	return nil
}
