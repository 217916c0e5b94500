package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mlnas/MirrorScan/internal/models"
)

// Severity weight table. Fixed and monotonic; the score formula is
// clamp(sum(weight * confidence), 0, 100) with diminishing contribution
// for repeated findings in the same category.
var severityWeights = map[models.Severity]float64{
	models.SeverityInfo:     1,
	models.SeverityLow:      5,
	models.SeverityMedium:   15,
	models.SeverityHigh:     35,
	models.SeverityCritical: 60,
}

// Each finding after the first in a category contributes at this fraction
// of its raw weight, so one noisy detector cannot dominate the score.
const repeatCategoryFactor = 0.5

// Band thresholds on the 0-100 score.
const (
	warningThreshold  = 30.0
	criticalThreshold = 70.0
)

// Score computes the deterministic risk score for a finding set. The result
// is invariant under permutation of the input and consults nothing outside
// the given findings. An empty set scores 0 (band safe).
func Score(findings []*models.Finding) (*models.RiskScore, error) {
	for _, f := range findings {
		if f == nil {
			return nil, fmt.Errorf("%w: nil finding", models.ErrScoring)
		}
		if !f.Severity.Valid() {
			return nil, fmt.Errorf("%w: finding %s has unknown severity %q", models.ErrScoring, f.ID, f.Severity)
		}
		if math.IsNaN(f.Confidence) || math.IsInf(f.Confidence, 0) {
			return nil, fmt.Errorf("%w: finding %s has non-finite confidence %v", models.ErrScoring, f.ID, f.Confidence)
		}
		if f.Confidence < 0.0 || f.Confidence > 1.0 {
			return nil, fmt.Errorf("%w: finding %s has confidence %.3f outside [0.0, 1.0]", models.ErrScoring, f.ID, f.Confidence)
		}
	}

	// Canonical order makes the per-category diminishing factor, and hence
	// the score, independent of arrival order.
	ordered := make([]*models.Finding, len(findings))
	copy(ordered, findings)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.ID < b.ID
	})

	total := 0.0
	seen := make(map[models.VulnerabilityCategory]int)
	contributions := make([]models.Contribution, 0, len(ordered))

	for _, f := range ordered {
		weight := severityWeights[f.Severity] * f.Confidence
		if seen[f.Category] > 0 {
			weight *= repeatCategoryFactor
		}
		seen[f.Category]++

		total += weight
		contributions = append(contributions, models.Contribution{
			FindingID: f.ID,
			Weight:    weight,
		})
	}

	score := clamp(total, 0, 100)

	return &models.RiskScore{
		Score:         score,
		Band:          bandFor(score),
		Contributions: contributions,
		ComputedAt:    time.Now().UTC(),
	}, nil
}

func bandFor(score float64) models.RiskBand {
	switch {
	case score > criticalThreshold:
		return models.BandCritical
	case score >= warningThreshold:
		return models.BandWarning
	default:
		return models.BandSafe
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
