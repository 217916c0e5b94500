package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlnas/MirrorScan/internal/models"
)

func mustFinding(t *testing.T, category models.VulnerabilityCategory, severity models.Severity, confidence float64) *models.Finding {
	t.Helper()
	f, err := models.NewFinding("test_detector", category, severity, confidence, "test evidence")
	assert.NoError(t, err)
	return f
}

func TestScore_EmptySetIsSafe(t *testing.T) {
	risk, err := Score(nil)

	assert.NoError(t, err)
	assert.Equal(t, 0.0, risk.Score)
	assert.Equal(t, models.BandSafe, risk.Band)
	assert.Empty(t, risk.Contributions)
}

func TestScore_SingleFinding(t *testing.T) {
	findings := []*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityMedium, 1.0),
	}

	risk, err := Score(findings)

	assert.NoError(t, err)
	assert.InDelta(t, 15.0, risk.Score, 0.0001)
	assert.Equal(t, models.BandSafe, risk.Band)
	assert.Len(t, risk.Contributions, 1)
	assert.Equal(t, findings[0].ID, risk.Contributions[0].FindingID)
}

func TestScore_RepeatedCategoryDiminishes(t *testing.T) {
	// Two criticals in the same category: 60*0.9 + 60*0.8*0.5 = 78.
	findings := []*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 0.9),
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 0.8),
	}

	risk, err := Score(findings)

	assert.NoError(t, err)
	assert.InDelta(t, 78.0, risk.Score, 0.0001)
	assert.Equal(t, models.BandCritical, risk.Band)
}

func TestScore_DistinctCategoriesDoNotDiminish(t *testing.T) {
	findings := []*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityHigh, 1.0),
		mustFinding(t, models.CategoryJailbreak, models.SeverityHigh, 1.0),
	}

	risk, err := Score(findings)

	assert.NoError(t, err)
	assert.InDelta(t, 70.0, risk.Score, 0.0001)
}

func TestScore_PermutationInvariant(t *testing.T) {
	findings := []*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 0.9),
		mustFinding(t, models.CategoryMemorization, models.SeverityHigh, 0.7),
		mustFinding(t, models.CategoryJailbreak, models.SeverityMedium, 0.5),
		mustFinding(t, models.CategoryPIILeakage, models.SeverityHigh, 0.9),
		mustFinding(t, models.CategoryPIILeakage, models.SeverityLow, 0.4),
	}

	base, err := Score(findings)
	assert.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]*models.Finding, len(findings))
		copy(shuffled, findings)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		risk, err := Score(shuffled)
		assert.NoError(t, err)
		assert.Equal(t, base.Score, risk.Score)
		assert.Equal(t, base.Band, risk.Band)
	}
}

func TestScore_Idempotent(t *testing.T) {
	findings := []*models.Finding{
		mustFinding(t, models.CategoryDrift, models.SeverityMedium, 0.6),
		mustFinding(t, models.CategoryDrift, models.SeverityLow, 0.3),
	}

	first, err := Score(findings)
	assert.NoError(t, err)

	second, err := Score(findings)
	assert.NoError(t, err)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Band, second.Band)
	assert.Equal(t, first.Contributions, second.Contributions)
}

func TestScore_ClampsAt100(t *testing.T) {
	findings := []*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 1.0),
		mustFinding(t, models.CategoryJailbreak, models.SeverityCritical, 1.0),
		mustFinding(t, models.CategoryPIILeakage, models.SeverityCritical, 1.0),
	}

	risk, err := Score(findings)

	assert.NoError(t, err)
	assert.Equal(t, 100.0, risk.Score)
	assert.Equal(t, models.BandCritical, risk.Band)
}

func TestScore_BandBoundaries(t *testing.T) {
	// Exactly 30 is warning, not safe.
	risk, err := Score([]*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityMedium, 1.0),
		mustFinding(t, models.CategoryJailbreak, models.SeverityMedium, 1.0),
	})
	assert.NoError(t, err)
	assert.InDelta(t, 30.0, risk.Score, 0.0001)
	assert.Equal(t, models.BandWarning, risk.Band)

	// Exactly 70 is still warning; critical requires strictly above.
	risk, err = Score([]*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 1.0),
		mustFinding(t, models.CategoryJailbreak, models.SeverityLow, 1.0),
		mustFinding(t, models.CategoryPIILeakage, models.SeverityLow, 1.0),
	})
	assert.NoError(t, err)
	assert.InDelta(t, 70.0, risk.Score, 0.0001)
	assert.Equal(t, models.BandWarning, risk.Band)

	// Just above 70 crosses into critical.
	risk, err = Score([]*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 1.0),
		mustFinding(t, models.CategoryJailbreak, models.SeverityMedium, 1.0),
	})
	assert.NoError(t, err)
	assert.InDelta(t, 75.0, risk.Score, 0.0001)
	assert.Equal(t, models.BandCritical, risk.Band)
}

func TestScore_AddingFindingNeverLowersScore(t *testing.T) {
	base := []*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityMedium, 0.8),
		mustFinding(t, models.CategoryJailbreak, models.SeverityHigh, 0.6),
	}

	before, err := Score(base)
	assert.NoError(t, err)

	extra := append([]*models.Finding{}, base...)
	extra = append(extra, mustFinding(t, models.CategoryMemorization, models.SeverityLow, 0.5))

	after, err := Score(extra)
	assert.NoError(t, err)

	assert.GreaterOrEqual(t, after.Score, before.Score)
}

func TestScore_RejectsInvalidSeverity(t *testing.T) {
	f := mustFinding(t, models.CategoryMemorization, models.SeverityLow, 0.5)
	f.Severity = "catastrophic"

	risk, err := Score([]*models.Finding{f})

	assert.Error(t, err)
	assert.ErrorIs(t, err, models.ErrScoring)
	assert.Nil(t, risk)
}

func TestScore_RejectsOutOfRangeConfidence(t *testing.T) {
	f := mustFinding(t, models.CategoryMemorization, models.SeverityLow, 0.5)
	f.Confidence = 1.2

	risk, err := Score([]*models.Finding{f})

	assert.Error(t, err)
	assert.ErrorIs(t, err, models.ErrScoring)
	assert.Nil(t, risk)
}

func TestScore_RejectsNonFiniteConfidence(t *testing.T) {
	// A NaN confidence must fail scoring, never poison the total into a
	// NaN score that reads as band safe.
	f := mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 0.9)
	f.Confidence = math.NaN()

	risk, err := Score([]*models.Finding{f})

	assert.ErrorIs(t, err, models.ErrScoring)
	assert.Nil(t, risk)

	f.Confidence = math.Inf(1)
	risk, err = Score([]*models.Finding{f})

	assert.ErrorIs(t, err, models.ErrScoring)
	assert.Nil(t, risk)
}

func TestScore_RejectsNilFinding(t *testing.T) {
	risk, err := Score([]*models.Finding{nil})

	assert.Error(t, err)
	assert.ErrorIs(t, err, models.ErrScoring)
	assert.Nil(t, risk)
}

func TestScore_ContributionsSumToScore(t *testing.T) {
	findings := []*models.Finding{
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 0.9),
		mustFinding(t, models.CategoryMemorization, models.SeverityCritical, 0.8),
	}

	risk, err := Score(findings)
	assert.NoError(t, err)

	sum := 0.0
	for _, c := range risk.Contributions {
		sum += c.Weight
	}
	assert.InDelta(t, risk.Score, sum, 0.0001)
}
