package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFinding_Valid(t *testing.T) {
	f, err := NewFinding("memory_leakage", CategoryMemorization, SeverityHigh, 0.85, "verbatim overlap")

	assert.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "memory_leakage", f.DetectorName)
	assert.Equal(t, CategoryMemorization, f.Category)
	assert.Equal(t, SeverityHigh, f.Severity)
	assert.Equal(t, 0.85, f.Confidence)
	assert.NotNil(t, f.Payload)
	assert.False(t, f.DetectedAt.IsZero())
}

func TestNewFinding_BoundaryConfidence(t *testing.T) {
	_, err := NewFinding("d", CategoryDrift, SeverityLow, 0.0, "e")
	assert.NoError(t, err)

	_, err = NewFinding("d", CategoryDrift, SeverityLow, 1.0, "e")
	assert.NoError(t, err)
}

func TestNewFinding_RejectsUnknownSeverity(t *testing.T) {
	f, err := NewFinding("d", CategoryDrift, "catastrophic", 0.5, "e")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, f)
}

func TestNewFinding_RejectsConfidenceOutOfRange(t *testing.T) {
	f, err := NewFinding("d", CategoryDrift, SeverityLow, 1.01, "e")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, f)

	f, err = NewFinding("d", CategoryDrift, SeverityLow, -0.01, "e")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, f)
}

func TestNewFinding_RejectsNonFiniteConfidence(t *testing.T) {
	for _, confidence := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		f, err := NewFinding("d", CategoryDrift, SeverityLow, confidence, "e")
		assert.ErrorIs(t, err, ErrValidation)
		assert.Nil(t, f)
	}
}

func TestNewFinding_RejectsEmptyDetectorName(t *testing.T) {
	f, err := NewFinding("", CategoryDrift, SeverityLow, 0.5, "e")

	assert.ErrorIs(t, err, ErrValidation)
	assert.Nil(t, f)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityHigh.AtLeast(SeverityHigh))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
	assert.Equal(t, 0, SeverityInfo.Rank())
	assert.Equal(t, 4, SeverityCritical.Rank())
}

func TestSeverityValid(t *testing.T) {
	assert.True(t, SeverityInfo.Valid())
	assert.True(t, SeverityCritical.Valid())
	assert.False(t, Severity("urgent").Valid())
	assert.False(t, Severity("").Valid())
}

func TestScanStateTerminal(t *testing.T) {
	assert.False(t, ScanPending.Terminal())
	assert.False(t, ScanRunning.Terminal())
	assert.True(t, ScanCompleted.Terminal())
	assert.True(t, ScanFailed.Terminal())
	assert.True(t, ScanCancelled.Terminal())
}

func TestDetectorStateTerminal(t *testing.T) {
	assert.False(t, DetectorPending.Terminal())
	assert.False(t, DetectorRunning.Terminal())
	assert.True(t, DetectorSucceeded.Terminal())
	assert.True(t, DetectorFailed.Terminal())
}

func TestUnsupportedScanTypeIsValidation(t *testing.T) {
	assert.ErrorIs(t, ErrUnsupportedScanType, ErrValidation)
}

func TestReportCriticalFinding(t *testing.T) {
	low, err := NewFinding("d", CategoryDrift, SeverityLow, 0.5, "e")
	assert.NoError(t, err)
	crit, err := NewFinding("d", CategoryJailbreak, SeverityCritical, 0.9, "e")
	assert.NoError(t, err)

	report := &ScanReport{Findings: []*Finding{low, crit}}
	assert.Equal(t, crit.ID, report.CriticalFinding().ID)

	clean := &ScanReport{Findings: []*Finding{low}}
	assert.Nil(t, clean.CriticalFinding())
}
