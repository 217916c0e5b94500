package detector

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlnas/MirrorScan/internal/models"
	"github.com/mlnas/MirrorScan/internal/reference"
)

func seedCorpus(t *testing.T, modelID string, samples ...string) *reference.InMemoryStore {
	t.Helper()
	store := reference.NewInMemoryStore()
	for _, s := range samples {
		assert.NoError(t, store.AddSample(context.Background(), modelID, s))
	}
	return store
}

func TestMemoryDetector_VerbatimReproductionIsCritical(t *testing.T) {
	sample := "patient john smith was admitted on january fifth with acute symptoms"
	store := seedCorpus(t, "med-model", sample)
	d := NewMemoryDetector(store, 0.8)

	findings, err := d.Analyze(context.Background(), &Input{
		TargetModel: "med-model",
		OutputText:  sample,
	})

	assert.NoError(t, err)
	assert.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, "memory_leakage", f.DetectorName)
	assert.Equal(t, models.CategoryMemorization, f.Category)
	assert.Equal(t, models.SeverityCritical, f.Severity)
	assert.Equal(t, 1.0, f.Confidence)
	assert.Equal(t, 1.0, f.Payload["overlap"])
}

func TestMemoryDetector_BelowThresholdIsClean(t *testing.T) {
	store := seedCorpus(t, "med-model", "patient john smith was admitted on january fifth")
	d := NewMemoryDetector(store, 0.8)

	findings, err := d.Analyze(context.Background(), &Input{
		TargetModel: "med-model",
		OutputText:  "the weather today looks rather pleasant outside",
	})

	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestMemoryDetector_EmptyCorpusIsClean(t *testing.T) {
	d := NewMemoryDetector(reference.NewInMemoryStore(), 0.8)

	findings, err := d.Analyze(context.Background(), &Input{
		TargetModel: "unknown-model",
		OutputText:  "anything at all",
	})

	assert.NoError(t, err)
	assert.Empty(t, findings)
}

func TestMemoryDetector_QueriesModelWhenOutputMissing(t *testing.T) {
	sample := "the launch code is nine nine alpha zulu seven"
	store := seedCorpus(t, "m", sample)
	d := NewMemoryDetector(store, 0.8)

	model := &fakeModel{fallback: sample}
	findings, err := d.Analyze(context.Background(), &Input{
		TargetModel: "m",
		InputText:   "what is the launch code?",
		Model:       model,
	})

	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Equal(t, 1, model.calls)
}

func TestMemoryDetector_FailsWithoutTextOrModel(t *testing.T) {
	d := NewMemoryDetector(reference.NewInMemoryStore(), 0.8)

	_, err := d.Analyze(context.Background(), &Input{TargetModel: "m"})
	assert.Error(t, err)

	_, err = d.Analyze(context.Background(), &Input{TargetModel: "m", InputText: "prompt"})
	assert.Error(t, err)
}

func TestMemoryDetector_ModelQueryFailureSurfaces(t *testing.T) {
	store := seedCorpus(t, "m", "sample text here")
	d := NewMemoryDetector(store, 0.8)

	model := &fakeModel{err: fmt.Errorf("connection refused")}
	_, err := d.Analyze(context.Background(), &Input{
		TargetModel: "m",
		InputText:   "prompt",
		Model:       model,
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query target model")
}

func TestMemoryDetector_PerScanOverrideLowersThreshold(t *testing.T) {
	// Six of the sample's eight tokens appear verbatim: overlap 0.75.
	sample := "the secret ingredient is love and patience always"
	store := seedCorpus(t, "m", sample)
	d := NewMemoryDetector(store, 0.8)

	in := &Input{
		TargetModel: "m",
		OutputText:  "the secret ingredient is love and kindness maybe",
	}

	findings, err := d.Analyze(context.Background(), in)
	assert.NoError(t, err)
	assert.Empty(t, findings)

	in.Overrides = map[string]float64{"memory_overlap_threshold": 0.5}
	findings, err = d.Analyze(context.Background(), in)
	assert.NoError(t, err)
	assert.Len(t, findings, 1)
	assert.Equal(t, 0.5, findings[0].Payload["threshold"])
}

func TestMemoryDetector_HonorsCancellation(t *testing.T) {
	store := seedCorpus(t, "m", "one sample", "two sample")
	d := NewMemoryDetector(store, 0.8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Analyze(ctx, &Input{TargetModel: "m", OutputText: "some output"})
	assert.ErrorIs(t, err, context.Canceled)
}
