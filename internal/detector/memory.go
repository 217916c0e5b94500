package detector

import (
	"context"
	"fmt"

	"github.com/mlnas/MirrorScan/internal/models"
	"github.com/mlnas/MirrorScan/internal/reference"
)

// MemoryDetector checks model output for verbatim training-data overlap
// against the reference corpus. Output text is taken from the request when
// present, otherwise obtained by querying the target model with the input
// prompt.
type MemoryDetector struct {
	corpus           reference.Corpus
	overlapThreshold float64
}

// NewMemoryDetector builds the detector with the configured overlap
// threshold (fraction of a sample reproduced verbatim).
func NewMemoryDetector(corpus reference.Corpus, overlapThreshold float64) *MemoryDetector {
	return &MemoryDetector{
		corpus:           corpus,
		overlapThreshold: overlapThreshold,
	}
}

func (d *MemoryDetector) Name() string {
	return "memory_leakage"
}

func (d *MemoryDetector) Type() models.ScanType {
	return models.ScanTypeMemory
}

func (d *MemoryDetector) Analyze(ctx context.Context, in *Input) ([]*models.Finding, error) {
	output := in.OutputText
	if output == "" {
		if in.InputText == "" {
			return nil, fmt.Errorf("memory scan requires input or output text")
		}
		if in.Model == nil {
			return nil, fmt.Errorf("memory scan has no output text and no model endpoint")
		}

		resp, err := in.Model.Query(ctx, in.InputText)
		if err != nil {
			return nil, fmt.Errorf("failed to query target model: %w", err)
		}
		output = resp
	}

	samples, err := d.corpus.Samples(ctx, in.TargetModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference corpus: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	threshold := in.Override("memory_overlap_threshold", d.overlapThreshold)
	outTokens := tokenize(output)

	best := 0.0
	bestSample := -1
	for i, sample := range samples {
		// Cancellation checkpoint between samples.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		overlap := verbatimOverlap(outTokens, tokenize(sample))
		if overlap > best {
			best = overlap
			bestSample = i
		}
	}

	if best < threshold {
		return nil, nil
	}

	// Confidence grows with the margin over the threshold. A threshold at or
	// above 1.0 would make the margin degenerate, so it pins confidence high.
	confidence := 1.0
	if threshold < 1.0 {
		confidence = (best - threshold) / (1.0 - threshold)
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.05 {
		confidence = 0.05
	}

	severity := models.SeverityMedium
	if best >= threshold+0.1 {
		severity = models.SeverityHigh
	}
	if best >= 0.95 {
		severity = models.SeverityCritical
	}

	finding, err := models.NewFinding(
		d.Name(),
		models.CategoryMemorization,
		severity,
		confidence,
		fmt.Sprintf("Output reproduces %.0f%% of reference sample %d verbatim (threshold %.0f%%)",
			best*100, bestSample, threshold*100),
	)
	if err != nil {
		return nil, err
	}

	finding.Payload["overlap"] = best
	finding.Payload["threshold"] = threshold
	finding.Payload["sample_index"] = bestSample
	finding.Payload["output_entropy"] = tokenEntropy(outTokens)

	return []*models.Finding{finding}, nil
}
