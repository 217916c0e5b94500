package detector

import (
	"context"
	"fmt"
	"math"

	"github.com/mlnas/MirrorScan/internal/models"
	"github.com/mlnas/MirrorScan/internal/reference"
)

// EmbeddingBands maps nearest-neighbor cosine distance to severity.
// Severity scales inversely with distance: the closer the match to a known
// identity, the more serious the re-identification risk.
type EmbeddingBands struct {
	Critical float64 // distance below this is critical
	High     float64
	Medium   float64
}

// EmbeddingDetector matches submitted embedding vectors against the
// reference identity set. A nearest neighbor closer than the match
// threshold is a re-identification finding.
type EmbeddingDetector struct {
	identities     reference.IdentitySet
	matchThreshold float64
	bands          EmbeddingBands
}

func NewEmbeddingDetector(identities reference.IdentitySet, matchThreshold float64, bands EmbeddingBands) *EmbeddingDetector {
	return &EmbeddingDetector{
		identities:     identities,
		matchThreshold: matchThreshold,
		bands:          bands,
	}
}

func (d *EmbeddingDetector) Name() string {
	return "embedding_reidentification"
}

func (d *EmbeddingDetector) Type() models.ScanType {
	return models.ScanTypeEmbedding
}

func (d *EmbeddingDetector) Analyze(ctx context.Context, in *Input) ([]*models.Finding, error) {
	if len(in.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding scan requires embedding vectors")
	}

	identities, err := d.identities.Vectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity set: %w", err)
	}
	if len(identities) == 0 {
		return nil, nil
	}

	threshold := in.Override("embedding_match_threshold", d.matchThreshold)

	var findings []*models.Finding
	for i, vec := range in.Embeddings {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		nearest, label, err := d.nearestIdentity(vec, identities)
		if err != nil {
			return nil, err
		}
		if nearest >= threshold {
			continue
		}

		severity := models.SeverityLow
		switch {
		case nearest < d.bands.Critical:
			severity = models.SeverityCritical
		case nearest < d.bands.High:
			severity = models.SeverityHigh
		case nearest < d.bands.Medium:
			severity = models.SeverityMedium
		}

		confidence := 1.0 - nearest/threshold
		if confidence > 1.0 {
			confidence = 1.0
		}

		finding, err := models.NewFinding(
			d.Name(),
			models.CategoryReidentification,
			severity,
			confidence,
			fmt.Sprintf("Embedding %d matches reference identity %q at distance %.3f (threshold %.3f)",
				i, label, nearest, threshold),
		)
		if err != nil {
			return nil, err
		}

		finding.Payload["vector_index"] = i
		finding.Payload["distance"] = nearest
		finding.Payload["matched_identity"] = label

		findings = append(findings, finding)
	}

	return findings, nil
}

// nearestIdentity returns the smallest cosine distance from vec to any
// identity, plus the matched label.
func (d *EmbeddingDetector) nearestIdentity(vec []float64, identities []reference.IdentityVector) (float64, string, error) {
	best := math.Inf(1)
	label := ""

	for _, id := range identities {
		dist, err := cosineDistance(vec, id.Vector)
		if err != nil {
			return 0, "", err
		}
		if dist < best {
			best = dist
			label = id.Label
		}
	}

	return best, label, nil
}

func cosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 1, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - sim, nil
}
