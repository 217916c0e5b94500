package detector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mlnas/MirrorScan/internal/models"
	"github.com/mlnas/MirrorScan/internal/reference"
)

// Fixed probe set: the fingerprint digest is only comparable across scans
// if every scan asks the same questions in the same order.
var fingerprintProbes = []string{
	"Describe your purpose in one sentence.",
	"What is the capital of France?",
	"Summarize the concept of machine learning.",
	"List three primary colors.",
	"Complete the sentence: the quick brown fox",
	"What year did the second world war end?",
}

// FingerprintDetector compares a behavioral fingerprint of the target model
// against the last stored fingerprint for the same model identifier. This is
// the only detector with a side effect beyond findings: it persists the new
// fingerprint after comparing.
type FingerprintDetector struct {
	store          reference.FingerprintStore
	driftThreshold float64
}

func NewFingerprintDetector(store reference.FingerprintStore, driftThreshold float64) *FingerprintDetector {
	return &FingerprintDetector{
		store:          store,
		driftThreshold: driftThreshold,
	}
}

func (d *FingerprintDetector) Name() string {
	return "drift_fingerprint"
}

func (d *FingerprintDetector) Type() models.ScanType {
	return models.ScanTypeFingerprint
}

func (d *FingerprintDetector) Analyze(ctx context.Context, in *Input) ([]*models.Finding, error) {
	if in.Model == nil {
		return nil, fmt.Errorf("fingerprint scan requires a target model endpoint")
	}

	current, err := d.capture(ctx, in.Model, in.TargetModel)
	if err != nil {
		return nil, err
	}

	previous, err := d.store.Get(ctx, in.TargetModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored fingerprint: %w", err)
	}

	var findings []*models.Finding
	if previous != nil && previous.Digest != current.Digest {
		threshold := in.Override("fingerprint_drift_threshold", d.driftThreshold)
		drift := driftScore(previous, current)

		if drift > threshold {
			severity := models.SeverityMedium
			if drift > 2*threshold {
				severity = models.SeverityHigh
			}

			confidence := drift / (2 * threshold)
			if confidence > 1.0 {
				confidence = 1.0
			}

			finding, err := models.NewFinding(
				d.Name(),
				models.CategoryDrift,
				severity,
				confidence,
				fmt.Sprintf("Behavioral fingerprint diverged: drift %.3f over threshold %.3f since %s",
					drift, threshold, previous.CapturedAt.Format(time.RFC3339)),
			)
			if err != nil {
				return nil, err
			}

			finding.Payload["drift"] = drift
			finding.Payload["threshold"] = threshold
			finding.Payload["previous_digest"] = previous.Digest
			finding.Payload["current_digest"] = current.Digest

			findings = append(findings, finding)
		}
	}

	if err := d.store.Put(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to persist fingerprint: %w", err)
	}

	return findings, nil
}

// capture queries the probe set and digests the normalized responses.
func (d *FingerprintDetector) capture(ctx context.Context, model ModelQuerier, modelID string) (*reference.Fingerprint, error) {
	hasher := sha256.New()
	var allTokens []string
	totalLen := 0

	for _, prompt := range fingerprintProbes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		response, err := model.Query(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("probe %q failed: %w", prompt, err)
		}

		normalized := strings.Join(tokenize(response), " ")
		hasher.Write([]byte(normalized))
		hasher.Write([]byte{0})

		tokens := tokenize(response)
		allTokens = append(allTokens, tokens...)
		totalLen += len(tokens)
	}

	avgLen := float64(totalLen) / float64(len(fingerprintProbes))

	return &reference.Fingerprint{
		ModelID:      modelID,
		Digest:       hex.EncodeToString(hasher.Sum(nil)),
		AvgLength:    avgLen,
		VocabSize:    vocabSize(allTokens),
		TokenEntropy: tokenEntropy(allTokens),
		CapturedAt:   time.Now().UTC(),
	}, nil
}

// driftScore measures how far the response statistics moved between two
// fingerprints, normalized to roughly [0, 1] per dimension.
func driftScore(prev, cur *reference.Fingerprint) float64 {
	lenDrift := relativeDiff(prev.AvgLength, cur.AvgLength)
	vocabDrift := relativeDiff(float64(prev.VocabSize), float64(cur.VocabSize))
	entropyDrift := relativeDiff(prev.TokenEntropy, cur.TokenEntropy)

	return (lenDrift + vocabDrift + entropyDrift) / 3
}

func relativeDiff(a, b float64) float64 {
	larger := math.Max(math.Abs(a), math.Abs(b))
	if larger == 0 {
		return 0
	}
	return math.Abs(a-b) / larger
}
