// Package reference provides the shared read/append-mostly stores the
// detectors consult: the reference corpus for memorization checks, the
// identity set for embedding re-identification, and the per-model
// fingerprint history for drift detection.
package reference

import (
	"context"
	"time"
)

// Corpus supplies reference text samples for a model. Used by the memory
// detector to check output text for verbatim training-data overlap.
type Corpus interface {
	Samples(ctx context.Context, modelID string) ([]string, error)
}

// IdentityVector is one labelled embedding in the reference identity set.
type IdentityVector struct {
	Label  string    `json:"label"`
	Vector []float64 `json:"vector"`
}

// IdentitySet supplies the reference identities the embedding detector
// matches against.
type IdentitySet interface {
	Vectors(ctx context.Context) ([]IdentityVector, error)
}

// Fingerprint is the deterministic digest of a model's behavior over the
// probe set, plus the response statistics used to measure drift.
type Fingerprint struct {
	ModelID      string    `json:"model_id"`
	Digest       string    `json:"digest"`
	AvgLength    float64   `json:"avg_length"`
	VocabSize    int       `json:"vocab_size"`
	TokenEntropy float64   `json:"token_entropy"`
	CapturedAt   time.Time `json:"captured_at"`
}

// FingerprintStore holds the last stored fingerprint per model identifier.
// Get returns (nil, nil) when no fingerprint has been stored yet. Put calls
// for the same model are serialized by the implementation so concurrent
// scans of one model cannot corrupt the history.
type FingerprintStore interface {
	Get(ctx context.Context, modelID string) (*Fingerprint, error)
	Put(ctx context.Context, fp *Fingerprint) error
}
