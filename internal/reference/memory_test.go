package reference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryStore_Corpus(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	samples, err := s.Samples(ctx, "m1")
	assert.NoError(t, err)
	assert.Empty(t, samples)

	assert.NoError(t, s.AddSample(ctx, "m1", "first sample"))
	assert.NoError(t, s.AddSample(ctx, "m1", "second sample"))
	assert.NoError(t, s.AddSample(ctx, "m2", "other model"))

	samples, err = s.Samples(ctx, "m1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"first sample", "second sample"}, samples)

	// Returned slice is a copy.
	samples[0] = "mutated"
	samples, err = s.Samples(ctx, "m1")
	assert.NoError(t, err)
	assert.Equal(t, "first sample", samples[0])
}

func TestInMemoryStore_Identities(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	vectors, err := s.Vectors(ctx)
	assert.NoError(t, err)
	assert.Empty(t, vectors)

	assert.NoError(t, s.AddIdentity(ctx, IdentityVector{Label: "a", Vector: []float64{1, 0}}))
	assert.NoError(t, s.AddIdentity(ctx, IdentityVector{Label: "b", Vector: []float64{0, 1}}))

	vectors, err = s.Vectors(ctx)
	assert.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, "a", vectors[0].Label)
}

func TestInMemoryStore_Fingerprints(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	// Absent fingerprint is (nil, nil), not an error.
	fp, err := s.Get(ctx, "m1")
	assert.NoError(t, err)
	assert.Nil(t, fp)

	stored := &Fingerprint{
		ModelID:      "m1",
		Digest:       "abc123",
		AvgLength:    4.5,
		VocabSize:    12,
		TokenEntropy: 2.1,
		CapturedAt:   time.Now().UTC(),
	}
	assert.NoError(t, s.Put(ctx, stored))

	fp, err = s.Get(ctx, "m1")
	assert.NoError(t, err)
	assert.Equal(t, "abc123", fp.Digest)
	assert.Equal(t, 12, fp.VocabSize)

	// Returned fingerprint is a copy.
	fp.Digest = "mutated"
	fresh, err := s.Get(ctx, "m1")
	assert.NoError(t, err)
	assert.Equal(t, "abc123", fresh.Digest)

	// Put replaces the previous fingerprint for the model.
	stored.Digest = "def456"
	assert.NoError(t, s.Put(ctx, stored))
	fresh, err = s.Get(ctx, "m1")
	assert.NoError(t, err)
	assert.Equal(t, "def456", fresh.Digest)
}
