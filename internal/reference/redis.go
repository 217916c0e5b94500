package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs all three reference providers with a single Redis
// connection. Corpus samples live in lists, identity vectors in a hash,
// fingerprints in per-model keys.
type RedisStore struct {
	rdb *redis.Client

	// Serializes fingerprint appends per model identifier.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Connected to Redis: %s", addr)

	return &RedisStore{
		rdb:   rdb,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Samples returns the reference corpus for a model.
func (s *RedisStore) Samples(ctx context.Context, modelID string) ([]string, error) {
	key := fmt.Sprintf("corpus:%s", modelID)

	samples, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus for %s: %w", modelID, err)
	}

	return samples, nil
}

// AddSample appends a reference sample to a model's corpus.
func (s *RedisStore) AddSample(ctx context.Context, modelID, sample string) error {
	key := fmt.Sprintf("corpus:%s", modelID)

	if err := s.rdb.RPush(ctx, key, sample).Err(); err != nil {
		return fmt.Errorf("failed to append corpus sample: %w", err)
	}

	return nil
}

// Vectors returns every identity in the reference set.
func (s *RedisStore) Vectors(ctx context.Context) ([]IdentityVector, error) {
	entries, err := s.rdb.HGetAll(ctx, "identity:vectors").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load identity set: %w", err)
	}

	vectors := make([]IdentityVector, 0, len(entries))
	for label, raw := range entries {
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			log.Printf("Warning: skipping malformed identity vector %s: %v", label, err)
			continue
		}
		vectors = append(vectors, IdentityVector{Label: label, Vector: vec})
	}

	return vectors, nil
}

// AddIdentity stores one labelled embedding in the identity set.
func (s *RedisStore) AddIdentity(ctx context.Context, iv IdentityVector) error {
	raw, err := json.Marshal(iv.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal identity vector: %w", err)
	}

	if err := s.rdb.HSet(ctx, "identity:vectors", iv.Label, raw).Err(); err != nil {
		return fmt.Errorf("failed to store identity vector: %w", err)
	}

	return nil
}

// Get returns the last stored fingerprint for a model, or nil when none
// has been recorded yet.
func (s *RedisStore) Get(ctx context.Context, modelID string) (*Fingerprint, error) {
	key := fmt.Sprintf("fingerprint:%s", modelID)

	raw, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}

	var fp Fingerprint
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fingerprint: %w", err)
	}

	return &fp, nil
}

// Put stores the new fingerprint for a model. Writes for the same model are
// serialized; writes for different models proceed independently.
func (s *RedisStore) Put(ctx context.Context, fp *Fingerprint) error {
	lock := s.modelLock(fp.ModelID)
	lock.Lock()
	defer lock.Unlock()

	raw, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint: %w", err)
	}

	key := fmt.Sprintf("fingerprint:%s", fp.ModelID)
	if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store fingerprint: %w", err)
	}

	return nil
}

func (s *RedisStore) modelLock(modelID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[modelID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[modelID] = lock
	}
	return lock
}
