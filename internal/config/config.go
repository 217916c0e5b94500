package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the scanner service.
type Config struct {
	// Service addresses
	HealthPort  string
	NatsURL     string
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	PostgresURL string

	// Scan execution
	DetectorTimeout    time.Duration
	MaxConcurrentScans int
	HistoryLimit       int

	// Detection thresholds (configurable per detector)
	Thresholds DetectionThresholds
}

// DetectionThresholds contains the configurable knobs for each detector.
// Defaults are documented here rather than hard-coded at the call sites.
type DetectionThresholds struct {
	// Memory detector: fraction of a corpus sample reproduced verbatim.
	MemoryOverlapThreshold float64

	// Embedding detector: cosine distance below which a vector matches a
	// reference identity, plus the severity bands inside the match range.
	EmbeddingMatchThreshold   float64
	EmbeddingCriticalDistance float64
	EmbeddingHighDistance     float64
	EmbeddingMediumDistance   float64

	// Fingerprint detector: normalized drift beyond which divergence is a
	// finding.
	FingerprintDriftThreshold float64
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	envPaths := []string{
		".env",
		"../.env",
		"/app/.env", // Docker
	}

	envLoaded := false
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Printf("Loaded config from: %s", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Printf("No .env file found, using environment variables")
	}

	config := &Config{
		HealthPort:  getEnvOrDefault("HEALTH_PORT", "8081"),
		NatsURL:     getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		RedisAddr:   getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPass:   getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:     parseIntOrDefault("REDIS_DB", 0),
		PostgresURL: getEnvOrDefault("POSTGRES_URL", ""),

		DetectorTimeout:    time.Duration(parseIntOrDefault("DETECTOR_TIMEOUT_SECONDS", 300)) * time.Second,
		MaxConcurrentScans: parseIntOrDefault("MAX_CONCURRENT_SCANS", 5),
		HistoryLimit:       parseIntOrDefault("SCAN_HISTORY_LIMIT", 100),

		Thresholds: DetectionThresholds{
			MemoryOverlapThreshold: parseFloatOrDefault("THRESHOLD_MEMORY_OVERLAP", 0.8),

			EmbeddingMatchThreshold:   parseFloatOrDefault("THRESHOLD_EMBEDDING_MATCH", 0.35),
			EmbeddingCriticalDistance: parseFloatOrDefault("THRESHOLD_EMBEDDING_CRITICAL", 0.10),
			EmbeddingHighDistance:     parseFloatOrDefault("THRESHOLD_EMBEDDING_HIGH", 0.20),
			EmbeddingMediumDistance:   parseFloatOrDefault("THRESHOLD_EMBEDDING_MEDIUM", 0.35),

			FingerprintDriftThreshold: parseFloatOrDefault("THRESHOLD_FINGERPRINT_DRIFT", 0.1),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DetectorTimeout <= 0 {
		return fmt.Errorf("DETECTOR_TIMEOUT_SECONDS must be positive")
	}

	if c.MaxConcurrentScans <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_SCANS must be positive")
	}

	t := c.Thresholds
	if t.MemoryOverlapThreshold <= 0 || t.MemoryOverlapThreshold >= 1 {
		return fmt.Errorf("THRESHOLD_MEMORY_OVERLAP must be between 0 and 1 exclusive")
	}

	if t.EmbeddingMatchThreshold <= 0 {
		return fmt.Errorf("THRESHOLD_EMBEDDING_MATCH must be positive")
	}

	if !(t.EmbeddingCriticalDistance <= t.EmbeddingHighDistance &&
		t.EmbeddingHighDistance <= t.EmbeddingMediumDistance &&
		t.EmbeddingMediumDistance <= t.EmbeddingMatchThreshold) {
		return fmt.Errorf("embedding severity bands must be ordered critical <= high <= medium <= match threshold")
	}

	if t.FingerprintDriftThreshold <= 0 {
		return fmt.Errorf("THRESHOLD_FINGERPRINT_DRIFT must be positive")
	}

	return nil
}

// Helper functions
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var result float64
		if _, err := fmt.Sscanf(value, "%f", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
