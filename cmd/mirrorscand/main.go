package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mlnas/MirrorScan/internal/config"
	"github.com/mlnas/MirrorScan/internal/containment"
	"github.com/mlnas/MirrorScan/internal/detector"
	"github.com/mlnas/MirrorScan/internal/eventbus"
	"github.com/mlnas/MirrorScan/internal/health"
	"github.com/mlnas/MirrorScan/internal/modelclient"
	"github.com/mlnas/MirrorScan/internal/orchestrator"
	"github.com/mlnas/MirrorScan/internal/reference"
	"github.com/mlnas/MirrorScan/internal/store"
)

func main() {
	log.Printf("Starting MirrorScan scanner...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Scan persistence: Postgres when configured, in-memory otherwise.
	var scanStore store.ScanStore
	if cfg.PostgresURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pg.Close()
		scanStore = pg
		log.Printf("Scan store: postgres")
	} else {
		scanStore = store.NewInMemoryStore()
		log.Printf("Scan store: in-memory (POSTGRES_URL not set, scans will not survive restart)")
	}

	// Reference data (corpus, identity vectors, fingerprints): Redis when
	// reachable, in-memory otherwise.
	var (
		corpus       reference.Corpus
		identities   reference.IdentitySet
		fingerprints reference.FingerprintStore
	)
	if rs, err := reference.NewRedisStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB); err != nil {
		log.Printf("Redis unavailable at %s (%v), using in-memory reference data", cfg.RedisAddr, err)
		mem := reference.NewInMemoryStore()
		corpus, identities, fingerprints = mem, mem, mem
	} else {
		defer rs.Close()
		corpus, identities, fingerprints = rs, rs, rs
		log.Printf("Reference store: redis at %s", cfg.RedisAddr)
	}

	registry := detector.Registry{}
	registry.Register(detector.NewMemoryDetector(corpus, cfg.Thresholds.MemoryOverlapThreshold))
	registry.Register(detector.NewEmbeddingDetector(identities, cfg.Thresholds.EmbeddingMatchThreshold, detector.EmbeddingBands{
		Critical: cfg.Thresholds.EmbeddingCriticalDistance,
		High:     cfg.Thresholds.EmbeddingHighDistance,
		Medium:   cfg.Thresholds.EmbeddingMediumDistance,
	}))
	registry.Register(detector.NewRedTeamDetector())
	registry.Register(detector.NewFingerprintDetector(fingerprints, cfg.Thresholds.FingerprintDriftThreshold))
	registry.Register(detector.NewGuardrailDetector())
	log.Printf("Detector registry initialised with %d detectors", len(registry))

	// Events are best-effort: the engine keeps scanning when NATS is down.
	var publisher *eventbus.Publisher
	var eventPublisher orchestrator.EventPublisher
	var policy orchestrator.ContainmentPolicy
	publisher, err = eventbus.NewPublisher(cfg.NatsURL)
	if err != nil {
		log.Printf("NATS unavailable at %s (%v), events and containment disabled", cfg.NatsURL, err)
	} else {
		defer publisher.Close()
		eventPublisher = publisher
		policy = containment.NewDispatcher(eventbus.NewNATSExecutor(publisher), scanStore)
	}

	clients := func(endpoint string) detector.ModelQuerier {
		return modelclient.New(endpoint, 30*time.Second)
	}

	engine := orchestrator.New(registry, scanStore, eventPublisher, policy, clients,
		cfg.DetectorTimeout, cfg.MaxConcurrentScans)

	var subscriber *eventbus.Subscriber
	if publisher != nil {
		subscriber, err = eventbus.NewSubscriber(cfg.NatsURL, engine)
		if err != nil {
			log.Printf("Failed to connect command subscriber: %v", err)
		} else {
			defer subscriber.Close()
			if err := subscriber.Start(); err != nil {
				log.Fatalf("Failed to subscribe to scan commands: %v", err)
			}
		}
	}

	health.NewServer("scanner").Start(cfg.HealthPort)

	log.Printf("Scanner ready (max %d concurrent scans, detector timeout %s)",
		cfg.MaxConcurrentScans, cfg.DetectorTimeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Printf("Shutting down scanner...")
}
