package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/notify-triage/internal/api"
	"github.com/ignite/notify-triage/internal/audit"
	"github.com/ignite/notify-triage/internal/classifier"
	"github.com/ignite/notify-triage/internal/config"
	"github.com/ignite/notify-triage/internal/dedup"
	"github.com/ignite/notify-triage/internal/fatigue"
	"github.com/ignite/notify-triage/internal/history"
	"github.com/ignite/notify-triage/internal/pipeline"
	"github.com/ignite/notify-triage/internal/rules"
	"github.com/ignite/notify-triage/internal/schedule"
)

func main() {
	log.Println("notify-triage server (cmd/server/main.go)")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// History store: in-memory by default, Redis when configured.
	var store history.Store
	if cfg.History.RedisURL != "" {
		redisStore, err := history.NewRedisStoreFromURL(ctx, cfg.History.RedisURL, cfg.History.Capacity)
		if err != nil {
			log.Fatalf("Failed to connect history Redis: %v", err)
		}
		store = redisStore
		log.Println("History store: redis")
	} else {
		store = history.NewMemoryStore(cfg.History.Capacity)
		log.Println("History store: in-memory")
	}

	// Audit log: in-memory by default, Postgres when configured.
	var auditLog audit.Log
	if cfg.Audit.DatabaseURL != "" {
		pgLog, err := audit.OpenPostgresLog(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect audit database: %v", err)
		}
		if err := pgLog.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare audit schema: %v", err)
		}
		defer pgLog.Close()
		auditLog = pgLog
		log.Println("Audit log: postgres")
	} else {
		auditLog = audit.NewMemoryLog(cfg.Audit.MaxEntries)
		log.Println("Audit log: in-memory")
	}

	// Rule set, optionally hot-reloaded from disk.
	var ruleSet *rules.RuleSet
	if cfg.Rules.Path != "" {
		ruleSet, err = rules.LoadFile(cfg.Rules.Path)
		if err != nil {
			log.Fatalf("Failed to load rules from %s: %v", cfg.Rules.Path, err)
		}
		log.Printf("Loaded %d rules from %s", len(ruleSet.Rules), cfg.Rules.Path)
	}
	ruleEngine, err := rules.NewEngine(ruleSet)
	if err != nil {
		log.Fatalf("Failed to build rule engine: %v", err)
	}
	if cfg.Rules.Path != "" && cfg.Rules.Watch {
		go func() {
			if err := rules.Watch(ctx, ruleEngine, cfg.Rules.Path); err != nil {
				log.Printf("Rules watcher stopped: %v", err)
			}
		}()
		log.Println("Rules watcher active")
	}

	// Pipeline engine.
	engine := pipeline.New(pipeline.Options{
		History:    store,
		Audit:      auditLog,
		Detector:   dedup.New(store, cfg.Dedupe.Window(), cfg.Dedupe.SimilarityThreshold),
		Classifier: classifier.NewKeyword(),
		Rules:      ruleEngine,
		Fatigue: fatigue.New(fatigue.Config{
			FrequencyWindow:  cfg.Fatigue.FrequencyWindow(),
			FrequencyLimit:   cfg.Fatigue.FrequencyLimit,
			SuppressionLimit: cfg.Fatigue.SuppressionLimit,
			NoiseWindow:      cfg.Fatigue.NoiseWindow(),
			NoiseMaxUrgent:   cfg.Fatigue.NoiseMaxUrgent,
		}),
		Scheduler: schedule.New(schedule.Config{
			QuietHourStart:  cfg.Scheduler.QuietHourStart,
			QuietHourEnd:    cfg.Scheduler.QuietHourEnd,
			QuietResumeHour: cfg.Scheduler.QuietResumeHour,
			BaseBackoff:     cfg.Scheduler.BaseBackoff(),
			DefaultDelay:    cfg.Scheduler.DefaultDelay(),
			WorkingHour:     cfg.Scheduler.WorkingHour,
		}),
	})
	if cfg.Pipeline.ForceFallback {
		engine.SetForceFallback(true)
		log.Println("Classifier starting in forced-fallback mode")
	}

	server := api.NewServer(cfg.Server, engine)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
