package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfusion/hybrid-engine/config"
	"github.com/quantfusion/hybrid-engine/internal/exchange"
	"github.com/quantfusion/hybrid-engine/internal/memory"
	"github.com/quantfusion/hybrid-engine/internal/meta"
	"github.com/quantfusion/hybrid-engine/internal/network"
	"github.com/quantfusion/hybrid-engine/internal/storage"
	"github.com/quantfusion/hybrid-engine/internal/training"
	"github.com/quantfusion/hybrid-engine/models"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	log.Info().Msg("Starting trainer")

	// 3. Persistence is required for replay, trades come from the database
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required for training")
	}
	store, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer store.Close()

	// 4. Learning components restored from persistence
	policy := network.NewPolicyNetwork(network.PolicyOptions{
		HiddenNodes:  cfg.HiddenNodes,
		LearningRate: cfg.LearningRate,
		Epsilon:      cfg.Epsilon,
	})
	mem := memory.New()
	controller := meta.NewController()

	restoreState(ctx, store, policy, mem)
	installPersistence(ctx, store, policy, mem)

	client := exchange.NewClient(exchange.ClientOptions{
		APIKey:         cfg.ExchangeAPIKey,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec: 5,
	})

	orchestrator := training.New(training.Options{
		Policy:    policy,
		Memory:    mem,
		Meta:      controller,
		Exchange:  client,
		Store:     store,
		Interval:  cfg.Interval,
		BatchSize: cfg.BatchSize,
		Logger:    log.Logger,
	})

	// 5. Load trade history
	trades, err := store.GetTradeHistory(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Trade history unavailable")
	}
	if len(trades) == 0 {
		log.Warn().Msg("No trades to replay, nothing to do")
		return
	}
	log.Info().Int("trades", len(trades)).Msg("Trade history loaded")

	// 6. Iterative training until the memory converges
	result := orchestrator.RunIterative(ctx, trades, cfg.TargetConf, cfg.MaxIterations, func(p models.TrainingProgress) {
		log.Info().
			Int("current", p.Current).
			Int("total", p.Total).
			Float64("percentage", p.Percentage).
			Float64("eta_seconds", p.EtaSeconds).
			Msg("Replay progress")
	})

	printResult(result, policy)
	if !result.Success && result.Error != "" {
		os.Exit(1)
	}
}

func restoreState(ctx context.Context, store *storage.DB, policy *network.PolicyNetwork, mem *memory.PatternMemory) {
	if bundle, err := store.GetWeights(ctx); err != nil {
		log.Warn().Err(err).Msg("Saved weights unavailable")
	} else if bundle != nil {
		if err := policy.Import(bundle); err != nil {
			log.Warn().Err(err).Msg("Saved weights rejected, starting fresh")
		} else {
			log.Info().Time("exported_at", bundle.ExportedAt).Msg("Policy weights restored")
		}
	}

	if entries, err := store.GetPatternMemory(ctx); err != nil {
		log.Warn().Err(err).Msg("Saved pattern memory unavailable")
	} else if len(entries) > 0 {
		mem.Load(entries)
		log.Info().Int("patterns", len(entries)).Msg("Pattern memory restored")
	}
}

func installPersistence(ctx context.Context, store *storage.DB, policy *network.PolicyNetwork, mem *memory.PatternMemory) {
	policy.SetPersistFunc(func(bundle *models.WeightsBundle) {
		if err := store.SaveWeights(ctx, bundle); err != nil {
			log.Warn().Err(err).Msg("Weight persistence failed, continuing in memory")
		}
	})
	mem.SetPersistFunc(func(entries []models.PatternMemoryEntry) {
		if err := store.SavePatternMemory(ctx, entries); err != nil {
			log.Warn().Err(err).Msg("Pattern memory persistence failed, continuing in memory")
		}
	})
}

func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, stopping after current trade...")
		cancel()
	}()
}

func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

func printResult(result models.IterativeResult, policy *network.PolicyNetwork) {
	fmt.Println("\n===== TRAINING RESULT =====")
	fmt.Printf("Converged: %t\n", result.Success)
	fmt.Printf("Iterations: %d\n", result.Iterations)
	fmt.Printf("Final confidence: %.2f\n", result.FinalConfidence)
	if result.EarlyStopped {
		fmt.Println("Stopped early: confidence plateaued")
	}
	if result.Error != "" {
		fmt.Printf("Error: %s\n", result.Error)
	}

	stats := policy.Stats()
	fmt.Printf("\nPolicy network: %d-%d-%d, lr=%.4f eps=%.4f, %d iterations\n",
		stats.InputNodes, stats.HiddenNodes, stats.OutputNodes,
		stats.LearningRate, stats.Epsilon, stats.Iterations)
}
