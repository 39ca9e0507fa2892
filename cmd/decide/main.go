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
	"github.com/quantfusion/hybrid-engine/internal/engine"
	"github.com/quantfusion/hybrid-engine/internal/exchange"
	"github.com/quantfusion/hybrid-engine/internal/memory"
	"github.com/quantfusion/hybrid-engine/internal/meta"
	"github.com/quantfusion/hybrid-engine/internal/network"
	"github.com/quantfusion/hybrid-engine/internal/storage"
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
	log.Info().Str("symbol", cfg.Symbol).Str("interval", cfg.Interval).Msg("Starting decision engine")

	// 3. Exchange client
	client := exchange.NewClient(exchange.ClientOptions{
		APIKey:         cfg.ExchangeAPIKey,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		RequestsPerSec: 5,
	})

	// 4. Learning components, restored from persistence when available
	policy := network.NewPolicyNetwork(network.PolicyOptions{
		HiddenNodes:  cfg.HiddenNodes,
		LearningRate: cfg.LearningRate,
		Epsilon:      cfg.Epsilon,
	})
	mem := memory.New()
	controller := meta.NewController()

	store := connectStore(ctx, cfg, policy, mem)
	if store != nil {
		defer store.Close()
	}

	eng := engine.New(policy, network.NewPatternTemporalNetwork(0), mem, controller)

	// 5. Fetch current market data
	log.Info().Int("count", cfg.CandleCount).Msg("Fetching latest market data...")
	candles, err := client.GetHistoricalCandles(ctx, cfg.Symbol, cfg.Interval, cfg.CandleCount, time.Time{}, time.Time{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch candles")
	}

	// 6. Decide
	decision := eng.Decide(engine.Request{
		Symbol:  cfg.Symbol,
		Candles: candles,
	})

	printSignal(decision)

	// 7. Record actionable signals as open trades so the trainer can replay
	// them once they resolve
	if store != nil && decision.Type != models.ActionHold {
		if err := store.SaveTrade(ctx, openTradeRecord(decision, candles)); err != nil {
			log.Warn().Err(err).Msg("Trade record persistence failed, continuing")
		} else {
			log.Info().Str("id", decision.ID).Msg("Open trade recorded for replay")
		}
	}
}

// openTradeRecord converts an actionable signal into an OPEN trade carrying
// the market snapshot batch replay needs after the trade resolves
func openTradeRecord(decision models.Signal, candles []models.Candle) *models.TradeRecord {
	return &models.TradeRecord{
		ID:         decision.ID,
		Symbol:     decision.Symbol,
		Type:       decision.Type,
		EntryPrice: decision.EntryPrice,
		EntryTime:  time.Now().UTC(),
		Outcome:    models.OutcomeOpen,
		Confidence: float64(decision.Confidence),
		Snapshot:   &models.MarketSnapshot{Candles: candles},
	}
}

// connectStore opens persistence when configured and restores saved state.
// Returns nil when no database is configured; the engine runs in memory.
func connectStore(ctx context.Context, cfg *config.Config, policy *network.PolicyNetwork, mem *memory.PatternMemory) *storage.DB {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("No database configured, running in memory only")
		return nil
	}

	store, err := storage.New(cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("Database unavailable, running in memory only")
		return nil
	}

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

	return store
}

func setupSignalHandling(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutdown signal received, exiting...")
		cancel()
		os.Exit(0)
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

func printSignal(signal models.Signal) {
	fmt.Println("\n===== DECISION =====")
	fmt.Printf("Signal: %s\n", signal.Type)
	fmt.Printf("Confidence: %d%%\n", signal.Confidence)
	fmt.Printf("Reasoning: %s\n", signal.Reasoning)
	if signal.Type != models.ActionHold {
		fmt.Printf("Entry: %.5f\n", signal.EntryPrice)
		fmt.Printf("Stop Loss: %.5f\n", signal.StopLoss)
		fmt.Printf("Take Profit: %.5f\n", signal.TakeProfit)
		fmt.Printf("Risk/Reward: %.2f\n", signal.RiskRewardRatio)
	}
	if len(signal.ConfluenceFactors) > 0 {
		fmt.Println("\nConfluence factors:")
		for _, factor := range signal.ConfluenceFactors {
			fmt.Printf("- %s\n", factor)
		}
	}
}
