package models

import (
	"context"
	"time"
)

// ExchangeClient fetches historical price data. Implemented by internal/exchange;
// callers must treat failures as "fall back to synthetic data" during replay.
type ExchangeClient interface {
	GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]Candle, error)
}

// Store is the best-effort persistence collaborator. Writes are last-write-wins
// and non-transactional; hot-path callers log failures and continue in memory.
type Store interface {
	GetWeights(ctx context.Context) (*WeightsBundle, error)
	SaveWeights(ctx context.Context, bundle *WeightsBundle) error
	GetPatternMemory(ctx context.Context) ([]PatternMemoryEntry, error)
	SavePatternMemory(ctx context.Context, entries []PatternMemoryEntry) error
	GetTrainingData(ctx context.Context) ([]TrainingDataRecord, error)
	SaveTrainingData(ctx context.Context, records []TrainingDataRecord) error
	GetTradeHistory(ctx context.Context) ([]TradeRecord, error)
	SaveTrade(ctx context.Context, trade *TradeRecord) error
	LogTrainingSession(ctx context.Context, session *TrainingSession) error
}
