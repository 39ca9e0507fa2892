package models

import (
	"time"
)

// Action constants for trading decisions
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// Trade outcome constants
const (
	OutcomeWin     = "WIN"
	OutcomeLoss    = "LOSS"
	OutcomeOpen    = "OPEN"
	OutcomePending = "PENDING"
)

// Directional bias constants used by the structural analyzer
const (
	BiasBullish = "BULLISH"
	BiasBearish = "BEARISH"
	BiasNeutral = "NEUTRAL"
)

// Training session status constants
const (
	SessionRunning   = "RUNNING"
	SessionCompleted = "COMPLETED"
	SessionFailed    = "FAILED"
)

// Candle represents a single price candle
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume,omitempty"`
}

// StateSize is the fixed length of a normalized state vector
const StateSize = 6

// StateVector is an ordered set of normalized market features, each in [0,1]:
// RSI, trend-above-MA flag, Bollinger position, volatility proxy, sentiment, momentum.
type StateVector [StateSize]float64

// IndicatorSnapshot holds the indicator values attached to a decision request
type IndicatorSnapshot struct {
	RSI      float64 `json:"rsi"`
	SMA      float64 `json:"sma"`
	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`
	ATR      float64 `json:"atr"`
}

// Signal is the decision record emitted by the fusion engine
type Signal struct {
	ID                string   `json:"id"`
	Symbol            string   `json:"symbol"`
	Type              string   `json:"type"` // BUY, SELL, HOLD
	EntryPrice        float64  `json:"entry_price"`
	StopLoss          float64  `json:"stop_loss,omitempty"`
	TakeProfit        float64  `json:"take_profit,omitempty"`
	Confidence        int      `json:"confidence"` // 0-100
	Reasoning         string   `json:"reasoning"`
	ConfluenceFactors []string `json:"confluence_factors"`
	RiskRewardRatio   float64  `json:"risk_reward_ratio,omitempty"`
	Outcome           string   `json:"outcome"` // PENDING until resolved
}

// MarketSnapshot captures the market context a trade was taken in,
// enough to rebuild the state vector during replay
type MarketSnapshot struct {
	Candles   []Candle `json:"candles"`
	Sentiment float64  `json:"sentiment"` // aggregate score in [-1,1]
	Synthetic bool     `json:"synthetic,omitempty"`
}

// TradeRecord is a historical trade consumed read-only during batch replay
type TradeRecord struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Type       string          `json:"type"` // BUY or SELL
	EntryPrice float64         `json:"entry_price"`
	ExitPrice  float64         `json:"exit_price,omitempty"`
	EntryTime  time.Time       `json:"entry_time"`
	Outcome    string          `json:"outcome"` // WIN, LOSS, OPEN
	Pnl        float64         `json:"pnl"`
	RiskAmount float64         `json:"risk_amount,omitempty"`
	Confidence float64         `json:"confidence,omitempty"` // predicted at entry, 0 if unknown
	Snapshot   *MarketSnapshot `json:"snapshot,omitempty"`
}

// TrainingDataRecord is the flexible historical record shape kept in cloud persistence
type TrainingDataRecord struct {
	ID         string  `json:"id"`
	Pattern    string  `json:"pattern"`
	Outcome    string  `json:"outcome"` // WIN, LOSS, PENDING
	Confluence string  `json:"confluence,omitempty"`
	RiskReward float64 `json:"risk_reward"`
	Note       string  `json:"note,omitempty"`
}

// TrainingSession records one batch or iterative training run
type TrainingSession struct {
	ID              string    `json:"id"`
	TotalTradesUsed int       `json:"total_trades_used"`
	LearningRate    float64   `json:"learning_rate"`
	Epsilon         float64   `json:"epsilon"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
	FinalWinRate    float64   `json:"final_win_rate"`
	Patterns        int       `json:"patterns_discovered"`
	Status          string    `json:"status"` // RUNNING, COMPLETED, FAILED
}

// PatternMemoryEntry aggregates outcomes per discretized state signature
type PatternMemoryEntry struct {
	Signature  string    `json:"signature"`
	WinCount   int       `json:"win_count"`
	LossCount  int       `json:"loss_count"`
	TotalPnl   float64   `json:"total_pnl"`
	AvgPnl     float64   `json:"avg_pnl"`
	Confidence float64   `json:"confidence"` // 0-100
	LastSeen   time.Time `json:"last_seen"`
}

// WeightsBundle is the opaque export/import format for policy network weights.
// All four weight/bias fields must be present for a valid import.
type WeightsBundle struct {
	InputHiddenWeights  [][]float64 `json:"input_hidden_weights"`
	HiddenOutputWeights [][]float64 `json:"hidden_output_weights"`
	HiddenBias          []float64   `json:"hidden_bias"`
	OutputBias          []float64   `json:"output_bias"`
	LearningRate        float64     `json:"learning_rate"`
	Epsilon             float64     `json:"epsilon"`
	ExportedAt          time.Time   `json:"exported_at"`
}

// ModelStats describes the policy network topology and training progress
type ModelStats struct {
	InputNodes     int     `json:"input_nodes"`
	HiddenNodes    int     `json:"hidden_nodes"`
	OutputNodes    int     `json:"output_nodes"`
	LearningRate   float64 `json:"learning_rate"`
	Epsilon        float64 `json:"epsilon"`
	DiscountFactor float64 `json:"discount_factor"`
	Iterations     int     `json:"training_iterations"`
}

// DiscoveredPattern is a named cluster of training records for reporting
type DiscoveredPattern struct {
	Name    string  `json:"name"`
	Trades  int     `json:"trades"`
	WinRate float64 `json:"win_rate"` // 0-100
	AvgPnl  float64 `json:"avg_pnl"`
}

// TrainingProgress is reported during batch replay
type TrainingProgress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	EtaSeconds float64 `json:"eta_seconds"`
}

// BatchResult summarizes a batch replay run
type BatchResult struct {
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	TradesProcessed int    `json:"trades_processed"`
	TradesSkipped   int    `json:"trades_skipped"`
	SyntheticUsed   int    `json:"synthetic_used"`
}

// IterativeResult summarizes an iterative convergence run
type IterativeResult struct {
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	Iterations      int     `json:"iterations"`
	FinalConfidence float64 `json:"final_confidence"`
	EarlyStopped    bool    `json:"early_stopped"`
}
