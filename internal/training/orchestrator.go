package training

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfusion/hybrid-engine/internal/features"
	"github.com/quantfusion/hybrid-engine/internal/memory"
	"github.com/quantfusion/hybrid-engine/internal/meta"
	"github.com/quantfusion/hybrid-engine/internal/network"
	"github.com/quantfusion/hybrid-engine/models"
)

const (
	// minReplayCandles is the floor below which a reconstructed snapshot
	// is too short to yield meaningful indicator values
	minReplayCandles = 20
	// replayFetchLimit is how many candles we request per trade replay
	replayFetchLimit = 60
	// replayFetchTimeout bounds a single historical fetch
	replayFetchTimeout = 10 * time.Second
	// progressEvery controls how often the progress callback fires
	progressEvery = 3

	defaultTargetConfidence = 70.0
	defaultMaxIterations    = 10
	// noImprovementPatience is how many consecutive passes with a gain
	// below noImprovementGain stop an iterative run early
	noImprovementPatience = 5
	noImprovementGain     = 0.5
)

// Reward shaping constants. Wins score above the sigmoid midpoint scaled by
// realized risk-reward; losses land at a fixed low target.
const (
	rewardWinBase  = 0.8
	rewardWinPerRR = 0.1
	rewardWinMaxRR = 3.0
	rewardLoss     = 0.2
)

// TradeOutcome is one resolved trade fed into a single learning step
type TradeOutcome struct {
	Candles    []models.Candle
	Sentiment  float64
	ActionType string // BUY or SELL
	Outcome    string // WIN or LOSS
	Pnl        float64
	RiskAmount float64
	Confidence float64 // predicted at entry, 0 if unknown
}

// ProgressFunc receives replay progress updates
type ProgressFunc func(models.TrainingProgress)

// Orchestrator drives all learning flows: single-trade updates, batch replay
// over trade history and iterative convergence runs. Training entry points
// are serialized; decision traffic is not blocked by an in-flight run.
type Orchestrator struct {
	policy    *network.PolicyNetwork
	memory    *memory.PatternMemory
	meta      *meta.Controller
	exchange  models.ExchangeClient
	store     models.Store
	interval  string
	batchSize int
	rng       *rand.Rand
	logger    zerolog.Logger

	mu sync.Mutex
}

// Options configures an Orchestrator
type Options struct {
	Policy    *network.PolicyNetwork
	Memory    *memory.PatternMemory
	Meta      *meta.Controller
	Exchange  models.ExchangeClient // optional, synthetic fallback when nil
	Store     models.Store          // optional, sessions are best-effort
	Interval  string
	BatchSize int
	Seed      int64
	Logger    zerolog.Logger
}

func New(opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.Interval == "" {
		opts.Interval = "5min"
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Orchestrator{
		policy:    opts.Policy,
		memory:    opts.Memory,
		meta:      opts.Meta,
		exchange:  opts.Exchange,
		store:     opts.Store,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		rng:       rand.New(rand.NewSource(seed)),
		logger:    opts.Logger.With().Str("component", "training").Logger(),
	}
}

// RewardFor maps a trade outcome onto a target in (0,1). Wins scale with the
// realized risk-reward ratio, capped so an outsized trade cannot dominate.
func RewardFor(outcome string, pnl, riskAmount float64) float64 {
	if outcome == models.OutcomeWin {
		rr := 0.0
		if riskAmount > 0 {
			rr = pnl / riskAmount
		}
		if rr > rewardWinMaxRR {
			rr = rewardWinMaxRR
		}
		if rr < 0 {
			rr = 0
		}
		return rewardWinBase + rr*rewardWinPerRR
	}
	return rewardLoss
}

// TrainOne applies a single learning step from one resolved trade: the policy
// network moves toward the shaped reward, pattern memory records the outcome
// and the meta controller updates its calibration and win-rate tracking.
func (o *Orchestrator) TrainOne(out TradeOutcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.trainOneLocked(out)
}

func (o *Orchestrator) trainOneLocked(out TradeOutcome) error {
	if out.Outcome != models.OutcomeWin && out.Outcome != models.OutcomeLoss {
		return fmt.Errorf("trade outcome %q is not resolved", out.Outcome)
	}
	if len(out.Candles) == 0 {
		return fmt.Errorf("no candles to extract state from")
	}

	state := features.Extract(out.Candles, out.Sentiment)
	reward := RewardFor(out.Outcome, out.Pnl, out.RiskAmount)

	actionIdx := network.ActionHold
	switch out.ActionType {
	case models.ActionBuy:
		actionIdx = network.ActionBuy
	case models.ActionSell:
		actionIdx = network.ActionSell
	}

	o.policy.Train(state, actionIdx, reward)
	o.memory.RecordOutcome(state, out.Outcome, out.Pnl)
	o.meta.UpdateMetrics(out.Outcome, out.Confidence)

	iter := o.policy.Iterations()
	if iter%meta.OptimizeEvery == 0 {
		o.meta.Optimize(o.policy)
		o.logger.Debug().
			Int("iterations", iter).
			Float64("learning_rate", o.policy.LearningRate()).
			Float64("epsilon", o.policy.Epsilon()).
			Msg("hyperparameters tuned")
	}
	if iter%meta.DiscoverEvery == 0 {
		o.discoverPatterns()
	}
	return nil
}

// discoverPatterns is best-effort reporting over stored training records
func (o *Orchestrator) discoverPatterns() {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), replayFetchTimeout)
	defer cancel()
	records, err := o.store.GetTrainingData(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("pattern discovery skipped, training data unavailable")
		return
	}
	patterns := o.meta.DiscoverPatterns(records)
	for _, p := range patterns {
		o.logger.Info().
			Str("pattern", p.Name).
			Int("trades", p.Trades).
			Float64("win_rate", p.WinRate).
			Float64("avg_pnl", p.AvgPnl).
			Msg("pattern discovered")
	}
}

// RunBatch replays historical trades through the learning step in small
// batches, yielding between batches so a long run stays cooperative. Trades
// that cannot be replayed are skipped and counted, never aborting the run.
func (o *Orchestrator) RunBatch(ctx context.Context, trades []models.TradeRecord, progress ProgressFunc) models.BatchResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runBatchLocked(ctx, trades, progress)
}

func (o *Orchestrator) runBatchLocked(ctx context.Context, trades []models.TradeRecord, progress ProgressFunc) models.BatchResult {
	session := &models.TrainingSession{
		ID:           fmt.Sprintf("TS-%d", time.Now().UnixNano()),
		LearningRate: o.policy.LearningRate(),
		Epsilon:      o.policy.Epsilon(),
		StartedAt:    time.Now().UTC(),
		Status:       models.SessionRunning,
	}
	o.logSession(session)

	result := models.BatchResult{}
	started := time.Now()
	total := len(trades)

	for i, trade := range trades {
		if err := ctx.Err(); err != nil {
			result.Error = err.Error()
			o.finishSession(session, result)
			return result
		}

		if out, ok := o.replayTrade(ctx, trade, &result); ok {
			if err := o.trainOneLocked(out); err != nil {
				o.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("trade skipped")
				result.TradesSkipped++
			} else {
				result.TradesProcessed++
			}
		} else {
			result.TradesSkipped++
		}

		if progress != nil && ((i+1)%progressEvery == 0 || i+1 == total) {
			done := i + 1
			elapsed := time.Since(started).Seconds()
			eta := 0.0
			if done > 0 && done < total {
				eta = elapsed / float64(done) * float64(total-done)
			}
			progress(models.TrainingProgress{
				Current:    done,
				Total:      total,
				Percentage: float64(done) / float64(total) * 100,
				EtaSeconds: eta,
			})
		}

		if (i+1)%o.batchSize == 0 {
			runtime.Gosched()
		}
	}

	result.Success = true
	o.finishSession(session, result)
	o.logger.Info().
		Int("processed", result.TradesProcessed).
		Int("skipped", result.TradesSkipped).
		Int("synthetic", result.SyntheticUsed).
		Msg("batch replay complete")
	return result
}

// replayTrade reconstructs the market context a trade was taken in. Captured
// snapshots are preferred, then a historical fetch ending at entry time, then
// a synthetic series built around the entry price.
func (o *Orchestrator) replayTrade(ctx context.Context, trade models.TradeRecord, result *models.BatchResult) (TradeOutcome, bool) {
	if trade.Outcome != models.OutcomeWin && trade.Outcome != models.OutcomeLoss {
		return TradeOutcome{}, false
	}

	out := TradeOutcome{
		ActionType: trade.Type,
		Outcome:    trade.Outcome,
		Pnl:        trade.Pnl,
		RiskAmount: trade.RiskAmount,
		Confidence: trade.Confidence,
	}

	if trade.Snapshot != nil && len(trade.Snapshot.Candles) >= minReplayCandles {
		out.Candles = trade.Snapshot.Candles
		out.Sentiment = trade.Snapshot.Sentiment
		return out, true
	}

	if o.exchange != nil && trade.Symbol != "" && !trade.EntryTime.IsZero() {
		fetchCtx, cancel := context.WithTimeout(ctx, replayFetchTimeout)
		candles, err := o.exchange.GetHistoricalCandles(fetchCtx, trade.Symbol, o.interval, replayFetchLimit, time.Time{}, trade.EntryTime)
		cancel()
		if err == nil && len(candles) >= minReplayCandles {
			out.Candles = candles
			return out, true
		}
		if err != nil {
			o.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("historical fetch failed, trying synthetic")
		}
	}

	if trade.EntryPrice <= 0 {
		o.logger.Warn().Str("trade_id", trade.ID).Msg("trade not replayable, no snapshot and no entry price")
		return TradeOutcome{}, false
	}

	entryTime := trade.EntryTime
	if entryTime.IsZero() {
		entryTime = time.Now().UTC()
	}
	out.Candles = generateSyntheticCandles(o.rng, trade.EntryPrice, entryTime, intervalDuration(o.interval))
	result.SyntheticUsed++
	return out, true
}

// RunIterative repeats batch replay over the same trade set until aggregate
// pattern-memory confidence reaches the target, the iteration cap is hit or
// several consecutive passes show no meaningful gain.
func (o *Orchestrator) RunIterative(ctx context.Context, trades []models.TradeRecord, target float64, maxIterations int, progress ProgressFunc) models.IterativeResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if target <= 0 {
		target = defaultTargetConfidence
	}
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	result := models.IterativeResult{}
	plateau := newPlateauDetector(o.memory.AggregateConfidence(), noImprovementGain, noImprovementPatience)

	for i := 1; i <= maxIterations; i++ {
		batch := o.runBatchLocked(ctx, trades, progress)
		result.Iterations = i
		if !batch.Success {
			result.Error = batch.Error
			result.FinalConfidence = o.memory.AggregateConfidence()
			return result
		}

		conf := o.memory.AggregateConfidence()
		result.FinalConfidence = conf
		o.logger.Info().
			Int("iteration", i).
			Float64("aggregate_confidence", conf).
			Float64("target", target).
			Msg("iterative pass complete")

		if conf >= target {
			result.Success = true
			return result
		}
		if plateau.observe(conf) {
			result.EarlyStopped = true
			o.logger.Info().Int("iteration", i).Msg("iterative run stopped early, confidence plateaued")
			return result
		}
	}
	return result
}

// plateauDetector flags a run whose pass-over-pass confidence gain has stayed
// below minGain for patience consecutive passes.
type plateauDetector struct {
	prev     float64
	minGain  float64
	patience int
	stale    int
}

func newPlateauDetector(initial, minGain float64, patience int) *plateauDetector {
	return &plateauDetector{prev: initial, minGain: minGain, patience: patience}
}

// observe records one completed pass and reports whether the run plateaued.
// Gain is measured against the previous pass, not the best so far, so slow
// steady improvement still counts as a plateau.
func (p *plateauDetector) observe(conf float64) bool {
	if conf-p.prev < p.minGain {
		p.stale++
	} else {
		p.stale = 0
	}
	p.prev = conf
	return p.stale >= p.patience
}

func (o *Orchestrator) logSession(session *models.TrainingSession) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), replayFetchTimeout)
	defer cancel()
	if err := o.store.LogTrainingSession(ctx, session); err != nil {
		o.logger.Warn().Err(err).Msg("training session log failed")
	}
}

func (o *Orchestrator) finishSession(session *models.TrainingSession, result models.BatchResult) {
	session.CompletedAt = time.Now().UTC()
	session.TotalTradesUsed = result.TradesProcessed
	session.LearningRate = o.policy.LearningRate()
	session.Epsilon = o.policy.Epsilon()
	session.FinalWinRate = o.meta.WinRate()
	session.Patterns = o.memory.Size()
	if result.Success {
		session.Status = models.SessionCompleted
	} else {
		session.Status = models.SessionFailed
	}
	o.logSession(session)
}
