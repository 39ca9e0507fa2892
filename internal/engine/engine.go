package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfusion/hybrid-engine/internal/features"
	"github.com/quantfusion/hybrid-engine/internal/memory"
	"github.com/quantfusion/hybrid-engine/internal/meta"
	"github.com/quantfusion/hybrid-engine/internal/network"
	"github.com/quantfusion/hybrid-engine/internal/structure"
	"github.com/quantfusion/hybrid-engine/models"
)

// Ensemble weights and adjustments
const (
	patternWeight  = 0.35
	temporalWeight = 0.30
	policyWeight   = 0.25
	memoryWeight   = 0.10

	retestBoost    = 15.0
	biasAgreeBoost = 5.0
	retestCap      = 95.0

	// tradeableThreshold gates signal emission on the combined confidence
	tradeableThreshold = 53.0
	// overridePatternMin and overrideTemporalMin are the sub-score floors an
	// ensemble must clear to overrule a conservative HOLD from the policy
	overridePatternMin  = 55.0
	overrideTemporalMin = 50.0

	stopRangeMult = 1.5
	takeRangeMult = 2.5
)

// Request is a decision request for one market snapshot
type Request struct {
	Symbol    string
	Candles   []models.Candle
	Sentiment []float64 // individual sentiment scores in [-1,1]
}

// Engine fuses the pattern-temporal network, the policy network, the pattern
// memory and the structural analyzer into one hybrid decision. It is an
// explicit service object: construct one per trading context and pass it by
// handle; it owns no global state. Not safe for concurrent use.
type Engine struct {
	policy   *network.PolicyNetwork
	temporal *network.PatternTemporalNetwork
	memory   *memory.PatternMemory
	meta     *meta.Controller
	logger   zerolog.Logger
}

// New creates a decision engine over the injected learning components
func New(policy *network.PolicyNetwork, temporal *network.PatternTemporalNetwork, mem *memory.PatternMemory, controller *meta.Controller) *Engine {
	return &Engine{
		policy:   policy,
		temporal: temporal,
		memory:   mem,
		meta:     controller,
		logger:   log.With().Str("component", "decision_engine").Logger(),
	}
}

// Decide runs all predictors over the snapshot and emits a signal record.
// It never fails: insufficient data degrades to a HOLD with the neutral
// confidence attached.
func (e *Engine) Decide(req Request) models.Signal {
	sentiment := averageSentiment(req.Sentiment)
	state := features.Extract(req.Candles, sentiment)

	prediction := e.temporal.Predict(req.Candles)
	actionIdx, q := e.policy.ChooseAction(state)
	memConfidence := e.memory.GetConfidence(state)
	structural := structure.Analyze(req.Candles)

	fused := e.fuse(prediction, structural, actionIdx, q, memConfidence)

	factors := e.confluenceFactors(prediction, structural, state, actionIdx, fused.overridden, fused.retestAligned, fused.qScore)

	signal := models.Signal{
		ID:                fmt.Sprintf("SIG-%d", time.Now().UnixNano()),
		Symbol:            req.Symbol,
		Type:              network.ActionName(fused.action),
		EntryPrice:        lastClose(req.Candles),
		Confidence:        int(math.Round(fused.confidence)),
		Reasoning:         strings.Join(factors, "; "),
		ConfluenceFactors: factors,
		Outcome:           models.OutcomePending,
	}

	// Final gate: only a non-HOLD action above the threshold is tradeable
	if fused.action == network.ActionHold || fused.confidence < tradeableThreshold {
		signal.Type = models.ActionHold
		return signal
	}

	e.attachRiskLevels(&signal, req.Candles, structural, fused.action)

	e.logger.Info().
		Str("symbol", req.Symbol).
		Str("type", signal.Type).
		Int("confidence", signal.Confidence).
		Bool("override", fused.overridden).
		Msg("Tradeable signal")

	return signal
}

// fusion is the outcome of combining all predictor scores
type fusion struct {
	action        int
	confidence    float64
	qScore        float64
	overridden    bool
	retestAligned bool
}

// fuse combines the four predictor outputs into one hybrid confidence and a
// final action, applying the structural boosts and the HOLD override rule
func (e *Engine) fuse(prediction network.Prediction, structural structure.Analysis, actionIdx int, q [3]float64, memConfidence float64) fusion {
	// Direction hypothesis: the policy's action when it has one, otherwise
	// the direction the pattern/structural evidence points at
	hypothesis := actionIdx
	if hypothesis == network.ActionHold {
		hypothesis = hypothesisFrom(prediction, structural)
	}

	patternScore := directionalScore(prediction.Pattern, hypothesis)
	temporalScore := directionalScore(prediction.Temporal, hypothesis)
	qScore := q[hypothesis] * 100

	combined := patternScore*patternWeight +
		temporalScore*temporalWeight +
		qScore*policyWeight +
		memConfidence*memoryWeight

	retestAligned := structural.RetestZone != nil && zoneMatches(structural.RetestZone.Direction, hypothesis)
	if retestAligned {
		combined = math.Min(combined+retestBoost, retestCap)
	} else if biasMatches(structural.Bias, hypothesis) {
		combined += biasAgreeBoost
	}

	combined = clampConfidence(combined)
	combined = e.meta.CalibratedConfidence(combined)

	// Override: a confident ensemble is not discarded by a conservative HOLD
	action := actionIdx
	overridden := false
	if action == network.ActionHold && hypothesis != network.ActionHold &&
		combined > tradeableThreshold && patternScore > overridePatternMin && temporalScore > overrideTemporalMin {
		action = hypothesis
		overridden = true
	}

	return fusion{
		action:        action,
		confidence:    combined,
		qScore:        qScore,
		overridden:    overridden,
		retestAligned: retestAligned,
	}
}

// Stats reports the policy network topology and training counters
func (e *Engine) Stats() models.ModelStats {
	return e.policy.Stats()
}

// attachRiskLevels derives stop-loss/take-profit from the range-based
// volatility proxy, bounded by structural support/resistance
func (e *Engine) attachRiskLevels(signal *models.Signal, candles []models.Candle, structural structure.Analysis, action int) {
	entry := signal.EntryPrice
	rangeProxy := averageRange(candles, 10)
	if rangeProxy <= 0 {
		rangeProxy = entry * 0.005
	}

	var stop, take float64
	if action == network.ActionBuy {
		stop = entry - rangeProxy*stopRangeMult
		take = entry + rangeProxy*takeRangeMult
		if structural.NearestSupport > 0 && structural.NearestSupport > stop {
			stop = structural.NearestSupport * 0.999
		}
		if structural.NearestResistance > 0 && structural.NearestResistance < take {
			take = structural.NearestResistance
		}
	} else {
		stop = entry + rangeProxy*stopRangeMult
		take = entry - rangeProxy*takeRangeMult
		if structural.NearestResistance > 0 && structural.NearestResistance < stop {
			stop = structural.NearestResistance * 1.001
		}
		if structural.NearestSupport > 0 && structural.NearestSupport > take {
			take = structural.NearestSupport
		}
	}

	signal.StopLoss = stop
	signal.TakeProfit = take

	risk := math.Abs(entry - stop)
	if risk > 0 {
		signal.RiskRewardRatio = math.Abs(take-entry) / risk
	}
}

// confluenceFactors lists every contributing factor in a human-readable form
func (e *Engine) confluenceFactors(prediction network.Prediction, structural structure.Analysis, state models.StateVector, policyAction int, overridden, retestAligned bool, qScore float64) []string {
	var factors []string

	if prediction.PatternName != "" {
		factors = append(factors, fmt.Sprintf("Candlestick pattern %s (pattern score %.0f)", prediction.PatternName, prediction.Pattern))
	} else if prediction.Evidence {
		factors = append(factors, fmt.Sprintf("Pattern network score %.0f", prediction.Pattern))
	} else {
		factors = append(factors, "Insufficient history for pattern network, neutral")
	}

	switch {
	case prediction.Temporal > 60:
		factors = append(factors, fmt.Sprintf("Temporal trend bullish (%.0f)", prediction.Temporal))
	case prediction.Temporal < 40:
		factors = append(factors, fmt.Sprintf("Temporal trend bearish (%.0f)", prediction.Temporal))
	default:
		factors = append(factors, fmt.Sprintf("Temporal trend flat (%.0f)", prediction.Temporal))
	}

	if overridden {
		factors = append(factors, "Policy HOLD overridden by confident ensemble")
	} else {
		factors = append(factors, fmt.Sprintf("Policy network %s (Q %.0f)", network.ActionName(policyAction), qScore))
	}

	signature := memory.IdentifySignature(state)
	factors = append(factors, fmt.Sprintf("Pattern memory %s at %.0f%%", signature, e.memory.GetConfidence(state)))

	if retestAligned {
		factors = append(factors, fmt.Sprintf("Price retesting %s order block", strings.ToLower(structural.RetestZone.Direction)))
	} else if structural.Bias != models.BiasNeutral {
		factors = append(factors, fmt.Sprintf("Structural bias %s", structural.Bias))
	}

	return factors
}

// hypothesisFrom picks the trade direction the non-policy evidence points at
func hypothesisFrom(prediction network.Prediction, structural structure.Analysis) int {
	switch prediction.Direction {
	case models.BiasBullish:
		return network.ActionBuy
	case models.BiasBearish:
		return network.ActionSell
	}
	if structural.RetestZone != nil {
		if structural.RetestZone.Direction == models.BiasBullish {
			return network.ActionBuy
		}
		return network.ActionSell
	}
	switch structural.Bias {
	case models.BiasBullish:
		return network.ActionBuy
	case models.BiasBearish:
		return network.ActionSell
	}
	if prediction.Pattern >= 50 {
		return network.ActionBuy
	}
	return network.ActionSell
}

// directionalScore converts a bullish-centered score into confidence for the
// hypothesized direction
func directionalScore(score float64, action int) float64 {
	if action == network.ActionSell {
		return clampConfidence(100 - score)
	}
	return clampConfidence(score)
}

func zoneMatches(zoneDirection string, action int) bool {
	return (zoneDirection == models.BiasBullish && action == network.ActionBuy) ||
		(zoneDirection == models.BiasBearish && action == network.ActionSell)
}

func biasMatches(bias string, action int) bool {
	return (bias == models.BiasBullish && action == network.ActionBuy) ||
		(bias == models.BiasBearish && action == network.ActionSell)
}

func averageSentiment(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func averageRange(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < period {
		period = len(candles)
	}
	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].High - candles[i].Low
	}
	return sum / float64(period)
}

func lastClose(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}

// clampConfidence keeps a confidence inside [0,100]; non-finite values
// collapse to the neutral 50
func clampConfidence(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 50
	}
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
