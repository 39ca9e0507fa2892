package network

import (
	"math"
	"math/rand"
	"time"

	"github.com/quantfusion/hybrid-engine/internal/features"
	"github.com/quantfusion/hybrid-engine/models"
)

const (
	convChannels1 = 16
	convChannels2 = 8
	convKernel    = 3
	poolWindow    = 2
	encoderHidden = 16
	encoderDrop   = 0.1

	// minFeatureRows is the evidence floor: below it the network reports a
	// neutral triple instead of a real prediction
	minFeatureRows = 10
)

// Prediction is the pattern-temporal network output. Evidence is false when
// the window was too short to say anything: callers must treat such a neutral
// triple as "no evidence", not as a low-confidence prediction.
type Prediction struct {
	Pattern     float64 // 0-100, >50 bullish
	Temporal    float64 // 0-100, >50 bullish
	Confidence  float64 // 0-100
	Direction   string  // BULLISH, BEARISH, NEUTRAL
	PatternName string
	Features    []float64
	Evidence    bool
}

// PatternTemporalNetwork couples a convolutional front-end with a gated
// recurrent encoder and a sigmoid dense head. Its weights are fixed at random
// initialization: raw network output only seasons the deterministic heuristics
// that carry the actual decision (70/30 blend on the temporal side, candlestick
// overrides on the pattern side). That split is deliberate, so the network has
// no training path.
type PatternTemporalNetwork struct {
	conv1   *convLayer
	conv2   *convLayer
	encoder *recurrentEncoder

	headWeights [][]float64 // [2][encoderHidden]
	headBias    []float64
}

// NewPatternTemporalNetwork builds the network with the given seed; the same
// seed always produces the same weights.
func NewPatternTemporalNetwork(seed int64) *PatternTemporalNetwork {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	head := make([][]float64, 2)
	for i := range head {
		head[i] = make([]float64, encoderHidden)
		for j := range head[i] {
			head[i][j] = (rng.Float64() - 0.5) * 0.2
		}
	}
	headBias := []float64{(rng.Float64() - 0.5) * 0.1, (rng.Float64() - 0.5) * 0.1}

	return &PatternTemporalNetwork{
		conv1:       newConvLayer(candleFeatureSize, convChannels1, convKernel, rng),
		conv2:       newConvLayer(convChannels1, convChannels2, convKernel, rng),
		encoder:     newRecurrentEncoder(convChannels2, encoderHidden, encoderDrop, rng),
		headWeights: head,
		headBias:    headBias,
	}
}

// Predict scores the candle window. Fewer than 10 feature rows yields the
// neutral 50/50/50 triple with an empty feature vector.
func (n *PatternTemporalNetwork) Predict(candles []models.Candle) Prediction {
	rows := candleFeatures(candles)
	if len(rows) < minFeatureRows {
		return Prediction{Pattern: 50, Temporal: 50, Confidence: 50, Direction: models.BiasNeutral}
	}

	rawPattern, rawTemporal, encoded := n.forward(rows)

	// Temporal score: 70% trend-deviation heuristic, 30% network output
	temporal := 0.7*trendDeviationScore(candles) + 0.3*rawTemporal
	temporal = applyRSIClamp(temporal, candles)

	// Pattern score: candlestick detection overrides the raw network output
	pattern := rawPattern
	patternName, bullish, found := DetectCandlestickPattern(candles)
	if found {
		if bullish {
			pattern = math.Max(75, rawPattern)
		} else {
			pattern = math.Min(25, rawPattern)
		}
	}

	pattern = clampScore(pattern)
	temporal = clampScore(temporal)

	direction := models.BiasNeutral
	if pattern > 55 && temporal > 50 {
		direction = models.BiasBullish
	} else if pattern < 45 && temporal < 50 {
		direction = models.BiasBearish
	}

	return Prediction{
		Pattern:     pattern,
		Temporal:    temporal,
		Confidence:  clampScore((pattern + temporal) / 2),
		Direction:   direction,
		PatternName: patternName,
		Features:    encoded,
		Evidence:    true,
	}
}

// forward runs conv -> pool -> conv -> pool -> encoder -> sigmoid head and
// returns the two raw scores on the 0-100 scale plus the encoded hidden state.
func (n *PatternTemporalNetwork) forward(rows [][]float64) (float64, float64, []float64) {
	seq := n.conv1.forward(rows)
	seq = maxPool(seq, poolWindow)
	seq = n.conv2.forward(seq)
	seq = maxPool(seq, poolWindow)
	if len(seq) == 0 {
		return 50, 50, nil
	}

	encoded := n.encoder.encode(seq)

	pattern := sigmoid(dot(n.headWeights[0], encoded)+n.headBias[0]) * 100
	temporal := sigmoid(dot(n.headWeights[1], encoded)+n.headBias[1]) * 100
	return pattern, temporal, encoded
}

// trendDeviationScore maps the distance of the last close from a short moving
// average onto a signed 0-100 score centered at 50.
func trendDeviationScore(candles []models.Candle) float64 {
	sma := features.CalculateSMA(candles, 10)
	if sma == 0 {
		return 50
	}
	last := candles[len(candles)-1].Close
	deviation := (last - sma) / sma
	return clampScore(50 + deviation*1000)
}

// applyRSIClamp keeps the temporal score from chasing exhausted moves: an
// extreme RSI caps the score on the side of the extreme.
func applyRSIClamp(score float64, candles []models.Candle) float64 {
	rsi := features.CalculateRSI(candles, 14)
	if rsi > 85 {
		return math.Min(score, 45)
	}
	if rsi < 15 {
		return math.Max(score, 55)
	}
	return score
}

func clampScore(v float64) float64 {
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
