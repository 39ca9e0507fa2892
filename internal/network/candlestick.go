package network

import (
	"math"

	"github.com/quantfusion/hybrid-engine/models"
)

// Candlestick pattern names reported by detection
const (
	PatternHammer       = "HAMMER"
	PatternShootingStar = "SHOOTING_STAR"
	PatternBullEngulf   = "BULLISH_ENGULFING"
	PatternBearEngulf   = "BEARISH_ENGULFING"
	PatternDoji         = "DOJI"
	PatternBullRun      = "THREE_CANDLE_ADVANCE"
	PatternBearRun      = "THREE_CANDLE_DECLINE"
)

// DetectCandlestickPattern inspects the last 3 candles for a named pattern.
// Returns the pattern name, whether it is bullish, and whether one was found.
// A doji counts as found but carries the direction of the preceding candle.
func DetectCandlestickPattern(candles []models.Candle) (string, bool, bool) {
	if len(candles) < 3 {
		return "", false, false
	}

	c1 := candles[len(candles)-3]
	c2 := candles[len(candles)-2]
	c3 := candles[len(candles)-1] // most recent

	body1 := math.Abs(c1.Close - c1.Open)
	body2 := math.Abs(c2.Close - c2.Open)
	body3 := math.Abs(c3.Close - c3.Open)
	avgBody := (body1 + body2 + body3) / 3

	bullish1 := c1.Close > c1.Open
	bullish2 := c2.Close > c2.Open
	bullish3 := c3.Close > c3.Open

	upperWick := c3.High - math.Max(c3.Open, c3.Close)
	lowerWick := math.Min(c3.Open, c3.Close) - c3.Low
	totalRange := c3.High - c3.Low

	// Engulfing: current body swallows the previous one in the opposite direction
	if bullish3 && !bullish2 && c3.Open < c2.Close && c3.Close > c2.Open && body3 > body2*1.2 {
		return PatternBullEngulf, true, true
	}
	if !bullish3 && bullish2 && c3.Open > c2.Close && c3.Close < c2.Open && body3 > body2*1.2 {
		return PatternBearEngulf, false, true
	}

	// Pin bars
	if lowerWick > body3*2 && upperWick < body3*0.5 {
		return PatternHammer, true, true
	}
	if upperWick > body3*2 && lowerWick < body3*0.5 {
		return PatternShootingStar, false, true
	}

	// Three-candle continuation
	if bullish1 && bullish2 && bullish3 {
		return PatternBullRun, true, true
	}
	if !bullish1 && !bullish2 && !bullish3 {
		return PatternBearRun, false, true
	}

	// Doji: tiny body inside a real range, direction taken from the prior candle
	if totalRange > 0 && avgBody > 0 && body3 < avgBody*0.3 && (upperWick > body3 || lowerWick > body3) {
		return PatternDoji, bullish2, true
	}

	return "", false, false
}
