package features

import (
	"math"

	"github.com/quantfusion/hybrid-engine/models"
)

const (
	rsiPeriod      = 14
	trendPeriod    = 20
	bbPeriod       = 20
	bbStdDev       = 2.0
	atrPeriod      = 14
	momentumPeriod = 5
)

// Extract turns a candle window plus aggregate sentiment into a fixed-length
// normalized state vector. Pure function; degenerate denominators yield a
// neutral 0.5 and components are always clamped to [0,1].
func Extract(candles []models.Candle, sentiment float64) models.StateVector {
	var state models.StateVector

	if len(candles) == 0 {
		for i := range state {
			state[i] = 0.5
		}
		return state
	}

	last := candles[len(candles)-1].Close

	// 1. RSI, scaled to [0,1]
	state[0] = clamp01(CalculateRSI(candles, rsiPeriod) / 100.0)

	// 2. Trend flag: close above the long moving average
	sma := CalculateSMA(candles, trendPeriod)
	if sma > 0 && last > sma {
		state[1] = 1.0
	}

	// 3. Position inside the Bollinger band
	upper, _, lower := CalculateBollingerBands(candles, bbPeriod, bbStdDev)
	width := upper - lower
	if width == 0 {
		state[2] = 0.5
	} else {
		state[2] = clamp01((last - lower) / width)
	}

	// 4. Volatility proxy: ATR as a fraction of price, 5% range maps to 1.0
	atr := CalculateATR(candles, atrPeriod)
	if last == 0 {
		state[3] = 0.5
	} else {
		state[3] = clamp01(atr / last * 20.0)
	}

	// 5. Sentiment from [-1,1] to [0,1]
	state[4] = clamp01((sentiment + 1.0) / 2.0)

	// 6. Short-term momentum centered on 0.5
	if len(candles) > momentumPeriod {
		prev := candles[len(candles)-1-momentumPeriod].Close
		if prev == 0 {
			state[5] = 0.5
		} else {
			change := (last - prev) / prev
			state[5] = clamp01(0.5 + change*10.0)
		}
	} else {
		state[5] = 0.5
	}

	// NaN anywhere collapses to the neutral default
	for i := range state {
		if math.IsNaN(state[i]) || math.IsInf(state[i], 0) {
			state[i] = 0.5
		}
	}

	return state
}

// CalculateRSI computes the Relative Strength Index over the candle window
func CalculateRSI(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0 // Default value if not enough data
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Smooth the rest of the window
	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - change) / float64(period)
		}
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// CalculateSMA computes a simple moving average of closes
func CalculateSMA(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	if len(candles) < period {
		period = len(candles)
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// CalculateBollingerBands returns upper, middle and lower bands
func CalculateBollingerBands(candles []models.Candle, period int, stdDev float64) (float64, float64, float64) {
	if len(candles) < period {
		last := candles[len(candles)-1].Close
		return last, last, last // Collapse to last close if not enough data
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	middle := sum / float64(period)

	var variance float64
	for i := len(candles) - period; i < len(candles); i++ {
		variance += math.Pow(candles[i].Close-middle, 2)
	}
	sd := math.Sqrt(variance / float64(period))

	upper := middle + (sd * stdDev)
	lower := middle - (sd * stdDev)

	return upper, middle, lower
}

// CalculateATR computes the Average True Range over the candle window
func CalculateATR(candles []models.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}
	if len(candles) < period+1 {
		period = len(candles) - 1
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowClose := math.Abs(candles[i].Low - candles[i-1].Close)
		sum += math.Max(highLow, math.Max(highClose, lowClose))
	}
	return sum / float64(period)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
