package training

import (
	"math/rand"
	"time"

	"github.com/quantfusion/hybrid-engine/models"
)

// syntheticCandleCount is the length of a generated replacement series
const syntheticCandleCount = 60

// generateSyntheticCandles builds a random-walk candle series centered on the
// trade's entry price, ending at the entry time. This is the documented
// degraded mode for replay when real history cannot be fetched; snapshots
// built from it carry the Synthetic flag so audits can tell them apart.
func generateSyntheticCandles(rng *rand.Rand, entryPrice float64, entryTime time.Time, interval time.Duration) []models.Candle {
	candles := make([]models.Candle, syntheticCandleCount)

	// Walk backward from the entry so the series lands on the entry price
	price := entryPrice
	for i := syntheticCandleCount - 1; i >= 0; i-- {
		drift := (rng.Float64() - 0.5) * 0.01 * price
		open := price - drift
		high := price
		if open > high {
			high = open
		}
		high += rng.Float64() * 0.003 * price
		low := price
		if open < low {
			low = open
		}
		low -= rng.Float64() * 0.003 * price

		candles[i] = models.Candle{
			Time:   entryTime.Add(-time.Duration(syntheticCandleCount-1-i) * interval),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 1000 + rng.Float64()*9000,
		}
		price = open
	}

	return candles
}

// intervalDuration maps an interval label onto its candle spacing
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1min":
		return time.Minute
	case "5min":
		return 5 * time.Minute
	case "15min":
		return 15 * time.Minute
	case "30min":
		return 30 * time.Minute
	case "45min":
		return 45 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "1day":
		return 24 * time.Hour
	case "1week":
		return 7 * 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}
