package structure

import (
	"time"

	"github.com/quantfusion/hybrid-engine/models"
)

const (
	// swingWindow is the symmetric lookback/lookahead for swing detection
	swingWindow = 5
	// zoneScanDepth bounds the backward scan for the order-block candle
	zoneScanDepth = 8
	// maxZones caps the rolling list of recorded zones
	maxZones = 10
	// retestBuffer widens zones by 0.5% when checking for a retest
	retestBuffer = 0.005
	// minCandles is the evidence floor for structural analysis
	minCandles = 50
)

// Zone is an order block: the last opposite-colored candle before a decisive
// break of swing structure, kept as a price band with the break's direction.
type Zone struct {
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Direction string    `json:"direction"` // BULLISH or BEARISH
	Time      time.Time `json:"time"`
}

// Contains reports whether the price sits inside the zone widened by the
// retest buffer
func (z Zone) Contains(price float64) bool {
	return price >= z.Low*(1-retestBuffer) && price <= z.High*(1+retestBuffer)
}

// Analysis is the structural read of a candle window. Evidence is false when
// the window was too short; the neutral result then means "no evidence".
type Analysis struct {
	Bias              string // BULLISH, BEARISH, NEUTRAL
	Zones             []Zone
	RetestZone        *Zone // zone the current price sits in or near, if any
	NearestSupport    float64
	NearestResistance float64
	Evidence          bool
}

// Analyze detects swing highs/lows, breaks of structure and the order-block
// zones that preceded them. Windows under 50 candles fail soft to a neutral
// read with no zones.
func Analyze(candles []models.Candle) Analysis {
	if len(candles) < minCandles {
		return Analysis{Bias: models.BiasNeutral}
	}

	var (
		zones       []Zone
		bias        = models.BiasNeutral
		trackedHigh = -1 // index of most recent unbroken swing high
		trackedLow  = -1
		swingHighs  []int
		swingLows   []int
	)

	for i := range candles {
		// A swing at j is confirmable once j+swingWindow candles exist
		j := i - swingWindow
		if j >= swingWindow {
			if isSwingHigh(candles, j) {
				trackedHigh = j
				swingHighs = append(swingHighs, j)
			}
			if isSwingLow(candles, j) {
				trackedLow = j
				swingLows = append(swingLows, j)
			}
		}

		closePrice := candles[i].Close

		if trackedHigh >= 0 && closePrice > candles[trackedHigh].High {
			// Break of structure to the upside: the zone is the last bearish
			// candle before the break
			if zone, ok := findZone(candles, i, models.BiasBullish); ok {
				zones = appendZone(zones, zone)
			}
			bias = models.BiasBullish
			trackedHigh = -1
		}

		if trackedLow >= 0 && closePrice < candles[trackedLow].Low {
			if zone, ok := findZone(candles, i, models.BiasBearish); ok {
				zones = appendZone(zones, zone)
			}
			bias = models.BiasBearish
			trackedLow = -1
		}
	}

	price := candles[len(candles)-1].Close

	var retest *Zone
	for i := len(zones) - 1; i >= 0; i-- {
		if zones[i].Contains(price) {
			z := zones[i]
			retest = &z
			break
		}
	}

	support, resistance := nearestLevels(candles, swingHighs, swingLows, zones, price)

	return Analysis{
		Bias:              bias,
		Zones:             zones,
		RetestZone:        retest,
		NearestSupport:    support,
		NearestResistance: resistance,
		Evidence:          true,
	}
}

// isSwingHigh reports whether no candle within the symmetric window has a
// strictly higher high
func isSwingHigh(candles []models.Candle, idx int) bool {
	for i := idx - swingWindow; i <= idx+swingWindow; i++ {
		if i == idx || i < 0 || i >= len(candles) {
			continue
		}
		if candles[i].High > candles[idx].High {
			return false
		}
	}
	return true
}

func isSwingLow(candles []models.Candle, idx int) bool {
	for i := idx - swingWindow; i <= idx+swingWindow; i++ {
		if i == idx || i < 0 || i >= len(candles) {
			continue
		}
		if candles[i].Low < candles[idx].Low {
			return false
		}
	}
	return true
}

// findZone scans backward from the break candle for the last opposite-colored
// candle and records it as the structural zone
func findZone(candles []models.Candle, breakIdx int, direction string) (Zone, bool) {
	for i := breakIdx - 1; i >= 0 && i >= breakIdx-zoneScanDepth; i-- {
		c := candles[i]
		bearish := c.Close < c.Open
		if (direction == models.BiasBullish && bearish) || (direction == models.BiasBearish && !bearish) {
			return Zone{High: c.High, Low: c.Low, Direction: direction, Time: c.Time}, true
		}
	}
	return Zone{}, false
}

func appendZone(zones []Zone, zone Zone) []Zone {
	zones = append(zones, zone)
	if len(zones) > maxZones {
		zones = zones[len(zones)-maxZones:]
	}
	return zones
}

// nearestLevels derives hard support/resistance bounds from swings and zones
func nearestLevels(candles []models.Candle, swingHighs, swingLows []int, zones []Zone, price float64) (float64, float64) {
	support := 0.0
	resistance := 0.0

	for _, idx := range swingLows {
		level := candles[idx].Low
		if level < price && level > support {
			support = level
		}
	}
	for _, idx := range swingHighs {
		level := candles[idx].High
		if level > price && (resistance == 0 || level < resistance) {
			resistance = level
		}
	}
	for _, z := range zones {
		if z.High < price && z.High > support {
			support = z.High
		}
		if z.Low > price && (resistance == 0 || z.Low < resistance) {
			resistance = z.Low
		}
	}
	return support, resistance
}
