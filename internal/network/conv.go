package network

import (
	"math"
	"math/rand"

	"github.com/quantfusion/hybrid-engine/models"
)

// candleFeatureSize is the per-candle feature width fed to the conv front-end
const candleFeatureSize = 8

// convLayer is a stride-1 1D convolution over the candle-feature sequence
type convLayer struct {
	filters [][][]float64 // [outChannels][inChannels][kernel]
	biases  []float64
	kernel  int
}

func newConvLayer(inChannels, outChannels, kernel int, rng *rand.Rand) *convLayer {
	filters := make([][][]float64, outChannels)
	for o := range filters {
		filters[o] = make([][]float64, inChannels)
		for i := range filters[o] {
			filters[o][i] = make([]float64, kernel)
			for k := range filters[o][i] {
				filters[o][i][k] = (rng.Float64() - 0.5) * 0.2
			}
		}
	}
	biases := make([]float64, outChannels)
	for i := range biases {
		biases[i] = (rng.Float64() - 0.5) * 0.1
	}
	return &convLayer{filters: filters, biases: biases, kernel: kernel}
}

// forward applies the convolution with ReLU activation. Input and output are
// time-major: seq[t][channel].
func (l *convLayer) forward(seq [][]float64) [][]float64 {
	if len(seq) < l.kernel {
		return nil
	}
	outLen := len(seq) - l.kernel + 1
	out := make([][]float64, outLen)
	for t := 0; t < outLen; t++ {
		row := make([]float64, len(l.filters))
		for o, filter := range l.filters {
			sum := l.biases[o]
			for i, taps := range filter {
				for k, w := range taps {
					sum += w * seq[t+k][i]
				}
			}
			if sum > 0 {
				row[o] = sum
			}
		}
		out[t] = row
	}
	return out
}

// maxPool downsamples the sequence with non-overlapping windows
func maxPool(seq [][]float64, window int) [][]float64 {
	if len(seq) == 0 {
		return nil
	}
	out := make([][]float64, 0, (len(seq)+window-1)/window)
	for start := 0; start < len(seq); start += window {
		end := start + window
		if end > len(seq) {
			end = len(seq)
		}
		row := make([]float64, len(seq[start]))
		copy(row, seq[start])
		for t := start + 1; t < end; t++ {
			for c, v := range seq[t] {
				if v > row[c] {
					row[c] = v
				}
			}
		}
		out = append(out, row)
	}
	return out
}

// candleFeatures expands each candle into the 8-feature row consumed by the
// conv front-end: body, upper shadow, lower shadow, change, range, log-volume,
// bullish flag, doji flag. Price-derived features are normalized by the close.
func candleFeatures(candles []models.Candle) [][]float64 {
	rows := make([][]float64, 0, len(candles))
	for i, c := range candles {
		price := c.Close
		if price == 0 {
			price = 1
		}

		body := math.Abs(c.Close-c.Open) / price
		upper := (c.High - math.Max(c.Open, c.Close)) / price
		lower := (math.Min(c.Open, c.Close) - c.Low) / price

		change := 0.0
		if i > 0 && candles[i-1].Close != 0 {
			change = (c.Close - candles[i-1].Close) / candles[i-1].Close
		}

		rng := (c.High - c.Low) / price

		logVolume := 0.0
		if c.Volume > 0 {
			logVolume = math.Log1p(c.Volume) / 20.0
		}

		bullish := 0.0
		if c.Close > c.Open {
			bullish = 1.0
		}

		doji := 0.0
		if rng > 0 && body < rng*0.1 {
			doji = 1.0
		}

		rows = append(rows, []float64{body, upper, lower, change, rng, logVolume, bullish, doji})
	}
	return rows
}
