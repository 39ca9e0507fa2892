package features

import (
	"math"
	"testing"
	"time"

	"github.com/quantfusion/hybrid-engine/models"
)

func generateTestCandles(count int, generator func(i int) models.Candle) []models.Candle {
	candles := make([]models.Candle, count)
	for i := range candles {
		candles[i] = generator(i)
	}
	return candles
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		candles   []models.Candle
		sentiment float64
		check     func(t *testing.T, state models.StateVector)
	}{
		{
			name:      "Empty window collapses to neutral",
			candles:   nil,
			sentiment: 0,
			check: func(t *testing.T, state models.StateVector) {
				for i, v := range state {
					if v != 0.5 {
						t.Errorf("state[%d] = %v, want 0.5", i, v)
					}
				}
			},
		},
		{
			name: "Rising market sets the trend flag",
			candles: generateTestCandles(50, func(i int) models.Candle {
				price := 100 + float64(i)
				return models.Candle{
					Open:  price - 0.5,
					High:  price + 1,
					Low:   price - 1,
					Close: price,
					Time:  time.Now().Add(time.Duration(i) * time.Minute),
				}
			}),
			sentiment: 0,
			check: func(t *testing.T, state models.StateVector) {
				if state[1] != 1.0 {
					t.Errorf("trend flag = %v, want 1.0", state[1])
				}
				if state[0] <= 0.5 {
					t.Errorf("RSI component = %v, want > 0.5 in a rising market", state[0])
				}
				if state[5] <= 0.5 {
					t.Errorf("momentum = %v, want > 0.5 in a rising market", state[5])
				}
			},
		},
		{
			name: "Falling market clears the trend flag",
			candles: generateTestCandles(50, func(i int) models.Candle {
				price := 200 - float64(i)
				return models.Candle{
					Open:  price + 0.5,
					High:  price + 1,
					Low:   price - 1,
					Close: price,
				}
			}),
			sentiment: 0,
			check: func(t *testing.T, state models.StateVector) {
				if state[1] != 0.0 {
					t.Errorf("trend flag = %v, want 0.0", state[1])
				}
				if state[5] >= 0.5 {
					t.Errorf("momentum = %v, want < 0.5 in a falling market", state[5])
				}
			},
		},
		{
			name: "Zero prices stay neutral instead of NaN",
			candles: generateTestCandles(50, func(i int) models.Candle {
				return models.Candle{}
			}),
			sentiment: 0,
			check: func(t *testing.T, state models.StateVector) {
				for i, v := range state {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						t.Errorf("state[%d] = %v, want finite", i, v)
					}
				}
			},
		},
		{
			name: "Sentiment is rescaled from [-1,1] to [0,1]",
			candles: generateTestCandles(30, func(i int) models.Candle {
				return models.Candle{Open: 100, High: 101, Low: 99, Close: 100}
			}),
			sentiment: 1,
			check: func(t *testing.T, state models.StateVector) {
				if state[4] != 1.0 {
					t.Errorf("sentiment component = %v, want 1.0", state[4])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := Extract(tt.candles, tt.sentiment)
			for i, v := range state {
				if v < 0 || v > 1 {
					t.Errorf("state[%d] = %v, out of [0,1]", i, v)
				}
			}
			tt.check(t, state)
		})
	}
}

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name    string
		candles []models.Candle
		want    float64
	}{
		{
			name:    "Not enough data returns the neutral default",
			candles: generateTestCandles(5, func(i int) models.Candle { return models.Candle{Close: 100} }),
			want:    50.0,
		},
		{
			name: "Only gains saturate at 100",
			candles: generateTestCandles(30, func(i int) models.Candle {
				return models.Candle{Close: 100 + float64(i)}
			}),
			want: 100.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateRSI(tt.candles, 14)
			if got != tt.want {
				t.Errorf("CalculateRSI() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateSMA(t *testing.T) {
	candles := generateTestCandles(10, func(i int) models.Candle {
		return models.Candle{Close: float64(i + 1)}
	})

	// Last 5 closes are 6..10
	if got := CalculateSMA(candles, 5); got != 8.0 {
		t.Errorf("CalculateSMA() = %v, want 8.0", got)
	}

	// Window shorter than the period uses everything
	if got := CalculateSMA(candles[:3], 5); got != 2.0 {
		t.Errorf("CalculateSMA() short window = %v, want 2.0", got)
	}
}

func TestCalculateBollingerBands(t *testing.T) {
	candles := generateTestCandles(30, func(i int) models.Candle {
		return models.Candle{Close: 100}
	})

	upper, middle, lower := CalculateBollingerBands(candles, 20, 2.0)
	if upper != 100 || middle != 100 || lower != 100 {
		t.Errorf("flat closes should collapse the bands, got %v/%v/%v", upper, middle, lower)
	}
}

func TestCalculateATR(t *testing.T) {
	candles := generateTestCandles(20, func(i int) models.Candle {
		return models.Candle{High: 102, Low: 98, Close: 100}
	})

	if got := CalculateATR(candles, 14); got != 4.0 {
		t.Errorf("CalculateATR() = %v, want 4.0", got)
	}

	if got := CalculateATR(candles[:1], 14); got != 0 {
		t.Errorf("CalculateATR() single candle = %v, want 0", got)
	}
}
