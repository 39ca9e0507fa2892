package meta

import (
	"math"
	"testing"

	"github.com/quantfusion/hybrid-engine/models"
)

// fakeTunable records hyperparameter changes without a real network
type fakeTunable struct {
	lr  float64
	eps float64
}

func (f *fakeTunable) LearningRate() float64     { return f.lr }
func (f *fakeTunable) Epsilon() float64          { return f.eps }
func (f *fakeTunable) SetLearningRate(v float64) { f.lr = v }
func (f *fakeTunable) SetEpsilon(v float64)      { f.eps = v }

func TestCalibratedConfidence(t *testing.T) {
	t.Run("Raw value passes through with no history", func(t *testing.T) {
		c := NewController()
		if got := c.CalibratedConfidence(75); got != 75 {
			t.Errorf("calibrated = %v, want untouched 75", got)
		}
	})

	t.Run("Sparse bucket leaves the raw value untouched", func(t *testing.T) {
		c := NewController()
		for i := 0; i < 4; i++ {
			c.RecordPrediction(75, false)
		}
		if got := c.CalibratedConfidence(75); got != 75 {
			t.Errorf("calibrated = %v, want untouched 75 below the sample floor", got)
		}
	})

	t.Run("Full weight pulls to the empirical rate", func(t *testing.T) {
		c := NewController()
		for i := 0; i < 20; i++ {
			c.RecordPrediction(75, false)
		}
		// 20 samples means full weight on an empirical 0% win rate
		if got := c.CalibratedConfidence(75); got != 0 {
			t.Errorf("calibrated = %v, want 0 after 20 losses in the bucket", got)
		}
	})

	t.Run("Half weight blends raw and empirical", func(t *testing.T) {
		c := NewController()
		for i := 0; i < 10; i++ {
			c.RecordPrediction(75, false)
		}
		if got := c.CalibratedConfidence(75); got != 37.5 {
			t.Errorf("calibrated = %v, want 37.5 at half weight", got)
		}
	})

	t.Run("Non-finite input collapses to neutral", func(t *testing.T) {
		c := NewController()
		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			if got := c.CalibratedConfidence(v); got != 50 {
				t.Errorf("CalibratedConfidence(%v) = %v, want 50", v, got)
			}
		}
	})
}

func TestRecordPredictionBounded(t *testing.T) {
	c := NewController()
	for i := 0; i < 600; i++ {
		c.RecordPrediction(55, true)
	}
	if len(c.records) != 500 {
		t.Errorf("records = %d, want eviction down to 500", len(c.records))
	}
}

func TestOptimize(t *testing.T) {
	tests := []struct {
		name        string
		outcomes    []string
		wantEpsDown bool
		wantEpsUp   bool
	}{
		{
			name:        "Stable winning exploits more",
			outcomes:    repeat(models.OutcomeWin, 20),
			wantEpsDown: true,
		},
		{
			name:      "Losing explores more",
			outcomes:  repeat(models.OutcomeLoss, 20),
			wantEpsUp: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController()
			for _, outcome := range tt.outcomes {
				c.UpdateMetrics(outcome, 75)
			}

			policy := &fakeTunable{lr: 0.05, eps: 0.1}
			c.Optimize(policy)

			if tt.wantEpsDown && policy.eps >= 0.1 {
				t.Errorf("epsilon = %v, want below 0.1", policy.eps)
			}
			if tt.wantEpsUp && policy.eps <= 0.1 {
				t.Errorf("epsilon = %v, want above 0.1", policy.eps)
			}
		})
	}
}

func TestOptimizeNeedsEnoughHistory(t *testing.T) {
	c := NewController()
	for i := 0; i < 5; i++ {
		c.UpdateMetrics(models.OutcomeWin, 75)
	}

	policy := &fakeTunable{lr: 0.05, eps: 0.1}
	c.Optimize(policy)

	if policy.lr != 0.05 || policy.eps != 0.1 {
		t.Errorf("hyperparameters changed with too little history: lr=%v eps=%v", policy.lr, policy.eps)
	}
}

func TestOptimizeRaisesLearningRateOnBadCalibration(t *testing.T) {
	c := NewController()
	// Predicted 75 while losing everything: calibration gap 75 > 20
	for i := 0; i < 20; i++ {
		c.UpdateMetrics(models.OutcomeLoss, 75)
	}

	policy := &fakeTunable{lr: 0.05, eps: 0.1}
	c.Optimize(policy)

	if policy.lr <= 0.05 {
		t.Errorf("learning rate = %v, want raised above 0.05", policy.lr)
	}
}

func TestWinRate(t *testing.T) {
	c := NewController()
	if got := c.WinRate(); got != 0 {
		t.Errorf("win rate of empty history = %v, want 0", got)
	}

	c.UpdateMetrics(models.OutcomeWin, 60)
	c.UpdateMetrics(models.OutcomeWin, 60)
	c.UpdateMetrics(models.OutcomeLoss, 60)
	c.UpdateMetrics(models.OutcomeLoss, 60)

	if got := c.WinRate(); got != 0.5 {
		t.Errorf("win rate = %v, want 0.5", got)
	}
}

func TestDiscoverPatterns(t *testing.T) {
	c := NewController()
	records := []models.TrainingDataRecord{
		{ID: "1", Pattern: "BULLISH_ENGULFING", Outcome: models.OutcomeWin, RiskReward: 2.0},
		{ID: "2", Pattern: "BULLISH_ENGULFING", Outcome: models.OutcomeWin, RiskReward: 1.5},
		{ID: "3", Pattern: "BULLISH_ENGULFING", Outcome: models.OutcomeLoss, RiskReward: 2.0},
		{ID: "4", Pattern: "DOJI", Outcome: models.OutcomeLoss, RiskReward: 1.0},
		{ID: "5", Pattern: "", Outcome: models.OutcomeWin, RiskReward: 1.0},
		{ID: "6", Pattern: "HAMMER", Outcome: models.OutcomePending, RiskReward: 1.0},
	}

	patterns := c.DiscoverPatterns(records)
	if len(patterns) != 3 {
		t.Fatalf("patterns = %d, want 3 (pending excluded, empty renamed)", len(patterns))
	}

	top := patterns[0]
	if top.Name != "BULLISH_ENGULFING" {
		t.Errorf("top pattern = %q, want the most traded one", top.Name)
	}
	if top.Trades != 3 {
		t.Errorf("top trades = %d, want 3", top.Trades)
	}
	wantWinRate := 2.0 / 3.0 * 100
	if diff := top.WinRate - wantWinRate; diff > 0.001 || diff < -0.001 {
		t.Errorf("top win rate = %v, want %v", top.WinRate, wantWinRate)
	}

	for _, p := range patterns {
		if p.Name == "HAMMER" {
			t.Error("pending-only pattern should be excluded")
		}
	}
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
