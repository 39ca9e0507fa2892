package meta

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfusion/hybrid-engine/models"
)

const (
	// maxRecords bounds calibration history; oldest records are evicted
	maxRecords = 500
	// minBucketSamples is the trust floor for a calibration bucket
	minBucketSamples = 5
	// trendWindow is the number of recent outcomes per win-rate window
	trendWindow = 20

	// OptimizeEvery is the training-iteration period for hyperparameter tuning
	OptimizeEvery = 20
	// DiscoverEvery is the training-iteration period for pattern discovery
	DiscoverEvery = 50
)

// Tunable is the slice of the policy network the controller may adjust
type Tunable interface {
	LearningRate() float64
	Epsilon() float64
	SetLearningRate(float64)
	SetEpsilon(float64)
}

// CalibrationRecord pairs a predicted confidence with its realized outcome
type CalibrationRecord struct {
	PredictedConfidence float64
	Won                 bool
}

// Controller calibrates predicted confidence against realized outcomes and
// adaptively tunes the learning hyperparameters. Not safe for concurrent use.
type Controller struct {
	records  []CalibrationRecord
	outcomes []bool // recent win/loss sequence, newest last
	logger   zerolog.Logger
}

// NewController creates an empty meta-learning controller
func NewController() *Controller {
	return &Controller{
		logger: log.With().Str("component", "meta_controller").Logger(),
	}
}

// RecordPrediction appends a calibration record, evicting the oldest when the
// retention bound is reached
func (c *Controller) RecordPrediction(confidence float64, won bool) {
	c.records = append(c.records, CalibrationRecord{PredictedConfidence: confidence, Won: won})
	if len(c.records) > maxRecords {
		c.records = c.records[len(c.records)-maxRecords:]
	}
}

// UpdateMetrics feeds one resolved outcome into the win-rate trend windows and
// the calibration history
func (c *Controller) UpdateMetrics(outcome string, confidence float64) {
	won := outcome == models.OutcomeWin
	c.RecordPrediction(confidence, won)

	c.outcomes = append(c.outcomes, won)
	if len(c.outcomes) > trendWindow*2 {
		c.outcomes = c.outcomes[len(c.outcomes)-trendWindow*2:]
	}
}

// CalibratedConfidence shrinks a raw confidence toward the empirical win rate
// of its calibration bucket. Buckets with too few samples leave the raw value
// untouched.
func (c *Controller) CalibratedConfidence(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 50
	}

	bucket := bucketOf(raw)
	var samples, wins int
	for _, r := range c.records {
		if bucketOf(r.PredictedConfidence) == bucket {
			samples++
			if r.Won {
				wins++
			}
		}
	}
	if samples < minBucketSamples {
		return clampConfidence(raw)
	}

	empirical := float64(wins) / float64(samples) * 100
	weight := math.Min(1, float64(samples)/20.0)
	return clampConfidence(raw*(1-weight) + empirical*weight)
}

// Optimize nudges the learning rate and exploration rate from the recent
// win-rate trend and the calibration gap. Called every OptimizeEvery training
// iterations by the orchestrator.
func (c *Controller) Optimize(policy Tunable) {
	if len(c.outcomes) < trendWindow {
		return
	}

	recent := winRate(c.outcomes[len(c.outcomes)-trendWindow:])
	previous := recent
	if len(c.outcomes) >= trendWindow*2 {
		previous = winRate(c.outcomes[len(c.outcomes)-trendWindow*2 : len(c.outcomes)-trendWindow])
	}

	eps := policy.Epsilon()
	switch {
	case recent >= 0.55 && math.Abs(recent-previous) <= 0.1:
		// Win rate stable and healthy: exploit more
		policy.SetEpsilon(eps * 0.9)
	case recent < 0.45:
		// Losing streak: explore more
		policy.SetEpsilon(eps*1.1 + 0.005)
	}

	gap := c.calibrationGap()
	lr := policy.LearningRate()
	if gap > 20 {
		policy.SetLearningRate(lr * 1.1)
	} else if gap >= 0 {
		policy.SetLearningRate(lr * 0.98)
	}

	c.logger.Debug().
		Float64("recent_win_rate", recent).
		Float64("previous_win_rate", previous).
		Float64("calibration_gap", gap).
		Float64("epsilon", policy.Epsilon()).
		Float64("learning_rate", policy.LearningRate()).
		Msg("Tuned learning hyperparameters")
}

// calibrationGap averages |bucket midpoint - empirical win rate| over trusted
// buckets; -1 when no bucket is trusted yet
func (c *Controller) calibrationGap() float64 {
	type bucketStats struct{ samples, wins int }
	buckets := make(map[int]*bucketStats)
	for _, r := range c.records {
		b := bucketOf(r.PredictedConfidence)
		stats, ok := buckets[b]
		if !ok {
			stats = &bucketStats{}
			buckets[b] = stats
		}
		stats.samples++
		if r.Won {
			stats.wins++
		}
	}

	var total float64
	var trusted int
	for b, stats := range buckets {
		if stats.samples < minBucketSamples {
			continue
		}
		midpoint := float64(b)*10 + 5
		empirical := float64(stats.wins) / float64(stats.samples) * 100
		total += math.Abs(midpoint - empirical)
		trusted++
	}
	if trusted == 0 {
		return -1
	}
	return total / float64(trusted)
}

// DiscoverPatterns clusters training records by their pattern tag into named
// groups with counts, win rates and average PnL proxy. Read-only.
func (c *Controller) DiscoverPatterns(records []models.TrainingDataRecord) []models.DiscoveredPattern {
	type cluster struct {
		trades int
		wins   int
		pnl    float64
	}
	clusters := make(map[string]*cluster)
	for _, r := range records {
		if r.Outcome == models.OutcomePending {
			continue
		}
		name := r.Pattern
		if name == "" {
			name = "UNCLASSIFIED"
		}
		cl, ok := clusters[name]
		if !ok {
			cl = &cluster{}
			clusters[name] = cl
		}
		cl.trades++
		if r.Outcome == models.OutcomeWin {
			cl.wins++
			cl.pnl += r.RiskReward
		} else {
			cl.pnl -= 1.0
		}
	}

	out := make([]models.DiscoveredPattern, 0, len(clusters))
	for name, cl := range clusters {
		out = append(out, models.DiscoveredPattern{
			Name:    name,
			Trades:  cl.trades,
			WinRate: float64(cl.wins) / float64(cl.trades) * 100,
			AvgPnl:  cl.pnl / float64(cl.trades),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trades > out[j].Trades })
	return out
}

// WinRate reports the win rate over all retained outcomes, 0-1
func (c *Controller) WinRate() float64 {
	return winRate(c.outcomes)
}

func winRate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var wins int
	for _, won := range outcomes {
		if won {
			wins++
		}
	}
	return float64(wins) / float64(len(outcomes))
}

func bucketOf(confidence float64) int {
	b := int(confidence / 10)
	if b < 0 {
		b = 0
	}
	if b > 9 {
		b = 9
	}
	return b
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
