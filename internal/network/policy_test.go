package network

import (
	"testing"

	"github.com/quantfusion/hybrid-engine/models"
)

func testState() models.StateVector {
	return models.StateVector{0.7, 1.0, 0.8, 0.3, 0.6, 0.7}
}

func TestPolicyNetworkDeterminism(t *testing.T) {
	opts := PolicyOptions{HiddenNodes: 12, LearningRate: 0.05, Epsilon: 0, Seed: 42}
	a := NewPolicyNetwork(opts)
	b := NewPolicyNetwork(opts)

	state := testState()
	qa := a.Predict(state)
	qb := b.Predict(state)
	if qa != qb {
		t.Errorf("same seed produced different predictions: %v vs %v", qa, qb)
	}

	actionA, _ := a.ChooseAction(state)
	actionB, _ := b.ChooseAction(state)
	if actionA != actionB {
		t.Errorf("same seed produced different actions: %d vs %d", actionA, actionB)
	}
}

func TestPredictOutputRange(t *testing.T) {
	n := NewPolicyNetwork(PolicyOptions{Seed: 7})
	q := n.Predict(testState())
	for i, v := range q {
		if v <= 0 || v >= 1 {
			t.Errorf("q[%d] = %v, want inside (0,1)", i, v)
		}
	}
}

func TestTrainMovesQTowardReward(t *testing.T) {
	tests := []struct {
		name   string
		reward float64
		up     bool
	}{
		{name: "High reward raises the Q-value", reward: 1.0, up: true},
		{name: "Loss reward lowers the Q-value", reward: 0.0, up: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewPolicyNetwork(PolicyOptions{HiddenNodes: 12, LearningRate: 0.1, Seed: 42})
			state := testState()
			before := n.Predict(state)[ActionBuy]

			for i := 0; i < 50; i++ {
				n.Train(state, ActionBuy, tt.reward)
			}

			after := n.Predict(state)[ActionBuy]
			if tt.up && after <= before {
				t.Errorf("Q went %v -> %v, want increase toward reward %v", before, after, tt.reward)
			}
			if !tt.up && after >= before {
				t.Errorf("Q went %v -> %v, want decrease toward reward %v", before, after, tt.reward)
			}
		})
	}
}

func TestTrainIgnoresInvalidAction(t *testing.T) {
	n := NewPolicyNetwork(PolicyOptions{Seed: 42})
	n.Train(testState(), 5, 1.0)
	n.Train(testState(), -1, 1.0)
	if n.Iterations() != 0 {
		t.Errorf("iterations = %d, want 0 after invalid actions", n.Iterations())
	}
}

func TestTrainCountsIterationsAndPersists(t *testing.T) {
	n := NewPolicyNetwork(PolicyOptions{Seed: 42})

	var persisted int
	n.SetPersistFunc(func(bundle *models.WeightsBundle) {
		persisted++
		if len(bundle.HiddenBias) == 0 {
			t.Error("persisted bundle is missing hidden bias")
		}
	})

	for i := 0; i < 3; i++ {
		n.Train(testState(), ActionSell, 0.8)
	}

	if n.Iterations() != 3 {
		t.Errorf("iterations = %d, want 3", n.Iterations())
	}
	if persisted != 3 {
		t.Errorf("persist hook ran %d times, want 3", persisted)
	}
}

func TestChooseActionThreshold(t *testing.T) {
	// With a threshold no sigmoid output can beat, every greedy choice is HOLD
	n := NewPolicyNetwork(PolicyOptions{Seed: 42, ActionThreshold: 0.999})
	for i := 0; i < 10; i++ {
		action, _ := n.ChooseAction(testState())
		if action != ActionHold {
			t.Fatalf("action = %d, want HOLD under an unbeatable threshold", action)
		}
	}
}

func TestHyperparameterClamps(t *testing.T) {
	n := NewPolicyNetwork(PolicyOptions{Seed: 42})

	n.SetLearningRate(5)
	if n.LearningRate() != 0.5 {
		t.Errorf("learning rate = %v, want clamp to 0.5", n.LearningRate())
	}
	n.SetLearningRate(0)
	if n.LearningRate() != 0.001 {
		t.Errorf("learning rate = %v, want clamp to 0.001", n.LearningRate())
	}

	n.SetEpsilon(0.9)
	if n.Epsilon() != 0.5 {
		t.Errorf("epsilon = %v, want clamp to 0.5", n.Epsilon())
	}
	n.SetEpsilon(-1)
	if n.Epsilon() != 0 {
		t.Errorf("epsilon = %v, want clamp to 0", n.Epsilon())
	}
}

func TestActionName(t *testing.T) {
	tests := []struct {
		idx  int
		want string
	}{
		{ActionBuy, models.ActionBuy},
		{ActionSell, models.ActionSell},
		{ActionHold, models.ActionHold},
		{99, models.ActionHold},
	}
	for _, tt := range tests {
		if got := ActionName(tt.idx); got != tt.want {
			t.Errorf("ActionName(%d) = %q, want %q", tt.idx, got, tt.want)
		}
	}
}

func TestStats(t *testing.T) {
	n := NewPolicyNetwork(PolicyOptions{HiddenNodes: 8, LearningRate: 0.07, Epsilon: 0.2, Seed: 42})
	stats := n.Stats()

	if stats.InputNodes != models.StateSize {
		t.Errorf("input nodes = %d, want %d", stats.InputNodes, models.StateSize)
	}
	if stats.HiddenNodes != 8 {
		t.Errorf("hidden nodes = %d, want 8", stats.HiddenNodes)
	}
	if stats.OutputNodes != 3 {
		t.Errorf("output nodes = %d, want 3", stats.OutputNodes)
	}
	if stats.LearningRate != 0.07 || stats.Epsilon != 0.2 {
		t.Errorf("stats carry lr=%v eps=%v, want 0.07/0.2", stats.LearningRate, stats.Epsilon)
	}
}
