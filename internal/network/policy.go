package network

import (
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfusion/hybrid-engine/models"
)

// Action indices on the output layer
const (
	ActionBuy  = 0
	ActionSell = 1
	ActionHold = 2

	outputNodes = 3
)

// defaultActionThreshold biases the policy toward inaction: the best Q-value
// must beat this floor on top of beating both rivals, or the choice is HOLD.
const defaultActionThreshold = 0.48

// ActionName maps an output index to its decision label
func ActionName(idx int) string {
	switch idx {
	case ActionBuy:
		return models.ActionBuy
	case ActionSell:
		return models.ActionSell
	default:
		return models.ActionHold
	}
}

// PolicyOptions configures a new policy network
type PolicyOptions struct {
	HiddenNodes     int
	LearningRate    float64
	Epsilon         float64
	ActionThreshold float64
	Seed            int64
}

// PolicyNetwork is a single-hidden-layer Q-network over the 6-scalar state.
// It is not safe for concurrent use; one logical caller owns an instance.
type PolicyNetwork struct {
	inputHidden  [][]float64 // [input][hidden]
	hiddenOutput [][]float64 // [hidden][output]
	hiddenBias   []float64
	outputBias   []float64

	learningRate    float64
	epsilon         float64
	actionThreshold float64
	iterations      int

	rng     *rand.Rand
	persist func(*models.WeightsBundle)
	logger  zerolog.Logger
}

// NewPolicyNetwork creates a policy network with small random weights
func NewPolicyNetwork(opts PolicyOptions) *PolicyNetwork {
	if opts.HiddenNodes <= 0 {
		opts.HiddenNodes = 12
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = 0.05
	}
	if opts.ActionThreshold <= 0 {
		opts.ActionThreshold = defaultActionThreshold
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	inputHidden := make([][]float64, models.StateSize)
	for i := range inputHidden {
		inputHidden[i] = make([]float64, opts.HiddenNodes)
		for j := range inputHidden[i] {
			inputHidden[i][j] = (rng.Float64() - 0.5) * 0.1
		}
	}

	hiddenOutput := make([][]float64, opts.HiddenNodes)
	for i := range hiddenOutput {
		hiddenOutput[i] = make([]float64, outputNodes)
		for j := range hiddenOutput[i] {
			hiddenOutput[i][j] = (rng.Float64() - 0.5) * 0.1
		}
	}

	hiddenBias := make([]float64, opts.HiddenNodes)
	for i := range hiddenBias {
		hiddenBias[i] = (rng.Float64() - 0.5) * 0.1
	}

	outputBias := make([]float64, outputNodes)
	for i := range outputBias {
		outputBias[i] = (rng.Float64() - 0.5) * 0.1
	}

	return &PolicyNetwork{
		inputHidden:     inputHidden,
		hiddenOutput:    hiddenOutput,
		hiddenBias:      hiddenBias,
		outputBias:      outputBias,
		learningRate:    opts.LearningRate,
		epsilon:         opts.Epsilon,
		actionThreshold: opts.ActionThreshold,
		rng:             rng,
		logger:          log.With().Str("component", "policy_network").Logger(),
	}
}

// SetPersistFunc installs the hook invoked after every training step.
// The hook runs synchronously; the caller serializes training calls.
func (n *PolicyNetwork) SetPersistFunc(fn func(*models.WeightsBundle)) {
	n.persist = fn
}

// Predict returns Q-values for BUY, SELL and HOLD. Pure inference.
func (n *PolicyNetwork) Predict(state models.StateVector) [outputNodes]float64 {
	hidden := n.forwardHidden(state)

	var q [outputNodes]float64
	for j := 0; j < outputNodes; j++ {
		sum := n.outputBias[j]
		for i, h := range hidden {
			sum += h * n.hiddenOutput[i][j]
		}
		q[j] = sigmoid(sum)
	}
	return q
}

// ChooseAction applies the epsilon-greedy policy with the asymmetric action
// threshold: explore with probability epsilon, otherwise take the best action
// only when it beats both rivals and the threshold, else HOLD.
func (n *PolicyNetwork) ChooseAction(state models.StateVector) (int, [outputNodes]float64) {
	q := n.Predict(state)

	if n.epsilon > 0 && n.rng.Float64() < n.epsilon {
		return n.rng.Intn(outputNodes), q
	}

	best := 0
	for i := 1; i < outputNodes; i++ {
		if q[i] > q[best] {
			best = i
		}
	}

	for i := 0; i < outputNodes; i++ {
		if i != best && q[i] >= q[best] {
			return ActionHold, q
		}
	}
	if q[best] <= n.actionThreshold {
		return ActionHold, q
	}
	return best, q
}

// Train applies one TD(0) step for the chosen action: the target is
// q + lr*(reward - q), and the single-output error is backpropagated
// through both layers. Weights are updated in place and persisted
// through the installed hook.
func (n *PolicyNetwork) Train(state models.StateVector, actionIdx int, reward float64) {
	if actionIdx < 0 || actionIdx >= outputNodes {
		n.logger.Warn().Int("action", actionIdx).Msg("Ignoring training step with invalid action index")
		return
	}

	hidden := n.forwardHidden(state)

	sum := n.outputBias[actionIdx]
	for i, h := range hidden {
		sum += h * n.hiddenOutput[i][actionIdx]
	}
	q := sigmoid(sum)

	target := q + n.learningRate*(reward-q)
	delta := (target - q) * sigmoidDerivative(q)

	// Output layer
	for i, h := range hidden {
		n.hiddenOutput[i][actionIdx] += n.learningRate * delta * h
	}
	n.outputBias[actionIdx] += n.learningRate * delta

	// Hidden layer through the ReLU mask
	for i := range hidden {
		if hidden[i] <= 0 {
			continue
		}
		hiddenErr := delta * n.hiddenOutput[i][actionIdx]
		for k := 0; k < models.StateSize; k++ {
			n.inputHidden[k][i] += n.learningRate * hiddenErr * state[k]
		}
		n.hiddenBias[i] += n.learningRate * hiddenErr
	}

	n.iterations++

	if n.persist != nil {
		n.persist(n.Export())
	}
}

// Stats reports the network topology and training counters
func (n *PolicyNetwork) Stats() models.ModelStats {
	return models.ModelStats{
		InputNodes:     models.StateSize,
		HiddenNodes:    len(n.hiddenBias),
		OutputNodes:    outputNodes,
		LearningRate:   n.learningRate,
		Epsilon:        n.epsilon,
		DiscountFactor: 0, // episodic TD(0): no discounted next-state term
		Iterations:     n.iterations,
	}
}

// LearningRate returns the current learning rate
func (n *PolicyNetwork) LearningRate() float64 { return n.learningRate }

// Epsilon returns the current exploration rate
func (n *PolicyNetwork) Epsilon() float64 { return n.epsilon }

// Iterations returns the number of completed training steps
func (n *PolicyNetwork) Iterations() int { return n.iterations }

// SetLearningRate adjusts the learning rate, clamped to a sane range
func (n *PolicyNetwork) SetLearningRate(lr float64) {
	if lr < 0.001 {
		lr = 0.001
	}
	if lr > 0.5 {
		lr = 0.5
	}
	n.learningRate = lr
}

// SetEpsilon adjusts the exploration rate, clamped to [0, 0.5]
func (n *PolicyNetwork) SetEpsilon(eps float64) {
	if eps < 0 {
		eps = 0
	}
	if eps > 0.5 {
		eps = 0.5
	}
	n.epsilon = eps
}

func (n *PolicyNetwork) forwardHidden(state models.StateVector) []float64 {
	hidden := make([]float64, len(n.hiddenBias))
	for j := range hidden {
		sum := n.hiddenBias[j]
		for i := 0; i < models.StateSize; i++ {
			sum += state[i] * n.inputHidden[i][j]
		}
		if sum > 0 {
			hidden[j] = sum
		}
	}
	return hidden
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func sigmoidDerivative(y float64) float64 {
	return y * (1.0 - y)
}
