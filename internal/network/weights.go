package network

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantfusion/hybrid-engine/models"
)

// ErrInvalidBundle is returned when an imported weights bundle is missing
// any of the four weight/bias fields or its shapes do not line up.
var ErrInvalidBundle = errors.New("invalid weights bundle")

// Export serializes the network weights into an opaque bundle.
// Exported slices are deep copies; mutating them does not touch the network.
func (n *PolicyNetwork) Export() *models.WeightsBundle {
	return &models.WeightsBundle{
		InputHiddenWeights:  copyMatrix(n.inputHidden),
		HiddenOutputWeights: copyMatrix(n.hiddenOutput),
		HiddenBias:          append([]float64(nil), n.hiddenBias...),
		OutputBias:          append([]float64(nil), n.outputBias...),
		LearningRate:        n.learningRate,
		Epsilon:             n.epsilon,
		ExportedAt:          time.Now().UTC(),
	}
}

// Import replaces the network weights with the bundle contents. A bundle
// missing any weight/bias field is rejected and the network is unchanged.
func (n *PolicyNetwork) Import(bundle *models.WeightsBundle) error {
	if bundle == nil {
		return fmt.Errorf("%w: nil bundle", ErrInvalidBundle)
	}
	if len(bundle.InputHiddenWeights) == 0 {
		return fmt.Errorf("%w: missing input-hidden weights", ErrInvalidBundle)
	}
	if len(bundle.HiddenOutputWeights) == 0 {
		return fmt.Errorf("%w: missing hidden-output weights", ErrInvalidBundle)
	}
	if len(bundle.HiddenBias) == 0 {
		return fmt.Errorf("%w: missing hidden bias", ErrInvalidBundle)
	}
	if len(bundle.OutputBias) == 0 {
		return fmt.Errorf("%w: missing output bias", ErrInvalidBundle)
	}

	if len(bundle.InputHiddenWeights) != models.StateSize {
		return fmt.Errorf("%w: expected %d input rows, got %d", ErrInvalidBundle, models.StateSize, len(bundle.InputHiddenWeights))
	}
	hiddenNodes := len(bundle.HiddenBias)
	for i, row := range bundle.InputHiddenWeights {
		if len(row) != hiddenNodes {
			return fmt.Errorf("%w: input row %d has %d columns, expected %d", ErrInvalidBundle, i, len(row), hiddenNodes)
		}
	}
	if len(bundle.HiddenOutputWeights) != hiddenNodes {
		return fmt.Errorf("%w: expected %d hidden rows, got %d", ErrInvalidBundle, hiddenNodes, len(bundle.HiddenOutputWeights))
	}
	for i, row := range bundle.HiddenOutputWeights {
		if len(row) != outputNodes {
			return fmt.Errorf("%w: hidden row %d has %d columns, expected %d", ErrInvalidBundle, i, len(row), outputNodes)
		}
	}
	if len(bundle.OutputBias) != outputNodes {
		return fmt.Errorf("%w: expected %d output biases, got %d", ErrInvalidBundle, outputNodes, len(bundle.OutputBias))
	}

	n.inputHidden = copyMatrix(bundle.InputHiddenWeights)
	n.hiddenOutput = copyMatrix(bundle.HiddenOutputWeights)
	n.hiddenBias = append([]float64(nil), bundle.HiddenBias...)
	n.outputBias = append([]float64(nil), bundle.OutputBias...)
	if bundle.LearningRate > 0 {
		n.learningRate = bundle.LearningRate
	}
	if bundle.Epsilon >= 0 {
		n.epsilon = bundle.Epsilon
	}

	return nil
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
