package network

import (
	"math"
	"math/rand"
)

// lstmCell is a gated recurrent cell with forget/input/cell/output gates,
// sigmoid gate activations and tanh cell-state activation.
type lstmCell struct {
	inputSize  int
	hiddenSize int

	// One weight matrix per gate over the concatenated [input, hidden] vector
	forgetW [][]float64
	inputW  [][]float64
	cellW   [][]float64
	outputW [][]float64

	forgetB []float64
	inputB  []float64
	cellB   []float64
	outputB []float64
}

func newLSTMCell(inputSize, hiddenSize int, rng *rand.Rand) *lstmCell {
	newMatrix := func() [][]float64 {
		m := make([][]float64, hiddenSize)
		for i := range m {
			m[i] = make([]float64, inputSize+hiddenSize)
			for j := range m[i] {
				m[i][j] = (rng.Float64() - 0.5) * 0.2
			}
		}
		return m
	}
	newBias := func(init float64) []float64 {
		b := make([]float64, hiddenSize)
		for i := range b {
			b[i] = init
		}
		return b
	}

	return &lstmCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		forgetW:    newMatrix(),
		inputW:     newMatrix(),
		cellW:      newMatrix(),
		outputW:    newMatrix(),
		forgetB:    newBias(1.0), // forget gate open at init
		inputB:     newBias(0),
		cellB:      newBias(0),
		outputB:    newBias(0),
	}
}

// step advances the cell one timestep, returning the new hidden and cell states
func (c *lstmCell) step(x, hPrev, cPrev []float64) ([]float64, []float64) {
	concat := make([]float64, 0, c.inputSize+c.hiddenSize)
	concat = append(concat, x...)
	concat = append(concat, hPrev...)

	h := make([]float64, c.hiddenSize)
	cNext := make([]float64, c.hiddenSize)

	for i := 0; i < c.hiddenSize; i++ {
		f := sigmoid(dot(c.forgetW[i], concat) + c.forgetB[i])
		in := sigmoid(dot(c.inputW[i], concat) + c.inputB[i])
		g := math.Tanh(dot(c.cellW[i], concat) + c.cellB[i])
		o := sigmoid(dot(c.outputW[i], concat) + c.outputB[i])

		cNext[i] = f*cPrev[i] + in*g
		h[i] = o * math.Tanh(cNext[i])
	}
	return h, cNext
}

// recurrentEncoder stacks two LSTM layers with per-timestep dropout between them
type recurrentEncoder struct {
	layers  []*lstmCell
	dropout float64
	rng     *rand.Rand
}

func newRecurrentEncoder(inputSize, hiddenSize int, dropout float64, rng *rand.Rand) *recurrentEncoder {
	return &recurrentEncoder{
		layers: []*lstmCell{
			newLSTMCell(inputSize, hiddenSize, rng),
			newLSTMCell(hiddenSize, hiddenSize, rng),
		},
		dropout: dropout,
		rng:     rng,
	}
}

// encode runs the sequence through both layers and returns the final hidden
// state of the top layer
func (e *recurrentEncoder) encode(seq [][]float64) []float64 {
	hiddenSize := e.layers[0].hiddenSize

	states := make([][]float64, len(e.layers))
	cells := make([][]float64, len(e.layers))
	for i := range e.layers {
		states[i] = make([]float64, hiddenSize)
		cells[i] = make([]float64, hiddenSize)
	}

	for _, x := range seq {
		input := x
		for li, layer := range e.layers {
			h, c := layer.step(input, states[li], cells[li])
			states[li] = h
			cells[li] = c

			input = h
			if e.dropout > 0 && li < len(e.layers)-1 {
				input = e.applyDropout(h)
			}
		}
	}
	return states[len(states)-1]
}

func (e *recurrentEncoder) applyDropout(h []float64) []float64 {
	out := make([]float64, len(h))
	scale := 1.0 / (1.0 - e.dropout)
	for i, v := range h {
		if e.rng.Float64() >= e.dropout {
			out[i] = v * scale
		}
	}
	return out
}

func dot(w, x []float64) float64 {
	var sum float64
	for i, v := range w {
		sum += v * x[i]
	}
	return sum
}
