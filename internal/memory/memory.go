package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfusion/hybrid-engine/models"
)

// minObservations is the trust floor: signatures seen fewer times report the
// neutral default instead of their stored confidence.
const minObservations = 3

const neutralConfidence = 50.0

// IdentifySignature discretizes a state vector into a coarse categorical tag.
// Identical states always map to the same signature; collisions across similar
// states are the point, they make statistical aggregation possible.
func IdentifySignature(state models.StateVector) string {
	parts := make([]string, 0, 4)

	switch {
	case state[0] < 0.3:
		parts = append(parts, "RSI_OVERSOLD")
	case state[0] > 0.7:
		parts = append(parts, "RSI_OVERBOUGHT")
	default:
		parts = append(parts, "RSI_NEUTRAL")
	}

	switch {
	case state[1] >= 0.5:
		parts = append(parts, "UPTREND")
	case state[5] <= 0.45:
		parts = append(parts, "DOWNTREND")
	default:
		parts = append(parts, "SIDEWAYS")
	}

	switch {
	case state[2] < 0.33:
		parts = append(parts, "BB_LOW")
	case state[2] > 0.66:
		parts = append(parts, "BB_HIGH")
	default:
		parts = append(parts, "BB_MID")
	}

	if state[3] > 0.5 {
		parts = append(parts, "VOL_HIGH")
	} else {
		parts = append(parts, "VOL_LOW")
	}

	return strings.Join(parts, "|")
}

// PatternMemory aggregates trade outcomes per state signature. Entries grow
// monotonically and are never deleted. Not safe for concurrent use; one
// logical caller owns an instance.
type PatternMemory struct {
	entries map[string]*models.PatternMemoryEntry
	persist func([]models.PatternMemoryEntry)
	logger  zerolog.Logger
}

// New creates an empty pattern memory
func New() *PatternMemory {
	return &PatternMemory{
		entries: make(map[string]*models.PatternMemoryEntry),
		logger:  log.With().Str("component", "pattern_memory").Logger(),
	}
}

// SetPersistFunc installs the hook invoked after every recorded outcome
func (m *PatternMemory) SetPersistFunc(fn func([]models.PatternMemoryEntry)) {
	m.persist = fn
}

// Load seeds the memory from persisted entries, replacing current state
func (m *PatternMemory) Load(entries []models.PatternMemoryEntry) {
	m.entries = make(map[string]*models.PatternMemoryEntry, len(entries))
	for _, e := range entries {
		entry := e
		m.entries[e.Signature] = &entry
	}
	m.logger.Debug().Int("entries", len(entries)).Msg("Loaded pattern memory")
}

// RecordOutcome upserts the entry for the state's signature with one more
// observed outcome and recomputes the running PnL average and confidence.
func (m *PatternMemory) RecordOutcome(state models.StateVector, outcome string, pnl float64) {
	signature := IdentifySignature(state)

	entry, ok := m.entries[signature]
	if !ok {
		entry = &models.PatternMemoryEntry{Signature: signature}
		m.entries[signature] = entry
	}

	if outcome == models.OutcomeWin {
		entry.WinCount++
	} else {
		entry.LossCount++
	}
	entry.TotalPnl += pnl

	total := entry.WinCount + entry.LossCount
	entry.AvgPnl = entry.TotalPnl / float64(total)
	entry.Confidence = float64(entry.WinCount) / float64(total) * 100
	entry.LastSeen = time.Now().UTC()

	if m.persist != nil {
		m.persist(m.Entries())
	}
}

// GetConfidence returns the stored confidence for the state's signature once
// it has at least 3 observations, otherwise the neutral 50.
func (m *PatternMemory) GetConfidence(state models.StateVector) float64 {
	entry, ok := m.entries[IdentifySignature(state)]
	if !ok {
		return neutralConfidence
	}
	if entry.WinCount+entry.LossCount < minObservations {
		return neutralConfidence
	}
	return entry.Confidence
}

// AggregateConfidence averages confidence across trusted signatures; with no
// trusted signature it reports the neutral default. Used by iterative training
// as its convergence measure.
func (m *PatternMemory) AggregateConfidence() float64 {
	var sum float64
	var count int
	for _, entry := range m.entries {
		if entry.WinCount+entry.LossCount >= minObservations {
			sum += entry.Confidence
			count++
		}
	}
	if count == 0 {
		return neutralConfidence
	}
	return sum / float64(count)
}

// Entries returns a stable snapshot of all memory entries
func (m *PatternMemory) Entries() []models.PatternMemoryEntry {
	out := make([]models.PatternMemoryEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	return out
}

// Size reports the number of distinct signatures seen so far
func (m *PatternMemory) Size() int {
	return len(m.entries)
}
