package exchange

import (
	"fmt"
	"math/rand"
)

// FillModelConfig drives the probabilistic fill behaviour of the venue
// simulator. The seed fixes the pseudo-random stream for a run, so the same
// (data, seed, commands) triple always reproduces identical fills.
type FillModelConfig struct {
	ProbFillOnLimit float64 `yaml:"prob_fill_on_limit"`
	ProbFillOnStop  float64 `yaml:"prob_fill_on_stop"`
	ProbSlippage    float64 `yaml:"prob_slippage"`
	Seed            int64   `yaml:"seed"`
}

func DefaultFillModelConfig() FillModelConfig {
	return FillModelConfig{
		ProbFillOnLimit: 1.0,
		ProbFillOnStop:  1.0,
		ProbSlippage:    0.0,
		Seed:            1,
	}
}

func (c FillModelConfig) Validate() error {
	for name, p := range map[string]float64{
		"prob_fill_on_limit": c.ProbFillOnLimit,
		"prob_fill_on_stop":  c.ProbFillOnStop,
		"prob_slippage":      c.ProbSlippage,
	} {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, p)
		}
	}
	return nil
}

// FillModel owns the engine's only pseudo-random generator. Every probability
// consultation advances the stream by exactly one draw, even for 0 and 1, so
// the draw sequence depends only on the evaluation sequence.
type FillModel struct {
	cfg   FillModelConfig
	rng   *rand.Rand
	draws uint64
}

func NewFillModel(cfg FillModelConfig) (*FillModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &FillModel{cfg: cfg}
	m.Reset()
	return m, nil
}

// Reset re-seeds the stream, restoring the generator to its run-start state.
func (m *FillModel) Reset() {
	m.rng = rand.New(rand.NewSource(m.cfg.Seed)) // #nosec G404
	m.draws = 0
}

func (m *FillModel) LimitFills() bool { return m.bernoulli(m.cfg.ProbFillOnLimit) }
func (m *FillModel) StopFills() bool  { return m.bernoulli(m.cfg.ProbFillOnStop) }
func (m *FillModel) Slips() bool      { return m.bernoulli(m.cfg.ProbSlippage) }

func (m *FillModel) Draws() uint64 { return m.draws }

func (m *FillModel) bernoulli(p float64) bool {
	m.draws++
	return m.rng.Float64() < p
}
