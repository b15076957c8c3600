package params

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/talgya/outbreak/internal/entropy"
)

// z975 is the 97.5th percentile of the standard normal.
var z975 = distuv.UnitNormal.Quantile(0.975)

// Model samples the per-individual disease parameters for one replicate.
// It is not safe for concurrent use; each replicate builds its own.
type Model struct {
	cfg Config
	rng *rand.Rand

	asymLoc   float64
	asymScale float64

	propAsym      float64 // cached replicate-level draw
	propAsymDrawn bool
}

// New builds a Model drawing from rng. The configuration is validated without
// group information; callers that know the groups should run Validate first.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}
	groups := make([]string, 0)
	for _, m := range []map[string]float64{
		cfg.PropAsymMultiplier, cfg.SymptomaticR0Multiplier, cfg.AsymptomaticR0Multiplier,
		cfg.IncubationMultiplier, cfg.SusceptibilityMultiplier,
	} {
		groups = append(groups, sortedKeys(m)...)
	}
	if err := cfg.Validate(groups...); err != nil {
		return nil, err
	}

	// prop_asym_carriers is given as a 95% interval of a normal.
	lo, hi := cfg.PropAsymCarriers.Low, cfg.PropAsymCarriers.High
	return &Model{
		cfg:       cfg,
		rng:       rng,
		asymLoc:   (lo + hi) / 2,
		asymScale: (hi - lo) / (2 * z975),
	}, nil
}

// Config returns the parameters the model was built with.
func (m *Model) Config() Config {
	return m.cfg
}

// Interval is the simulation time step used to discretize curves.
func (m *Model) Interval() float64 {
	return m.cfg.Interval
}

// Rand exposes the replicate generator.
func (m *Model) Rand() *rand.Rand {
	return m.rng
}

// DrawPropAsymCarriers redraws the replicate's proportion of asymptomatic
// carriers and returns it for group (multiplier applied, clipped to [0, 1]).
func (m *Model) DrawPropAsymCarriers(group string) float64 {
	v := m.asymLoc
	if m.asymScale > 0 {
		v = distuv.Normal{Mu: m.asymLoc, Sigma: m.asymScale, Src: m.rng}.Rand()
	}
	m.propAsym = clip01(v)
	m.propAsymDrawn = true
	return m.PropAsymCarriers(group)
}

// SetPropAsymCarriers pins the cached proportion.
func (m *Model) SetPropAsymCarriers(v float64) {
	m.propAsym = clip01(v)
	m.propAsymDrawn = true
}

// PropAsymCarriers returns the cached proportion for group, drawing it on
// first use.
func (m *Model) PropAsymCarriers(group string) float64 {
	if !m.propAsymDrawn {
		m.DrawPropAsymCarriers("")
	}
	return clip01(m.propAsym * multiplier(m.cfg.PropAsymMultiplier, group))
}

// DrawIsAsymptomatic is a Bernoulli draw with the cached proportion.
func (m *Model) DrawIsAsymptomatic(group string) bool {
	return entropy.Bernoulli(m.rng, m.PropAsymCarriers(group))
}

// DrawRandomR0 draws a reproduction number from the symptomatic or
// asymptomatic range.
func (m *Model) DrawRandomR0(symptomatic bool, group string) float64 {
	if symptomatic {
		r := m.cfg.SymptomaticR0
		return entropy.Uniform(m.rng, r.Low, r.High) * multiplier(m.cfg.SymptomaticR0Multiplier, group)
	}
	r := m.cfg.AsymptomaticR0
	return entropy.Uniform(m.rng, r.Low, r.High) * multiplier(m.cfg.AsymptomaticR0Multiplier, group)
}

// DrawRandomIncubationPeriod draws an incubation period in days, floored at 0.
func (m *Model) DrawRandomIncubationPeriod(group string) float64 {
	d := m.cfg.Incubation
	var v float64
	switch d.Kind {
	case DistNormal:
		v = d.Loc
		if d.Scale > 0 {
			v = distuv.Normal{Mu: d.Loc, Sigma: d.Scale, Src: m.rng}.Rand()
		}
	default:
		v = distuv.LogNormal{Mu: d.Mean, Sigma: d.Sigma, Src: m.rng}.Rand()
	}
	if v < 0 {
		v = 0
	}
	return v * multiplier(m.cfg.IncubationMultiplier, group)
}

// Susceptibility returns the base susceptibility for a member of group.
func (m *Model) Susceptibility(group string) float64 {
	return m.cfg.Susceptibility * multiplier(m.cfg.SusceptibilityMultiplier, group)
}

func clip01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
