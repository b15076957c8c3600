// Package params holds the distribution parameters of the outbreak model and
// the sampling primitives built on them: asymptomatic proportion, R0,
// incubation period and transmission curves.
package params

import (
	"errors"
	"fmt"
	"sort"
)

// Distribution kinds for the incubation period.
const (
	DistLognormal = "lognormal"
	DistNormal    = "normal"
)

// Transmissibility curve shapes.
const (
	ModeNormal    = "normal"
	ModePiecewise = "piecewise"
)

// ErrInvalidConfig wraps every configuration problem reported by Validate.
var ErrInvalidConfig = errors.New("invalid model configuration")

// Range is a closed interval [Low, High].
type Range struct {
	Low  float64 `mapstructure:"low" json:"low"`
	High float64 `mapstructure:"high" json:"high"`
}

// Distribution describes the incubation-period distribution. Mean and Sigma
// are the log-scale parameters of the lognormal; Loc and Scale parameterize
// the normal.
type Distribution struct {
	Kind  string  `mapstructure:"kind" json:"kind"`
	Mean  float64 `mapstructure:"mean" json:"mean,omitempty"`
	Sigma float64 `mapstructure:"sigma" json:"sigma,omitempty"`
	Loc   float64 `mapstructure:"loc" json:"loc,omitempty"`
	Scale float64 `mapstructure:"scale" json:"scale,omitempty"`
}

// Piecewise shapes the triangular transmissibility curve.
// Start and Peak are proportions of the incubation period (symptomatic) or of
// the drawn duration (asymptomatic). Duration is the infectious period after
// symptom onset for symptomatic carriers and the whole infectious period for
// asymptomatic ones.
type Piecewise struct {
	Start    float64 `mapstructure:"start" json:"start"`
	Peak     float64 `mapstructure:"peak" json:"peak"`
	Duration Range   `mapstructure:"duration" json:"duration"`
}

// Config is the validated parameter surface consumed by Model.
type Config struct {
	Interval float64 `mapstructure:"interval" json:"interval"` // simulation time step, days

	PropAsymCarriers   Range              `mapstructure:"prop_asym_carriers" json:"prop_asym_carriers"` // 95% interval
	PropAsymMultiplier map[string]float64 `mapstructure:"prop_asym_multiplier" json:"prop_asym_multiplier,omitempty"`

	SymptomaticR0            Range              `mapstructure:"symptomatic_r0" json:"symptomatic_r0"`
	SymptomaticR0Multiplier  map[string]float64 `mapstructure:"symptomatic_r0_multiplier" json:"symptomatic_r0_multiplier,omitempty"`
	AsymptomaticR0           Range              `mapstructure:"asymptomatic_r0" json:"asymptomatic_r0"`
	AsymptomaticR0Multiplier map[string]float64 `mapstructure:"asymptomatic_r0_multiplier" json:"asymptomatic_r0_multiplier,omitempty"`

	Incubation           Distribution       `mapstructure:"incubation_period" json:"incubation_period"`
	IncubationMultiplier map[string]float64 `mapstructure:"incubation_period_multiplier" json:"incubation_period_multiplier,omitempty"`

	Susceptibility           float64            `mapstructure:"susceptibility" json:"susceptibility"`
	SusceptibilityMultiplier map[string]float64 `mapstructure:"susceptibility_multiplier" json:"susceptibility_multiplier,omitempty"`

	Transmissibility string    `mapstructure:"transmissibility_model" json:"transmissibility_model"`
	Piecewise        Piecewise `mapstructure:"piecewise" json:"piecewise"`
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Interval:         1.0 / 24,
		PropAsymCarriers: Range{Low: 0.10, High: 0.40},
		SymptomaticR0:    Range{Low: 1.4, High: 2.8},
		AsymptomaticR0:   Range{Low: 0.14, High: 0.28},
		Incubation: Distribution{
			Kind:  DistLognormal,
			Mean:  1.621,
			Sigma: 0.418,
			Loc:   4.6,
			Scale: 1.5,
		},
		Susceptibility:   1,
		Transmissibility: ModeNormal,
		Piecewise: Piecewise{
			Start:    0.5,
			Peak:     1.0,
			Duration: Range{Low: 4, High: 9},
		},
	}
}

// Validate checks the parameters against the known group names. Multipliers
// may only name groups that exist; the default group is "".
func (c Config) Validate(groups ...string) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Interval <= 0 {
		bad("interval must be positive, got %v", c.Interval)
	}
	checkRange := func(name string, r Range, lo, hi float64) {
		if r.Low > r.High {
			bad("%s: low %v exceeds high %v", name, r.Low, r.High)
		}
		if r.Low < lo || r.High > hi {
			bad("%s: [%v, %v] outside [%v, %v]", name, r.Low, r.High, lo, hi)
		}
	}
	checkRange("prop_asym_carriers", c.PropAsymCarriers, 0, 1)
	checkRange("symptomatic_r0", c.SymptomaticR0, 0, 1e6)
	checkRange("asymptomatic_r0", c.AsymptomaticR0, 0, 1e6)

	switch c.Incubation.Kind {
	case DistLognormal:
		if c.Incubation.Sigma < 0 {
			bad("incubation_period: sigma must be non-negative")
		}
	case DistNormal:
		if c.Incubation.Scale < 0 {
			bad("incubation_period: scale must be non-negative")
		}
	default:
		bad("incubation_period: unsupported distribution %q", c.Incubation.Kind)
	}

	if c.Susceptibility < 0 {
		bad("susceptibility must be non-negative, got %v", c.Susceptibility)
	}

	switch c.Transmissibility {
	case ModeNormal:
	case ModePiecewise:
		p := c.Piecewise
		if p.Start < 0 || p.Peak < p.Start {
			bad("piecewise: need 0 <= start <= peak, got start=%v peak=%v", p.Start, p.Peak)
		}
		checkRange("piecewise.duration", p.Duration, 0, 1e6)
		if p.Duration.High <= 0 {
			bad("piecewise.duration must be positive")
		}
	default:
		bad("unsupported transmissibility model %q", c.Transmissibility)
	}

	known := make(map[string]bool, len(groups))
	for _, g := range groups {
		known[g] = true
	}
	multipliers := []struct {
		name string
		m    map[string]float64
	}{
		{"prop_asym_multiplier", c.PropAsymMultiplier},
		{"symptomatic_r0_multiplier", c.SymptomaticR0Multiplier},
		{"asymptomatic_r0_multiplier", c.AsymptomaticR0Multiplier},
		{"incubation_period_multiplier", c.IncubationMultiplier},
		{"susceptibility_multiplier", c.SusceptibilityMultiplier},
	}
	for _, mm := range multipliers {
		for _, g := range sortedKeys(mm.m) {
			if !known[g] {
				bad("%s: unknown group %q", mm.name, g)
			}
			if mm.m[g] < 0 {
				bad("%s: negative multiplier %v for group %q", mm.name, mm.m[g], g)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// multiplier returns m[group], defaulting to 1.
func multiplier(m map[string]float64, group string) float64 {
	if v, ok := m[group]; ok {
		return v
	}
	return 1
}
