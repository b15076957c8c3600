package plugins

import (
	"fmt"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/events"
)

// Replace swaps targeted individuals for fresh ones of the same group,
// carrying over the Keep attributes. With a positive Duration the originals
// come back after that many days.
type Replace struct {
	Targeting       `mapstructure:",squash"`
	Keep            []string `mapstructure:"keep"`
	Duration        float64  `mapstructure:"duration"`
	SymptomaticOnly bool     `mapstructure:"symptomatic_only"`
}

// NewReplace builds a replacement plugin.
func NewReplace(args map[string]any) (engine.Plugin, error) {
	r := &Replace{}
	if err := engine.DecodeArgs(args, r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	if err := agents.CheckKeep(r.Keep); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	if r.Duration < 0 {
		return nil, fmt.Errorf("%w: negative duration %v", ErrInvalidArgs, r.Duration)
	}
	return r, nil
}

func (r *Replace) Name() string { return "replace" }

func (r *Replace) Apply(time float64, pop *agents.Population) ([]events.Event, error) {
	ok := everyone
	if r.SymptomaticOnly {
		ok = func(ind *agents.Individual) bool {
			return ind.SymptomOnset.Valid && ind.Stage() == agents.Infected
		}
	}
	picked := r.pick(pop, ok)
	out := make([]events.Event, 0, len(picked))
	for _, ind := range picked {
		out = append(out, events.New(time, events.Replacement{
			Keep:    r.Keep,
			Till:    time + r.Duration,
			HasTill: r.Duration > 0,
			Reason:  "plugin",
		}).For(ind.ID))
	}
	return out, nil
}
