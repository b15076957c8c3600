package plugins

import (
	"fmt"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/events"
)

// Vaccinate vaccinates the targeted individuals that are not vaccinated yet.
// Immunity is the probability an infection attempt fails; Infectivity
// scales down the R0 of a vaccinated case.
type Vaccinate struct {
	Targeting   `mapstructure:",squash"`
	Immunity    float64 `mapstructure:"immunity"`
	Infectivity float64 `mapstructure:"infectivity"`
	Susceptible bool    `mapstructure:"susceptible_only"`
}

// NewVaccinate builds a vaccination campaign.
func NewVaccinate(args map[string]any) (engine.Plugin, error) {
	v := &Vaccinate{Immunity: 1}
	if err := engine.DecodeArgs(args, v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	if v.Immunity < 0 || v.Immunity > 1 || v.Infectivity < 0 || v.Infectivity > 1 {
		return nil, fmt.Errorf("%w: immunity and infectivity must lie in [0, 1]", ErrInvalidArgs)
	}
	return v, nil
}

func (v *Vaccinate) Name() string { return "vaccinate" }

func (v *Vaccinate) Apply(time float64, pop *agents.Population) ([]events.Event, error) {
	picked := v.pick(pop, func(ind *agents.Individual) bool {
		if ind.Vaccination != nil {
			return false
		}
		return !v.Susceptible || ind.Stage() == agents.Susceptible
	})
	out := make([]events.Event, 0, len(picked))
	for _, ind := range picked {
		out = append(out, events.New(time, events.Vaccination{
			Immunity:    v.Immunity,
			Infectivity: v.Infectivity,
		}).For(ind.ID))
	}
	return out, nil
}
