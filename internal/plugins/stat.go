package plugins

import (
	"fmt"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/events"
)

// Stat reports population counts as a STAT event.
type Stat struct {
	ByGroup bool `mapstructure:"by_group"`
}

// NewStat builds a stat plugin. With by_group set, group sizes are reported
// too.
func NewStat(args map[string]any) (engine.Plugin, error) {
	s := &Stat{}
	if err := engine.DecodeArgs(args, s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}
	return s, nil
}

func (s *Stat) Name() string { return "stat" }

func (s *Stat) Apply(time float64, pop *agents.Population) ([]events.Event, error) {
	var susceptible, infected, recovered, quarantined, vaccinated int
	for _, ind := range pop.Members() {
		switch ind.Stage() {
		case agents.Susceptible:
			susceptible++
		case agents.Infected:
			infected++
		case agents.Recovered:
			recovered++
		}
		if ind.QuarantinedAt(time) {
			quarantined++
		}
		if ind.Vaccination != nil {
			vaccinated++
		}
	}

	values := []events.Param{
		events.Int("popsize", pop.Size()),
		events.Int("n_susceptible", susceptible),
		events.Int("n_infected", infected),
		events.Int("n_recovered", recovered),
		events.Int("n_quarantined", quarantined),
		events.Int("n_vaccinated", vaccinated),
	}
	if s.ByGroup {
		for _, g := range pop.Groups() {
			name := g
			if name == "" {
				name = "default"
			}
			values = append(values, events.Int("popsize_"+name, pop.GroupSize(g)))
		}
	}
	return []events.Event{events.New(time, events.Stat{Values: values})}, nil
}
