// Package plugins holds the built-in plugins: population statistics,
// vaccination campaigns, replacement of individuals and mass quarantine.
package plugins

import (
	"errors"
	"fmt"
	"slices"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/entropy"
)

// ErrInvalidArgs wraps argument errors of the built-in plugins.
var ErrInvalidArgs = errors.New("invalid plugin arguments")

// Register adds every built-in plugin to reg.
func Register(reg *engine.Registry) error {
	for name, f := range map[string]engine.Factory{
		"stat":       NewStat,
		"vaccinate":  NewVaccinate,
		"replace":    NewReplace,
		"quarantine": NewQuarantine,
	} {
		if err := reg.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

// Builtins returns a registry holding the built-in plugins.
func Builtins() *engine.Registry {
	reg := engine.NewRegistry()
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}

// Targeting chooses whom a plugin acts on. Listed IDs win over proportion;
// Groups restricts either to the named groups.
type Targeting struct {
	Proportion float64  `mapstructure:"proportion"`
	IDs        []string `mapstructure:"ids"`
	Groups     []string `mapstructure:"groups"`
}

func (tg Targeting) validate() error {
	if tg.Proportion < 0 || tg.Proportion > 1 {
		return fmt.Errorf("%w: proportion %v outside [0, 1]", ErrInvalidArgs, tg.Proportion)
	}
	if tg.Proportion == 0 && len(tg.IDs) == 0 {
		return fmt.Errorf("%w: need a proportion or a list of ids", ErrInvalidArgs)
	}
	return nil
}

// pick returns the live members selected by tg that pass ok, in ID order.
func (tg Targeting) pick(pop *agents.Population, ok func(*agents.Individual) bool) []*agents.Individual {
	inGroup := func(ind *agents.Individual) bool {
		return len(tg.Groups) == 0 || slices.Contains(tg.Groups, ind.Group)
	}

	var out []*agents.Individual
	if len(tg.IDs) > 0 {
		for _, id := range tg.IDs {
			ind, live := pop.Get(id)
			if live && inGroup(ind) && ok(ind) {
				out = append(out, ind)
			}
		}
		return out
	}

	rng := pop.Env().Model.Rand()
	for _, ind := range pop.Members() {
		if inGroup(ind) && ok(ind) && entropy.Bernoulli(rng, tg.Proportion) {
			out = append(out, ind)
		}
	}
	return out
}

func everyone(*agents.Individual) bool { return true }
