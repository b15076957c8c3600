package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
)

func population(t *testing.T, groups ...agents.GroupSpec) *agents.Population {
	t.Helper()
	m, err := params.New(params.DefaultConfig(), entropy.ForReplicate(17, 0))
	require.NoError(t, err)
	pop, err := agents.NewPopulation(&agents.Env{Model: m, Log: events.Discard}, groups...)
	require.NoError(t, err)
	return pop
}

func targets(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Target
	}
	return out
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{"quarantine", "replace", "stat", "vaccinate"}, Builtins().Names())
	assert.Error(t, Register(Builtins()))
}

func TestStat(t *testing.T) {
	pop := population(t, agents.GroupSpec{Size: 3}, agents.GroupSpec{Name: "kids", Size: 2})
	a, _ := pop.Get("0")
	a.Infected = agents.At(0)
	b, _ := pop.Get("1")
	b.Infected = agents.At(0)
	b.Recover(3)
	c, _ := pop.Get("kids_1")
	c.Quarantine(10)
	c.Vaccinate(1, 0.5, 0)

	p, err := NewStat(map[string]any{"by_group": true})
	require.NoError(t, err)
	evs, err := p.Apply(5, pop)
	require.NoError(t, err)
	require.Len(t, evs, 1)

	stat := evs[0].Payload.(events.Stat)
	got := make(map[string]string)
	for _, v := range stat.Values {
		got[v.Key] = v.Value
	}
	assert.Equal(t, map[string]string{
		"popsize":         "5",
		"n_susceptible":   "3",
		"n_infected":      "1",
		"n_recovered":     "1",
		"n_quarantined":   "1",
		"n_vaccinated":    "1",
		"popsize_default": "3",
		"popsize_kids":    "2",
	}, got)
}

func TestArgumentErrors(t *testing.T) {
	cases := []struct {
		name    string
		factory engine.Factory
		args    map[string]any
	}{
		{"no target", NewVaccinate, map[string]any{}},
		{"proportion", NewVaccinate, map[string]any{"proportion": 1.5}},
		{"immunity", NewVaccinate, map[string]any{"proportion": 1, "immunity": 2}},
		{"unknown key", NewQuarantine, map[string]any{"proportion": 1, "days": 3}},
		{"duration", NewQuarantine, map[string]any{"proportion": 1, "duration": 0}},
		{"keep", NewReplace, map[string]any{"proportion": 1, "keep": []string{"name"}}},
		{"negative duration", NewReplace, map[string]any{"ids": []string{"1"}, "duration": -1}},
		{"stat", NewStat, map[string]any{"by_group": "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.factory(tc.args)
			assert.ErrorIs(t, err, ErrInvalidArgs)
		})
	}
}

func TestVaccinateTargets(t *testing.T) {
	pop := population(t, agents.GroupSpec{Size: 4}, agents.GroupSpec{Name: "staff", Size: 2})
	done, _ := pop.Get("2")
	done.Vaccinate(0, 1, 0)
	sick, _ := pop.Get("3")
	sick.Infected = agents.At(0)

	p, err := NewVaccinate(map[string]any{"ids": []any{"1", "2", "3", "9"}, "immunity": "0.7", "susceptible_only": true})
	require.NoError(t, err)
	evs, err := p.Apply(2, pop)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, targets(evs))
	assert.Equal(t, events.Vaccination{Immunity: 0.7}, evs[0].Payload)
	assert.Equal(t, 2.0, evs[0].Time)

	p, err = NewVaccinate(map[string]any{"proportion": 1, "groups": []string{"staff"}})
	require.NoError(t, err)
	evs, err = p.Apply(2, pop)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff_0", "staff_1"}, targets(evs))
}

func TestProportionTargeting(t *testing.T) {
	pop := population(t, agents.GroupSpec{Size: 2000})
	p, err := NewQuarantine(map[string]any{"proportion": 0.25, "duration": 7})
	require.NoError(t, err)
	evs, err := p.Apply(1, pop)
	require.NoError(t, err)
	assert.InDelta(t, 500, len(evs), 60)
	for _, ev := range evs {
		assert.Equal(t, events.Quarantine{Till: 8, Reason: "plugin"}, ev.Payload)
	}
}

func TestQuarantineSkipsQuarantined(t *testing.T) {
	pop := population(t, agents.GroupSpec{Size: 3})
	ind, _ := pop.Get("1")
	ind.Quarantine(30)

	p, err := NewQuarantine(map[string]any{"proportion": 1})
	require.NoError(t, err)
	evs, err := p.Apply(1, pop)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "2"}, targets(evs))
	assert.Equal(t, 15.0, evs[0].Payload.(events.Quarantine).Till)
}

func TestReplaceSymptomaticOnly(t *testing.T) {
	pop := population(t, agents.GroupSpec{Size: 3})
	sick, _ := pop.Get("0")
	sick.Infected = agents.At(0)
	sick.MarkSymptom(1)
	silent, _ := pop.Get("1")
	silent.Infected = agents.At(0)

	p, err := NewReplace(map[string]any{"proportion": 1, "symptomatic_only": true, "keep": []string{"vaccination"}, "duration": 3})
	require.NoError(t, err)
	evs, err := p.Apply(4, pop)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "0", evs[0].Target)
	assert.Equal(t, events.Replacement{Keep: []string{"vaccination"}, Till: 7, HasTill: true, Reason: "plugin"}, evs[0].Payload)
}

func TestPluginsInSimulation(t *testing.T) {
	cfg := params.DefaultConfig()
	sim, err := engine.NewSimulation(engine.Setup{
		Seed:   99,
		Model:  cfg,
		Groups: []agents.GroupSpec{{Size: 200}},
		Plugins: []engine.PluginSpec{
			{Name: "vaccinate", Args: map[string]any{"proportion": 0.5, "immunity": 1}},
			{Name: "replace", Args: map[string]any{"proportion": 0.1, "duration": 2}, At: []float64{1}},
			{Name: "stat", Interval: 1, End: ptr(10), After: true},
		},
		StopAt: ptr(10),
	}, Builtins(), entropy.ForReplicate(99, 0))
	require.NoError(t, err)

	sum, err := sim.Run()
	require.NoError(t, err)
	assert.InDelta(t, 100, sum.Vaccinated, 25)
	assert.Positive(t, sum.Replaced)
	assert.Equal(t, 11, sim.Log.Count(events.KindStat))
	assert.Equal(t, 200, sum.PopSize)
	assert.Zero(t, sim.Log.Count(events.KindError))
	require.NoError(t, sim.Pop.Validate())
}

func ptr(v float64) *float64 { return &v }
