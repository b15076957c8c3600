package engine

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
)

// stubPlugin is a plugin that records when it is called.
type stubPlugin struct {
	name  string
	calls []float64
	emit  func(t float64) []events.Event
	err   error
}

func (p *stubPlugin) Name() string { return p.name }

func (p *stubPlugin) Apply(t float64, _ *agents.Population) ([]events.Event, error) {
	p.calls = append(p.calls, t)
	if p.err != nil {
		return nil, p.err
	}
	if p.emit != nil {
		return p.emit(t), nil
	}
	return nil, nil
}

func registryWith(t *testing.T, stubs ...*stubPlugin) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, p := range stubs {
		require.NoError(t, reg.Register(p.name, func(map[string]any) (Plugin, error) { return p, nil }))
	}
	return reg
}

func quietModel() params.Config {
	cfg := params.DefaultConfig()
	cfg.SymptomaticR0 = params.Range{Low: 0, High: 0}
	cfg.AsymptomaticR0 = params.Range{Low: 0, High: 0}
	cfg.PropAsymCarriers = params.Range{Low: 0, High: 0}
	cfg.Incubation = params.Distribution{Kind: params.DistNormal, Loc: 5, Scale: 0}
	return cfg
}

func run(t *testing.T, setup Setup, reg *Registry) (Summary, *Simulation) {
	t.Helper()
	sim, err := NewSimulation(setup, reg, entropy.ForReplicate(setup.Seed, setup.Replicate))
	require.NoError(t, err)
	sum, err := sim.Run()
	require.NoError(t, err)
	return sum, sim
}

func ptr(v float64) *float64 { return &v }

func TestSingleCaseScenario(t *testing.T) {
	cases := []struct {
		name    string
		handle  events.HandlePolicy
		popsize int
		removed int
		recover int
	}{
		{"remove", events.NewHandlePolicy(events.ActionRemove, 0), 63, 1, 0},
		{"keep", events.NewHandlePolicy(events.ActionKeep, 0), 64, 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sum, sim := run(t, Setup{
				Seed:    42,
				Model:   quietModel(),
				Groups:  []agents.GroupSpec{{Size: 64}},
				Options: Options{Handle: tc.handle},
			}, nil)

			log := sim.Log
			assert.Equal(t, 1, log.Count(events.KindInfection))
			assert.Equal(t, 1, log.Count(events.KindShowSymptom))
			assert.Equal(t, tc.removed, log.Count(events.KindRemoval))
			assert.Equal(t, tc.recover, log.Count(events.KindRecover))
			assert.Zero(t, log.Count(events.KindInfectionFailed))
			assert.Zero(t, log.Count(events.KindInfectionAvoided))
			assert.Zero(t, log.Count(events.KindInfectionIgnored))
			assert.Zero(t, log.Count(events.KindError))

			assert.Equal(t, tc.popsize, sum.PopSize)
			assert.Equal(t, tc.popsize, sim.Pop.Size())
			assert.Equal(t, 1, sum.Infected)
			assert.False(t, sum.Aborted)

			recs := log.Records()
			assert.Equal(t, events.KindStart, recs[0].Kind)
			end := recs[len(recs)-1]
			assert.Equal(t, events.KindEnd, end.Kind)
			popsize, _ := end.Param("popsize")
			assert.Equal(t, strconv.Itoa(tc.popsize), popsize)
		})
	}
}

func TestSeededInfectorsAndLeadTime(t *testing.T) {
	sum, sim := run(t, Setup{
		Seed:      3,
		Model:     quietModel(),
		Groups:    []agents.GroupSpec{{Size: 4}, {Name: "kids", Size: 2}},
		Infectors: []string{"1", "kids_0"},
		Options:   Options{LeadTime: events.LeadTime{Kind: events.LeadFixed, Value: 2}},
	}, nil)
	assert.Equal(t, 2, sum.Infected)
	for _, id := range []string{"1", "kids_0"} {
		ind, ok := sim.Pop.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, -2.0, ind.Infected.At)
	}
	for _, r := range sim.Log.Filter(events.KindInfection) {
		lead, _ := r.Param("leadtime")
		assert.Equal(t, "2.00", lead)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	setup := Setup{
		Replicate: 2,
		Seed:      1234,
		Model:     params.DefaultConfig(),
		Groups:    []agents.GroupSpec{{Size: 300}},
		Options:   Options{Handle: events.NewHandlePolicy(events.ActionQuarantine, 7)},
		StopAt:    ptr(40),
	}
	_, a := run(t, setup, nil)
	_, b := run(t, setup, nil)
	assert.Equal(t, a.Log.Records(), b.Log.Records())

	setup.Replicate = 3
	_, c := run(t, setup, nil)
	assert.NotEqual(t, a.Log.Records(), c.Log.Records())
}

func TestStopAt(t *testing.T) {
	sum, sim := run(t, Setup{
		Seed:   5,
		Model:  quietModel(),
		Groups: []agents.GroupSpec{{Size: 10}},
		StopAt: ptr(3),
	}, nil)
	assert.Equal(t, 3.0, sum.EndTime)
	assert.Zero(t, sim.Log.Count(events.KindShowSymptom))
	assert.Equal(t, 1, sim.Log.Count(events.KindEnd))
}

func TestPluginSchedule(t *testing.T) {
	ticker := &stubPlugin{name: "ticker", emit: func(t float64) []events.Event {
		return []events.Event{events.New(t, events.Stat{Values: []events.Param{events.Float("t", t)}})}
	}}
	listener := &stubPlugin{name: "listener"}
	once := &stubPlugin{name: "once"}

	sum, sim := run(t, Setup{
		Seed:   6,
		Model:  quietModel(),
		Groups: []agents.GroupSpec{{Size: 0}},
		Plugins: []PluginSpec{
			{Name: "ticker", Interval: 1, End: ptr(5), At: []float64{2.5}},
			{Name: "listener", TriggerBy: []events.Kind{events.KindStat}, After: true},
			{Name: "once", Start: 1.5},
		},
	}, registryWith(t, ticker, listener, once))

	assert.Equal(t, []float64{0, 1, 2, 2.5, 3, 4, 5}, ticker.calls)
	assert.Equal(t, ticker.calls, listener.calls)
	assert.Equal(t, []float64{1.5}, once.calls)
	assert.Equal(t, 7, sim.Log.Count(events.KindStat))
	assert.Equal(t, 15, sim.Log.Count(events.KindPlugin))
	assert.Equal(t, 5.0, sum.EndTime)
}

func TestIntervalPluginStopsWhenIdle(t *testing.T) {
	ticker := &stubPlugin{name: "ticker"}
	run(t, Setup{
		Seed:    7,
		Model:   quietModel(),
		Groups:  []agents.GroupSpec{{Size: 0}},
		Plugins: []PluginSpec{{Name: "ticker", Interval: 1}},
	}, registryWith(t, ticker))
	assert.Equal(t, []float64{0}, ticker.calls)

	ticker.calls = nil
	run(t, Setup{
		Seed:    7,
		Model:   quietModel(),
		Groups:  []agents.GroupSpec{{Size: 1}},
		Options: Options{Handle: events.NewHandlePolicy(events.ActionKeep, 0)},
		Plugins: []PluginSpec{{Name: "ticker", Interval: 1}},
	}, registryWith(t, ticker))
	// The case shows symptoms on day 5 and recovers later; the ticker keeps
	// going while either is pending.
	require.NotEmpty(t, ticker.calls)
	assert.GreaterOrEqual(t, len(ticker.calls), 6)
}

func TestPluginAbort(t *testing.T) {
	stopper := &stubPlugin{name: "stopper", emit: func(t float64) []events.Event {
		return []events.Event{events.New(t, events.Abort{Reason: "enough"}).Urgent()}
	}}
	late := &stubPlugin{name: "late"}

	sum, sim := run(t, Setup{
		Seed:   8,
		Model:  quietModel(),
		Groups: []agents.GroupSpec{{Size: 5}},
		Plugins: []PluginSpec{
			{Name: "stopper", At: []float64{2}},
			{Name: "late", At: []float64{3}},
		},
	}, registryWith(t, stopper, late))

	assert.True(t, sum.Aborted)
	assert.Equal(t, 2.0, sum.EndTime)
	assert.Empty(t, late.calls)
	assert.Equal(t, 1, sim.Log.Count(events.KindAbort))
	recs := sim.Log.Records()
	assert.Equal(t, events.KindEnd, recs[len(recs)-1].Kind)
}

func TestSymptomInQuarantineAbortsAtOnce(t *testing.T) {
	staged := &stubPlugin{name: "staged", emit: func(t float64) []events.Event {
		return []events.Event{
			events.New(t, events.Quarantine{Till: t + 10}).For("1"),
			events.New(t, events.ShowSymptom{}).For("1"),
			events.New(t, events.Vaccination{Immunity: 1}).For("2"),
		}
	}}

	opts := Options{
		Handle:                   events.NewHandlePolicy(events.ActionKeep, 0),
		AbortOnQuarantineSymptom: true,
	}
	sum, sim := run(t, Setup{
		Seed:      10,
		Model:     quietModel(),
		Groups:    []agents.GroupSpec{{Size: 3}},
		Infectors: []string{"0"},
		Options:   opts,
		Plugins:   []PluginSpec{{Name: "staged", At: []float64{2}}},
	}, registryWith(t, staged))

	assert.True(t, sum.Aborted)
	assert.Equal(t, 2.0, sum.EndTime)
	assert.Equal(t, 1, sim.Log.Count(events.KindAbort))
	assert.Zero(t, sim.Log.Count(events.KindVaccination))
	other, _ := sim.Pop.Get("2")
	assert.Nil(t, other.Vaccination)
}

func TestPluginErrorEndsReplicate(t *testing.T) {
	boom := errors.New("boom")
	broken := &stubPlugin{name: "broken", err: boom}

	sim, err := NewSimulation(Setup{
		Seed:    9,
		Model:   quietModel(),
		Groups:  []agents.GroupSpec{{Size: 5}},
		Plugins: []PluginSpec{{Name: "broken", At: []float64{1}}},
	}, registryWith(t, broken), entropy.ForReplicate(9, 0))
	require.NoError(t, err)

	sum, err := sim.Run()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, sum.EndTime)
	assert.Equal(t, 1, sim.Log.Count(events.KindError))
	assert.Equal(t, 1, sim.Log.Count(events.KindEnd))
	msg, _ := sim.Log.Filter(events.KindError)[0].Param("msg")
	assert.NotContains(t, msg, ",")
}

func TestNewSimulationRejectsBadSetup(t *testing.T) {
	base := func() Setup {
		return Setup{Model: quietModel(), Groups: []agents.GroupSpec{{Size: 3}}}
	}
	rng := entropy.ForReplicate(1, 0)

	s := base()
	s.Infectors = []string{"7"}
	_, err := NewSimulation(s, nil, rng)
	assert.ErrorIs(t, err, ErrInvalidSetup)

	s = base()
	s.Model.IncubationMultiplier = map[string]float64{"ghosts": 2}
	_, err = NewSimulation(s, nil, rng)
	assert.ErrorIs(t, err, params.ErrInvalidConfig)

	s = base()
	s.Plugins = []PluginSpec{{Name: "missing"}}
	_, err = NewSimulation(s, NewRegistry(), rng)
	assert.ErrorIs(t, err, ErrUnknownPlugin)
	_, err = NewSimulation(s, nil, rng)
	assert.ErrorIs(t, err, ErrUnknownPlugin)

	s = base()
	s.Options.Handle = events.NewHandlePolicy(events.ActionReintegrate, 0)
	_, err = NewSimulation(s, nil, rng)
	assert.ErrorIs(t, err, events.ErrUnsupportedPolicy)

	s = base()
	s.Plugins = []PluginSpec{{Name: "p", TriggerBy: []events.Kind{events.KindPlugin}}}
	_, err = NewSimulation(s, NewRegistry(), rng)
	assert.ErrorIs(t, err, ErrInvalidSetup)
}

func TestDecodeArgs(t *testing.T) {
	var out struct {
		Proportion float64 `mapstructure:"proportion"`
		IDs        []string `mapstructure:"ids"`
	}
	require.NoError(t, DecodeArgs(map[string]any{"proportion": "0.25", "ids": []any{"1", "2"}}, &out))
	assert.Equal(t, 0.25, out.Proportion)
	assert.Equal(t, []string{"1", "2"}, out.IDs)

	assert.Error(t, DecodeArgs(map[string]any{"proportoin": 1}, &out))
}

func TestRegistry(t *testing.T) {
	reg := registryWith(t, &stubPlugin{name: "b"}, &stubPlugin{name: "a"})
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Error(t, reg.Register("a", nil))

	p, err := reg.Build(PluginSpec{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name())
}
