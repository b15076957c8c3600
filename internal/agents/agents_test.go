package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/outbreak/internal/entropy"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
)

func newEnv(t *testing.T, seed uint64, mutate func(*params.Config)) (*Env, *events.Log) {
	t.Helper()
	cfg := params.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := params.New(cfg, entropy.ForReplicate(seed, 0))
	require.NoError(t, err)
	log := events.NewLog(0)
	return &Env{Model: m, Log: log}, log
}

func symptomaticOnly(c *params.Config) {
	c.PropAsymCarriers = params.Range{Low: 0, High: 0}
}

func newPopulation(t *testing.T, env *Env, groups ...GroupSpec) *Population {
	t.Helper()
	p, err := NewPopulation(env, groups...)
	require.NoError(t, err)
	return p
}

func kinds(evs []events.Event) map[events.Kind]int {
	out := make(map[events.Kind]int)
	for _, e := range evs {
		out[e.Kind()]++
	}
	return out
}

func TestInfectTwiceIsIgnored(t *testing.T) {
	env, log := newEnv(t, 1, nil)
	p := newPopulation(t, env, GroupSpec{Size: 4})
	ind, _ := p.Get("2")

	first, err := ind.Infect(0, InfectOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, first)
	before := *ind

	again, err := ind.Infect(3, InfectOptions{By: "1"})
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, before, *ind)
	assert.Equal(t, 1, log.Count(events.KindInfectionIgnored))
	assert.Equal(t, 1, log.Count(events.KindInfection))

	rec := log.Filter(events.KindInfectionIgnored)[0]
	assert.Equal(t, "2", rec.Target)
	by, _ := rec.Param("by")
	assert.Equal(t, "1", by)
}

func TestInfectWithoutTransmission(t *testing.T) {
	env, log := newEnv(t, 2, func(c *params.Config) {
		symptomaticOnly(c)
		c.SymptomaticR0 = params.Range{Low: 0, High: 0}
	})
	p := newPopulation(t, env, GroupSpec{Size: 3})
	ind, _ := p.Get("0")

	evs, err := ind.Infect(0, InfectOptions{Handle: events.NewHandlePolicy(events.ActionRemove, 0)})
	require.NoError(t, err)

	got := kinds(evs)
	assert.Equal(t, map[events.Kind]int{
		events.KindShowSymptom: 1,
		events.KindRemoval:     1,
		events.KindRecover:     1,
	}, got)
	assert.True(t, ind.Symptomatic)
	assert.True(t, ind.Incubation.Valid)
	assert.Equal(t, Infected, ind.Stage())

	for _, e := range evs {
		assert.Equal(t, "0", e.Target)
		if e.Kind() == events.KindRemoval || e.Kind() == events.KindShowSymptom {
			assert.InDelta(t, ind.Incubation.At, e.Time, 1e-9)
		}
	}

	rec := log.Filter(events.KindInfection)[0]
	r, _ := rec.Param("r")
	assert.Equal(t, "0", r)
	_, hasBy := rec.Param("by")
	assert.False(t, hasBy)
}

func TestLeadTimeRejectedOnSecondary(t *testing.T) {
	env, _ := newEnv(t, 3, nil)
	p := newPopulation(t, env, GroupSpec{Size: 2})
	ind, _ := p.Get("1")

	_, err := ind.Infect(1, InfectOptions{By: "0", LeadTime: events.LeadTime{Kind: events.LeadAny}})
	assert.ErrorIs(t, err, ErrLeadTimeOnSecondary)
	assert.False(t, ind.Infected.Valid)

	_, err = ind.Infect(1, InfectOptions{Handle: events.NewHandlePolicy(events.ActionReintegrate, 0)})
	assert.ErrorIs(t, err, events.ErrUnsupportedPolicy)
}

func TestLongLeadTimeMarksSymptomImmediately(t *testing.T) {
	env, log := newEnv(t, 4, func(c *params.Config) {
		symptomaticOnly(c)
		c.Incubation = params.Distribution{Kind: params.DistNormal, Loc: 5, Scale: 0}
	})
	p := newPopulation(t, env, GroupSpec{Size: 2})
	ind, _ := p.Get("0")

	evs, err := ind.Infect(10, InfectOptions{
		LeadTime: events.LeadTime{Kind: events.LeadFixed, Value: 7},
		Handle:   events.NewHandlePolicy(events.ActionRemove, 0),
	})
	require.NoError(t, err)

	assert.InDelta(t, 3, ind.Infected.At, 1e-9)
	require.True(t, ind.SymptomOnset.Valid)
	assert.InDelta(t, 8, ind.SymptomOnset.At, 1e-9)

	got := kinds(evs)
	assert.Zero(t, got[events.KindShowSymptom])
	assert.Zero(t, got[events.KindInfection])
	for _, e := range evs {
		if e.Kind() == events.KindRemoval {
			assert.Equal(t, 10.0, e.Time)
			assert.True(t, e.Priority)
		}
		assert.GreaterOrEqual(t, e.Time, 10.0)
	}
	lead, ok := log.Filter(events.KindInfection)[0].Param("leadtime")
	assert.True(t, ok)
	assert.Equal(t, "7.00", lead)
}

func TestQuarantineHandlingAvoidsPostOnsetInfections(t *testing.T) {
	env, _ := newEnv(t, 5, func(c *params.Config) {
		symptomaticOnly(c)
		c.SymptomaticR0 = params.Range{Low: 40, High: 40}
		c.Incubation = params.Distribution{Kind: params.DistNormal, Loc: 6, Scale: 0}
	})
	p := newPopulation(t, env, GroupSpec{Size: 2})
	ind, _ := p.Get("0")

	evs, err := ind.Infect(0, InfectOptions{Handle: events.NewHandlePolicy(events.ActionQuarantine, 100)})
	require.NoError(t, err)

	var infections, avoided int
	for _, e := range evs {
		switch e.Kind() {
		case events.KindInfection:
			infections++
			assert.Less(t, e.Time, 6.0)
			assert.Equal(t, "0", e.Payload.(events.Infection).By)
			assert.False(t, e.HasTarget())
		case events.KindInfectionAvoided:
			avoided++
			assert.GreaterOrEqual(t, e.Time, 6.0)
		case events.KindQuarantine:
			assert.InDelta(t, 106, e.Payload.(events.Quarantine).Till, 1e-9)
		}
	}
	assert.Positive(t, infections)
	assert.Positive(t, avoided)
}

func TestAsymptomaticInfection(t *testing.T) {
	env, log := newEnv(t, 6, func(c *params.Config) {
		c.PropAsymCarriers = params.Range{Low: 1, High: 1}
	})
	p := newPopulation(t, env, GroupSpec{Size: 2})
	ind, _ := p.Get("1")

	evs, err := ind.Infect(2, InfectOptions{Handle: events.NewHandlePolicy(events.ActionRemove, 0)})
	require.NoError(t, err)
	assert.False(t, ind.Symptomatic)
	assert.False(t, ind.Incubation.Valid)

	got := kinds(evs)
	assert.Zero(t, got[events.KindShowSymptom])
	assert.Zero(t, got[events.KindRemoval])
	assert.Equal(t, 1, got[events.KindRecover])

	incu, _ := log.Filter(events.KindInfection)[0].Param("incu")
	assert.Equal(t, "NA", incu)
}

func TestVaccinatedCarrierDoesNotTransmit(t *testing.T) {
	env, _ := newEnv(t, 7, func(c *params.Config) {
		c.SymptomaticR0 = params.Range{Low: 30, High: 30}
		c.AsymptomaticR0 = params.Range{Low: 30, High: 30}
	})
	p := newPopulation(t, env, GroupSpec{Size: 2})
	ind, _ := p.Get("0")
	ind.Vaccinate(0, 0.5, 1)

	evs, err := ind.Infect(1, InfectOptions{})
	require.NoError(t, err)
	assert.Zero(t, kinds(evs)[events.KindInfection])
	assert.Zero(t, ind.R0)
}

func TestQuarantineRoundTrip(t *testing.T) {
	env, _ := newEnv(t, 8, nil)
	p := newPopulation(t, env, GroupSpec{Size: 1})
	ind, _ := p.Get("0")

	for _, till := range []float64{0, 0.5, 3, 14, 120} {
		ev := ind.Quarantine(till)
		assert.Equal(t, events.KindReintegration, ev.Kind())
		assert.Equal(t, till, ev.Time)
		assert.Equal(t, "0", ev.Target)
		assert.Equal(t, events.Reintegration{Release: till, Scheduled: true}, ev.Payload)
		assert.True(t, ind.IsQuarantined())
		assert.True(t, ind.Releases(till))
		assert.False(t, ind.Releases(till+1))
		assert.False(t, ind.QuarantinedAt(till))

		ind.Reintegrate()
		assert.False(t, ind.IsQuarantined())
	}
}

func TestRecoverGrantsImmunity(t *testing.T) {
	env, _ := newEnv(t, 9, nil)
	p := newPopulation(t, env, GroupSpec{Size: 1})
	ind, _ := p.Get("0")
	ind.Vaccinate(0, 0.3, 0.4)
	ind.Recover(5)
	assert.Equal(t, Recovered, ind.Stage())
	assert.Equal(t, 1.0, ind.Immunity)
	assert.Zero(t, ind.Infectivity)
	assert.True(t, ind.MarkSymptom(2))
	assert.False(t, ind.MarkSymptom(3))
	assert.Equal(t, 2.0, ind.SymptomOnset.At)
}
